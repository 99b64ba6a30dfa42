package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/api/middleware"
	"github.com/fyerfyer/campus-qa/api/model"
	"github.com/fyerfyer/campus-qa/internal/llm"
	"github.com/fyerfyer/campus-qa/internal/services"
)

// Answerer 根据对话历史生成回复
type Answerer interface {
	Answer(ctx context.Context, history []llm.Message) (*services.Reply, error)
}

// ChatHandler 处理对话请求
type ChatHandler struct {
	chat   Answerer
	logger *logrus.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(chat Answerer) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: middleware.GetLogger(),
	}
}

// Chat 处理对话请求
// POST /api/chat
// 对话历史格式不正确时仍返回200，由回复文本说明
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat request")
		c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatResponse{
			Reply:   services.ReplyInvalidHistory,
			Sources: []model.SourceInfo{},
		}))
		return
	}

	history := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, llm.Message{Role: llm.ParseRole(m.Role), Content: m.Text()})
	}

	reply, err := h.chat.Answer(c.Request.Context(), history)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to answer question", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewChatResponse(reply)))
}
