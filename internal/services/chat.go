package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/internal/embedding"
	"github.com/fyerfyer/campus-qa/internal/llm"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
)

// 固定的文本回复
const (
	ReplyInvalidHistory = "Invalid chat history."
	ReplyEmptyQuestion  = "Please ask a valid question."
	replyErrorPrefix    = "Error generating answer: "
)

// DefaultHistoryTurns 发送给模型的最大历史轮数
const DefaultHistoryTurns = 8

// Source 回答引用的分块
type Source struct {
	File    string  `json:"file"`
	Page    int     `json:"page"`
	ChunkID string  `json:"chunk_id"`
	Score   float32 `json:"score"`
	Boosted bool    `json:"boosted,omitempty"`
}

// Reply 一次问答的结果
type Reply struct {
	Text    string         `json:"reply"`
	Sources []Source       `json:"sources"`
	Rewrite *RewriteResult `json:"rewrite,omitempty"`
}

// ChatService 问答服务
// 负责协调查询改写、向量检索和大模型生成答案
type ChatService struct {
	rewriter     *QueryRewriter
	embedder     embedding.Client
	index        *vectordb.Index
	llm          llm.Client
	persona      string
	boostFactor  float32
	historyTurns int
	logger       *logrus.Logger
}

// ChatOption 问答服务配置选项
type ChatOption func(*ChatService)

// WithPersona 设置系统人设提示词
func WithPersona(persona string) ChatOption {
	return func(s *ChatService) {
		if strings.TrimSpace(persona) != "" {
			s.persona = persona
		}
	}
}

// WithBoostFactor 设置联系方式查询的加权系数
func WithBoostFactor(factor float32) ChatOption {
	return func(s *ChatService) {
		if factor > 0 {
			s.boostFactor = factor
		}
	}
}

// WithHistoryTurns 设置发送给模型的最大历史轮数
func WithHistoryTurns(turns int) ChatOption {
	return func(s *ChatService) {
		if turns > 0 {
			s.historyTurns = turns
		}
	}
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewChatService 创建问答服务实例
func NewChatService(
	rewriter *QueryRewriter,
	embedder embedding.Client,
	index *vectordb.Index,
	llmClient llm.Client,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		rewriter:     rewriter,
		embedder:     embedder,
		index:        index,
		llm:          llmClient,
		persona:      llm.DefaultPersona,
		boostFactor:  vectordb.DefaultBoostFactor,
		historyTurns: DefaultHistoryTurns,
		logger:       logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer 根据对话历史生成回答
// 输入不合法或生成失败时以文本回复说明，只有ctx取消会返回错误
func (s *ChatService) Answer(ctx context.Context, history []llm.Message) (*Reply, error) {
	rewrite, err := s.rewriter.Rewrite(history)
	switch {
	case errors.Is(err, ErrInvalidHistory):
		return &Reply{Text: ReplyInvalidHistory, Sources: []Source{}}, nil
	case errors.Is(err, ErrEmptyQuestion):
		return &Reply{Text: ReplyEmptyQuestion, Sources: []Source{}}, nil
	case err != nil:
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"query":          rewrite.Query,
		"top_k":          rewrite.TopK,
		"contact_intent": rewrite.ContactIntent,
		"follow_up":      rewrite.FollowUp,
	})

	results, err := s.retrieve(ctx, rewrite)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// 检索失败时不带上下文继续生成
		log.WithError(err).Warn("Retrieval failed, answering without context")
		results = nil
	}

	texts := make([]string, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
		sources[i] = Source{
			File:    r.Chunk.Meta.SourceFile,
			Page:    r.Chunk.Meta.Page,
			ChunkID: r.Chunk.Meta.ChunkID,
			Score:   r.Score,
			Boosted: r.Boosted,
		}
	}

	messages := llm.BuildMessages(s.persona, llm.BuildContext(texts), trimHistory(history, s.historyTurns))
	resp, err := s.llm.Chat(ctx, messages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).Error("Generation failed")
		return &Reply{Text: replyErrorPrefix + err.Error(), Sources: sources, Rewrite: &rewrite}, nil
	}

	log.WithFields(logrus.Fields{
		"sources": len(sources),
		"tokens":  resp.TokenCount,
	}).Info("Answer generated")

	return &Reply{
		Text:    llm.StripThink(resp.Text),
		Sources: sources,
		Rewrite: &rewrite,
	}, nil
}

// retrieve 嵌入查询并检索，联系方式查询启用加权
func (s *ChatService) retrieve(ctx context.Context, rewrite RewriteResult) ([]vectordb.SearchResult, error) {
	if s.index.Snapshot().Empty() {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, rewrite.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.index.Search(vector, vectordb.SearchOptions{
		TopK:         rewrite.TopK,
		BoostContact: rewrite.ContactIntent,
		BoostFactor:  s.boostFactor,
	})
}

// trimHistory 保留最近的n轮对话
func trimHistory(history []llm.Message, n int) []llm.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
