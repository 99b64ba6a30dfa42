package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/api/middleware"
	"github.com/fyerfyer/campus-qa/api/model"
	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/services"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

// IndexManager 索引管理操作
type IndexManager interface {
	Build(ctx context.Context, folder string, trigger models.BuildTrigger) (*services.BuildReport, error)
	Reset(ctx context.Context, folder string, purge bool) (int, error)
	Stats() vectordb.Stats
	History(ctx context.Context, offset, limit int) ([]*models.BuildRun, int64, error)
	LastBuild(ctx context.Context) (*models.BuildRun, error)
}

// AdminHandler 处理索引管理请求
// 配置了任务队列时重建和重置异步执行
type AdminHandler struct {
	index  IndexManager
	queue  taskqueue.Queue
	folder string
	logger *logrus.Logger
}

// AdminOption 管理处理器配置选项
type AdminOption func(*AdminHandler)

// WithTaskQueue 使用任务队列异步执行重建和重置
func WithTaskQueue(queue taskqueue.Queue) AdminOption {
	return func(h *AdminHandler) {
		h.queue = queue
	}
}

// NewAdminHandler 创建索引管理处理器
func NewAdminHandler(index IndexManager, folder string, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		index:  index,
		folder: folder,
		logger: middleware.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Rebuild 从文档目录重建索引
// POST /api/admin/rebuild
func (h *AdminHandler) Rebuild(c *gin.Context) {
	if h.queue != nil {
		h.enqueue(c, taskqueue.TaskIndexRebuild, &taskqueue.RebuildPayload{
			Folder:  h.folder,
			Trigger: string(models.TriggerAdmin),
		})
		return
	}

	report, err := h.index.Build(c.Request.Context(), h.folder, models.TriggerAdmin)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Index build failed", err.Error()))
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(report))
}

// Reset 清空索引，可选删除文档文件
// POST /api/admin/reset
func (h *AdminHandler) Reset(c *gin.Context) {
	var req model.ResetRequest
	// 请求体可以为空
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("Invalid reset request", err.Error()))
			return
		}
	}

	if h.queue != nil {
		h.enqueue(c, taskqueue.TaskIndexReset, &taskqueue.ResetPayload{
			Folder:         h.folder,
			PurgeDocuments: req.PurgeDocuments,
		})
		return
	}

	removed, err := h.index.Reset(c.Request.Context(), h.folder, req.PurgeDocuments)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Index reset failed", err.Error()))
		return
	}
	h.logger.WithFields(logrus.Fields{
		"purge":   req.PurgeDocuments,
		"removed": removed,
	}).Info("Index reset")
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ResetResponse{Removed: removed}))
}

// IndexStats 返回索引统计信息
// GET /api/admin/index
func (h *AdminHandler) IndexStats(c *gin.Context) {
	stats := h.index.Stats()
	resp := model.IndexStatsResponse{
		Stats: stats,
		Ready: stats.Chunks > 0,
	}

	last, err := h.index.LastBuild(c.Request.Context())
	if err != nil {
		// 构建记录不可用时仍返回索引统计
		h.logger.WithError(err).Warn("Failed to load last build")
	} else if last != nil {
		info := model.NewBuildRunInfo(last)
		resp.LastBuild = &info
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListBuilds 分页返回构建历史
// GET /api/admin/builds
func (h *AdminHandler) ListBuilds(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid pagination parameters", err.Error()))
		return
	}

	runs, total, err := h.index.History(c.Request.Context(), req.Offset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to list builds", err.Error()))
		return
	}

	builds := make([]model.BuildRunInfo, 0, len(runs))
	for _, run := range runs {
		builds = append(builds, model.NewBuildRunInfo(run))
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.BuildListResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     req.GetPage(),
			PageSize: req.GetPageSize(),
		},
		Builds: builds,
	}))
}

// GetTask 查询异步任务状态
// GET /api/admin/tasks/:id
func (h *AdminHandler) GetTask(c *gin.Context) {
	if h.queue == nil {
		middleware.HandleError(c, middleware.NewNotFoundError("Task queue is not enabled"))
		return
	}

	var req model.TaskRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid task id", err.Error()))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), req.ID)
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		middleware.HandleError(c, middleware.NewNotFoundError("Task not found"))
		return
	}
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to get task", err.Error()))
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(task))
}

func (h *AdminHandler) enqueue(c *gin.Context, taskType taskqueue.TaskType, payload interface{}) {
	taskID, err := h.queue.Enqueue(c.Request.Context(), taskType, payload)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("Failed to enqueue task", err.Error()))
		return
	}
	h.logger.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": taskType,
	}).Info("Index task enqueued")
	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.TaskAcceptedResponse{
		TaskID: taskID,
		Type:   taskType,
	}))
}
