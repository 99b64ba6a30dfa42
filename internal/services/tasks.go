package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

// IndexTaskHandler 在后台工作者中执行索引重建与重置任务
type IndexTaskHandler struct {
	service *IndexService
	folder  string // 载荷未指定目录时使用
	logger  *logrus.Logger
}

// NewIndexTaskHandler 创建索引任务处理器
func NewIndexTaskHandler(service *IndexService, folder string, logger *logrus.Logger) *IndexTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &IndexTaskHandler{service: service, folder: folder, logger: logger}
}

// GetTaskTypes 返回支持的任务类型
func (h *IndexTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskIndexRebuild, taskqueue.TaskIndexReset}
}

// ProcessTask 处理任务
func (h *IndexTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
	}).Info("Processing index task")

	switch task.Type {
	case taskqueue.TaskIndexRebuild:
		var p taskqueue.RebuildPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		trigger := models.BuildTrigger(p.Trigger)
		if trigger == "" {
			trigger = models.TriggerAdmin
		}
		return h.service.Build(ctx, h.folderOr(p.Folder), trigger)

	case taskqueue.TaskIndexReset:
		var p taskqueue.ResetPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		removed, err := h.service.Reset(ctx, h.folderOr(p.Folder), p.PurgeDocuments)
		if err != nil {
			return nil, err
		}
		return &taskqueue.ResetResult{Removed: removed}, nil
	}

	return nil, fmt.Errorf("%w: unsupported task type %s", taskqueue.ErrInvalidPayload, task.Type)
}

func (h *IndexTaskHandler) folderOr(folder string) string {
	if folder == "" {
		return h.folder
	}
	return folder
}
