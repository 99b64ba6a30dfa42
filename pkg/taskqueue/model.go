package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskIndexRebuild 重建向量索引
	TaskIndexRebuild TaskType = "index:rebuild"
	// TaskIndexReset 清空索引，可选删除文档目录中的文件
	TaskIndexReset TaskType = "index:reset"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Finished 任务是否已经结束
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷
	Result      json.RawMessage `json:"result"`       // 任务结果
	Error       string          `json:"error"`        // 错误信息
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// RebuildPayload 索引重建任务载荷
type RebuildPayload struct {
	Folder  string `json:"folder"`  // 文档目录
	Trigger string `json:"trigger"` // 触发来源
}

// ResetPayload 索引重置任务载荷
type ResetPayload struct {
	Folder         string `json:"folder"`          // 文档目录
	PurgeDocuments bool   `json:"purge_documents"` // 是否同时删除文档文件
}

// ResetResult 索引重置任务结果
type ResetResult struct {
	Removed int `json:"removed"` // 删除的文档数量
}
