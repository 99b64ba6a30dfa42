package model

import (
	"time"

	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/services"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SourceInfo 回答引用的分块
type SourceInfo struct {
	File    string  `json:"file"`
	Page    int     `json:"page"`
	ChunkID string  `json:"chunk_id"`
	Score   float32 `json:"score"`
	Boosted bool    `json:"boosted,omitempty"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Reply   string       `json:"reply"`
	Query   string       `json:"query,omitempty"` // 实际用于检索的查询
	Sources []SourceInfo `json:"sources"`
}

// NewChatResponse 由服务层回复构造响应
func NewChatResponse(reply *services.Reply) ChatResponse {
	resp := ChatResponse{
		Reply:   reply.Text,
		Sources: make([]SourceInfo, 0, len(reply.Sources)),
	}
	if reply.Rewrite != nil {
		resp.Query = reply.Rewrite.Query
	}
	for _, s := range reply.Sources {
		resp.Sources = append(resp.Sources, SourceInfo{
			File:    s.File,
			Page:    s.Page,
			ChunkID: s.ChunkID,
			Score:   s.Score,
			Boosted: s.Boosted,
		})
	}
	return resp
}

// TaskAcceptedResponse 异步任务已入队
type TaskAcceptedResponse struct {
	TaskID string             `json:"task_id"`
	Type   taskqueue.TaskType `json:"type"`
}

// ResetResponse 同步重置结果
type ResetResponse struct {
	Removed int `json:"removed"` // 删除的文档数量
}

// IndexStatsResponse 索引统计
type IndexStatsResponse struct {
	vectordb.Stats
	Ready     bool          `json:"ready"`                // 是否有可检索的分块
	LastBuild *BuildRunInfo `json:"last_build,omitempty"` // 最近一次构建
}

// BuildRunInfo 构建记录
type BuildRunInfo struct {
	ID           string              `json:"id"`
	Trigger      models.BuildTrigger `json:"trigger"`
	Status       models.BuildStatus  `json:"status"`
	Folder       string              `json:"folder"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	DurationMS   int64               `json:"duration_ms"`
	FileCount    int                 `json:"file_count"`
	SkippedCount int                 `json:"skipped_count"`
	FailedCount  int                 `json:"failed_count"`
	ChunkCount   int                 `json:"chunk_count"`
	Dimension    int                 `json:"dimension"`
	Error        string              `json:"error,omitempty"`
	PersistError string              `json:"persist_error,omitempty"`
	Files        []models.FileResult `json:"files"`
}

// NewBuildRunInfo 转换构建记录，文件明细解析失败时返回空列表
func NewBuildRunInfo(run *models.BuildRun) BuildRunInfo {
	files, err := run.FileResults()
	if err != nil || files == nil {
		files = []models.FileResult{}
	}
	return BuildRunInfo{
		ID:           run.ID,
		Trigger:      run.Trigger,
		Status:       run.Status,
		Folder:       run.Folder,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		DurationMS:   run.Duration().Milliseconds(),
		FileCount:    run.FileCount,
		SkippedCount: run.SkippedCount,
		FailedCount:  run.FailedCount,
		ChunkCount:   run.ChunkCount,
		Dimension:    run.Dimension,
		Error:        run.Error,
		PersistError: run.PersistError,
		Files:        files,
	}
}

// BuildListResponse 构建历史列表
type BuildListResponse struct {
	PaginationResponse
	Builds []BuildRunInfo `json:"builds"`
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`     // 总记录数
	Page     int   `json:"page"`      // 当前页码
	PageSize int   `json:"page_size"` // 每页大小
}
