package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BuildStatus 索引构建状态
type BuildStatus string

const (
	// BuildStatusRunning 构建中
	BuildStatusRunning BuildStatus = "running"
	// BuildStatusCompleted 构建完成（持久化失败也算完成，见PersistError）
	BuildStatusCompleted BuildStatus = "completed"
	// BuildStatusFailed 构建失败，索引保持原状
	BuildStatusFailed BuildStatus = "failed"
)

// BuildTrigger 构建触发来源
type BuildTrigger string

const (
	TriggerStartup BuildTrigger = "startup"
	TriggerAdmin   BuildTrigger = "admin"
	TriggerCLI     BuildTrigger = "cli"
	TriggerWatch   BuildTrigger = "watch"
	TriggerReset   BuildTrigger = "reset"
)

// FileResult 单个文件在一次构建中的处理结果
type FileResult struct {
	File    string `json:"file"`
	Outcome string `json:"outcome"` // ok, skipped, failed
	Pages   int    `json:"pages"`
	Chunks  int    `json:"chunks"`
	Reason  string `json:"reason,omitempty"`
}

// BuildRun 一次索引构建的记录
type BuildRun struct {
	ID           string         `gorm:"primaryKey;size:36"`
	Trigger      BuildTrigger   `gorm:"size:20;not null"`
	Status       BuildStatus    `gorm:"size:20;not null;index"`
	Folder       string         `gorm:"not null"`
	StartedAt    time.Time      `gorm:"not null;index"`
	FinishedAt   *time.Time     `gorm:"index"`
	FileCount    int            `gorm:"not null;default:0"`
	SkippedCount int            `gorm:"not null;default:0"`
	FailedCount  int            `gorm:"not null;default:0"`
	ChunkCount   int            `gorm:"not null;default:0"`
	Dimension    int            `gorm:"not null;default:0"`
	Error        string         `gorm:"type:text"`
	PersistError string         `gorm:"type:text"`
	Results      datatypes.JSON `gorm:"type:json"` // []FileResult
	UpdatedAt    time.Time
}

// BeforeCreate 创建记录前补全开始时间
func (b *BuildRun) BeforeCreate(tx *gorm.DB) (err error) {
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (BuildRun) TableName() string {
	return "build_runs"
}

// SetResults 序列化文件处理结果
func (b *BuildRun) SetResults(results []FileResult) error {
	if results == nil {
		results = []FileResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	b.Results = datatypes.JSON(data)
	return nil
}

// FileResults 反序列化文件处理结果
func (b *BuildRun) FileResults() ([]FileResult, error) {
	if len(b.Results) == 0 {
		return []FileResult{}, nil
	}
	var results []FileResult
	if err := json.Unmarshal(b.Results, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Duration 构建耗时，未结束时返回0
func (b *BuildRun) Duration() time.Duration {
	if b.FinishedAt == nil {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}
