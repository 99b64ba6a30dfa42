package repository

import (
	"context"

	"github.com/fyerfyer/campus-qa/internal/models"
)

// BuildRepository 构建记录仓储接口
// 负责索引构建历史的存储和检索
type BuildRepository interface {
	// Create 创建构建记录
	Create(ctx context.Context, run *models.BuildRun) error

	// Update 更新构建记录
	Update(ctx context.Context, run *models.BuildRun) error

	// GetByID 根据ID获取构建记录
	GetByID(ctx context.Context, id string) (*models.BuildRun, error)

	// List 按开始时间倒序列出构建记录
	List(ctx context.Context, offset, limit int) ([]*models.BuildRun, int64, error)

	// Latest 返回最近一次构建记录，没有记录时返回ErrBuildNotFound
	Latest(ctx context.Context) (*models.BuildRun, error)
}
