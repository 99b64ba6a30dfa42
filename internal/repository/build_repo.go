package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fyerfyer/campus-qa/internal/models"
)

// buildRepository 构建记录仓储实现
type buildRepository struct {
	db *gorm.DB // 数据库连接
}

// NewBuildRepository 使用指定的数据库连接创建构建记录仓储
func NewBuildRepository(db *gorm.DB) BuildRepository {
	return &buildRepository{db: db}
}

// Create 创建构建记录
func (r *buildRepository) Create(ctx context.Context, run *models.BuildRun) error {
	if run.ID == "" {
		return errors.New("build run ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Update 更新构建记录
func (r *buildRepository) Update(ctx context.Context, run *models.BuildRun) error {
	if run.ID == "" {
		return errors.New("build run ID cannot be empty")
	}
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID 根据ID获取构建记录
func (r *buildRepository) GetByID(ctx context.Context, id string) (*models.BuildRun, error) {
	var run models.BuildRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrBuildNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 按开始时间倒序列出构建记录
func (r *buildRepository) List(ctx context.Context, offset, limit int) ([]*models.BuildRun, int64, error) {
	var runs []*models.BuildRun
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.BuildRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	err := r.db.WithContext(ctx).Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// Latest 返回最近一次构建记录
func (r *buildRepository) Latest(ctx context.Context) (*models.BuildRun, error) {
	var run models.BuildRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrBuildNotFound
		}
		return nil, err
	}
	return &run, nil
}
