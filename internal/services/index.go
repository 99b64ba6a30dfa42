package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/internal/embedding"
	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/repository"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
)

// BuildReport 一次全量构建的结果
type BuildReport struct {
	ID           string              `json:"id"`
	Folder       string              `json:"folder"`
	Trigger      models.BuildTrigger `json:"trigger"`
	Files        []models.FileResult `json:"files"`
	Chunks       int                 `json:"chunks"`
	Dimension    int                 `json:"dimension"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	PersistError string              `json:"persist_error,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// IndexService 索引服务
// 负责从文档目录全量构建索引，以及加载、清空持久化索引
type IndexService struct {
	index    *vectordb.Index
	chunker  *document.Chunker
	embedder embedding.Client
	builds   repository.BuildRepository // 可选，记录构建历史
	mu       sync.Mutex                 // 同一时间只允许一个写入者
	logger   *logrus.Logger
}

// IndexOption 索引服务配置选项
type IndexOption func(*IndexService)

// WithBuildRepository 设置构建记录仓储
func WithBuildRepository(repo repository.BuildRepository) IndexOption {
	return func(s *IndexService) {
		s.builds = repo
	}
}

// WithIndexLogger 设置日志记录器
func WithIndexLogger(logger *logrus.Logger) IndexOption {
	return func(s *IndexService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIndexService 创建索引服务
func NewIndexService(index *vectordb.Index, chunker *document.Chunker, embedder embedding.Client, opts ...IndexOption) *IndexService {
	s := &IndexService{
		index:    index,
		chunker:  chunker,
		embedder: embedder,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index 返回底层索引
func (s *IndexService) Index() *vectordb.Index {
	return s.index
}

// Build 从目录全量构建索引
// 所有文件处理完成并嵌入成功后才替换当前索引；嵌入失败时旧索引保持可用
// 持久化失败只记录在报告中，新索引仍然生效
func (s *IndexService) Build(ctx context.Context, folder string, trigger models.BuildTrigger) (*BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &BuildReport{
		ID:        uuid.New().String(),
		Folder:    folder,
		Trigger:   trigger,
		Files:     []models.FileResult{},
		StartedAt: time.Now(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"build_id": report.ID,
		"folder":   folder,
		"trigger":  trigger,
	})
	log.Info("Starting index build")
	s.recordStart(ctx, report)

	err := s.build(ctx, folder, report, log)
	report.FinishedAt = time.Now()
	s.recordFinish(ctx, report, err)

	if err != nil {
		log.WithError(err).Error("Index build failed")
		return report, err
	}

	log.WithFields(logrus.Fields{
		"files":    len(report.Files),
		"chunks":   report.Chunks,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Index build completed")
	return report, nil
}

func (s *IndexService) build(ctx context.Context, folder string, report *BuildReport, log *logrus.Entry) error {
	files, err := listFiles(folder)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("Documents folder does not exist, index will be empty")
		files = nil
	} else if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	var chunks []document.Chunk
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Base(path)
		result := document.ExtractFile(path)
		fr := models.FileResult{
			File:    name,
			Outcome: result.Outcome.String(),
			Pages:   len(result.Pages),
			Reason:  result.Reason,
		}

		switch result.Outcome {
		case document.OutcomeSkipped:
			report.Skipped++
			log.WithFields(logrus.Fields{"file": name, "reason": result.Reason}).Info("Skipping file")
		case document.OutcomeFailed:
			report.Failed++
			log.WithFields(logrus.Fields{"file": name, "reason": result.Reason}).Warn("Failed to extract file")
		default:
			for _, page := range result.Pages {
				pageChunks := document.ChunkPage(s.chunker, name, page)
				fr.Chunks += len(pageChunks)
				chunks = append(chunks, pageChunks...)
			}
			log.WithFields(logrus.Fields{"file": name, "pages": fr.Pages, "chunks": fr.Chunks}).Debug("Processed file")
		}
		report.Files = append(report.Files, fr)
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if err := embedding.CheckDimensions(vectors); err != nil {
			return err
		}
	} else {
		log.Warn("No text extracted from documents")
	}

	snap, err := s.index.Swap(chunks, vectors)
	if err != nil {
		return fmt.Errorf("failed to swap index: %w", err)
	}
	report.Chunks = snap.Len()
	report.Dimension = snap.Dimension

	if err := s.index.PersistSnapshot(ctx, snap); err != nil {
		report.PersistError = err.Error()
		log.WithError(err).Error("Failed to persist index, in-memory index remains live")
	}
	return nil
}

// Load 加载持久化索引，返回是否加载成功
func (s *IndexService) Load(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Load(ctx)
}

// LoadOrBuild 优先加载持久化索引；不存在时若目录存在则构建
func (s *IndexService) LoadOrBuild(ctx context.Context, folder string) error {
	loaded, err := s.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load persisted index, rebuilding")
	}
	if loaded {
		return nil
	}
	if _, err := os.Stat(folder); err != nil {
		s.logger.WithField("folder", folder).Warn("No index and no documents folder, ingestion required")
		return nil
	}
	_, err = s.Build(ctx, folder, models.TriggerStartup)
	return err
}

// Clear 清空索引及其持久化文件
func (s *IndexService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Clear(ctx)
}

// Reset 清空索引，purge为true时同时删除文档目录下的所有文件
func (s *IndexService) Reset(ctx context.Context, folder string, purge bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Clear(ctx); err != nil {
		return 0, err
	}
	if !purge {
		return 0, nil
	}

	files, err := listFiles(folder)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	removed := 0
	for _, path := range files {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	s.logger.WithFields(logrus.Fields{"folder": folder, "removed": removed}).Info("Documents folder purged")
	return removed, nil
}

// Stats 返回索引统计信息
func (s *IndexService) Stats() vectordb.Stats {
	return s.index.Stats()
}

// History 返回最近的构建记录
func (s *IndexService) History(ctx context.Context, offset, limit int) ([]*models.BuildRun, int64, error) {
	if s.builds == nil {
		return []*models.BuildRun{}, 0, nil
	}
	return s.builds.List(ctx, offset, limit)
}

// LastBuild 返回最近一次构建记录，没有记录时返回nil
func (s *IndexService) LastBuild(ctx context.Context) (*models.BuildRun, error) {
	if s.builds == nil {
		return nil, nil
	}
	run, err := s.builds.Latest(ctx)
	if errors.Is(err, models.ErrBuildNotFound) {
		return nil, nil
	}
	return run, err
}

func (s *IndexService) recordStart(ctx context.Context, report *BuildReport) {
	if s.builds == nil {
		return
	}
	run := &models.BuildRun{
		ID:        report.ID,
		Trigger:   report.Trigger,
		Status:    models.BuildStatusRunning,
		Folder:    report.Folder,
		StartedAt: report.StartedAt,
	}
	if err := s.builds.Create(ctx, run); err != nil {
		s.logger.WithError(err).Warn("Failed to record build start")
	}
}

func (s *IndexService) recordFinish(ctx context.Context, report *BuildReport, buildErr error) {
	if s.builds == nil {
		return
	}
	finished := report.FinishedAt
	run := &models.BuildRun{
		ID:           report.ID,
		Trigger:      report.Trigger,
		Status:       models.BuildStatusCompleted,
		Folder:       report.Folder,
		StartedAt:    report.StartedAt,
		FinishedAt:   &finished,
		FileCount:    len(report.Files),
		SkippedCount: report.Skipped,
		FailedCount:  report.Failed,
		ChunkCount:   report.Chunks,
		Dimension:    report.Dimension,
		PersistError: report.PersistError,
	}
	if buildErr != nil {
		run.Status = models.BuildStatusFailed
		run.Error = buildErr.Error()
	}
	if err := run.SetResults(report.Files); err != nil {
		s.logger.WithError(err).Warn("Failed to encode build results")
	}
	// 构建可能因ctx取消而失败，记录仍需写入
	if err := s.builds.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.WithError(err).Warn("Failed to record build result")
	}
}

// listFiles 列出目录下的普通文件，按文件名排序
func listFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
