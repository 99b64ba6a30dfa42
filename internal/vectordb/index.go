package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/pkg/storage"
)

// Index 内存向量索引
// 读路径无锁：每次检索读取一次当前快照指针；写入方构建完整的新快照后一次性替换
type Index struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex // 串行化Swap/Load/Clear/Persist

	store  storage.Storage // 为nil时只在内存中保存
	logger *logrus.Logger
}

// Option 索引选项
type Option func(*Index)

// WithStorage 设置持久化存储
func WithStorage(s storage.Storage) Option {
	return func(x *Index) {
		x.store = s
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(x *Index) {
		x.logger = logger
	}
}

// New 创建一个空索引
func New(opts ...Option) *Index {
	x := &Index{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(x)
	}
	x.current.Store(emptySnapshot)
	return x
}

// Snapshot 返回当前快照，调用方不得修改其内容
func (x *Index) Snapshot() *Snapshot {
	return x.current.Load()
}

// Swap 用新的语料和向量整体替换当前内容
// 参数在本地完成校验与归一化后才发布，读者只会看到旧快照或新快照
func (x *Index) Swap(records []document.Chunk, vectors [][]float32) (*Snapshot, error) {
	snap, err := newSnapshot(records, vectors)
	if err != nil {
		return nil, err
	}

	x.writeMu.Lock()
	x.current.Store(snap)
	x.writeMu.Unlock()

	return snap, nil
}

func newSnapshot(records []document.Chunk, vectors [][]float32) (*Snapshot, error) {
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("%w: %d records, %d vectors", ErrMisaligned, len(records), len(vectors))
	}
	if len(records) == 0 {
		return emptySnapshot, nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrEmptyVector
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, expected %d", ErrInvalidDimension, i, len(v), dim)
		}
		normalized[i] = normalizeVector(v)
	}

	copied := make([]document.Chunk, len(records))
	copy(copied, records)

	return &Snapshot{
		Records:   copied,
		Vectors:   normalized,
		Dimension: dim,
		BuiltAt:   time.Now(),
	}, nil
}

// Search 按余弦相似度检索，必要时为含联系方式的分块加权
// 分数相同时按语料插入顺序排序，空索引返回空结果
func (x *Index) Search(query []float32, opts SearchOptions) ([]SearchResult, error) {
	snap := x.current.Load()
	if snap.Empty() {
		return []SearchResult{}, nil
	}
	if len(query) != snap.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrInvalidDimension, len(query), snap.Dimension)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	boost := opts.BoostFactor
	if boost <= 0 {
		boost = DefaultBoostFactor
	}

	q := normalizeVector(query)
	results := make([]SearchResult, snap.Len())
	for i, v := range snap.Vectors {
		score := dotProduct(q, v)
		boosted := opts.BoostContact && snap.Records[i].Meta.HasContact()
		if boosted {
			score *= boost
		}
		results[i] = SearchResult{
			Chunk:    snap.Records[i],
			Score:    score,
			Position: i,
			Boosted:  boosted,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Stats 返回当前索引的统计信息
func (x *Index) Stats() Stats {
	snap := x.current.Load()
	files := make(map[string]struct{})
	for _, r := range snap.Records {
		files[r.Meta.SourceFile] = struct{}{}
	}
	return Stats{
		Chunks:    snap.Len(),
		Dimension: snap.Dimension,
		Files:     len(files),
		BuiltAt:   snap.BuiltAt,
	}
}

// Persist 持久化当前快照
func (x *Index) Persist(ctx context.Context) error {
	return x.PersistSnapshot(ctx, x.current.Load())
}

// PersistSnapshot 持久化指定快照；空快照会删除已有的持久化文件
func (x *Index) PersistSnapshot(ctx context.Context, snap *Snapshot) error {
	if x.store == nil {
		return nil
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if snap.Empty() {
		return x.removeFiles(ctx)
	}

	if err := writeSnapshot(ctx, x.store, snap); err != nil {
		return err
	}

	x.logger.WithFields(logrus.Fields{
		"chunks":    snap.Len(),
		"dimension": snap.Dimension,
	}).Info("Index persisted")
	return nil
}

// Load 从持久化存储读取索引
// 没有持久化文件时保持为空并返回false
func (x *Index) Load(ctx context.Context) (bool, error) {
	if x.store == nil {
		x.logger.Warn("No index storage configured, ingestion required")
		return false, nil
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	snap, err := readSnapshot(ctx, x.store)
	if err != nil {
		return false, err
	}
	if snap == nil {
		x.logger.Warn("No saved index found, ingestion required")
		return false, nil
	}

	x.current.Store(snap)
	x.logger.WithFields(logrus.Fields{
		"chunks":    snap.Len(),
		"dimension": snap.Dimension,
	}).Info("Loaded index from storage")
	return true, nil
}

// Clear 将索引置空并删除持久化文件
// 内存状态总是先被清空，删除文件失败时返回错误
func (x *Index) Clear(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.current.Store(emptySnapshot)
	if x.store == nil {
		return nil
	}
	if err := x.removeFiles(ctx); err != nil {
		return err
	}

	x.logger.Info("Index cleared")
	return nil
}

func (x *Index) removeFiles(ctx context.Context) error {
	for _, key := range []string{CorpusFile, EmbeddingsFile} {
		if err := x.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}
	return nil
}
