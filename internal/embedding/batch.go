package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchEmbedder 按固定批大小切分输入并并行调用底层客户端
// 结果顺序与输入一致，任何一批失败都会让整个调用失败
type BatchEmbedder struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchEmbedder 创建批处理嵌入器
func NewBatchEmbedder(client Client, batchSize, maxWorkers int) *BatchEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &BatchEmbedder{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Name 返回底层模型名称
func (b *BatchEmbedder) Name() string {
	return b.client.Name()
}

// Embed 单条文本直接交给底层客户端
func (b *BatchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.client.Embed(ctx, text)
}

// EmbedBatch 分批生成向量
func (b *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := splitIntoBatches(texts, b.batchSize)
	results := make([][][]float32, len(batches))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce  sync.Once
		batchErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			batchErr = err
			cancel()
		})
	}

	wp := workerpool.New(b.maxWorkers)
	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}

			vectors, err := b.client.EmbedBatch(ctx, batch)
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			if len(vectors) != len(batch) {
				fail(NewEmbeddingError(ErrCodeBadResponse,
					fmt.Sprintf("batch %d: expected %d vectors, got %d", i, len(batch), len(vectors))))
				return
			}
			// 每个worker只写自己的下标
			results[i] = vectors
		})
	}
	wp.StopWait()

	if batchErr != nil {
		return nil, batchErr
	}

	all := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		all = append(all, vectors...)
	}
	if err := CheckDimensions(all); err != nil {
		return nil, err
	}
	return all, nil
}

// CheckDimensions 校验所有向量维度一致且非零
func CheckDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return NewEmbeddingError(ErrCodeBadResponse, "embedding has zero dimension")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return NewEmbeddingError(ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(v), dim))
		}
	}
	return nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
