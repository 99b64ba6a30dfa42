package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/internal/embedding"
	"github.com/fyerfyer/campus-qa/pkg/storage"
)

// writeSnapshot 写入向量矩阵（行优先、小端float32）与语料记录
// 先写向量再写语料，读取时会校验两者是否对齐
func writeSnapshot(ctx context.Context, store storage.Storage, snap *Snapshot) error {
	var matrix bytes.Buffer
	matrix.Grow(4 * snap.Len() * snap.Dimension)
	for _, v := range snap.Vectors {
		matrix.Write(embedding.EncodeVector(v))
	}
	if err := store.Put(ctx, EmbeddingsFile, &matrix, int64(matrix.Len())); err != nil {
		return fmt.Errorf("failed to write embedding matrix: %w", err)
	}

	var corpus bytes.Buffer
	enc := json.NewEncoder(&corpus)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.Records); err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}
	if err := store.Put(ctx, CorpusFile, &corpus, int64(corpus.Len())); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	return nil
}

// readSnapshot 读取持久化快照，两个文件任一缺失时返回nil
func readSnapshot(ctx context.Context, store storage.Storage) (*Snapshot, error) {
	for _, key := range []string{CorpusFile, EmbeddingsFile} {
		ok, err := store.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", key, err)
		}
		if !ok {
			return nil, nil
		}
	}

	corpusData, err := readObject(ctx, store, CorpusFile)
	if err != nil || corpusData == nil {
		return nil, err
	}
	matrixData, err := readObject(ctx, store, EmbeddingsFile)
	if err != nil || matrixData == nil {
		return nil, err
	}

	var records []document.Chunk
	if err := json.Unmarshal(corpusData, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	if len(matrixData)%(4*len(records)) != 0 {
		return nil, fmt.Errorf("%w: %d bytes cannot hold %d float32 rows", ErrCorruptIndex, len(matrixData), len(records))
	}
	rowBytes := len(matrixData) / len(records)
	if rowBytes == 0 {
		return nil, fmt.Errorf("%w: empty embedding matrix", ErrCorruptIndex)
	}

	vectors := make([][]float32, len(records))
	for i := range records {
		row, ok := embedding.DecodeVector(matrixData[i*rowBytes : (i+1)*rowBytes])
		if !ok {
			return nil, fmt.Errorf("%w: bad row %d", ErrCorruptIndex, i)
		}
		vectors[i] = row
	}

	return &Snapshot{
		Records:   records,
		Vectors:   vectors,
		Dimension: rowBytes / 4,
		BuiltAt:   persistedAt(ctx, store),
	}, nil
}

// persistedAt 以语料文件的修改时间作为加载后索引的构建时间
func persistedAt(ctx context.Context, store storage.Storage) time.Time {
	files, err := store.List(ctx, CorpusFile)
	if err == nil {
		for _, f := range files {
			if f.Key == CorpusFile {
				return f.ModTime
			}
		}
	}
	return time.Now()
}

func readObject(ctx context.Context, store storage.Storage, key string) ([]byte, error) {
	r, err := store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
