package vectordb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/pkg/storage"
)

func newTestIndex(t *testing.T) (*Index, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return New(WithStorage(store), WithLogger(logger)), store
}

func chunk(text string, email bool) document.Chunk {
	return document.Chunk{
		Text: text,
		Meta: document.ChunkMeta{
			SourceFile:    "staff.txt",
			Page:          1,
			ChunkID:       fmt.Sprintf("1_%d", len(text)),
			Length:        len(text),
			ContainsEmail: email,
		},
	}
}

func TestSearch(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		idx := New()
		results, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 5})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("ranks by cosine", func(t *testing.T) {
		idx := New()
		_, err := idx.Swap(
			[]document.Chunk{chunk("far", false), chunk("near", false), chunk("middle", false)},
			[][]float32{{0, 1}, {2, 0.1}, {1, 1}},
		)
		require.NoError(t, err)

		results, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "near", results[0].Chunk.Text)
		assert.Equal(t, "middle", results[1].Chunk.Text)
		assert.Equal(t, 1, results[0].Position)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		idx := New()
		_, err := idx.Swap(
			[]document.Chunk{chunk("a", false), chunk("b", false), chunk("c", false)},
			[][]float32{{1, 1}, {1, 1}, {1, 1}},
		)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			results, err := idx.Search([]float32{1, 1}, SearchOptions{TopK: 3})
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1, 2}, []int{results[0].Position, results[1].Position, results[2].Position})
		}
	})

	t.Run("contact boost", func(t *testing.T) {
		idx := New()
		_, err := idx.Swap(
			[]document.Chunk{chunk("no contact", false), chunk("has email", true)},
			[][]float32{{1, 1}, {1, 1}},
		)
		require.NoError(t, err)

		plain, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 2})
		require.NoError(t, err)
		assert.Equal(t, "no contact", plain[0].Chunk.Text, "without boost ties keep insertion order")

		boosted, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 2, BoostContact: true, BoostFactor: 1.3})
		require.NoError(t, err)
		require.Len(t, boosted, 2)
		assert.Equal(t, "has email", boosted[0].Chunk.Text)
		assert.True(t, boosted[0].Boosted)
		assert.False(t, boosted[1].Boosted)
		assert.Greater(t, boosted[0].Score, boosted[1].Score)
		assert.InDelta(t, boosted[1].Score*1.3, boosted[0].Score, 1e-6)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		idx := New()
		_, err := idx.Swap([]document.Chunk{chunk("a", false)}, [][]float32{{1, 0, 0}})
		require.NoError(t, err)

		_, err = idx.Search([]float32{1, 0}, SearchOptions{})
		assert.ErrorIs(t, err, ErrInvalidDimension)
	})
}

func TestSwapValidation(t *testing.T) {
	idx := New()

	_, err := idx.Swap([]document.Chunk{chunk("a", false)}, nil)
	assert.ErrorIs(t, err, ErrMisaligned)

	_, err = idx.Swap(
		[]document.Chunk{chunk("a", false), chunk("b", false)},
		[][]float32{{1, 0}, {1}},
	)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	// 校验失败不会影响现有快照
	assert.True(t, idx.Snapshot().Empty())
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t)

	records := []document.Chunk{
		chunk("Full Name: Jane Smith <jane@college.edu>", true),
		chunk("Library opens at nine & closes at eight", false),
	}
	snap, err := idx.Swap(records, [][]float32{{3, 4}, {1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.PersistSnapshot(ctx, snap))

	for _, key := range []string{CorpusFile, EmbeddingsFile} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	fresh := New(WithStorage(store))
	loaded, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)

	got := fresh.Snapshot()
	require.Equal(t, len(records), got.Len())
	assert.Equal(t, 2, got.Dimension)
	for i := range records {
		assert.Equal(t, records[i].Text, got.Records[i].Text)
		assert.Equal(t, records[i].Meta, got.Records[i].Meta)
	}
	assert.InDelta(t, 0.6, got.Vectors[0][0], 1e-6)
	assert.InDelta(t, 0.8, got.Vectors[0][1], 1e-6)

	files, err := store.List(ctx, CorpusFile)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].ModTime.Equal(got.BuiltAt))
}

func TestLoadWithoutFiles(t *testing.T) {
	idx, _ := newTestIndex(t)
	loaded, err := idx.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.True(t, idx.Snapshot().Empty())
}

func TestLoadMissingMatrix(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t)

	require.NoError(t, store.Put(ctx, CorpusFile, strings.NewReader(`[{"text":"a","meta":{}}]`), -1))
	loaded, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.True(t, idx.Snapshot().Empty())
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t)

	require.NoError(t, store.Put(ctx, CorpusFile, strings.NewReader(`[{"text":"a","meta":{}},{"text":"b","meta":{}}]`), -1))
	require.NoError(t, store.Put(ctx, EmbeddingsFile, strings.NewReader("12345"), 5))

	_, err := idx.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.True(t, idx.Snapshot().Empty())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t)

	snap, err := idx.Swap([]document.Chunk{chunk("a", false)}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.PersistSnapshot(ctx, snap))

	require.NoError(t, idx.Clear(ctx))

	results, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	for _, key := range []string{CorpusFile, EmbeddingsFile} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	loaded, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.True(t, idx.Snapshot().Empty())
}

func TestPersistEmptyRemovesFiles(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex(t)

	snap, err := idx.Swap([]document.Chunk{chunk("a", false)}, [][]float32{{1, 0}})
	require.NoError(t, err)
	require.NoError(t, idx.PersistSnapshot(ctx, snap))

	empty, err := idx.Swap(nil, nil)
	require.NoError(t, err)
	require.NoError(t, idx.PersistSnapshot(ctx, empty))

	ok, err := store.Exists(ctx, EmbeddingsFile)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	idx := New()
	first := chunk("a", false)
	second := chunk("b", false)
	second.Meta.SourceFile = "other.pdf"
	_, err := idx.Swap([]document.Chunk{first, second, chunk("c", true)}, [][]float32{{1}, {1}, {1}})
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, stats.Dimension)
	assert.Equal(t, 2, stats.Files)
}

// TestConcurrentSwap 并发读写时读者看到的快照始终对齐
func TestConcurrentSwap(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 1; n <= 50; n++ {
			records := make([]document.Chunk, n)
			vectors := make([][]float32, n)
			for i := range records {
				records[i] = chunk(fmt.Sprintf("chunk-%d", i), i%2 == 0)
				vectors[i] = []float32{1, float32(i)}
			}
			_, err := idx.Swap(records, vectors)
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := idx.Snapshot()
				assert.Equal(t, len(snap.Records), len(snap.Vectors))
				_, err := idx.Search([]float32{1, 0}, SearchOptions{TopK: 3, BoostContact: true})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
