package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/repository"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
	"github.com/fyerfyer/campus-qa/pkg/storage"
)

const staffCSV = `Full Name,Department,Email,Phone
Jane Smith,Physics,jane.smith@spcollege.edu.in,9419012345
Ahmad Khan,Chemistry,ahmad.khan@spcollege.edu.in,9419054321
`

const libraryText = `The central library is open from 9 AM to 5 PM on all working days.
Students must carry their identity cards to borrow books from the circulation desk.`

type indexEnv struct {
	svc      *IndexService
	index    *vectordb.Index
	store    storage.Storage
	embedder *hashEmbedder
	builds   repository.BuildRepository
}

func setupIndexEnv(t *testing.T) *indexEnv {
	t.Helper()

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "builds.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BuildRun{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	logger := quietLogger()
	index := vectordb.New(vectordb.WithStorage(store), vectordb.WithLogger(logger))
	embedder := &hashEmbedder{}
	builds := repository.NewBuildRepository(db)
	svc := NewIndexService(index, document.NewChunker(document.DefaultChunkerConfig()), embedder,
		WithBuildRepository(builds), WithIndexLogger(logger))

	return &indexEnv{svc: svc, index: index, store: store, embedder: embedder, builds: builds}
}

func TestIndexService_StaffDirectory(t *testing.T) {
	env := setupIndexEnv(t)
	folder := writeDocs(t, map[string]string{"staff.csv": staffCSV})

	report, err := env.svc.Build(context.Background(), folder, models.TriggerCLI)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunks)
	assert.Empty(t, report.PersistError)

	snap := env.index.Snapshot()
	require.Equal(t, 2, snap.Len())
	assert.True(t, strings.HasPrefix(snap.Records[0].Text, "Full Name: Jane Smith"))
	assert.True(t, strings.HasPrefix(snap.Records[1].Text, "Full Name: Ahmad Khan"))
	assert.NotContains(t, snap.Records[0].Text, "Ahmad")
	assert.NotContains(t, snap.Records[1].Text, "Jane")

	for i, r := range snap.Records {
		assert.Equal(t, "staff.csv", r.Meta.SourceFile)
		assert.Equal(t, i+1, r.Meta.Page)
		assert.True(t, r.Meta.ContainsEmail)
		assert.True(t, r.Meta.ContainsPhone)
	}
}

func TestIndexService_SkipsUnsupported(t *testing.T) {
	env := setupIndexEnv(t)
	folder := writeDocs(t, map[string]string{
		"library.txt": libraryText,
		"timetable.docx": "binary content that cannot be read",
	})

	report, err := env.svc.Build(context.Background(), folder, models.TriggerAdmin)
	require.NoError(t, err)

	require.Len(t, report.Files, 2)
	assert.Equal(t, "library.txt", report.Files[0].File)
	assert.Equal(t, "ok", report.Files[0].Outcome)
	assert.Equal(t, "timetable.docx", report.Files[1].File)
	assert.Equal(t, "skipped", report.Files[1].Outcome)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	snap := env.index.Snapshot()
	require.NotZero(t, snap.Len())
	for _, r := range snap.Records {
		assert.Equal(t, "library.txt", r.Meta.SourceFile)
	}
}

func TestIndexService_RoundTrip(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()
	folder := writeDocs(t, map[string]string{
		"library.txt": libraryText,
		"staff.csv":   staffCSV,
	})

	_, err := env.svc.Build(ctx, folder, models.TriggerCLI)
	require.NoError(t, err)
	built := env.index.Snapshot()

	fresh := NewIndexService(vectordb.New(vectordb.WithStorage(env.store), vectordb.WithLogger(quietLogger())),
		document.NewChunker(document.DefaultChunkerConfig()), env.embedder, WithIndexLogger(quietLogger()))
	loaded, err := fresh.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded)

	got := fresh.Index().Snapshot()
	require.Equal(t, built.Len(), got.Len())
	assert.Equal(t, built.Dimension, got.Dimension)
	for i := range built.Records {
		assert.Equal(t, built.Records[i], got.Records[i])
	}
}

func TestIndexService_EmbeddingFailureKeepsOldIndex(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()

	_, err := env.svc.Build(ctx, writeDocs(t, map[string]string{"library.txt": libraryText}), models.TriggerCLI)
	require.NoError(t, err)
	before := env.index.Snapshot()

	env.embedder.fail = true
	report, err := env.svc.Build(ctx, writeDocs(t, map[string]string{"staff.csv": staffCSV}), models.TriggerAdmin)
	require.Error(t, err)
	assert.Same(t, before, env.index.Snapshot())

	run, err := env.builds.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, run.Status)
	assert.Contains(t, run.Error, "embedding service unavailable")
}

func TestIndexService_EmptyFolder(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()

	_, err := env.svc.Build(ctx, writeDocs(t, map[string]string{"library.txt": libraryText}), models.TriggerCLI)
	require.NoError(t, err)

	// 没有可用文本时索引与持久化文件都被清空
	report, err := env.svc.Build(ctx, writeDocs(t, map[string]string{"short.txt": "too short"}), models.TriggerCLI)
	require.NoError(t, err)
	assert.Zero(t, report.Chunks)
	assert.True(t, env.index.Snapshot().Empty())

	exists, err := env.store.Exists(ctx, vectordb.CorpusFile)
	require.NoError(t, err)
	assert.False(t, exists)

	// 目录不存在也不是错误
	report, err = env.svc.Build(ctx, filepath.Join(t.TempDir(), "missing"), models.TriggerCLI)
	require.NoError(t, err)
	assert.Empty(t, report.Files)
}

func TestIndexService_History(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()
	folder := writeDocs(t, map[string]string{"staff.csv": staffCSV, "notes.docx": "x"})

	last, err := env.svc.LastBuild(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	report, err := env.svc.Build(ctx, folder, models.TriggerAdmin)
	require.NoError(t, err)

	last, err = env.svc.LastBuild(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, report.ID, last.ID)

	runs, total, err := env.svc.History(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, report.ID, run.ID)
	assert.Equal(t, models.BuildStatusCompleted, run.Status)
	assert.Equal(t, models.TriggerAdmin, run.Trigger)
	assert.Equal(t, 2, run.FileCount)
	assert.Equal(t, 1, run.SkippedCount)
	assert.Equal(t, 2, run.ChunkCount)

	results, err := run.FileResults()
	require.NoError(t, err)
	assert.Equal(t, report.Files, results)
}

func TestIndexService_ClearAndReset(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()
	folder := writeDocs(t, map[string]string{"library.txt": libraryText, "staff.csv": staffCSV})

	_, err := env.svc.Build(ctx, folder, models.TriggerCLI)
	require.NoError(t, err)

	require.NoError(t, env.svc.Clear(ctx))
	assert.True(t, env.index.Snapshot().Empty())
	loaded, err := env.svc.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)

	// reset不删除文档
	removed, err := env.svc.Reset(ctx, folder, false)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.FileExists(t, filepath.Join(folder, "library.txt"))

	removed, err = env.svc.Reset(ctx, folder, true)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	entries, err := os.ReadDir(folder)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIndexService_LoadOrBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("builds when nothing persisted", func(t *testing.T) {
		env := setupIndexEnv(t)
		folder := writeDocs(t, map[string]string{"library.txt": libraryText})

		require.NoError(t, env.svc.LoadOrBuild(ctx, folder))
		assert.False(t, env.index.Snapshot().Empty())
		assert.Equal(t, 1, env.embedder.calls)
	})

	t.Run("loads persisted index without rebuilding", func(t *testing.T) {
		env := setupIndexEnv(t)
		folder := writeDocs(t, map[string]string{"library.txt": libraryText})
		_, err := env.svc.Build(ctx, folder, models.TriggerCLI)
		require.NoError(t, err)

		require.NoError(t, env.svc.LoadOrBuild(ctx, folder))
		assert.Equal(t, 1, env.embedder.calls)
	})

	t.Run("missing folder stays empty", func(t *testing.T) {
		env := setupIndexEnv(t)
		require.NoError(t, env.svc.LoadOrBuild(ctx, filepath.Join(t.TempDir(), "none")))
		assert.True(t, env.index.Snapshot().Empty())
	})
}
