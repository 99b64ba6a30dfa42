package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

func newTask(t *testing.T, taskType taskqueue.TaskType, payload interface{}) *taskqueue.Task {
	t.Helper()
	raw, err := taskqueue.MarshalPayload(payload)
	require.NoError(t, err)
	return &taskqueue.Task{ID: "task-1", Type: taskType, Payload: raw}
}

func TestIndexTaskHandler(t *testing.T) {
	env := setupIndexEnv(t)
	ctx := context.Background()
	folder := writeDocs(t, map[string]string{"library.txt": libraryText})
	handler := NewIndexTaskHandler(env.svc, folder, quietLogger())

	assert.ElementsMatch(t, []taskqueue.TaskType{taskqueue.TaskIndexRebuild, taskqueue.TaskIndexReset}, handler.GetTaskTypes())

	t.Run("rebuild uses default folder", func(t *testing.T) {
		result, err := handler.ProcessTask(ctx, newTask(t, taskqueue.TaskIndexRebuild, &taskqueue.RebuildPayload{}))
		require.NoError(t, err)

		report, ok := result.(*BuildReport)
		require.True(t, ok)
		assert.Equal(t, folder, report.Folder)
		assert.Equal(t, models.TriggerAdmin, report.Trigger)
		assert.Greater(t, report.Chunks, 0)
		assert.Equal(t, report.Chunks, env.index.Stats().Chunks)

		_, err = json.Marshal(result)
		assert.NoError(t, err)
	})

	t.Run("rebuild keeps trigger", func(t *testing.T) {
		result, err := handler.ProcessTask(ctx, newTask(t, taskqueue.TaskIndexRebuild,
			&taskqueue.RebuildPayload{Folder: folder, Trigger: string(models.TriggerWatch)}))
		require.NoError(t, err)
		assert.Equal(t, models.TriggerWatch, result.(*BuildReport).Trigger)
	})

	t.Run("reset with purge", func(t *testing.T) {
		result, err := handler.ProcessTask(ctx, newTask(t, taskqueue.TaskIndexReset,
			&taskqueue.ResetPayload{PurgeDocuments: true}))
		require.NoError(t, err)
		assert.Equal(t, &taskqueue.ResetResult{Removed: 1}, result)
		assert.Equal(t, 0, env.index.Stats().Chunks)

		_, err = os.Stat(filepath.Join(folder, "library.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("bad payload", func(t *testing.T) {
		task := &taskqueue.Task{Type: taskqueue.TaskIndexReset, Payload: json.RawMessage(`{"purge_documents":"yes"}`)}
		_, err := handler.ProcessTask(ctx, task)
		assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := handler.ProcessTask(ctx, &taskqueue.Task{Type: "index:compact"})
		assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
	})
}
