package services

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	var rebuilds atomic.Int32

	w := NewFolderWatcher(dir, 100*time.Millisecond, func(ctx context.Context) {
		rebuilds.Add(1)
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 等待监听器就绪
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"a.txt", "b.txt", "c.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content"), 0644))
	}

	assert.Eventually(t, func() bool { return rebuilds.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), rebuilds.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRelevantEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "staff.csv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	sub := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(sub, 0755))

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"create file", fsnotify.Event{Name: file, Op: fsnotify.Create}, true},
		{"write file", fsnotify.Event{Name: file, Op: fsnotify.Write}, true},
		{"removed file", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: filepath.Join(dir, "old.txt"), Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(dir, ".tmp-123"), Op: fsnotify.Create}, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevantEvent(tt.event))
		})
	}
}
