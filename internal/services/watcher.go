package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultWatchDebounce 文件变更后等待多久触发重建
const DefaultWatchDebounce = 2 * time.Second

// FolderWatcher 监听文档目录，变更平息后触发一次全量重建
type FolderWatcher struct {
	folder   string
	debounce time.Duration
	rebuild  func(ctx context.Context)
	logger   *logrus.Logger
}

// NewFolderWatcher 创建目录监听器
func NewFolderWatcher(folder string, debounce time.Duration, rebuild func(ctx context.Context), logger *logrus.Logger) *FolderWatcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FolderWatcher{
		folder:   folder,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
	}
}

// Run 阻塞直到ctx结束；重建在监听协程内串行执行
func (w *FolderWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.folder, 0755); err != nil {
		return fmt.Errorf("failed to create documents folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.folder); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.folder, err)
	}
	w.logger.WithFields(logrus.Fields{
		"folder":   w.folder,
		"debounce": w.debounce.String(),
	}).Info("Watching documents folder")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.WithFields(logrus.Fields{
				"file": filepath.Base(event.Name),
				"op":   event.Op.String(),
			}).Debug("Documents folder changed")
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")

		case <-timer.C:
			w.logger.Info("Documents changed, rebuilding index")
			w.rebuild(ctx)
		}
	}
}

// relevantEvent 只关心非隐藏普通文件的增删改
func relevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return false
	}
	return true
}
