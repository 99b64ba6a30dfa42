package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/campus-qa/api"
	"github.com/fyerfyer/campus-qa/api/handler"
	"github.com/fyerfyer/campus-qa/api/middleware"
	qaconfig "github.com/fyerfyer/campus-qa/config"
	"github.com/fyerfyer/campus-qa/internal/llm"
	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/services"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

var (
	configFile string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "campusqa",
		Short:         "Campus document question answering service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug/info/warn/error)")

	root.AddCommand(newServeCmd(), newBuildCmd(), newClearCmd(), newAskCmd())
	return root
}

// loadConfig 加载配置，命令行参数优先
func loadConfig() (*qaconfig.Config, error) {
	cfg, err := qaconfig.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *qaconfig.Config) error {
	gin.SetMode(cfg.Server.Mode)

	a, err := newApp(cfg, appOptions{chat: true, queue: cfg.Queue.Enable})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	folder := cfg.Documents.Folder

	if err := a.index.LoadOrBuild(ctx, folder); err != nil {
		// 旧索引（或空索引）继续提供服务
		logger.WithError(err).Error("Initial index build failed")
	}

	adminOpts := []handler.AdminOption{}
	if a.queue != nil {
		worker := taskqueue.NewRedisWorker(a.queue, nil)
		worker.RegisterHandler(services.NewIndexTaskHandler(a.index, folder, logger))
		if err := worker.Start(); err != nil {
			return fmt.Errorf("failed to start task worker: %w", err)
		}
		defer worker.Stop()
		adminOpts = append(adminOpts, handler.WithTaskQueue(a.queue))
	}

	if cfg.Watch.Enable {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("failed to create documents folder: %w", err)
		}
		watcher := services.NewFolderWatcher(folder, cfg.Watch.Debounce, a.watchRebuild(folder), logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Documents watcher stopped")
			}
		}()
	}

	routerOpts := []api.RouterOption{api.WithCORS(cfg.Server.CORS)}
	if cfg.RateLimit.Enable {
		routerOpts = append(routerOpts, api.WithChatRateLimit(
			middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)))
	}
	router := api.SetupRouter(
		handler.NewChatHandler(a.chat),
		handler.NewAdminHandler(a.index, folder, adminOpts...),
		routerOpts...,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}

// watchRebuild 文档目录变化后的重建动作，启用队列时交给后台工作者
func (a *app) watchRebuild(folder string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if a.queue != nil {
			if _, err := a.queue.Enqueue(ctx, taskqueue.TaskIndexRebuild, &taskqueue.RebuildPayload{
				Folder:  folder,
				Trigger: string(models.TriggerWatch),
			}); err != nil {
				a.logger.WithError(err).Error("Failed to enqueue rebuild")
			}
			return
		}
		if _, err := a.index.Build(ctx, folder, models.TriggerWatch); err != nil {
			a.logger.WithError(err).Error("Rebuild after folder change failed")
		}
	}
}

func newBuildCmd() *cobra.Command {
	var folder string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the index from the documents folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if folder != "" {
				cfg.Documents.Folder = folder
			}

			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.index.Build(cmd.Context(), cfg.Documents.Folder, models.TriggerCLI)
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Documents folder (overrides config)")
	return cmd
}

func printReport(cmd *cobra.Command, report *services.BuildReport) {
	out := cmd.OutOrStdout()
	for _, f := range report.Files {
		line := fmt.Sprintf("%-8s %s", f.Outcome, f.File)
		if f.Outcome == "ok" {
			line += fmt.Sprintf(" (pages=%d chunks=%d)", f.Pages, f.Chunks)
		} else if f.Reason != "" {
			line += ": " + f.Reason
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "indexed %d chunks (dim=%d) from %d files, skipped %d, failed %d in %s\n",
		report.Chunks, report.Dimension, len(report.Files), report.Skipped, report.Failed,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	if report.PersistError != "" {
		fmt.Fprintf(out, "warning: index not persisted: %s\n", report.PersistError)
	}
}

func newClearCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the index and its persisted files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.index.Reset(cmd.Context(), cfg.Documents.Folder, purge)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
			if purge {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d documents from %s\n", removed, cfg.Documents.Folder)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge-documents", false, "Also delete the files in the documents folder")
	return cmd
}

func newAskCmd() *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{chat: true})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			loadSavedIndex(ctx, a.index, a.logger)

			question := strings.Join(args, " ")
			reply, err := a.chat.Answer(ctx, []llm.Message{{Role: llm.RoleUser, Content: question}})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text)
			if showSources {
				for _, s := range reply.Sources {
					fmt.Fprintf(out, "  [%.3f] %s p.%d\n", s.Score, s.File, s.Page)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved sources")
	return cmd
}

// loadSavedIndex 只读取已持久化的索引，ask不会触发构建
func loadSavedIndex(ctx context.Context, index *services.IndexService, logger *logrus.Logger) bool {
	loaded, err := index.Load(ctx)
	if err != nil {
		logger.WithError(err).Warn("Index unavailable, answering without context")
		return false
	}
	if !loaded {
		logger.Warn("No saved index, run the build command first; answering without context")
	}
	return loaded
}
