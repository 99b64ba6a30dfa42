package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/fyerfyer/campus-qa/api/middleware"
	qaconfig "github.com/fyerfyer/campus-qa/config"
	"github.com/fyerfyer/campus-qa/internal/cache"
	"github.com/fyerfyer/campus-qa/internal/database"
	"github.com/fyerfyer/campus-qa/internal/document"
	"github.com/fyerfyer/campus-qa/internal/embedding"
	"github.com/fyerfyer/campus-qa/internal/llm"
	"github.com/fyerfyer/campus-qa/internal/repository"
	"github.com/fyerfyer/campus-qa/internal/services"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
	"github.com/fyerfyer/campus-qa/pkg/storage"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

// appOptions 决定命令需要初始化哪些组件
type appOptions struct {
	chat  bool // 问答服务（LLM客户端、查询缓存）
	queue bool // 任务队列
}

// app 命令共用的组件集合
type app struct {
	cfg    *qaconfig.Config
	logger *logrus.Logger
	index  *services.IndexService
	chat   *services.ChatService
	queue  *taskqueue.RedisQueue
	db     *gorm.DB
	closer []io.Closer
}

// newApp 按配置装配各组件
func newApp(cfg *qaconfig.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: setupLogger(cfg.Log)}
	a.logger.Info("Starting campus QA...")

	store, err := setupStorage(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedClient, err := setupEmbedding(cfg.Embed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	indexOpts := []services.IndexOption{services.WithIndexLogger(a.logger)}
	if cfg.Database.Enable {
		a.db, err = setupDatabase(cfg.Database, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		indexOpts = append(indexOpts, services.WithBuildRepository(repository.NewBuildRepository(a.db)))
	}

	index := vectordb.New(vectordb.WithStorage(store), vectordb.WithLogger(a.logger))
	chunker := document.NewChunker(document.ChunkerConfig{
		MinChunkChars: cfg.Chunker.MinChars,
		MaxChunkChars: cfg.Chunker.MaxChars,
	})
	batcher := embedding.NewBatchEmbedder(embedClient, cfg.Embed.BatchSize, cfg.Embed.Workers)
	a.index = services.NewIndexService(index, chunker, batcher, indexOpts...)

	if opts.chat {
		llmClient, err := setupLLM(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		persona, err := loadPersona(cfg.LLM.PersonaFile)
		if err != nil {
			a.Close()
			return nil, err
		}

		queryEmbedder := embedding.Client(embedClient)
		if cfg.Cache.Enable {
			c, err := setupCache(cfg.Cache)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to initialize cache: %w", err)
			}
			if cl, ok := c.(io.Closer); ok {
				a.closer = append(a.closer, cl)
			}
			queryEmbedder = embedding.NewCachedClient(embedClient, c,
				time.Duration(cfg.Cache.TTL)*time.Second, a.logger)
		}

		a.chat = services.NewChatService(
			services.NewQueryRewriter(rewriterOptions(cfg.Retrieval)...),
			queryEmbedder,
			index,
			llmClient,
			services.WithPersona(persona),
			services.WithBoostFactor(cfg.Retrieval.BoostFactor),
			services.WithHistoryTurns(cfg.Retrieval.HistoryTurns),
			services.WithChatLogger(a.logger),
		)
	}

	if opts.queue {
		a.queue, err = setupTaskQueue(cfg.Queue, a.logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.logger.Info("Task queue initialized successfully")
	}

	return a, nil
}

// Close 释放队列、缓存和数据库连接
func (a *app) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close task queue")
		}
	}
	for _, c := range a.closer {
		_ = c.Close()
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
}

// setupLogger 设置日志级别、格式和输出
// 配置了日志文件时同时写入标准输出和按大小轮转的文件
func setupLogger(cfg qaconfig.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	middleware.SetLogger(logger)
	return logger
}

// setupStorage 设置索引持久化存储
func setupStorage(cfg qaconfig.IndexConfig) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type:  cfg.Storage,
		Local: storage.LocalConfig{Path: cfg.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
		},
	})
}

// setupEmbedding 设置嵌入客户端
func setupEmbedding(cfg qaconfig.EmbedConfig) (embedding.Client, error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, embedding.WithTimeout(cfg.Timeout))
	}
	return embedding.NewClient(cfg.Provider, opts...)
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg qaconfig.LLMConfig) (llm.Client, error) {
	opts := []llm.Option{
		llm.WithAPIKey(cfg.APIKey),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(cfg.Timeout))
	}
	return llm.NewClient(cfg.Provider, opts...)
}

// loadPersona 读取人设文件，未配置时使用内置人设
func loadPersona(path string) (string, error) {
	if path == "" {
		return llm.DefaultPersona, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read persona file: %w", err)
	}
	return string(data), nil
}

// setupCache 设置查询向量缓存
func setupCache(cfg qaconfig.CacheConfig) (cache.Cache, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = cfg.Type
	cacheCfg.RedisAddr = cfg.Address
	cacheCfg.RedisPassword = cfg.Password
	cacheCfg.RedisDB = cfg.DB
	if cfg.TTL > 0 {
		cacheCfg.DefaultTTL = time.Duration(cfg.TTL) * time.Second
	}
	return cache.NewCache(cacheCfg)
}

// setupDatabase 打开构建记录数据库
func setupDatabase(cfg qaconfig.DatabaseConfig, logger *logrus.Logger) (*gorm.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Type = cfg.Type
	if cfg.DSN != "" {
		dbCfg.DSN = cfg.DSN
	}
	return database.Open(dbCfg, logger)
}

// setupTaskQueue 连接任务队列
func setupTaskQueue(cfg qaconfig.QueueConfig, logger *logrus.Logger) (*taskqueue.RedisQueue, error) {
	queueCfg := taskqueue.DefaultConfig()
	queueCfg.RedisAddr = cfg.RedisAddr
	queueCfg.RedisPassword = cfg.RedisPassword
	queueCfg.RedisDB = cfg.RedisDB
	queueCfg.Concurrency = cfg.Concurrency
	queueCfg.RetryLimit = cfg.RetryLimit
	if cfg.RetryDelay > 0 {
		queueCfg.RetryDelay = cfg.RetryDelay
	}
	return taskqueue.NewRedisQueue(queueCfg, taskqueue.WithLogger(logger))
}

// rewriterOptions 只覆盖配置了的关键词列表
func rewriterOptions(cfg qaconfig.RetrievalConfig) []services.RewriterOption {
	opts := []services.RewriterOption{
		services.WithTopK(cfg.DefaultTopK, cfg.ContactTopK),
		services.WithNameWindow(cfg.NameWindow),
		services.WithFollowUpMaxWords(cfg.FollowUpMaxWords),
	}
	if len(cfg.FollowUpKeywords) > 0 {
		opts = append(opts, services.WithFollowUpKeywords(cfg.FollowUpKeywords...))
	}
	if len(cfg.ContactKeywords) > 0 {
		opts = append(opts, services.WithContactKeywords(cfg.ContactKeywords...))
	}
	if len(cfg.NameTitles) > 0 {
		opts = append(opts, services.WithNameTitles(cfg.NameTitles...))
	}
	return opts
}
