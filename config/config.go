package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Index     IndexConfig     `mapstructure:"index"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Watch     WatchConfig     `mapstructure:"watch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         bool          `mapstructure:"cors"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"` // 为空时输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DocumentsConfig 文档目录配置
type DocumentsConfig struct {
	Folder string `mapstructure:"folder" validate:"required"`
}

// IndexConfig 索引持久化配置
type IndexConfig struct {
	Storage string      `mapstructure:"storage" validate:"oneof=local minio"`
	Path    string      `mapstructure:"path"` // 本地存储目录
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig MinIO配置
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	MinChars int `mapstructure:"min_chars" validate:"min=1"`
	MaxChars int `mapstructure:"max_chars" validate:"gtfield=MinChars"`
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"`
	Model      string        `mapstructure:"model" validate:"required"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
	Workers    int           `mapstructure:"workers" validate:"min=1"`
	Dimensions int           `mapstructure:"dimensions" validate:"min=0"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" validate:"required"`
	Model       string        `mapstructure:"model" validate:"required"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=1"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PersonaFile string        `mapstructure:"persona_file"` // 为空时使用内置人设
}

// RetrievalConfig 检索与查询改写配置
type RetrievalConfig struct {
	BoostFactor      float32  `mapstructure:"boost_factor" validate:"gte=1"`
	DefaultTopK      int      `mapstructure:"default_top_k" validate:"min=1"`
	ContactTopK      int      `mapstructure:"contact_top_k" validate:"min=1"`
	HistoryTurns     int      `mapstructure:"history_turns" validate:"min=1"`
	NameWindow       int      `mapstructure:"name_window" validate:"min=1"`
	FollowUpMaxWords int      `mapstructure:"follow_up_max_words" validate:"min=1"`
	FollowUpKeywords []string `mapstructure:"follow_up_keywords"`
	ContactKeywords  []string `mapstructure:"contact_keywords"`
	NameTitles       []string `mapstructure:"name_titles"`
}

// CacheConfig 查询向量缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl" validate:"min=0"` // 秒
}

// DatabaseConfig 构建记录数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"`
	Type   string `mapstructure:"type" validate:"oneof=sqlite"`
	DSN    string `mapstructure:"dsn"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`
	Type          string        `mapstructure:"type" validate:"oneof=redis"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`
	RetryLimit    int           `mapstructure:"retry_limit" validate:"min=0"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// WatchConfig 文档目录监听配置
type WatchConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RateLimitConfig 对话接口限流配置
type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	RPS    float64 `mapstructure:"rps" validate:"gte=0"`
	Burst  int     `mapstructure:"burst" validate:"min=1"`
}

// Load 从文件和环境变量加载配置
// 文件不存在时使用默认值，当前目录下的.env会先被加载到环境变量
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// 支持环境变量覆盖，例如 LLM_API_KEY 覆盖 llm.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Index.Storage == "minio" && (c.Index.Minio.Endpoint == "" || c.Index.Minio.Bucket == "") {
		return errors.New("invalid config: minio storage requires endpoint and bucket")
	}
	if c.Cache.Enable && c.Cache.Type == "redis" && c.Cache.Address == "" {
		return errors.New("invalid config: redis cache requires an address")
	}
	if c.Queue.Enable && c.Queue.RedisAddr == "" {
		return errors.New("invalid config: task queue requires a redis address")
	}
	return nil
}

// expandSecrets 展开形如 ${VAR} 的密钥配置
func expandSecrets(cfg *Config) {
	for _, s := range []*string{
		&cfg.Embed.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Index.Minio.AccessKey,
		&cfg.Index.Minio.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		if strings.HasPrefix(*s, "${") && strings.HasSuffix(*s, "}") {
			*s = os.Getenv((*s)[2 : len(*s)-1])
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.cors", false)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("documents.folder", "docs")

	// 索引持久化默认配置
	v.SetDefault("index.storage", "local")
	v.SetDefault("index.path", "data/index")
	v.SetDefault("index.minio.endpoint", "")
	v.SetDefault("index.minio.access_key", "")
	v.SetDefault("index.minio.secret_key", "")
	v.SetDefault("index.minio.use_ssl", false)
	v.SetDefault("index.minio.bucket", "campusqa")
	v.SetDefault("index.minio.prefix", "index/")

	v.SetDefault("chunker.min_chars", 60)
	v.SetDefault("chunker.max_chars", 1200)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")

	// LLM默认配置
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 250)
	v.SetDefault("llm.temperature", 0.6)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.persona_file", "")

	// 检索默认配置
	v.SetDefault("retrieval.boost_factor", 1.3)
	v.SetDefault("retrieval.default_top_k", 5)
	v.SetDefault("retrieval.contact_top_k", 12)
	v.SetDefault("retrieval.history_turns", 8)
	v.SetDefault("retrieval.name_window", 6)
	v.SetDefault("retrieval.follow_up_max_words", 8)
	v.SetDefault("retrieval.follow_up_keywords", []string{})
	v.SetDefault("retrieval.contact_keywords", []string{})
	v.SetDefault("retrieval.name_titles", []string{})

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 86400)

	// 数据库默认配置
	v.SetDefault("database.enable", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/campusqa.db")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.retry_limit", 1)
	v.SetDefault("queue.retry_delay", "30s")

	v.SetDefault("watch.enable", false)
	v.SetDefault("watch.debounce", "2s")

	v.SetDefault("ratelimit.enable", true)
	v.SetDefault("ratelimit.rps", 2)
	v.SetDefault("ratelimit.burst", 5)
}
