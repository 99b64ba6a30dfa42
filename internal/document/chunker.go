package document

import "strings"

const (
	// DefaultMinChunkChars 分块最小长度
	DefaultMinChunkChars = 60
	// DefaultMaxChunkChars 分块最大长度
	DefaultMaxChunkChars = 1200
)

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	MinChunkChars int // 最小分块长度
	MaxChunkChars int // 最大分块长度
}

// DefaultChunkerConfig 返回默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MinChunkChars: DefaultMinChunkChars,
		MaxChunkChars: DefaultMaxChunkChars,
	}
}

// DefaultStrategies 默认的策略顺序，优先级从高到低
func DefaultStrategies() []Strategy {
	return []Strategy{
		RecordStrategy{},
		BulletStrategy{},
		HeadingStrategy{},
		ParagraphStrategy{},
		SentenceStrategy{},
	}
}

// Chunker 自适应分块器
// 按顺序尝试各个策略，采用第一个返回非空结果的策略
type Chunker struct {
	config     ChunkerConfig
	strategies []Strategy
}

// ChunkerOption 分块器选项
type ChunkerOption func(*Chunker)

// WithStrategies 替换策略列表
func WithStrategies(strategies ...Strategy) ChunkerOption {
	return func(c *Chunker) {
		c.strategies = strategies
	}
}

// NewChunker 创建分块器
func NewChunker(config ChunkerConfig, opts ...ChunkerOption) *Chunker {
	if config.MinChunkChars <= 0 {
		config.MinChunkChars = DefaultMinChunkChars
	}
	if config.MaxChunkChars < config.MinChunkChars {
		config.MaxChunkChars = DefaultMaxChunkChars
	}

	c := &Chunker{
		config:     config,
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config 返回分块配置
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Strategies 返回当前生效的策略顺序
func (c *Chunker) Strategies() []Strategy {
	return c.strategies
}

// Chunk 将一页文本切分为若干分块
func (c *Chunker) Chunk(text string) []string {
	_, chunks := c.ChunkWithStrategy(text)
	return chunks
}

// ChunkWithStrategy 与Chunk相同，同时返回所采用策略的名称
func (c *Chunker) ChunkWithStrategy(text string) (string, []string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if runeLen(text) < c.config.MinChunkChars {
		return "", nil
	}

	for _, s := range c.strategies {
		parts := s.Split(text, c.config)
		if len(parts) == 0 {
			continue
		}
		return s.Name(), c.finalize(parts)
	}
	return "", nil
}

// finalize 规范化空白，并无损地拆分超长的条目
func (c *Chunker) finalize(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = NormalizeWhitespace(p)
		if p == "" {
			continue
		}
		if runeLen(p) > c.config.MaxChunkChars {
			out = append(out, splitOversized(p, c.config.MinChunkChars, c.config.MaxChunkChars)...)
			continue
		}
		out = append(out, p)
	}
	return out
}
