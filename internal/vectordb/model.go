package vectordb

import (
	"errors"
	"time"

	"github.com/fyerfyer/campus-qa/internal/document"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrMisaligned       = errors.New("corpus and embedding matrix are not aligned")
	ErrCorruptIndex     = errors.New("persisted index is corrupt")
)

// 持久化文件名
const (
	EmbeddingsFile = "embeddings.bin"
	CorpusFile     = "corpus.json"
)

const (
	// DefaultBoostFactor 联系方式类查询的加权系数
	DefaultBoostFactor = 1.3
	// DefaultTopK 未指定数量时返回的结果数
	DefaultTopK = 5
)

// Snapshot 不可变的索引快照
// Records与Vectors按位置一一对应，发布后不再修改
type Snapshot struct {
	Records   []document.Chunk
	Vectors   [][]float32 // 已归一化
	Dimension int
	BuiltAt   time.Time
}

// Len 记录数量
func (s *Snapshot) Len() int {
	return len(s.Records)
}

// Empty 是否为空快照
func (s *Snapshot) Empty() bool {
	return len(s.Records) == 0
}

var emptySnapshot = &Snapshot{}

// SearchOptions 检索参数
type SearchOptions struct {
	TopK         int     // 返回结果数量
	BoostContact bool    // 是否为含联系方式的分块加权
	BoostFactor  float32 // 加权系数，<=0时使用DefaultBoostFactor
}

// SearchResult 检索结果
type SearchResult struct {
	Chunk    document.Chunk `json:"chunk"`
	Score    float32        `json:"score"`
	Position int            `json:"position"` // 在语料中的插入序号
	Boosted  bool           `json:"boosted"`
}

// Stats 索引统计信息
type Stats struct {
	Chunks    int       `json:"chunks"`
	Dimension int       `json:"dimension"`
	Files     int       `json:"files"`
	BuiltAt   time.Time `json:"built_at,omitempty"`
}
