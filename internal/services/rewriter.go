package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/fyerfyer/campus-qa/internal/llm"
)

var (
	// ErrInvalidHistory 对话历史为空或最后一轮不是用户消息
	ErrInvalidHistory = errors.New("invalid chat history")
	// ErrEmptyQuestion 最后一轮用户消息为空
	ErrEmptyQuestion = errors.New("empty question")
)

// wordRe 小写化后的单词切分，保留e-mail、what's这样的连接词
var wordRe = regexp.MustCompile(`[a-z0-9]+(?:['\-][a-z0-9]+)*`)

// RewriterConfig 查询改写配置
type RewriterConfig struct {
	FollowUpKeywords []string // 出现任一关键词的短问题视为追问
	ContactKeywords  []string // 出现任一关键词视为联系方式查询
	NameTitles       []string // 人名前的称谓
	FollowUpMaxWords int      // 追问的最大词数
	NameWindow       int      // 向前查找人名的历史轮数
	DefaultTopK      int      // 普通查询的检索数量
	ContactTopK      int      // 联系方式查询的检索数量
}

// DefaultRewriterConfig 返回默认的改写配置
func DefaultRewriterConfig() RewriterConfig {
	return RewriterConfig{
		FollowUpKeywords: []string{"his", "her", "their", "its", "him", "them", "contact", "email", "phone", "number", "address", "it", "that"},
		ContactKeywords:  []string{"email", "e-mail", "mail", "phone", "mobile", "contact", "address", "reach", "call", "number", "ph"},
		NameTitles:       []string{"Dr", "Prof", "Mr", "Mrs", "Ms", "Miss", "Sir", "Madam"},
		FollowUpMaxWords: 8,
		NameWindow:       6,
		DefaultTopK:      5,
		ContactTopK:      12,
	}
}

// RewriterOption 改写器配置选项
type RewriterOption func(*RewriterConfig)

// WithFollowUpKeywords 设置追问关键词
func WithFollowUpKeywords(words ...string) RewriterOption {
	return func(c *RewriterConfig) {
		c.FollowUpKeywords = words
	}
}

// WithContactKeywords 设置联系方式关键词
func WithContactKeywords(words ...string) RewriterOption {
	return func(c *RewriterConfig) {
		c.ContactKeywords = words
	}
}

// WithNameTitles 设置人名称谓
func WithNameTitles(titles ...string) RewriterOption {
	return func(c *RewriterConfig) {
		c.NameTitles = titles
	}
}

// WithTopK 设置普通查询和联系方式查询的检索数量
func WithTopK(defaultTopK, contactTopK int) RewriterOption {
	return func(c *RewriterConfig) {
		if defaultTopK > 0 {
			c.DefaultTopK = defaultTopK
		}
		if contactTopK > 0 {
			c.ContactTopK = contactTopK
		}
	}
}

// WithNameWindow 设置向前查找人名的历史轮数
func WithNameWindow(turns int) RewriterOption {
	return func(c *RewriterConfig) {
		if turns > 0 {
			c.NameWindow = turns
		}
	}
}

// WithFollowUpMaxWords 设置追问的最大词数
func WithFollowUpMaxWords(n int) RewriterOption {
	return func(c *RewriterConfig) {
		if n > 0 {
			c.FollowUpMaxWords = n
		}
	}
}

// RewriteResult 改写结果
type RewriteResult struct {
	Query         string `json:"query"`                   // 实际用于检索的查询
	TopK          int    `json:"top_k"`                   // 检索数量
	ContactIntent bool   `json:"contact_intent"`          // 是否为联系方式查询
	FollowUp      bool   `json:"follow_up"`               // 是否被识别为追问
	ResolvedName  string `json:"resolved_name,omitempty"` // 从历史中解析出的人名
}

// QueryRewriter 根据对话历史改写检索查询
// 无状态，可并发使用
type QueryRewriter struct {
	config   RewriterConfig
	followUp map[string]struct{}
	contact  map[string]struct{}
	nameRe   *regexp.Regexp
}

// NewQueryRewriter 创建查询改写器
func NewQueryRewriter(opts ...RewriterOption) *QueryRewriter {
	cfg := DefaultRewriterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	titles := make([]string, len(cfg.NameTitles))
	for i, t := range cfg.NameTitles {
		titles[i] = regexp.QuoteMeta(t)
	}
	// 称谓 + 可选的点 + 1到3个首字母大写的词，只捕获名字部分
	nameRe := regexp.MustCompile(`\b(?:` + strings.Join(titles, "|") + `)\.?\s+([A-Z](?:[a-zA-Z'\-]+|\.)(?:\s+[A-Z](?:[a-zA-Z'\-]+|\.)){0,2})`)

	return &QueryRewriter{
		config:   cfg,
		followUp: wordSet(cfg.FollowUpKeywords),
		contact:  wordSet(cfg.ContactKeywords),
		nameRe:   nameRe,
	}
}

// Config 返回改写配置
func (r *QueryRewriter) Config() RewriterConfig {
	return r.config
}

// Rewrite 根据对话历史生成检索查询
// 所有角色必须合法，最后一轮必须是非空的用户消息
func (r *QueryRewriter) Rewrite(history []llm.Message) (RewriteResult, error) {
	if len(history) == 0 {
		return RewriteResult{}, ErrInvalidHistory
	}
	for _, m := range history {
		if !m.Role.Valid() {
			return RewriteResult{}, ErrInvalidHistory
		}
	}
	last := history[len(history)-1]
	if last.Role != llm.RoleUser {
		return RewriteResult{}, ErrInvalidHistory
	}
	question := strings.TrimSpace(last.Content)
	if question == "" {
		return RewriteResult{}, ErrEmptyQuestion
	}

	result := RewriteResult{Query: question}

	if r.IsFollowUp(question) {
		result.FollowUp = true
		if name := r.FindName(history[:len(history)-1]); name != "" {
			result.ResolvedName = name
			result.Query = name + " contact email phone"
		}
	}

	result.ContactIntent = r.IsContactQuery(result.Query)
	if result.ContactIntent {
		result.TopK = r.config.ContactTopK
	} else {
		result.TopK = r.config.DefaultTopK
	}
	return result, nil
}

// IsFollowUp 短问题且包含追问关键词
func (r *QueryRewriter) IsFollowUp(question string) bool {
	if len(strings.Fields(question)) > r.config.FollowUpMaxWords {
		return false
	}
	return containsWord(question, r.followUp)
}

// IsContactQuery 是否包含联系方式关键词
func (r *QueryRewriter) IsContactQuery(query string) bool {
	return containsWord(query, r.contact)
}

// FindName 从最近的历史轮次开始向前查找人名，返回第一个匹配
func (r *QueryRewriter) FindName(prior []llm.Message) string {
	for i, seen := len(prior)-1, 0; i >= 0 && seen < r.config.NameWindow; i, seen = i-1, seen+1 {
		if m := r.nameRe.FindStringSubmatch(prior[i].Content); m != nil {
			return trimName(m[1])
		}
	}
	return ""
}

// nameStopWords 句中首字母大写但不属于人名的词
var nameStopWords = wordSet([]string{
	"in", "of", "at", "on", "to", "for", "from", "with", "and", "or", "the", "is", "was",
	"are", "has", "had", "can", "will", "who", "what", "where", "when", "how", "department",
})

// trimName 名字在虚词处或所有格之后结束
func trimName(name string) string {
	tokens := strings.Fields(name)
	for i, tok := range tokens {
		if i > 0 {
			if _, stop := nameStopWords[strings.ToLower(tok)]; stop {
				tokens = tokens[:i]
				break
			}
		}
		if strings.HasSuffix(tok, "'s") {
			tokens[i] = strings.TrimSuffix(tok, "'s")
			tokens = tokens[:i+1]
			break
		}
	}
	return strings.Join(tokens, " ")
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// containsWord 按整词匹配，避免"ph"命中"photo"
func containsWord(text string, set map[string]struct{}) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, ok := set[w]; ok {
			return true
		}
		// what's -> what, e-mail 保持原样
		if i := strings.IndexByte(w, '\''); i > 0 {
			if _, ok := set[w[:i]]; ok {
				return true
			}
		}
	}
	return false
}
