package document

import (
	"regexp"
	"strings"
)

var (
	facultyMemberRe = regexp.MustCompile(`(?i)faculty member\s*\d*\s*`)
	fullNameRe      = regexp.MustCompile(`(?i)(?:\n|^)\s*full name\s*[:\-]\s*`)
	bulletRe        = regexp.MustCompile(`(?m)^[\x{2022}\-\*\d\)\.]+\s+`)
	headingRe       = regexp.MustCompile(`(?m)^(?:#{1,6}\s*|[A-Z][A-Z\s]{3,}\s*$|[A-Z][a-z]+\s*[-]{2,}|[A-Z][\w\s]{10,}$)`)
)

const (
	// minItemChars 列表项、标题段落与普通段落的最小保留长度
	minItemChars = 30
	// minPreambleChars 记录切分后开头片段短于该值时视为前言丢弃
	minPreambleChars = 20
	// fullNameLabel 记录重新拼接的标签前缀
	fullNameLabel = "Full Name: "
)

// Strategy 单个分块启发式
// Split 返回nil或空切片表示该策略不适用
type Strategy interface {
	Name() string
	Split(text string, cfg ChunkerConfig) []string
}

// RecordStrategy 结构化记录切分（如教职工名录），避免把一个人的姓名和联系方式拆开
type RecordStrategy struct{}

func (RecordStrategy) Name() string { return "records" }

func (RecordStrategy) Split(text string, cfg ChunkerConfig) []string {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "faculty member") {
		var out []string
		for _, p := range facultyMemberRe.Split(text, -1) {
			if p = strings.TrimSpace(p); runeLen(p) > cfg.MinChunkChars {
				out = append(out, p)
			}
		}
		return out
	}

	if strings.Count(lower, "full name") < 2 {
		return nil
	}

	parts := fullNameRe.Split(text, -1)
	if len(parts) > 0 && runeLen(strings.TrimSpace(parts[0])) < minPreambleChars {
		parts = parts[1:]
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); runeLen(p) >= cfg.MinChunkChars {
			out = append(out, fullNameLabel+p)
		}
	}
	return out
}

// BulletStrategy 列表切分，连续的列表行合并为一个条目
type BulletStrategy struct{}

func (BulletStrategy) Name() string { return "bullets" }

func (BulletStrategy) Split(text string, _ ChunkerConfig) []string {
	if !bulletRe.MatchString(text) {
		return nil
	}

	var (
		items  []string
		buffer []string
	)
	flush := func() {
		if len(buffer) > 0 {
			items = append(items, strings.Join(buffer, " "))
			buffer = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if loc := bulletRe.FindStringIndex(line); loc != nil && loc[0] == 0 {
			buffer = append(buffer, strings.TrimSpace(line[loc[1]:]))
			continue
		}
		flush()
		items = append(items, line)
	}
	flush()

	return keepLonger(items, minItemChars)
}

// HeadingStrategy 按标题行切分章节，超长章节再按段落切分
type HeadingStrategy struct{}

func (HeadingStrategy) Name() string { return "headings" }

func (HeadingStrategy) Split(text string, cfg ChunkerConfig) []string {
	if !headingRe.MatchString(text) {
		return nil
	}

	var (
		sections []string
		buffer   []string
	)
	for _, line := range strings.Split(text, "\n") {
		if isHeading(line) && len(buffer) > 0 {
			sections = append(sections, strings.TrimSpace(strings.Join(buffer, "\n")))
			buffer = []string{line}
			continue
		}
		buffer = append(buffer, line)
	}
	if len(buffer) > 0 {
		sections = append(sections, strings.TrimSpace(strings.Join(buffer, "\n")))
	}

	var out []string
	for _, section := range sections {
		if runeLen(section) > cfg.MaxChunkChars {
			out = append(out, splitParagraphs(section, minItemChars)...)
			continue
		}
		out = append(out, section)
	}
	return keepLonger(out, minItemChars)
}

func isHeading(line string) bool {
	loc := headingRe.FindStringIndex(strings.TrimSpace(line))
	return loc != nil && loc[0] == 0
}

// ParagraphStrategy 按空行切分段落，只在得到多个段落时适用
type ParagraphStrategy struct{}

func (ParagraphStrategy) Name() string { return "paragraphs" }

func (ParagraphStrategy) Split(text string, cfg ChunkerConfig) []string {
	paragraphs := splitParagraphs(text, minItemChars)
	if len(paragraphs) <= 1 {
		return nil
	}

	var out []string
	for _, p := range paragraphs {
		if runeLen(p) > cfg.MaxChunkChars {
			out = append(out, splitOversized(p, cfg.MinChunkChars, cfg.MaxChunkChars)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// SentenceStrategy 兜底策略：句子窗口装箱
type SentenceStrategy struct{}

func (SentenceStrategy) Name() string { return "sentences" }

func (SentenceStrategy) Split(text string, cfg ChunkerConfig) []string {
	return packSentences(text, cfg.MinChunkChars, cfg.MaxChunkChars)
}

func keepLonger(items []string, minLen int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); runeLen(item) > minLen {
			out = append(out, item)
		}
	}
	return out
}
