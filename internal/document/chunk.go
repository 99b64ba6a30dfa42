package document

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?(?:\(\d{2,4}\)|\d{2,4})[-.\s]?\d{5,12}`)
)

// MinPageChars 少于该长度的页面在分块前直接丢弃
const MinPageChars = 30

// ChunkMeta 分块元数据
type ChunkMeta struct {
	SourceFile    string `json:"source_file"`
	Page          int    `json:"page"`
	ChunkID       string `json:"chunk_id"`
	Length        int    `json:"length"`
	ContainsEmail bool   `json:"contains_email"`
	ContainsPhone bool   `json:"contains_phone"`
}

// HasContact 是否包含邮箱或电话
func (m ChunkMeta) HasContact() bool {
	return m.ContainsEmail || m.ContainsPhone
}

// Chunk 检索的最小单元
type Chunk struct {
	Text string    `json:"text"`
	Meta ChunkMeta `json:"meta"`
}

// ContainsEmail 文本中是否出现邮箱地址
func ContainsEmail(text string) bool {
	return emailRe.MatchString(text)
}

// ContainsPhone 文本中是否出现电话号码
func ContainsPhone(text string) bool {
	return phoneRe.MatchString(text)
}

// ChunkPage 对一页文本分块并生成元数据
// chunk_id 的格式为 "{page}_{序号}"，在同一页内唯一
func ChunkPage(c *Chunker, sourceFile string, page Page) []Chunk {
	if runeLen(strings.TrimSpace(page.Text)) < MinPageChars {
		return nil
	}

	texts := c.Chunk(page.Text)
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{
			Text: text,
			Meta: ChunkMeta{
				SourceFile:    sourceFile,
				Page:          page.Number,
				ChunkID:       fmt.Sprintf("%d_%d", page.Number, i),
				Length:        runeLen(text),
				ContainsEmail: ContainsEmail(text),
				ContainsPhone: ContainsPhone(text),
			},
		})
	}
	return chunks
}
