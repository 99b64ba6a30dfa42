package document

import (
	"fmt"
	"os"
	"strings"
)

// PlainTextExtractor 纯文本抽取器，整个文件作为第1页
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建一个新的纯文本抽取器
func NewPlainTextExtractor() Extractor {
	return &PlainTextExtractor{}
}

// Extract 读取纯文本文件
func (p *PlainTextExtractor) Extract(filePath string) ([]Page, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	// 非法的UTF-8字节直接丢弃
	text := strings.ToValidUTF8(string(content), "")
	return []Page{{Number: 1, Text: text}}, nil
}
