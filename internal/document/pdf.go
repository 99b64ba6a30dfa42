package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFExtractor PDF文档抽取器
// 使用pdfcpu逐页导出内容流，再从文本绘制指令中还原文本
type PDFExtractor struct {
	conf *model.Configuration
}

// NewPDFExtractor 创建一个新的PDF抽取器
func NewPDFExtractor() Extractor {
	return &PDFExtractor{conf: model.NewDefaultConfiguration()}
}

// Extract 按原生页序抽取PDF，每页生成一个Page
func (p *PDFExtractor) Extract(filePath string) ([]Page, error) {
	count, err := api.PageCountFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF page count: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pages := make([]Page, 0, count)
	for n := 1; n <= count; n++ {
		text, err := p.extractPage(filePath, tmpDir, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: n, Text: text})
	}

	return pages, nil
}

// extractPage 导出单页内容流并解析其中的文本
func (p *PDFExtractor) extractPage(filePath, tmpDir string, pageNr int) (string, error) {
	pageDir := filepath.Join(tmpDir, strconv.Itoa(pageNr))
	if err := os.MkdirAll(pageDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create page dir: %w", err)
	}

	selected := []string{strconv.Itoa(pageNr)}
	if err := api.ExtractContentFile(filePath, pageDir, selected, p.conf); err != nil {
		return "", fmt.Errorf("failed to extract content of page %d: %w", pageNr, err)
	}

	entries, err := os.ReadDir(pageDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	// 空白页不会生成内容文件
	var parts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(pageDir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read page content: %w", err)
		}
		if text := TextFromContentStream(data); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n"), nil
}
