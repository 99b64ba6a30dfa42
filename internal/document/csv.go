package document

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVSeparator 同一行内各单元格之间的分隔符
const CSVSeparator = " | "

// CSVExtractor 表格抽取器
// 第一行为列名，其余每行生成一页，页码为行号（从1开始）
type CSVExtractor struct{}

// NewCSVExtractor 创建CSV抽取器
func NewCSVExtractor() Extractor {
	return &CSVExtractor{}
}

// Extract 解析CSV文件
func (c *CSVExtractor) Extract(filePath string) ([]Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	return c.extract(file)
}

func (c *CSVExtractor) extract(r io.Reader) ([]Page, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var pages []Page
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", row, err)
		}

		if text := formatRow(header, record); text != "" {
			pages = append(pages, Page{Number: row, Text: text})
		}
	}

	return pages, nil
}

// formatRow 将一行转换为 "列: 值" 形式，跳过空单元格
func formatRow(header, record []string) string {
	parts := make([]string, 0, len(record))
	for i, cell := range record {
		value := strings.TrimSpace(cell)
		if value == "" {
			continue
		}
		column := fmt.Sprintf("column_%d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			column = strings.TrimSpace(header[i])
		}
		parts = append(parts, column+": "+value)
	}
	return strings.Join(parts, CSVSeparator)
}
