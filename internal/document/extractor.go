package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnsupportedFormat 不支持的文件格式
var ErrUnsupportedFormat = errors.New("unsupported document type")

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// CSV 表格类型，每行一页
	CSV ContentType = "csv"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// Page 抽取得到的一页原始文本
type Page struct {
	Number int    // 页码，从1开始
	Text   string // 原始文本
}

// Extractor 文档抽取器接口
// 负责将一个文件转换为按顺序排列的页
type Extractor interface {
	// Extract 抽取文件内容
	Extract(filePath string) ([]Page, error)
}

// Outcome 抽取结果类别
type Outcome int

const (
	// OutcomeOK 抽取成功
	OutcomeOK Outcome = iota
	// OutcomeSkipped 文件被跳过（例如不支持的格式）
	OutcomeSkipped
	// OutcomeFailed 读取或解析失败
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result 单个文件的抽取结果
// 调用方根据Outcome区分"无事可做"与"出错"，而不依赖错误控制流程
type Result struct {
	Outcome Outcome
	Pages   []Page
	Reason  string
}

// OK 构造成功结果
func OK(pages []Page) Result {
	return Result{Outcome: OutcomeOK, Pages: pages}
}

// Skipped 构造跳过结果
func Skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

// Failed 构造失败结果
func Failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Reason: err.Error()}
}

var (
	extractorsMu sync.RWMutex
	extractors   = make(map[ContentType]Extractor)
)

func init() {
	RegisterExtractor(PlainText, NewPlainTextExtractor())
	RegisterExtractor(CSV, NewCSVExtractor())
	RegisterExtractor(PDF, NewPDFExtractor())
	RegisterExtractor(Markdown, NewMarkdownExtractor())
}

// RegisterExtractor 注册或替换某种内容类型的抽取器
func RegisterExtractor(contentType ContentType, e Extractor) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[contentType] = e
}

// ExtractorFor 根据文件扩展名返回对应的抽取器
func ExtractorFor(filePath string) (Extractor, error) {
	contentType := DetectContentType(filePath)

	extractorsMu.RLock()
	e, ok := extractors[contentType]
	extractorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filePath))
	}
	return e, nil
}

// ExtractFile 抽取单个文件，任何错误都被转换为结果变体而不会向上抛出
func ExtractFile(filePath string) Result {
	e, err := ExtractorFor(filePath)
	if err != nil {
		return Skipped(err.Error())
	}

	pages, err := e.Extract(filePath)
	if err != nil {
		return Failed(err)
	}
	return OK(pages)
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".csv":
		return CSV
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}
