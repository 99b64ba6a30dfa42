package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownExtractor Markdown文档抽取器
// 将AST还原为纯文本，标题保留 "#" 前缀以便按标题分块
type MarkdownExtractor struct{}

// NewMarkdownExtractor 创建新的Markdown抽取器
func NewMarkdownExtractor() Extractor {
	return &MarkdownExtractor{}
}

// Extract 解析Markdown文件，整篇作为第1页
func (m *MarkdownExtractor) Extract(filePath string) ([]Page, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown file: %w", err)
	}

	return []Page{{Number: 1, Text: markdownToText(content)}}, nil
}

// markdownToText 遍历Markdown AST输出纯文本
func markdownToText(content []byte) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	doc := parser.NewWithExtensions(extensions).Parse(content)

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Heading:
			if entering {
				b.WriteString(strings.Repeat("#", n.Level) + " ")
			} else {
				b.WriteString("\n\n")
			}
		case *ast.Paragraph:
			if entering {
				return ast.GoToNext
			}
			if _, inList := n.Parent.(*ast.ListItem); inList {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		case *ast.ListItem:
			if entering {
				b.WriteString("- ")
			}
		case *ast.List:
			if !entering {
				b.WriteString("\n")
			}
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.Code:
			b.Write(n.Literal)
		case *ast.CodeBlock:
			b.Write(n.Literal)
			b.WriteString("\n\n")
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteString("\n")
		}
		return ast.GoToNext
	})

	return strings.TrimSpace(b.String())
}
