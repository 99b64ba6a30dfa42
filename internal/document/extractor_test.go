package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa-test"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func createTempPDF(t *testing.T, pages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa-test.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestPlainTextExtractor(t *testing.T) {
	file := createTempFile(t, "Hello, this is a plain text file.\nSecond line.", ".txt")

	pages, err := NewPlainTextExtractor().Extract(file)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "plain text file")
}

func TestCSVExtractor(t *testing.T) {
	t.Run("one page per row", func(t *testing.T) {
		content := "name,department,email\n" +
			"Jane Smith,Physics,jane@college.edu\n" +
			",,\n" +
			"John Doe,,john@college.edu\n"
		file := createTempFile(t, content, ".csv")

		pages, err := NewCSVExtractor().Extract(file)
		require.NoError(t, err)
		require.Len(t, pages, 2, "empty rows produce no page")

		assert.Equal(t, 1, pages[0].Number)
		assert.Equal(t, "name: Jane Smith | department: Physics | email: jane@college.edu", pages[0].Text)
		assert.Equal(t, 3, pages[1].Number)
		assert.Equal(t, "name: John Doe | email: john@college.edu", pages[1].Text)
	})

	t.Run("header only", func(t *testing.T) {
		file := createTempFile(t, "name,email\n", ".csv")
		pages, err := NewCSVExtractor().Extract(file)
		require.NoError(t, err)
		assert.Empty(t, pages)
	})
}

func TestMarkdownExtractor(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")

	pages, err := NewMarkdownExtractor().Extract(file)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Contains(t, text, "# Title")
	assert.Contains(t, text, "This is a markdown file.")
	assert.Contains(t, text, "- Item 1")
	assert.Contains(t, text, "- Item 2")
}

func TestPDFExtractor(t *testing.T) {
	file := createTempPDF(t, "This is the first PDF page.", "Second page talks about admissions.")

	pages, err := NewPDFExtractor().Extract(file)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "first PDF page")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "admissions")
}

func TestTextFromContentStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"simple show", "BT /F1 12 Tf 72 712 Td (Hello World) Tj ET", "Hello World"},
		{"escaped parens", `BT (a \(b\) c) Tj ET`, "a (b) c"},
		{"kerned array", "BT [(Hel) -10 (lo) -400 (there)] TJ ET", "Hello there"},
		{"line moves", "BT (one) Tj 0 -14 Td (two) Tj T* (three) Tj ET", "one\ntwo\nthree"},
		{"hex string", "BT <48692E> Tj ET", "Hi."},
		{"no text", "0 0 m 100 100 l S", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextFromContentStream([]byte(tt.stream)))
		})
	}
}

func TestExtractFile(t *testing.T) {
	t.Run("supported", func(t *testing.T) {
		file := createTempFile(t, "plain text", ".TXT")
		result := ExtractFile(file)
		assert.Equal(t, OutcomeOK, result.Outcome)
		require.Len(t, result.Pages, 1)
		assert.Equal(t, "plain text", result.Pages[0].Text)
	})

	t.Run("unsupported extension is skipped", func(t *testing.T) {
		file := createTempFile(t, "binary", ".docx")
		result := ExtractFile(file)
		assert.Equal(t, OutcomeSkipped, result.Outcome)
		assert.Empty(t, result.Pages)
		assert.Contains(t, result.Reason, "unsupported")
	})

	t.Run("read failure", func(t *testing.T) {
		result := ExtractFile(filepath.Join(t.TempDir(), "missing.txt"))
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.NotEmpty(t, result.Reason)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		file := createTempFile(t, "not really a pdf", ".pdf")
		result := ExtractFile(file)
		assert.Equal(t, OutcomeFailed, result.Outcome)
	})
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PDF, DetectContentType("a/b/report.PDF"))
	assert.Equal(t, CSV, DetectContentType("staff.csv"))
	assert.Equal(t, Markdown, DetectContentType("notes.markdown"))
	assert.Equal(t, PlainText, DetectContentType("readme.txt"))
	assert.Equal(t, Unknown, DetectContentType("image.png"))
}

type stubExtractor struct{ pages []Page }

func (s stubExtractor) Extract(string) ([]Page, error) { return s.pages, nil }

func TestRegisterExtractor(t *testing.T) {
	for _, ct := range []ContentType{PlainText, CSV, PDF, Markdown} {
		extractorsMu.RLock()
		_, ok := extractors[ct]
		extractorsMu.RUnlock()
		assert.True(t, ok, ct)
	}

	original, err := ExtractorFor("notice.txt")
	require.NoError(t, err)
	t.Cleanup(func() { RegisterExtractor(PlainText, original) })

	RegisterExtractor(PlainText, stubExtractor{pages: []Page{{Number: 1, Text: "replaced"}}})
	result := ExtractFile("notice.TXT")
	assert.Equal(t, OutcomeOK, result.Outcome)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, "replaced", result.Pages[0].Text)
}
