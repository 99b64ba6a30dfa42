package services

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/campus-qa/internal/llm"
)

const testDim = 64

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// hashEmbedder 词袋哈希向量，同一文本总是得到同一向量，共享词越多越相似
type hashEmbedder struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	single int
}

func (h *hashEmbedder) Name() string { return "hash" }

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.single++
	h.mu.Unlock()
	if h.fail {
		return nil, errors.New("embedding service unavailable")
	}
	return hashVector(text), nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.fail {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, testDim)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%testDim]++
	}
	// 避免零向量
	v[testDim-1] += 0.01
	return v
}

// mockLLM 基于testify/mock的大模型客户端
type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Name() string { return "mock-llm" }

func (m *mockLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	args := m.Called(ctx, messages)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}
