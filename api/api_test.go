package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/campus-qa/api/handler"
	"github.com/fyerfyer/campus-qa/api/middleware"
	"github.com/fyerfyer/campus-qa/api/model"
	"github.com/fyerfyer/campus-qa/internal/llm"
	"github.com/fyerfyer/campus-qa/internal/models"
	"github.com/fyerfyer/campus-qa/internal/services"
	"github.com/fyerfyer/campus-qa/internal/vectordb"
	"github.com/fyerfyer/campus-qa/pkg/taskqueue"
)

const testFolder = "docs"

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Answer(ctx context.Context, history []llm.Message) (*services.Reply, error) {
	args := m.Called(ctx, history)
	reply, _ := args.Get(0).(*services.Reply)
	return reply, args.Error(1)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Build(ctx context.Context, folder string, trigger models.BuildTrigger) (*services.BuildReport, error) {
	args := m.Called(ctx, folder, trigger)
	report, _ := args.Get(0).(*services.BuildReport)
	return report, args.Error(1)
}

func (m *mockIndex) Reset(ctx context.Context, folder string, purge bool) (int, error) {
	args := m.Called(ctx, folder, purge)
	return args.Int(0), args.Error(1)
}

func (m *mockIndex) Stats() vectordb.Stats {
	return m.Called().Get(0).(vectordb.Stats)
}

func (m *mockIndex) History(ctx context.Context, offset, limit int) ([]*models.BuildRun, int64, error) {
	args := m.Called(ctx, offset, limit)
	runs, _ := args.Get(0).([]*models.BuildRun)
	return runs, args.Get(1).(int64), args.Error(2)
}

func (m *mockIndex) LastBuild(ctx context.Context) (*models.BuildRun, error) {
	args := m.Called(ctx)
	run, _ := args.Get(0).(*models.BuildRun)
	return run, args.Error(1)
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

type testEnv struct {
	router *gin.Engine
	chat   *mockAnswerer
	index  *mockIndex
}

func init() {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	middleware.SetLogger(logger)
}

func setupEnv(t *testing.T, adminOpts []handler.AdminOption, routerOpts ...RouterOption) *testEnv {
	t.Helper()
	env := &testEnv{chat: &mockAnswerer{}, index: &mockIndex{}}
	env.router = SetupRouter(
		handler.NewChatHandler(env.chat),
		handler.NewAdminHandler(env.index, testFolder, adminOpts...),
		routerOpts...,
	)
	t.Cleanup(func() {
		env.chat.AssertExpectations(t)
		env.index.AssertExpectations(t)
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestChatEndpoint(t *testing.T) {
	t.Run("answers with sources", func(t *testing.T) {
		env := setupEnv(t, nil)
		history := []llm.Message{
			{Role: llm.RoleUser, Content: "Who heads physics?"},
			{Role: llm.RoleAssistant, Content: "Dr. Jane Smith heads the Physics department."},
			{Role: llm.RoleUser, Content: "What is her email?"},
		}
		env.chat.On("Answer", mock.Anything, history).Return(&services.Reply{
			Text:    "jane.smith@spcollege.edu.in",
			Sources: []services.Source{{File: "staff.csv", Page: 1, ChunkID: "staff.csv#1-0", Score: 0.9, Boosted: true}},
			Rewrite: &services.RewriteResult{Query: "What is Jane Smith email?"},
		}, nil).Once()

		w, resp := env.do(t, http.MethodPost, "/api/chat", gin.H{"history": history})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

		var data model.ChatResponse
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, "jane.smith@spcollege.edu.in", data.Reply)
		assert.Equal(t, "What is Jane Smith email?", data.Query)
		require.Len(t, data.Sources, 1)
		assert.Equal(t, "staff.csv", data.Sources[0].File)
		assert.True(t, data.Sources[0].Boosted)
	})

	t.Run("malformed body still replies", func(t *testing.T) {
		env := setupEnv(t, nil)
		for _, body := range []string{`{"history": "hello"}`, `{}`, `not json`} {
			w, resp := env.do(t, http.MethodPost, "/api/chat", body)
			require.Equal(t, http.StatusOK, w.Code, body)

			var data model.ChatResponse
			require.NoError(t, json.Unmarshal(resp.Data, &data))
			assert.Equal(t, services.ReplyInvalidHistory, data.Reply)
			assert.Empty(t, data.Sources)
		}
	})

	t.Run("role aliases and message field", func(t *testing.T) {
		env := setupEnv(t, nil)
		want := []llm.Message{
			{Role: llm.RoleAssistant, Content: "Hello, how can I help?"},
			{Role: llm.RoleUser, Content: "Where is the library?"},
		}
		env.chat.On("Answer", mock.Anything, want).Return(&services.Reply{Text: "Block A"}, nil).Once()

		w, resp := env.do(t, http.MethodPost, "/api/chat", gin.H{"history": []gin.H{
			{"role": "bot", "content": "Hello, how can I help?"},
			{"role": "User", "message": "Where is the library?"},
		}})
		require.Equal(t, http.StatusOK, w.Code)

		var data model.ChatResponse
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, "Block A", data.Reply)
		env.chat.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.chat.On("Answer", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

		w, resp := env.do(t, http.MethodPost, "/api/chat", gin.H{"history": []gin.H{{"role": "user", "content": "hi"}}})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Equal(t, w.Header().Get("X-Trace-ID"), resp.TraceID)
	})

	t.Run("rate limited", func(t *testing.T) {
		limiter := middleware.NewRateLimiter(0, 1, time.Minute)
		env := setupEnv(t, nil, WithChatRateLimit(limiter))
		env.chat.On("Answer", mock.Anything, mock.Anything).Return(&services.Reply{Text: "ok"}, nil).Once()

		body := gin.H{"history": []gin.H{{"role": "user", "content": "hi"}}}
		w, _ := env.do(t, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusOK, w.Code)

		w, resp := env.do(t, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	})
}

func TestAdminSync(t *testing.T) {
	t.Run("rebuild returns report", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Build", mock.Anything, testFolder, models.TriggerAdmin).
			Return(&services.BuildReport{ID: "b1", Folder: testFolder, Chunks: 7}, nil).Once()

		w, resp := env.do(t, http.MethodPost, "/api/admin/rebuild", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var report services.BuildReport
		require.NoError(t, json.Unmarshal(resp.Data, &report))
		assert.Equal(t, 7, report.Chunks)
	})

	t.Run("rebuild failure", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Build", mock.Anything, testFolder, models.TriggerAdmin).
			Return(&services.BuildReport{}, errors.New("embedding service unavailable")).Once()

		w, resp := env.do(t, http.MethodPost, "/api/admin/rebuild", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Index build failed", resp.Message)
	})

	t.Run("reset with purge", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Reset", mock.Anything, testFolder, true).Return(3, nil).Once()

		w, resp := env.do(t, http.MethodPost, "/api/admin/reset", gin.H{"purge_documents": true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"removed":3}`, string(resp.Data))
	})

	t.Run("reset without body", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Reset", mock.Anything, testFolder, false).Return(0, nil).Once()

		w, _ := env.do(t, http.MethodPost, "/api/admin/reset", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("reset bad body", func(t *testing.T) {
		env := setupEnv(t, nil)
		w, resp := env.do(t, http.MethodPost, "/api/admin/reset", `{"purge_documents": "yes"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("index stats", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Stats").Return(vectordb.Stats{Chunks: 4, Dimension: 64, Files: 2}).Once()
		finished := time.Now()
		run := &models.BuildRun{ID: "b9", Trigger: models.TriggerWatch, Status: models.BuildStatusCompleted,
			StartedAt: finished.Add(-2 * time.Second), FinishedAt: &finished, ChunkCount: 4}
		env.index.On("LastBuild", mock.Anything).Return(run, nil).Once()

		w, resp := env.do(t, http.MethodGet, "/api/admin/index", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats model.IndexStatsResponse
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.True(t, stats.Ready)
		assert.Equal(t, 2, stats.Files)
		require.NotNil(t, stats.LastBuild)
		assert.Equal(t, "b9", stats.LastBuild.ID)
		assert.Equal(t, models.TriggerWatch, stats.LastBuild.Trigger)
		assert.Equal(t, int64(2000), stats.LastBuild.DurationMS)
	})

	t.Run("index stats without build history", func(t *testing.T) {
		env := setupEnv(t, nil)
		env.index.On("Stats").Return(vectordb.Stats{}).Once()
		env.index.On("LastBuild", mock.Anything).Return(nil, errors.New("database is locked")).Once()

		w, resp := env.do(t, http.MethodGet, "/api/admin/index", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats model.IndexStatsResponse
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.False(t, stats.Ready)
		assert.Nil(t, stats.LastBuild)
	})

	t.Run("builds pagination", func(t *testing.T) {
		env := setupEnv(t, nil)
		finished := time.Now()
		run := &models.BuildRun{ID: "b1", Status: models.BuildStatusCompleted, StartedAt: finished.Add(-time.Second), FinishedAt: &finished}
		require.NoError(t, run.SetResults([]models.FileResult{{File: "library.txt", Outcome: "ok", Chunks: 2}}))
		env.index.On("History", mock.Anything, 5, 5).Return([]*models.BuildRun{run}, int64(6), nil).Once()

		w, resp := env.do(t, http.MethodGet, "/api/admin/builds?page=2&page_size=5", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list model.BuildListResponse
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		assert.Equal(t, int64(6), list.Total)
		assert.Equal(t, 2, list.Page)
		require.Len(t, list.Builds, 1)
		assert.Equal(t, int64(1000), list.Builds[0].DurationMS)
		require.Len(t, list.Builds[0].Files, 1)
		assert.Equal(t, "library.txt", list.Builds[0].Files[0].File)
	})

	t.Run("builds invalid page", func(t *testing.T) {
		env := setupEnv(t, nil)
		w, _ := env.do(t, http.MethodGet, "/api/admin/builds?page=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tasks without queue", func(t *testing.T) {
		env := setupEnv(t, nil)
		w, _ := env.do(t, http.MethodGet, "/api/admin/tasks/4b7d2c1e-8f7a-4a52-9a51-8e6f3b2c9d10", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminAsync(t *testing.T) {
	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr()}, taskqueue.WithLogger(middleware.GetLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	env := setupEnv(t, []handler.AdminOption{handler.WithTaskQueue(queue)})

	w, resp := env.do(t, http.MethodPost, "/api/admin/rebuild", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted model.TaskAcceptedResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	assert.Equal(t, taskqueue.TaskIndexRebuild, accepted.Type)

	w, resp = env.do(t, http.MethodGet, "/api/admin/tasks/"+accepted.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var task taskqueue.Task
	require.NoError(t, json.Unmarshal(resp.Data, &task))
	assert.Equal(t, taskqueue.StatusPending, task.Status)
	assert.JSONEq(t, `{"folder":"docs","trigger":"admin"}`, string(task.Payload))

	w, resp = env.do(t, http.MethodPost, "/api/admin/reset", gin.H{"purge_documents": true})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	assert.Equal(t, taskqueue.TaskIndexReset, accepted.Type)

	w, _ = env.do(t, http.MethodGet, "/api/admin/tasks/4b7d2c1e-8f7a-4a52-9a51-8e6f3b2c9d10", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/admin/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndCors(t *testing.T) {
	env := setupEnv(t, nil, WithCORS(true))

	w, _ := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
