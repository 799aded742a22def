package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SergeiKhy/link-registry/internal/handler"
	"github.com/SergeiKhy/link-registry/internal/kv"
	"github.com/SergeiKhy/link-registry/internal/middleware"
	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/SergeiKhy/link-registry/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "test-key"

type testEnv struct {
	router http.Handler
	store  *mocks.CountingStore
}

func setupRouter(t *testing.T, cfg handler.RouterConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewCountingStore(kv.NewMemoryStore())
	logger := zap.NewNop()
	linkService := service.NewLinkService(
		repository.NewLinkRepository(store),
		service.NewLinkLister(store, logger),
		service.LinkServiceConfig{},
		logger,
	)
	auth := middleware.NewAPIKeyAuth(map[string]string{testKey: "tests"})

	return &testEnv{
		router: handler.NewRouter(linkService, nil, auth.Middleware(), cfg, logger),
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.APIKeyHeader, testKey)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

type fixedRepairStats struct{}

func (fixedRepairStats) Stats() service.RepairStats {
	return service.RepairStats{BufferSize: 1000, BufferUsed: 3, WorkerCount: 2}
}

func TestHealthCheck_RepairStats(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{Repair: fixedRepairStats{}})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"status":"ok","repair":{"buffer_size":1000,"buffer_used":3,"worker_count":2}}`,
		w.Body.String())
}

// TestCreateLink проверяет создание и shortLink из запроса
func TestCreateLink(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	w := env.do(t, http.MethodPost, "/api/link/create", map[string]any{
		"url":     "https://example.com/page",
		"slug":    "Team-Docs",
		"comment": "wiki",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[handler.LinkResponse](t, w)
	assert.Equal(t, "team-docs", resp.Link.Slug)
	assert.Equal(t, "https://example.com/page", resp.Link.URL)
	assert.Equal(t, "http://example.com/team-docs", resp.ShortLink)
}

func TestCreateLink_BaseURL(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{BaseURL: "https://s.example.org"})

	w := env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://a.example", "slug": "x"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "https://s.example.org/x", decode[handler.LinkResponse](t, w).ShortLink)
}

func TestCreateLink_Validation(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{"slug": "abc"}},
		{"invalid url", map[string]any{"url": "not a url"}},
		{"invalid slug", map[string]any{"url": "https://a.example", "slug": "bad slug!"}},
		{"double dash", map[string]any{"url": "https://a.example", "slug": "a--b"}},
		{"expiration too soon", map[string]any{"url": "https://a.example", "slug": "soon", "expiration": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/link/create", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decode[models.ErrorResponse](t, w).Error)
		})
	}
}

func TestCreateLink_Conflict(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	body := map[string]any{"url": "https://a.example", "slug": "taken"}

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/link/create", body).Code)
	w := env.do(t, http.MethodPost, "/api/link/create", body)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "link_exists", decode[models.ErrorResponse](t, w).Error)
}

func TestEditLink(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	created := decode[handler.LinkResponse](t, env.do(t, http.MethodPost, "/api/link/create",
		map[string]any{"url": "https://old.example", "slug": "page"}))

	w := env.do(t, http.MethodPut, "/api/link/edit", map[string]any{"url": "https://new.example", "slug": "page"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[handler.LinkResponse](t, w)
	assert.Equal(t, created.Link.ID, resp.Link.ID)
	assert.Equal(t, "https://new.example", resp.Link.URL)
}

func TestEditLink_NotFound(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	w := env.do(t, http.MethodPut, "/api/link/edit", map[string]any{"url": "https://a.example", "slug": "ghost"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPreviewMode проверяет, что edit и delete закрыты, а create работает
func TestPreviewMode(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{PreviewMode: true})

	w := env.do(t, http.MethodPut, "/api/link/edit", map[string]any{"url": "https://a.example", "slug": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/link/delete", map[string]any{"slug": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://a.example", "slug": "x"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestDeleteLink(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://a.example", "slug": "bye"})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/link/delete", map[string]any{"slug": "bye"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/link/query?slug=bye", nil).Code)

	// без slug и без тела: ничего не удаляется, ошибки нет
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/link/delete", map[string]any{}).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/link/delete", nil).Code)
}

func TestQueryLink(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://a.example", "slug": "q", "comment": "c"})

	w := env.do(t, http.MethodGet, "/api/link/query?slug=q", nil)

	require.Equal(t, http.StatusOK, w.Code)
	link := decode[models.Link](t, w)
	assert.Equal(t, "https://a.example", link.URL)
	assert.Equal(t, "c", link.Comment)
}

// TestSearchLinks проверяет листинг, включая запись без metadata
func TestSearchLinks(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://a.example", "slug": "a"})
	require.NoError(t, env.store.Put(context.Background(), "link:legacy",
		[]byte(`{"url":"https://legacy.example","slug":"legacy"}`), kv.PutOptions{}))

	w := env.do(t, http.MethodGet, "/api/link/search", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []models.LinkRecord{
		{Slug: "a", URL: "https://a.example"},
		{Slug: "legacy", URL: "https://legacy.example"},
	}, decode[[]models.LinkRecord](t, w))
}

func TestSearchLinks_Empty(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	w := env.do(t, http.MethodGet, "/api/link/search", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSearchLinks_ListUnavailable(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	env.store.ListErr = errors.New("list quota exceeded")

	w := env.do(t, http.MethodGet, "/api/link/search", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "list_unavailable", decode[models.ErrorResponse](t, w).Error)
}

func TestAPIKeyRequired(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/link/search", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRedirect(t *testing.T) {
	env := setupRouter(t, handler.RouterConfig{})
	env.do(t, http.MethodPost, "/api/link/create", map[string]any{"url": "https://target.example/x", "slug": "go"})

	// редирект доступен без API key
	req := httptest.NewRequest(http.MethodGet, "/GO", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://target.example/x", w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
