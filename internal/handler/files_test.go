package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/handler"
	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/middleware"
	"github.com/smurching/cloudnotes/internal/queue"
	"github.com/smurching/cloudnotes/internal/server"
	"github.com/smurching/cloudnotes/internal/service"
	"github.com/smurching/cloudnotes/internal/storage"
	"github.com/smurching/cloudnotes/internal/tracker"
	"github.com/smurching/cloudnotes/internal/types"
	"github.com/smurching/cloudnotes/internal/worker"
)

type testServer struct {
	router  *gin.Engine
	tokens  *middleware.TokenService
	store   *storage.MemoryStore
	tracker *tracker.MemoryTracker
	queue   *queue.MemoryQueue
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore("test", []byte("secret"))
	tr := tracker.NewMemoryTracker()
	q := queue.NewMemoryQueue(64)
	m := metrics.Nop()
	sweeper := worker.NewSweeper(tr, q, m, worker.RetryPolicy{MaxRetries: 3}, time.Minute)
	files := service.NewFiles(store, tr, q, sweeper, m, service.Config{URLExpiry: time.Minute, MaxUploadBytes: 1024})

	tokens := middleware.NewTokenService("secret", time.Hour)
	router := server.NewServer(
		handler.NewFileHandler(files, 1024),
		handler.NewAdminHandler(files),
		middleware.NewAuthMiddleware(tokens),
		server.Options{Metrics: m},
	)

	return &testServer{router: router, tokens: tokens, store: store, tracker: tr, queue: q}
}

func (s *testServer) do(t *testing.T, method, path, role string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	userID := "user-1"
	if role == middleware.RoleOperator {
		userID = "ops-1"
	}
	token, err := s.tokens.GenerateAccessToken(userID, userID+"@example.com", role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil && method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := setupTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestUploadFlow(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/files/doc-1.txt/upload-url", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("upload-url: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	signed := decode[service.URLResponse](t, w)
	if signed.Key != "user-1/doc-1.txt" || signed.URL == "" {
		t.Fatalf("unexpected upload url: %+v", signed)
	}

	w = s.do(t, http.MethodPost, "/api/v1/files/doc-1.txt", "", []byte(`{"size": 11}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rec := decode[types.FileRecord](t, w)
	if rec.Status != types.StatusQueued {
		t.Fatalf("expected queued, got %s", rec.Status)
	}

	w = s.do(t, http.MethodPost, "/api/v1/files/doc-1.txt", "", []byte(`{"size": 11}`))
	if w.Code != http.StatusConflict {
		t.Fatalf("re-register: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/files/doc-1.txt/download-url?variant=processed", "", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("processed before ready: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/files/doc-1.txt/download-url", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("original download: expected 200, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/files/doc-1.txt/status", "", nil)
	if w.Code != http.StatusOK || decode[types.FileRecord](t, w).Status != types.StatusQueued {
		t.Fatalf("status: got %d %s", w.Code, w.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	if _, err := s.tracker.Create(ctx, "user-1/busy", 10); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.tracker.Transition(ctx, "user-1/busy", types.StatusUploaded, types.StatusQueued); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if _, err := s.tracker.Transition(ctx, "user-1/busy", types.StatusQueued, types.StatusProcessing); err != nil {
		t.Fatalf("claim: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"unknown status", http.MethodGet, "/api/v1/files/missing/status", nil, http.StatusNotFound},
		{"unknown download", http.MethodGet, "/api/v1/files/missing/download-url", nil, http.StatusNotFound},
		{"bad variant", http.MethodGet, "/api/v1/files/busy/download-url?variant=thumb", nil, http.StatusBadRequest},
		{"upload url while processing", http.MethodGet, "/api/v1/files/busy/upload-url", nil, http.StatusConflict},
		{"delete while processing", http.MethodDelete, "/api/v1/files/busy", nil, http.StatusConflict},
		{"missing size", http.MethodPost, "/api/v1/files/new", []byte(`{}`), http.StatusBadRequest},
		{"negative size", http.MethodPost, "/api/v1/files/new", []byte(`{"size": -1}`), http.StatusBadRequest},
		{"oversized", http.MethodPost, "/api/v1/files/new", []byte(`{"size": 4096}`), http.StatusBadRequest},
		{"processed suffix", http.MethodPost, "/api/v1/files/x.processed", []byte(`{"size": 1}`), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, "", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Fatalf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestUploadContentAndDelete(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPut, "/api/v1/files/notes%2Fday1.txt/content", "", []byte("hello world"))
	if w.Code != http.StatusCreated {
		t.Fatalf("content: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if decode[types.FileRecord](t, w).Key != "user-1/notes/day1.txt" {
		t.Fatalf("nested key not preserved: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPut, "/api/v1/files/big.txt/content", "", bytes.Repeat([]byte("a"), 2048))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: expected 413, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/files", "", nil)
	list := decode[service.ListResponse](t, w)
	if len(list.Files) != 1 || list.Files[0].Name != "notes/day1.txt" {
		t.Fatalf("unexpected listing: %+v", list)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/files/notes%2Fday1.txt", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/files/notes%2Fday1.txt/status", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", w.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	w := s.do(t, http.MethodPost, "/api/v1/admin/sweep", "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("sweep as user: expected 403, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/sweep", middleware.RoleOperator, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := s.tracker.Create(ctx, "user-1/scan.png", 10); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.tracker.RecordFailure(ctx, "user-1/scan.png", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/retry/user-1/scan.png", middleware.RoleOperator, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec := decode[types.FileRecord](t, w)
	if rec.Status != types.StatusQueued || rec.Attempts != 1 {
		t.Fatalf("unexpected record after retry: %+v", rec)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/retry/user-1/scan.png", middleware.RoleOperator, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("retry of queued key: expected 409, got %d", w.Code)
	}
}
