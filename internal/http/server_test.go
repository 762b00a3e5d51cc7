package httpapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/connectly-api/connectly/internal/auth"
	"github.com/connectly-api/connectly/internal/config"
	"github.com/connectly-api/connectly/internal/eventlog"
	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/rate"
	"github.com/connectly-api/connectly/internal/settings"
	"github.com/connectly-api/connectly/internal/store/sqlite"
)

type allowAllLimiter struct{}

func (a allowAllLimiter) Allow(key string, budget int) rate.Decision {
	return rate.Decision{OK: true, Remaining: budget}
}

func newUnitServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open("file:" + dsnName + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	events, err := eventlog.Open(filepath.Join(t.TempDir(), "api.log"))
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	authSvc := auth.NewService(st, time.Hour)
	server := NewServer(st, authSvc, allowAllLimiter{}, settings.New(), events, config.Config{Version: "test"})
	return server, st
}

func TestListPostsJSON(t *testing.T) {
	server, st := newUnitServer(t)

	hash, _ := auth.HashPassword("password123")
	authorID, err := st.CreateUser(context.Background(), &model.User{
		Username:     "author",
		Email:        "author@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	post := model.Post{Content: "hello", PostType: model.PostTypeText, AuthorID: authorID, CreatedAt: time.Now()}
	if _, err := st.CreatePost(context.Background(), &post); err != nil {
		t.Fatalf("create post: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	resp := httptest.NewRecorder()

	server.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json parse: %v", err)
	}
	if _, ok := payload["posts"]; !ok {
		t.Fatalf("expected posts field")
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCreatePostRequiresAuth(t *testing.T) {
	server, _ := newUnitServer(t)

	body := `{"content":"no token"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	server.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	server, _ := newUnitServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	resp := httptest.NewRecorder()

	server.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestMethodNotAllowedOnRoot(t *testing.T) {
	server, _ := newUnitServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()

	server.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
