package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/connectly-api/connectly/internal/auth"
	"github.com/connectly-api/connectly/internal/client"
	"github.com/connectly-api/connectly/internal/config"
	"github.com/connectly-api/connectly/internal/eventlog"
	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/rate"
	"github.com/connectly-api/connectly/internal/settings"
	"github.com/connectly-api/connectly/internal/store/sqlite"
)

type testClient struct {
	server   *httptest.Server
	client   *http.Client
	store    *sqlite.Store
	settings *settings.Store
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	dsnName := strings.NewReplacer("/", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	events, err := eventlog.Open(filepath.Join(t.TempDir(), "api.log"))
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	sets := settings.New()
	authSvc := auth.NewService(st, time.Hour)
	server := NewServer(st, authSvc, rate.NewMemory(time.Hour), sets, events, config.Config{Version: "test", TokenTTL: time.Hour})
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		_ = st.Close()
		_ = events.Close()
	})
	return &testClient{server: ts, client: ts.Client(), store: st, settings: sets}
}

func (c *testClient) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *testClient) postJSON(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	return c.do(t, http.MethodPost, path, body, headers)
}

func (c *testClient) get(t *testing.T, path string, headers map[string]string) *http.Response {
	return c.do(t, http.MethodGet, path, nil, headers)
}

func decodeJSON[T any](t *testing.T, resp *http.Response, out *T) {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("json decode: %v (body %s)", err, string(body))
	}
}

// createTestUser registers a user and returns a valid access token.
func createTestUser(t *testing.T, tc *testClient, name string) string {
	t.Helper()
	helper := client.NewTestHelper(tc.server.URL)
	token, err := helper.GetToken(name)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return token
}

// promote assigns a role directly in the store.
func promote(t *testing.T, tc *testClient, username, role string) {
	t.Helper()
	user, err := tc.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("look up %s: %v", username, err)
	}
	if err := tc.store.AssignRole(context.Background(), user.ID, role); err != nil {
		t.Fatalf("assign %s to %s: %v", role, username, err)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRegisterLoginFlow(t *testing.T) {
	tc := newTestClient(t)

	resp := tc.postJSON(t, "/api/users", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "supersecret",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("register status %d: %s", resp.StatusCode, string(b))
	}
	var created model.User
	decodeJSON(t, resp, &created)
	if created.ID == 0 || created.Username != "alice" {
		t.Fatalf("unexpected user %+v", created)
	}
	if len(created.Roles) != 1 || created.Roles[0] != model.RoleUser {
		t.Fatalf("expected default user role, got %v", created.Roles)
	}

	resp = tc.postJSON(t, "/api/users", map[string]any{
		"username": "alice",
		"email":    "other@example.com",
		"password": "supersecret",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/api/login", map[string]any{
		"username": "alice",
		"password": "wrongpassword",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/api/login", map[string]any{
		"username": "alice",
		"password": "supersecret",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeJSON(t, resp, &login)
	if login.Token == "" {
		t.Fatalf("expected token")
	}

	resp = tc.get(t, "/api/protected", bearer(login.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("protected status %d", resp.StatusCode)
	}
	var identity struct {
		Username string `json:"username"`
	}
	decodeJSON(t, resp, &identity)
	if identity.Username != "alice" {
		t.Fatalf("expected alice, got %q", identity.Username)
	}

	resp = tc.get(t, "/api/protected", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/api/logout", nil, bearer(login.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.get(t, "/api/protected", bearer(login.Token))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPostCommentFlow(t *testing.T) {
	tc := newTestClient(t)
	token := createTestUser(t, tc, "poster")
	headers := bearer(token)

	resp := tc.postJSON(t, "/api/posts", map[string]any{
		"title":   "Integration Post",
		"content": "Some interesting content for the integration test.",
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("create post status %d: %s", resp.StatusCode, string(b))
	}
	var post model.Post
	decodeJSON(t, resp, &post)
	if post.ID == 0 || post.PostType != model.PostTypeText {
		t.Fatalf("unexpected post %+v", post)
	}

	resp = tc.postJSON(t, "/api/comments", map[string]any{
		"post_id": post.ID,
		"text":    "First!",
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("create comment status %d: %s", resp.StatusCode, string(b))
	}
	var comment model.Comment
	decodeJSON(t, resp, &comment)
	if comment.AuthorUsername != "poster" {
		t.Fatalf("expected author username, got %q", comment.AuthorUsername)
	}

	resp = tc.get(t, "/api/posts/"+strconv.FormatInt(post.ID, 10), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get post status %d", resp.StatusCode)
	}
	var fetched model.Post
	decodeJSON(t, resp, &fetched)
	if fetched.CommentCount != 1 {
		t.Fatalf("expected comment_count 1, got %d", fetched.CommentCount)
	}

	resp = tc.get(t, fmt.Sprintf("/api/posts/%d/comments", post.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post comments status %d", resp.StatusCode)
	}
	var payload struct {
		Comments []model.Comment `json:"comments"`
	}
	decodeJSON(t, resp, &payload)
	if len(payload.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(payload.Comments))
	}

	resp = tc.postJSON(t, "/api/comments", map[string]any{
		"post_id": int64(9999),
		"text":    "orphan",
	}, headers)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Deleting the comment brings the count back down.
	resp = tc.do(t, http.MethodDelete, "/api/comments/"+strconv.FormatInt(comment.ID, 10), nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete comment status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.get(t, "/api/posts/"+strconv.FormatInt(post.ID, 10), nil)
	decodeJSON(t, resp, &fetched)
	if fetched.CommentCount != 0 {
		t.Fatalf("expected comment_count 0 after delete, got %d", fetched.CommentCount)
	}
}

func TestTypedPostValidation(t *testing.T) {
	tc := newTestClient(t)
	token := createTestUser(t, tc, "typed")
	headers := bearer(token)

	resp := tc.postJSON(t, "/api/posts/typed", map[string]any{
		"post_type": "image",
		"content":   "missing metadata",
	}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for image without metadata, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/api/posts/typed", map[string]any{
		"post_type": "image",
		"content":   "a picture",
		"metadata":  map[string]any{"file_size": 2048, "file_type": "png"},
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("typed post status %d: %s", resp.StatusCode, string(b))
	}
	var post model.Post
	decodeJSON(t, resp, &post)
	if post.Title != "New Image Post" {
		t.Fatalf("expected default title, got %q", post.Title)
	}

	resp = tc.postJSON(t, "/api/posts/typed", map[string]any{
		"post_type": "livestream",
		"content":   "nope",
	}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestOwnershipAndModeration(t *testing.T) {
	tc := newTestClient(t)
	ownerToken := createTestUser(t, tc, "owner")
	otherToken := createTestUser(t, tc, "other")
	modToken := createTestUser(t, tc, "mod")
	promote(t, tc, "mod", model.RoleModerator)

	resp := tc.postJSON(t, "/api/posts", map[string]any{
		"content": "owned content",
	}, bearer(ownerToken))
	var post model.Post
	decodeJSON(t, resp, &post)

	path := "/api/posts/" + strconv.FormatInt(post.ID, 10)

	resp = tc.do(t, http.MethodDelete, path, nil, bearer(otherToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.do(t, http.MethodPut, path, map[string]any{"content": "edited by mod"}, bearer(modToken))
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("moderator edit status %d: %s", resp.StatusCode, string(b))
	}
	resp.Body.Close()

	resp = tc.do(t, http.MethodDelete, path, nil, bearer(modToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("moderator delete status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Moderator can list users via the admin endpoint; a plain user cannot.
	resp = tc.get(t, "/api/admin/users", bearer(modToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin users status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.get(t, "/api/admin/users", bearer(otherToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConfigEndpoints(t *testing.T) {
	tc := newTestClient(t)
	userToken := createTestUser(t, tc, "pleb")
	adminToken := createTestUser(t, tc, "root")
	promote(t, tc, "root", model.RoleAdmin)

	resp := tc.postJSON(t, "/api/config", map[string]any{
		settings.KeyDefaultPageSize: 5,
	}, bearer(userToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin config write, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.postJSON(t, "/api/config", map[string]any{
		settings.KeyDefaultPageSize: 5,
	}, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("admin config write status %d: %s", resp.StatusCode, string(b))
	}
	resp.Body.Close()
	if got := tc.settings.Int(settings.KeyDefaultPageSize); got != 5 {
		t.Fatalf("expected page size 5, got %d", got)
	}

	resp = tc.postJSON(t, "/api/config", map[string]any{
		"NO_SUCH_SETTING": 1,
	}, bearer(adminToken))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown setting, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = tc.get(t, "/api/config", bearer(userToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config read status %d", resp.StatusCode)
	}
	var payload struct {
		Settings map[string]any `json:"settings"`
	}
	decodeJSON(t, resp, &payload)
	if payload.Settings[settings.KeyDefaultPageSize] != float64(5) {
		t.Fatalf("expected updated setting in response, got %v", payload.Settings)
	}

	resp = tc.do(t, http.MethodDelete, "/api/config", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config reset status %d", resp.StatusCode)
	}
	resp.Body.Close()
	if got := tc.settings.Int(settings.KeyDefaultPageSize); got != 20 {
		t.Fatalf("expected default page size after reset, got %d", got)
	}
}

func TestPaginationUsesConfiguredPageSize(t *testing.T) {
	tc := newTestClient(t)
	token := createTestUser(t, tc, "paging")
	headers := bearer(token)

	tc.settings.Set(settings.KeyDefaultPageSize, 2)

	for i := 0; i < 3; i++ {
		resp := tc.postJSON(t, "/api/posts", map[string]any{
			"content": fmt.Sprintf("post %d", i),
		}, headers)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create post %d status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := tc.get(t, "/api/posts", nil)
	var payload struct {
		Posts []model.Post `json:"posts"`
		Limit int          `json:"limit"`
	}
	decodeJSON(t, resp, &payload)
	if payload.Limit != 2 || len(payload.Posts) != 2 {
		t.Fatalf("expected page of 2, got limit %d with %d posts", payload.Limit, len(payload.Posts))
	}
}

func TestRateLimitExceeded(t *testing.T) {
	tc := newTestClient(t)
	tc.settings.Set(settings.KeyRateLimit, 2)

	for i := 0; i < 2; i++ {
		resp := tc.get(t, "/api/posts", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := tc.get(t, "/api/posts", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	resp.Body.Close()
}

func TestStatsAndVersion(t *testing.T) {
	tc := newTestClient(t)
	token := createTestUser(t, tc, "statuser")

	resp := tc.postJSON(t, "/api/posts", map[string]any{"content": "stat me"}, bearer(token))
	resp.Body.Close()

	resp = tc.get(t, "/api/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d", resp.StatusCode)
	}
	var stats model.SiteStats
	decodeJSON(t, resp, &stats)
	if stats.Users != 1 || stats.Posts != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	resp = tc.get(t, "/api/version", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("version status %d", resp.StatusCode)
	}
	var version map[string]any
	decodeJSON(t, resp, &version)
	if version["version"] != "test" {
		t.Fatalf("unexpected version payload %v", version)
	}
}
