// Package client provides a Go client for the Connectly API.
package client

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a Connectly API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// New creates a new Connectly client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Errors
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Register creates a new account on the server.
func (c *Client) Register(username, email, password string) (int64, error) {
	reqBody := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	body, _ := json.Marshal(reqBody)
	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/users", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusConflict {
		return 0, ErrUsernameTaken
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("register failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// Login exchanges a username/password pair for a bearer token.
func (c *Client) Login(username, password string) error {
	reqBody := map[string]string{"username": username, "password": password}
	body, _ := json.Marshal(reqBody)
	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	c.Token = result.Token
	c.TokenExp = result.ExpiresAt
	return nil
}

// RegisterAndLogin is a convenience method that registers (if needed) and logs in.
func (c *Client) RegisterAndLogin(username, email, password string) error {
	_, err := c.Register(username, email, password)
	if err != nil && !errors.Is(err, ErrUsernameTaken) {
		return fmt.Errorf("register: %w", err)
	}
	return c.Login(username, password)
}

// Logout invalidates the client's token on the server.
func (c *Client) Logout() error {
	resp, err := c.doRequest(http.MethodPost, "/api/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout failed (%d): %s", resp.StatusCode, string(body))
	}
	c.Token = ""
	c.TokenExp = time.Time{}
	return nil
}

// IsAuthenticated returns true if the client has a valid token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

// doRequest performs an authenticated HTTP request.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// Post represents a post from the API.
type Post struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	PostType       string         `json:"post_type"`
	Metadata       map[string]any `json:"metadata"`
	AuthorID       int64          `json:"author_id"`
	AuthorUsername string         `json:"author_username"`
	CommentCount   int            `json:"comment_count"`
}

// Comment represents a comment from the API.
type Comment struct {
	ID             int64  `json:"id"`
	PostID         int64  `json:"post_id"`
	PostPreview    string `json:"post_content_preview"`
	Text           string `json:"text"`
	AuthorID       int64  `json:"author_id"`
	AuthorUsername string `json:"author_username"`
}

// Identity is the authenticated identity reported by the server.
type Identity struct {
	Message  string   `json:"message"`
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// WhoAmI returns the identity behind the client's token.
func (c *Client) WhoAmI() (*Identity, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/protected", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whoami failed (%d): %s", resp.StatusCode, string(body))
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// CreatePost creates a new post. An empty postType defaults to text.
func (c *Client) CreatePost(postType, title, content string, metadata map[string]any) (*Post, error) {
	reqBody := map[string]any{"content": content}
	if title != "" {
		reqBody["title"] = title
	}
	if postType != "" {
		reqBody["post_type"] = postType
	}
	if len(metadata) > 0 {
		reqBody["metadata"] = metadata
	}

	resp, err := c.doRequest(http.MethodPost, "/api/posts", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create post failed (%d): %s", resp.StatusCode, string(body))
	}

	var post Post
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPosts fetches a page of posts.
func (c *Client) GetPosts(limit, offset int) ([]Post, error) {
	path := fmt.Sprintf("/api/posts?limit=%d&offset=%d", limit, offset)
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get posts failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Posts []Post `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Posts, nil
}

// GetPost fetches a single post.
func (c *Client) GetPost(id int64) (*Post, error) {
	path := fmt.Sprintf("/api/posts/%d", id)
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get post failed (%d): %s", resp.StatusCode, string(body))
	}

	var post Post
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost deletes a post you own.
func (c *Client) DeletePost(id int64) error {
	path := fmt.Sprintf("/api/posts/%d", id)
	resp, err := c.doRequest(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete post failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(postID int64, text string) (*Comment, error) {
	reqBody := map[string]any{
		"post_id": postID,
		"text":    text,
	}

	resp, err := c.doRequest(http.MethodPost, "/api/comments", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create comment failed (%d): %s", resp.StatusCode, string(body))
	}

	var comment Comment
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetComments fetches the comments on a post.
func (c *Client) GetComments(postID int64) ([]Comment, error) {
	path := fmt.Sprintf("/api/posts/%d/comments", postID)
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get comments failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Comments, nil
}

// GetConfig fetches the server's runtime settings.
func (c *Client) GetConfig() (map[string]any, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/config", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get config failed (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Settings, nil
}

// SetConfig updates runtime settings on the server. Requires the admin role.
func (c *Client) SetConfig(values map[string]any) error {
	resp, err := c.doRequest(http.MethodPost, "/api/config", values)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("set config failed (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers a user with the given name and a random
// password and returns a logged-in client. This is a convenience method for tests.
func (h *TestHelper) CreateAuthenticatedClient(name string) (*Client, error) {
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	c := New(h.BaseURL)
	if err := c.RegisterAndLogin(name, name+"@example.com", password); err != nil {
		return nil, err
	}
	return c, nil
}

// GetToken registers a user (if needed) and returns an access token.
func (h *TestHelper) GetToken(name string) (string, error) {
	c, err := h.CreateAuthenticatedClient(name)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
