package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/connectly-api/connectly/internal/auth"
	"github.com/connectly-api/connectly/internal/config"
	"github.com/connectly-api/connectly/internal/eventlog"
	"github.com/connectly-api/connectly/internal/factory"
	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/rate"
	"github.com/connectly-api/connectly/internal/settings"
	"github.com/connectly-api/connectly/internal/store"

	_ "github.com/connectly-api/connectly/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const maxPageSize = 100

type Server struct {
	store    store.Store
	auth     *auth.Service
	limiter  rate.Limiter
	settings *settings.Store
	events   *eventlog.Logger
	cfg      config.Config
}

func NewServer(store store.Store, authSvc *auth.Service, limiter rate.Limiter, st *settings.Store, events *eventlog.Logger, cfg config.Config) *Server {
	return &Server{store: store, auth: authSvc, limiter: limiter, settings: st, events: events, cfg: cfg}
}

// ServeHTTP resolves the caller's identity once and threads it through the
// request context for the log, the rate limiter, and the handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if bearer := bearerToken(r); bearer != "" {
		if verified, err := s.auth.Authenticate(r.Context(), bearer); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), identityKey, &verified))
		}
	}
	s.withRequestLog(w, r, s.route)
}

type ctxKey struct{}

var identityKey ctxKey

// identity returns the authenticated caller, or nil.
func identity(r *http.Request) *auth.Verified {
	v, _ := r.Context().Value(identityKey).(*auth.Verified)
	return v
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/swagger/") {
		httpSwagger.WrapHandler.ServeHTTP(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/") {
		if !s.allowRateLimit(w, r) {
			return
		}
		s.handleAPI(w, r)
		return
	}
	if path == "/" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "Connectly API",
			"version": s.cfg.Version,
			"docs":    "/swagger/index.html",
		})
		return
	}
	notFound(w)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 1 && segments[0] == "users":
		if r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListUsers(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "users":
		if r.Method == http.MethodGet {
			s.handleGetUser(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "login":
		if r.Method == http.MethodPost {
			s.handleLogin(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "logout":
		if r.Method == http.MethodPost {
			s.handleLogout(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "protected":
		if r.Method == http.MethodGet {
			s.handleProtected(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "posts":
		if r.Method == http.MethodPost {
			s.handleCreatePost(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListPosts(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "posts" && segments[1] == "types":
		if r.Method == http.MethodGet {
			s.handlePostTypes(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "posts" && segments[1] == "typed":
		if r.Method == http.MethodPost {
			s.handleCreateTypedPost(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "posts":
		if r.Method == http.MethodGet {
			s.handleGetPost(w, r, segments[1])
			return
		}
		if r.Method == http.MethodPut {
			s.handleUpdatePost(w, r, segments[1])
			return
		}
		if r.Method == http.MethodDelete {
			s.handleDeletePost(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "posts" && segments[2] == "comments":
		if r.Method == http.MethodGet {
			s.handlePostComments(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "comments":
		if r.Method == http.MethodPost {
			s.handleCreateComment(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListComments(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "comments":
		if r.Method == http.MethodGet {
			s.handleGetComment(w, r, segments[1])
			return
		}
		if r.Method == http.MethodPut {
			s.handleUpdateComment(w, r, segments[1])
			return
		}
		if r.Method == http.MethodDelete {
			s.handleDeleteComment(w, r, segments[1])
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "users":
		if r.Method == http.MethodGet {
			s.handleAdminUsers(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "config":
		if r.Method == http.MethodGet {
			s.handleGetConfig(w, r)
			return
		}
		if r.Method == http.MethodPost {
			s.handleSetConfig(w, r)
			return
		}
		if r.Method == http.MethodDelete {
			s.handleResetConfig(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "stats":
		if r.Method == http.MethodGet {
			s.handleGetStats(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "version":
		if r.Method == http.MethodGet {
			s.handleVersion(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "openapi.json":
		if r.Method == http.MethodGet {
			s.serveOpenAPIJSON(w, r)
			return
		}
	}

	notFound(w)
}

// handleRegister godoc
//
//	@Summary		Register a new user
//	@Description	Create an account with a unique username. New users get the "user" role.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			user	body		object{username=string,email=string,password=string}	true	"User data"
//	@Success		201		{object}	model.User
//	@Failure		400		{object}	map[string]string	"Validation error"
//	@Failure		409		{object}	map[string]string	"Username taken"
//	@Router			/api/users [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password required"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, errors.New("password must be at least 8 characters"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	user := model.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	id, err := s.store.CreateUser(r.Context(), &user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, errors.New("username already taken"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	user.ID = id
	if err := s.store.AssignRole(r.Context(), id, model.RoleUser); err == nil {
		user.Roles = []string{model.RoleUser}
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleListUsers godoc
//
//	@Summary		List users
//	@Description	Get a paginated list of users. Requires authentication.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Results per page"
//	@Param			offset	query		int	false	"Pagination offset"
//	@Success		200		{object}	map[string]interface{}	"Users list"
//	@Failure		401		{object}	map[string]string		"Authentication required"
//	@Router			/api/users [get]
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	limit, offset := s.pagination(r)
	users, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetUser godoc
//
//	@Summary		Get a user
//	@Description	Get a user profile by ID. Requires authentication.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"User ID"
//	@Success		200	{object}	model.User
//	@Failure		404	{object}	map[string]string	"User not found"
//	@Router			/api/users/{id} [get]
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, idStr string) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid user id"))
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchange a username/password pair for a bearer token.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		object{username=string,password=string}	true	"Credentials"
//	@Success		200			{object}	map[string]interface{}	"Token with expiration"
//	@Failure		401			{object}	map[string]string		"Invalid credentials"
//	@Router			/api/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password required"))
		return
	}
	token, user, err := s.auth.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.events.LogSecurityEvent("FAILED_LOGIN", "invalid credentials for "+req.Username, req.Username)
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
		"user":       user,
	})
}

// handleLogout godoc
//
//	@Summary		Log out
//	@Description	Invalidate the presented bearer token.
//	@Tags			Authentication
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]bool		"Token invalidated"
//	@Failure		401	{object}	map[string]string	"Authentication required"
//	@Router			/api/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleProtected godoc
//
//	@Summary		Check authentication
//	@Description	Returns the identity behind the presented token.
//	@Tags			Authentication
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]interface{}	"Authenticated identity"
//	@Failure		401	{object}	map[string]string		"Authentication required"
//	@Router			/api/protected [get]
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  fmt.Sprintf("Hello, %s! You have access.", verified.Username),
		"user_id":  verified.UserID,
		"username": verified.Username,
		"roles":    verified.Roles,
	})
}

// handleListPosts godoc
//
//	@Summary		List posts
//	@Description	Get a paginated list of posts, newest first.
//	@Tags			Posts
//	@Produce		json
//	@Param			limit	query		int	false	"Results per page"
//	@Param			offset	query		int	false	"Pagination offset"
//	@Param			author	query		int	false	"Filter by author ID"
//	@Success		200		{object}	map[string]interface{}	"Posts list"
//	@Router			/api/posts [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := s.pagination(r)
	opts := store.PostListOpts{Limit: limit, Offset: offset}
	if author := r.URL.Query().Get("author"); author != "" {
		id, err := strconv.ParseInt(author, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid author id"))
			return
		}
		opts.AuthorID = id
	}
	posts, err := s.store.ListPosts(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":  posts,
		"limit":  limit,
		"offset": offset,
	})
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Description	Create a new post. The type defaults to "text" when omitted.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			post	body		object{title=string,content=string,post_type=string,metadata=object}	true	"Post data"
//	@Success		201		{object}	model.Post
//	@Failure		400		{object}	map[string]string	"Validation error"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		Title    string         `json:"title"`
		Content  string         `json:"content"`
		PostType string         `json:"post_type"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.createPostFromInput(w, r, verified, req.PostType, req.Title, req.Content, req.Metadata)
}

// handleCreateTypedPost godoc
//
//	@Summary		Create a typed post
//	@Description	Create a post of an explicit type with type-specific metadata validation.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			post	body		object{post_type=string,title=string,content=string,metadata=object}	true	"Typed post data"
//	@Success		201		{object}	model.Post
//	@Failure		400		{object}	map[string]string	"Validation error or missing metadata"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Router			/api/posts/typed [post]
func (s *Server) handleCreateTypedPost(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		PostType string         `json:"post_type"`
		Title    string         `json:"title"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PostType == "" {
		writeError(w, http.StatusBadRequest, errors.New("post_type required"))
		return
	}
	s.createPostFromInput(w, r, verified, req.PostType, req.Title, req.Content, req.Metadata)
}

func (s *Server) createPostFromInput(w http.ResponseWriter, r *http.Request, verified auth.Verified, postType, title, content string, metadata map[string]any) {
	post, err := factory.New(postType, strings.TrimSpace(title), strings.TrimSpace(content), metadata, verified.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.store.CreatePost(r.Context(), &post)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	post.ID = id
	post.AuthorUsername = verified.Username
	writeJSON(w, http.StatusCreated, post)
}

// handlePostTypes godoc
//
//	@Summary		List post types
//	@Description	Get the supported post types and their metadata requirements.
//	@Tags			Posts
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}	"Supported types"
//	@Router			/api/posts/types [get]
func (s *Server) handlePostTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": factory.SupportedTypes})
}

// handleGetPost godoc
//
//	@Summary		Get a post
//	@Description	Get a single post by ID.
//	@Tags			Posts
//	@Produce		json
//	@Param			id	path		int	true	"Post ID"
//	@Success		200	{object}	model.Post
//	@Failure		404	{object}	map[string]string	"Post not found"
//	@Router			/api/posts/{id} [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleUpdatePost godoc
//
//	@Summary		Update a post
//	@Description	Update a post's title and content. Allowed for the author, moderators, and admins.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int								true	"Post ID"
//	@Param			post	body		object{title=string,content=string}	true	"Updated fields"
//	@Success		200		{object}	model.Post
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		403		{object}	map[string]string	"Not your post"
//	@Failure		404		{object}	map[string]string	"Post not found"
//	@Router			/api/posts/{id} [put]
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if post.AuthorID != verified.UserID && !verified.HasRole(model.RoleModerator, model.RoleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("you can only edit your own posts"))
		return
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = post.Title
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		content = post.Content
	}
	if err := s.store.UpdatePost(r.Context(), id, title, content); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	post.Title = title
	post.Content = content
	writeJSON(w, http.StatusOK, post)
}

// handleDeletePost godoc
//
//	@Summary		Delete a post
//	@Description	Delete a post and its comments. Allowed for the author, moderators, and admins.
//	@Tags			Posts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Post ID"
//	@Success		200	{object}	map[string]string	"Success message"
//	@Failure		401	{object}	map[string]string	"Authentication required"
//	@Failure		403	{object}	map[string]string	"Not your post"
//	@Failure		404	{object}	map[string]string	"Post not found"
//	@Router			/api/posts/{id} [delete]
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if post.AuthorID != verified.UserID && !verified.HasRole(model.RoleModerator, model.RoleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("you can only delete your own posts"))
		return
	}
	if err := s.store.DeletePost(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted"})
}

// handlePostComments godoc
//
//	@Summary		Get post comments
//	@Description	Get the comments on a post, newest first.
//	@Tags			Comments
//	@Produce		json
//	@Param			id		path		int	true	"Post ID"
//	@Param			limit	query		int	false	"Results per page"
//	@Param			offset	query		int	false	"Pagination offset"
//	@Success		200		{object}	map[string]interface{}	"Comments list"
//	@Failure		404		{object}	map[string]string		"Post not found"
//	@Router			/api/posts/{id}/comments [get]
func (s *Server) handlePostComments(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return
	}
	if _, err := s.store.GetPost(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	limit, offset := s.pagination(r)
	comments, err := s.store.ListComments(r.Context(), store.CommentListOpts{Limit: limit, Offset: offset, PostID: id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": comments,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleListComments godoc
//
//	@Summary		List comments
//	@Description	Get a paginated list of comments, optionally filtered by post.
//	@Tags			Comments
//	@Produce		json
//	@Param			post_id	query		int	false	"Filter by post ID"
//	@Param			limit	query		int	false	"Results per page"
//	@Param			offset	query		int	false	"Pagination offset"
//	@Success		200		{object}	map[string]interface{}	"Comments list"
//	@Router			/api/comments [get]
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	limit, offset := s.pagination(r)
	opts := store.CommentListOpts{Limit: limit, Offset: offset}
	if postID := r.URL.Query().Get("post_id"); postID != "" {
		id, err := strconv.ParseInt(postID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
			return
		}
		opts.PostID = id
	}
	comments, err := s.store.ListComments(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": comments,
		"limit":    limit,
		"offset":   offset,
	})
}

// handleCreateComment godoc
//
//	@Summary		Post a comment
//	@Description	Add a comment to a post. Requires authentication.
//	@Tags			Comments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			comment	body		object{post_id=int,text=string}	true	"Comment data"
//	@Success		201		{object}	model.Comment
//	@Failure		400		{object}	map[string]string	"Validation error"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		404		{object}	map[string]string	"Post not found"
//	@Router			/api/comments [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	var req struct {
		PostID int64  `json:"post_id"`
		Text   string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.PostID == 0 || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("post_id and text required"))
		return
	}
	if _, err := s.store.GetPost(r.Context(), req.PostID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	comment := model.Comment{
		PostID:    req.PostID,
		Text:      strings.TrimSpace(req.Text),
		AuthorID:  verified.UserID,
		CreatedAt: time.Now(),
	}
	id, err := s.store.CreateComment(r.Context(), &comment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	comment.ID = id
	comment.AuthorUsername = verified.Username
	_ = s.store.IncrementPostCommentCount(r.Context(), req.PostID)

	writeJSON(w, http.StatusCreated, comment)
}

// handleGetComment godoc
//
//	@Summary		Get a comment
//	@Description	Get a single comment by ID, with a preview of its post.
//	@Tags			Comments
//	@Produce		json
//	@Param			id	path		int	true	"Comment ID"
//	@Success		200	{object}	model.Comment
//	@Failure		404	{object}	map[string]string	"Comment not found"
//	@Router			/api/comments/{id} [get]
func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid comment id"))
		return
	}
	comment, err := s.store.GetComment(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// handleUpdateComment godoc
//
//	@Summary		Update a comment
//	@Description	Update a comment's text. Allowed for the author, moderators, and admins.
//	@Tags			Comments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int					true	"Comment ID"
//	@Param			comment	body		object{text=string}	true	"Updated text"
//	@Success		200		{object}	model.Comment
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		403		{object}	map[string]string	"Not your comment"
//	@Failure		404		{object}	map[string]string	"Comment not found"
//	@Router			/api/comments/{id} [put]
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid comment id"))
		return
	}
	comment, err := s.store.GetComment(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if comment.AuthorID != verified.UserID && !verified.HasRole(model.RoleModerator, model.RoleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("you can only edit your own comments"))
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text required"))
		return
	}
	if err := s.store.UpdateComment(r.Context(), id, text); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	comment.Text = text
	writeJSON(w, http.StatusOK, comment)
}

// handleDeleteComment godoc
//
//	@Summary		Delete a comment
//	@Description	Delete a comment. Allowed for the author, moderators, and admins.
//	@Tags			Comments
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Comment ID"
//	@Success		200	{object}	map[string]string	"Success message"
//	@Failure		401	{object}	map[string]string	"Authentication required"
//	@Failure		403	{object}	map[string]string	"Not your comment"
//	@Failure		404	{object}	map[string]string	"Comment not found"
//	@Router			/api/comments/{id} [delete]
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid comment id"))
		return
	}
	comment, err := s.store.GetComment(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if comment.AuthorID != verified.UserID && !verified.HasRole(model.RoleModerator, model.RoleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("you can only delete your own comments"))
		return
	}
	if err := s.store.DeleteComment(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.store.DecrementPostCommentCount(r.Context(), comment.PostID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "comment deleted"})
}

// handleAdminUsers godoc
//
//	@Summary		List users with roles (moderation)
//	@Description	Get all users with their role assignments. Requires the moderator or admin role.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Results per page"
//	@Param			offset	query		int	false	"Pagination offset"
//	@Success		200		{object}	map[string]interface{}	"Users list"
//	@Failure		401		{object}	map[string]string		"Authentication required"
//	@Failure		403		{object}	map[string]string		"Insufficient role"
//	@Router			/api/admin/users [get]
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, model.RoleModerator, model.RoleAdmin); !ok {
		return
	}
	limit, offset := s.pagination(r)
	users, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetConfig godoc
//
//	@Summary		Get runtime settings
//	@Description	Get the current runtime settings. Requires authentication.
//	@Tags			Config
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]interface{}	"Settings with descriptions"
//	@Failure		401	{object}	map[string]string		"Authentication required"
//	@Router			/api/config [get]
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":     s.settings.All(),
		"descriptions": settings.Descriptions(),
	})
}

// handleSetConfig godoc
//
//	@Summary		Update runtime settings
//	@Description	Update one or more existing settings. Unknown names are rejected. Requires the admin role.
//	@Tags			Config
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			settings	body		map[string]interface{}	true	"Name/value pairs"
//	@Success		200			{object}	map[string]interface{}	"Updated settings"
//	@Failure		400			{object}	map[string]string		"Unknown setting"
//	@Failure		401			{object}	map[string]string		"Authentication required"
//	@Failure		403			{object}	map[string]string		"Admin role required"
//	@Router			/api/config [post]
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireRole(w, r, model.RoleAdmin)
	if !ok {
		return
	}
	var req map[string]any
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no settings given"))
		return
	}
	for name := range req {
		if _, ok := s.settings.Get(name); !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown setting %q", name))
			return
		}
	}
	for name, value := range req {
		s.settings.Set(name, value)
	}
	s.events.LogSecurityEvent("CONFIG_CHANGE", fmt.Sprintf("%d setting(s) updated", len(req)), verified.Username)
	writeJSON(w, http.StatusOK, map[string]any{"settings": s.settings.All()})
}

// handleResetConfig godoc
//
//	@Summary		Reset runtime settings
//	@Description	Restore all settings to their defaults. Requires the admin role.
//	@Tags			Config
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]interface{}	"Default settings"
//	@Failure		401	{object}	map[string]string		"Authentication required"
//	@Failure		403	{object}	map[string]string		"Admin role required"
//	@Router			/api/config [delete]
func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireRole(w, r, model.RoleAdmin)
	if !ok {
		return
	}
	s.settings.Reset()
	s.events.LogSecurityEvent("CONFIG_RESET", "settings restored to defaults", verified.Username)
	writeJSON(w, http.StatusOK, map[string]any{"settings": s.settings.All()})
}

// handleGetStats godoc
//
//	@Summary		Get site statistics
//	@Description	Get counts of users, posts, and comments
//	@Tags			Stats
//	@Produce		json
//	@Success		200	{object}	model.SiteStats
//	@Router			/api/stats [get]
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSiteStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    s.cfg.Version,
		"commit":     s.cfg.Commit,
		"build_time": s.cfg.BuildTime,
	})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte(doc))
}

// pagination reads limit/offset from the query, defaulting the page size
// from the runtime settings.
func (s *Server) pagination(r *http.Request) (limit, offset int) {
	limit = parseIntDefault(r.URL.Query().Get("limit"), s.settings.Int(settings.KeyDefaultPageSize))
	if limit <= 0 {
		limit = s.settings.Int(settings.KeyDefaultPageSize)
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = parseIntDefault(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Verified, bool) {
	if v := identity(r); v != nil {
		return *v, true
	}
	bearer := bearerToken(r)
	if bearer == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return auth.Verified{}, false
	}
	// Authentication already failed in ServeHTTP; repeat it here only to
	// surface the precise reason.
	_, err := s.auth.Authenticate(r.Context(), bearer)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		err = errors.New("invalid token")
	}
	writeError(w, http.StatusUnauthorized, err)
	return auth.Verified{}, false
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (auth.Verified, bool) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return auth.Verified{}, false
	}
	if !verified.HasRole(roles...) {
		writeError(w, http.StatusForbidden, errors.New("insufficient role"))
		return auth.Verified{}, false
	}
	return verified, true
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": int(retry.Seconds()),
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
