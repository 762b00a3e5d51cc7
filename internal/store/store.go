package store

import (
	"context"
	"errors"

	"github.com/connectly-api/connectly/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateRole     = errors.New("role already assigned")
)

type PostListOpts struct {
	Limit    int
	Offset   int
	AuthorID int64
}

type CommentListOpts struct {
	Limit  int
	Offset int
	PostID int64
}

type Store interface {
	UserStore
	PostStore
	CommentStore
	TokenStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.User, error)
	AssignRole(ctx context.Context, userID int64, role string) error
	GetUserRoles(ctx context.Context, userID int64) ([]string, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) error
	DeletePost(ctx context.Context, id int64) error
	IncrementPostCommentCount(ctx context.Context, postID int64) error
	DecrementPostCommentCount(ctx context.Context, postID int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListComments(ctx context.Context, opts CommentListOpts) ([]model.Comment, error)
	UpdateComment(ctx context.Context, id int64, text string) error
	DeleteComment(ctx context.Context, id int64) error
}

type TokenStore interface {
	CreateToken(ctx context.Context, token model.Token) error
	GetToken(ctx context.Context, token string) (model.Token, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokensForUser(ctx context.Context, userID int64) error
}
