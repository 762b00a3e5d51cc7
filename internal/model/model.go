package model

import "time"

// Role names provisioned by `connectly setup`.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasRole reports whether the user carries any of the given roles.
func (u User) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Post types supported by the typed post factory.
const (
	PostTypeText    = "text"
	PostTypeImage   = "image"
	PostTypeVideo   = "video"
	PostTypeArticle = "article"
	PostTypePoll    = "poll"
)

type Post struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title,omitempty"`
	Content        string         `json:"content"`
	PostType       string         `json:"post_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	AuthorID       int64          `json:"author_id"`
	AuthorUsername string         `json:"author_username"`
	CommentCount   int            `json:"comment_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

type Comment struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"post_id"`
	PostPreview    string    `json:"post_content_preview,omitempty"`
	Text           string    `json:"text"`
	AuthorID       int64     `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	CreatedAt      time.Time `json:"created_at"`
}

type Token struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

type SiteStats struct {
	Users    int64 `json:"users"`
	Posts    int64 `json:"posts"`
	Comments int64 `json:"comments"`
}
