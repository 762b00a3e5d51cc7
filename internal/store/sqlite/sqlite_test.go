package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func createUser(t *testing.T, st *Store, username string) int64 {
	t.Helper()
	id, err := st.CreateUser(context.Background(), &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return id
}

func TestPostLifecycle(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	authorID := createUser(t, st, "author")

	post := model.Post{
		Title:     "First Post",
		Content:   "Hello Connectly",
		PostType:  model.PostTypeText,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	id, err := st.CreatePost(context.Background(), &post)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	got, err := st.GetPost(context.Background(), id)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Content != post.Content {
		t.Fatalf("unexpected content: %s", got.Content)
	}
	if got.AuthorUsername != "author" {
		t.Fatalf("expected joined username, got %q", got.AuthorUsername)
	}

	if err := st.UpdatePost(context.Background(), id, "Edited", "Updated content"); err != nil {
		t.Fatalf("update post: %v", err)
	}
	got, _ = st.GetPost(context.Background(), id)
	if got.Title != "Edited" || got.Content != "Updated content" {
		t.Fatalf("update not applied: %+v", got)
	}

	comment := model.Comment{PostID: id, Text: "Nice", AuthorID: authorID, CreatedAt: time.Now()}
	if _, err := st.CreateComment(context.Background(), &comment); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if err := st.IncrementPostCommentCount(context.Background(), id); err != nil {
		t.Fatalf("increment comment count: %v", err)
	}
	got, _ = st.GetPost(context.Background(), id)
	if got.CommentCount != 1 {
		t.Fatalf("expected comment_count 1, got %d", got.CommentCount)
	}

	if err := st.DecrementPostCommentCount(context.Background(), id); err != nil {
		t.Fatalf("decrement comment count: %v", err)
	}
	got, _ = st.GetPost(context.Background(), id)
	if got.CommentCount != 0 {
		t.Fatalf("expected comment_count 0 after decrement, got %d", got.CommentCount)
	}
	// The count floors at zero.
	if err := st.DecrementPostCommentCount(context.Background(), id); err != nil {
		t.Fatalf("decrement at zero: %v", err)
	}
	got, _ = st.GetPost(context.Background(), id)
	if got.CommentCount != 0 {
		t.Fatalf("expected comment_count to stay at 0, got %d", got.CommentCount)
	}

	// Deleting the post removes its comments too.
	if err := st.DeletePost(context.Background(), id); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := st.GetPost(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	comments, err := st.ListComments(context.Background(), store.CommentListOpts{PostID: id})
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected comments deleted with post, got %d", len(comments))
	}
}

func TestPostMetadataRoundTrip(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	authorID := createUser(t, st, "meta")
	post := model.Post{
		Title:     "Pic",
		Content:   "an image",
		PostType:  model.PostTypeImage,
		Metadata:  map[string]any{"file_size": float64(2048), "file_type": "png"},
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	id, err := st.CreatePost(context.Background(), &post)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	got, err := st.GetPost(context.Background(), id)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Metadata["file_type"] != "png" {
		t.Fatalf("expected metadata round trip, got %v", got.Metadata)
	}
}

func TestListPostsPagination(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	authorID := createUser(t, st, "paginator")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		post := model.Post{
			Content:   fmt.Sprintf("post %d", i),
			PostType:  model.PostTypeText,
			AuthorID:  authorID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := st.CreatePost(context.Background(), &post); err != nil {
			t.Fatalf("create post %d: %v", i, err)
		}
	}

	page, err := st.ListPosts(context.Background(), store.PostListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(page))
	}
	if page[0].Content != "post 4" {
		t.Fatalf("expected newest first, got %q", page[0].Content)
	}

	next, err := st.ListPosts(context.Background(), store.PostListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list posts offset: %v", err)
	}
	if len(next) != 2 || next[0].Content != "post 2" {
		t.Fatalf("unexpected second page: %+v", next)
	}
}

func TestCommentPreview(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	authorID := createUser(t, st, "previewer")
	post := model.Post{
		Content:   "This is a fairly long post body that should be truncated in comment previews eventually",
		PostType:  model.PostTypeText,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
	}
	postID, err := st.CreatePost(context.Background(), &post)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	comment := model.Comment{PostID: postID, Text: "agreed", AuthorID: authorID, CreatedAt: time.Now()}
	id, err := st.CreateComment(context.Background(), &comment)
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	got, err := st.GetComment(context.Background(), id)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if len(got.PostPreview) != 50 {
		t.Fatalf("expected 50-char preview, got %d: %q", len(got.PostPreview), got.PostPreview)
	}
	if got.AuthorUsername != "previewer" {
		t.Fatalf("expected joined username, got %q", got.AuthorUsername)
	}
}

func TestDuplicateUsername(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	createUser(t, st, "taken")
	_, err := st.CreateUser(context.Background(), &model.User{
		Username:     "taken",
		Email:        "other@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	if !errors.Is(err, store.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRoles(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	id := createUser(t, st, "roley")
	if err := st.AssignRole(context.Background(), id, model.RoleModerator); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if err := st.AssignRole(context.Background(), id, model.RoleModerator); !errors.Is(err, store.ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
	user, err := st.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.HasRole(model.RoleModerator) {
		t.Fatalf("expected moderator role, got %v", user.Roles)
	}

	users, err := st.ListUsers(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || !users[0].HasRole(model.RoleModerator) {
		t.Fatalf("expected listed user with role, got %+v", users)
	}
}

func TestSiteStats(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	id := createUser(t, st, "statser")
	post := model.Post{Content: "c", PostType: model.PostTypeText, AuthorID: id, CreatedAt: time.Now()}
	postID, _ := st.CreatePost(context.Background(), &post)
	comment := model.Comment{PostID: postID, Text: "t", AuthorID: id, CreatedAt: time.Now()}
	_, _ = st.CreateComment(context.Background(), &comment)

	stats, err := st.GetSiteStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 1 || stats.Posts != 1 || stats.Comments != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
