package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/store/sqlite"
)

func newTestUser(t *testing.T, st *sqlite.Store, username, password string) int64 {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	id, err := st.CreateUser(context.Background(), &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestLoginAndAuthenticate(t *testing.T) {
	st, err := sqlite.Open("file:auth_login?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	userID := newTestUser(t, st, "alice", "correct horse")
	if err := st.AssignRole(context.Background(), userID, model.RoleUser); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	svc := NewService(st, time.Hour)

	token, user, err := svc.Login(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != userID {
		t.Fatalf("expected user %d, got %d", userID, user.ID)
	}
	if token.Token == "" {
		t.Fatalf("expected token")
	}

	verified, err := svc.Authenticate(context.Background(), token.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if verified.Username != "alice" {
		t.Fatalf("expected alice, got %s", verified.Username)
	}
	if !verified.HasRole(model.RoleUser) {
		t.Fatalf("expected user role, got %v", verified.Roles)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	st, err := sqlite.Open("file:auth_badpass?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	newTestUser(t, st, "bob", "hunter2")
	svc := NewService(st, time.Hour)

	if _, _, err := svc.Login(context.Background(), "bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestTokenExpiration(t *testing.T) {
	st, err := sqlite.Open("file:auth_expire?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	newTestUser(t, st, "carol", "pw123456")
	svc := NewService(st, -1*time.Second)

	token, _, err := svc.Login(context.Background(), "carol", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), token.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	st, err := sqlite.Open("file:auth_logout?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	newTestUser(t, st, "dave", "pw123456")
	svc := NewService(st, time.Hour)

	token, _, err := svc.Login(context.Background(), "dave", "pw123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(context.Background(), token.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), token.Token); err == nil {
		t.Fatalf("expected authentication failure after logout")
	}
	// Logging out twice is fine.
	if err := svc.Logout(context.Background(), token.Token); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}
