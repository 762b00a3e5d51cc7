package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/connectly-api/connectly/internal/model"
	"github.com/connectly-api/connectly/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for password hashing.
const BcryptCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
)

type Service struct {
	store    store.Store
	tokenTTL time.Duration
}

// Verified is the identity attached to an authenticated request.
type Verified struct {
	UserID   int64
	Username string
	Roles    []string
}

func (v Verified) HasRole(roles ...string) bool {
	return model.User{Roles: v.Roles}.HasRole(roles...)
}

func NewService(store store.Store, tokenTTL time.Duration) *Service {
	return &Service{store: store, tokenTTL: tokenTTL}
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies a username/password pair and issues a fresh token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (model.Token, model.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Token{}, model.User{}, ErrInvalidCredentials
		}
		return model.Token{}, model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.Token{}, model.User{}, ErrInvalidCredentials
	}
	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	return token, user, nil
}

// IssueToken creates and stores an opaque bearer token for the user.
func (s *Service) IssueToken(ctx context.Context, userID int64) (model.Token, error) {
	value, err := randomToken(32)
	if err != nil {
		return model.Token{}, err
	}
	token := model.Token{
		Token:     value,
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return model.Token{}, err
	}
	return token, nil
}

// Authenticate resolves a bearer token to the owning user.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Verified, error) {
	token, err := s.store.GetToken(ctx, bearer)
	if err != nil {
		return Verified{}, err
	}
	if time.Now().After(token.ExpiresAt) {
		return Verified{}, ErrTokenExpired
	}
	user, err := s.store.GetUser(ctx, token.UserID)
	if err != nil {
		return Verified{}, err
	}
	return Verified{UserID: user.ID, Username: user.Username, Roles: user.Roles}, nil
}

// Logout deletes the presented token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, bearer string) error {
	err := s.store.DeleteToken(ctx, bearer)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
