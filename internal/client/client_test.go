package client

import (
	"testing"
	"time"
)

func TestClientNew(t *testing.T) {
	c := New("https://example.com")

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected base URL 'https://example.com', got '%s'", c.BaseURL)
	}

	if c.HTTPClient == nil {
		t.Error("expected non-nil HTTP client")
	}

	if c.IsAuthenticated() {
		t.Error("expected new client to not be authenticated")
	}
}

func TestIsAuthenticated(t *testing.T) {
	c := New("https://example.com")

	c.Token = "sometoken"
	c.TokenExp = time.Now().Add(time.Hour)
	if !c.IsAuthenticated() {
		t.Error("expected client with fresh token to be authenticated")
	}

	c.TokenExp = time.Now().Add(-time.Hour)
	if c.IsAuthenticated() {
		t.Error("expected client with expired token to not be authenticated")
	}
}

func TestRandomPasswordsDiffer(t *testing.T) {
	a, err := randomPassword()
	if err != nil {
		t.Fatalf("random password: %v", err)
	}
	b, err := randomPassword()
	if err != nil {
		t.Fatalf("random password: %v", err)
	}
	if a == b {
		t.Error("expected distinct random passwords")
	}
	if len(a) == 0 {
		t.Error("expected non-empty password")
	}
}
