package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPRefresherExchanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Fatalf("unexpected grant type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "rt-old" {
			t.Fatalf("unexpected refresh token %q", r.PostForm.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refresh_token":"rt-new","expires_in":3600}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "client", "secret")
	tokens, err := r.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.RefreshToken != "rt-new" {
		t.Fatalf("expected rotated token, got %q", tokens.RefreshToken)
	}
	if tokens.ExpiresAt.IsZero() {
		t.Fatal("expected expiry")
	}
}

func TestHTTPRefresherKeepsTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expires_in":600}`))
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "client", "secret")
	tokens, err := r.Refresh(context.Background(), "rt-keep")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.RefreshToken != "rt-keep" {
		t.Fatalf("expected original token kept, got %q", tokens.RefreshToken)
	}
}

func TestHTTPRefresherProviderRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, "client", "secret")
	if _, err := r.Refresh(context.Background(), "rt"); err == nil {
		t.Fatal("expected error for provider refusal")
	}
}
