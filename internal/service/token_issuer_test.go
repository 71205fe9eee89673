package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenIssuerIssue(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("deep link and digest storage", func(t *testing.T) {
		store := newMockStore()
		issuer := NewTokenIssuer(nil, store, nil, nil, CallbackLinks{BotUsername: "@LeechBot"}, time.Hour)
		issuer.now = fixedClock(t0)

		issued, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if !isWellFormedToken(issued.Token) {
			t.Fatalf("malformed token %q", issued.Token)
		}
		want := "https://t.me/LeechBot?start=verify_" + issued.Token
		if issued.CallbackURL != want || issued.VerificationURL != want {
			t.Fatalf("unexpected urls: %+v", issued)
		}
		if !issued.ExpiresAt.Equal(t0.Add(time.Hour)) || issuer.Timeout() != time.Hour {
			t.Fatalf("unexpected expiry %v", issued.ExpiresAt)
		}
		if _, ok := store.tokens[issued.Token]; ok {
			t.Fatalf("raw token must not be persisted")
		}
		if _, ok := store.tokens[digestToken(issued.Token)]; !ok {
			t.Fatalf("digest not persisted")
		}
	})

	t.Run("supersedes pending token", func(t *testing.T) {
		store := newMockStore()
		issuer := NewTokenIssuer(nil, store, nil, nil, CallbackLinks{BotUsername: "bot"}, time.Hour)
		resolver := NewVerificationResolver(nil, store, time.Hour)

		first, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("first issue: %v", err)
		}
		second, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("second issue: %v", err)
		}
		if first.Token == second.Token {
			t.Fatalf("tokens must be unique")
		}
		if store.tokenCount() != 1 {
			t.Fatalf("expected a single pending token, got %d", store.tokenCount())
		}
		if _, err := resolver.Resolve(context.Background(), first.Token); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("superseded token must not resolve, got %v", err)
		}
		if _, err := resolver.Resolve(context.Background(), second.Token); err != nil {
			t.Fatalf("latest token must resolve: %v", err)
		}
	})

	t.Run("shortened link", func(t *testing.T) {
		store := newMockStore()
		short := &mockShortener{short: "https://sho.rt/x1"}
		issuer := NewTokenIssuer(nil, store, short, nil, CallbackLinks{BotUsername: "bot"}, time.Hour)

		issued, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if !issued.Shortened || issued.VerificationURL != "https://sho.rt/x1" {
			t.Fatalf("expected shortened url, got %+v", issued)
		}
		if short.lastURL != issued.CallbackURL {
			t.Fatalf("shortener got %q, want callback %q", short.lastURL, issued.CallbackURL)
		}
	})

	t.Run("shortener failure falls back to callback", func(t *testing.T) {
		store := newMockStore()
		short := &mockShortener{err: errors.New("503")}
		issuer := NewTokenIssuer(nil, store, short, nil, CallbackLinks{BotUsername: "bot"}, time.Hour)

		issued, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("shortener failure must not fail issuance: %v", err)
		}
		if issued.Shortened || issued.VerificationURL != issued.CallbackURL {
			t.Fatalf("expected direct link fallback, got %+v", issued)
		}
	})

	t.Run("public base url", func(t *testing.T) {
		store := newMockStore()
		links := CallbackLinks{BotUsername: "bot", PublicBaseURL: "https://leech.example/"}
		issuer := NewTokenIssuer(nil, store, nil, nil, links, time.Hour)

		issued, err := issuer.Issue(context.Background(), 42)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if issued.CallbackURL != "https://leech.example/verify/"+issued.Token {
			t.Fatalf("unexpected callback %q", issued.CallbackURL)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		store := newMockStore()
		store.err = errStoreDown
		issuer := NewTokenIssuer(nil, store, nil, nil, CallbackLinks{BotUsername: "bot"}, time.Hour)
		if _, err := issuer.Issue(context.Background(), 42); !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
	})

	t.Run("limiter error lets issuance through", func(t *testing.T) {
		store := newMockStore()
		issuer := NewTokenIssuer(nil, store, nil, brokenLimiter{}, CallbackLinks{BotUsername: "bot"}, time.Hour)
		if _, err := issuer.Issue(context.Background(), 42); err != nil {
			t.Fatalf("expected issuance despite limiter error, got %v", err)
		}
		if store.tokenCount() != 1 {
			t.Fatalf("expected one stored token, got %d", store.tokenCount())
		}
	})

	t.Run("invalid user", func(t *testing.T) {
		issuer := NewTokenIssuer(nil, newMockStore(), nil, nil, CallbackLinks{}, time.Hour)
		if _, err := issuer.Issue(context.Background(), 0); !errors.Is(err, ErrInvalidUser) {
			t.Fatalf("expected ErrInvalidUser, got %v", err)
		}
	})
}

func TestTokenFromStartPayload(t *testing.T) {
	cases := []struct {
		payload string
		token   string
		ok      bool
	}{
		{"verify_abc123", "abc123", true},
		{"  verify_abc123 ", "abc123", true},
		{"verify_", "", false},
		{"ref_abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := TokenFromStartPayload(tc.payload)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("payload %q: got (%q, %v), want (%q, %v)", tc.payload, token, ok, tc.token, tc.ok)
		}
	}
}

func TestNewVerifyTokenFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := newVerifyToken()
		if err != nil {
			t.Fatalf("new token: %v", err)
		}
		if !isWellFormedToken(tok) {
			t.Fatalf("malformed token %q", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
	if isWellFormedToken(strings.ToUpper("0123456789abcdef0123456789abcdef")) {
		t.Fatalf("uppercase tokens must be normalized before validation")
	}
}
