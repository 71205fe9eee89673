package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"leech-bot/internal/domain"
	"leech-bot/internal/repository"
)

// Shortener acorta URLs mediante un servicio externo de shortlinks.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// IssuedToken es lo que recibe el usuario cuando se le pide verificar.
type IssuedToken struct {
	Token           string    `json:"-"`
	UserID          int64     `json:"user_id"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	CallbackURL     string    `json:"callback_url"`
	VerificationURL string    `json:"verification_url"`
	Shortened       bool      `json:"shortened"`
}

// TokenIssuer emite tokens de verificación de un solo uso.
type TokenIssuer struct {
	logger    *zap.Logger
	tokens    repository.TokenRepository
	shortener Shortener
	limiter   RateLimiter
	links     CallbackLinks
	timeout   time.Duration
	now       func() time.Time
}

func NewTokenIssuer(logger *zap.Logger, tokens repository.TokenRepository, shortener Shortener, limiter RateLimiter, links CallbackLinks, timeout time.Duration) *TokenIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenIssuer{
		logger:    logger,
		tokens:    tokens,
		shortener: shortener,
		limiter:   limiter,
		links:     links,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue genera un token nuevo y reemplaza cualquier token pendiente del usuario.
func (s *TokenIssuer) Issue(ctx context.Context, userID int64) (IssuedToken, error) {
	if s.tokens == nil {
		return IssuedToken{}, errors.New("token issuer not configured")
	}
	if userID == 0 {
		return IssuedToken{}, ErrInvalidUser
	}
	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			s.logger.Warn("issue rate limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
		} else if !allowed {
			return IssuedToken{}, &RateLimitError{RetryAfter: retryAfter}
		}
	}

	raw, err := newVerifyToken()
	if err != nil {
		return IssuedToken{}, err
	}
	issuedAt := s.now()
	record := domain.VerificationToken{
		Digest:   digestToken(raw),
		UserID:   userID,
		IssuedAt: issuedAt,
	}
	if err := s.tokens.Supersede(ctx, record); err != nil {
		return IssuedToken{}, storageError("store verification token", err)
	}

	issued := IssuedToken{
		Token:           raw,
		UserID:          userID,
		IssuedAt:        issuedAt,
		ExpiresAt:       record.ExpiresAt(s.timeout),
		CallbackURL:     s.links.URL(raw),
		VerificationURL: s.links.URL(raw),
	}
	if s.shortener == nil {
		return issued, nil
	}

	short, err := s.shortener.Shorten(ctx, issued.CallbackURL)
	if err != nil {
		s.logger.Warn("shortlink failed, using direct link", zap.Int64("user_id", userID), zap.Error(err))
		return issued, nil
	}
	issued.VerificationURL = short
	issued.Shortened = true
	return issued, nil
}

// Timeout devuelve la vigencia de los tokens; el resolver y el sweeper usan la misma.
func (s *TokenIssuer) Timeout() time.Duration {
	return s.timeout
}
