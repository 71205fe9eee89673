package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leech-bot/internal/domain"
	"leech-bot/internal/repository"
)

// VerificationResolver valida tokens entrantes y levanta el límite del usuario.
type VerificationResolver struct {
	logger  *zap.Logger
	tokens  repository.TokenRepository
	timeout time.Duration
	now     func() time.Time
}

func NewVerificationResolver(logger *zap.Logger, tokens repository.TokenRepository, timeout time.Duration) *VerificationResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationResolver{
		logger:  logger,
		tokens:  tokens,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve consume el token. Solo el caso exitoso muta estado: token consumido
// y usuario verificado se escriben en la misma transacción.
func (r *VerificationResolver) Resolve(ctx context.Context, rawToken string) (domain.VerificationToken, error) {
	if r.tokens == nil {
		return domain.VerificationToken{}, errors.New("verification resolver not configured")
	}
	raw := strings.ToLower(strings.TrimSpace(rawToken))
	if !isWellFormedToken(raw) {
		return domain.VerificationToken{}, ErrTokenNotFound
	}

	tok, outcome, err := r.tokens.Resolve(ctx, digestToken(raw), r.now(), r.timeout)
	if err != nil {
		return domain.VerificationToken{}, storageError("resolve verification token", err)
	}

	switch outcome {
	case domain.ResolveSuccess:
		r.logger.Info("user verified", zap.Int64("user_id", tok.UserID))
		return tok, nil
	case domain.ResolveExpired:
		return tok, ErrTokenExpired
	case domain.ResolveAlreadyConsumed:
		return tok, ErrTokenAlreadyConsumed
	case domain.ResolveNotFound:
		return domain.VerificationToken{}, ErrTokenNotFound
	default:
		return domain.VerificationToken{}, fmt.Errorf("unknown resolve outcome %q", outcome)
	}
}
