package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leech-bot/internal/domain"
)

// TokenRepository persiste tokens de verificación y aplica su ciclo de vida.
type TokenRepository interface {
	// Supersede invalida los tokens pendientes del usuario y guarda el nuevo.
	Supersede(ctx context.Context, token domain.VerificationToken) error
	// Resolve marca el token como consumido y verifica al usuario en una sola transacción.
	Resolve(ctx context.Context, digest string, now time.Time, timeout time.Duration) (domain.VerificationToken, domain.ResolveOutcome, error)
	PurgeStale(ctx context.Context, consumedBefore, issuedBefore time.Time) (int64, error)
}

type PgTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgTokenRepository(pool *pgxpool.Pool) *PgTokenRepository {
	return &PgTokenRepository{pool: pool}
}

func (r *PgTokenRepository) Supersede(ctx context.Context, token domain.VerificationToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO leech_users (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, token.UserID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM verification_tokens
		WHERE user_id = $1 AND consumed_at IS NULL
	`, token.UserID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO verification_tokens (token_digest, user_id, issued_at)
		VALUES ($1, $2, $3)
	`, token.Digest, token.UserID, token.IssuedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgTokenRepository) Resolve(ctx context.Context, digest string, now time.Time, timeout time.Duration) (domain.VerificationToken, domain.ResolveOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.VerificationToken{}, "", err
	}
	defer tx.Rollback(ctx)

	var tok domain.VerificationToken
	err = tx.QueryRow(ctx, `
		SELECT token_digest, user_id, issued_at, consumed_at
		FROM verification_tokens
		WHERE token_digest = $1
		FOR UPDATE
	`, digest).Scan(&tok.Digest, &tok.UserID, &tok.IssuedAt, &tok.ConsumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VerificationToken{}, domain.ResolveNotFound, nil
	}
	if err != nil {
		return domain.VerificationToken{}, "", err
	}

	if tok.Consumed() {
		return tok, domain.ResolveAlreadyConsumed, nil
	}
	if tok.Expired(now, timeout) {
		return tok, domain.ResolveExpired, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE verification_tokens SET consumed_at = $2 WHERE token_digest = $1
	`, digest, now); err != nil {
		return domain.VerificationToken{}, "", err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO leech_users (user_id, is_verified, verified_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET is_verified = TRUE, verified_at = EXCLUDED.verified_at, updated_at = now()
	`, tok.UserID, now); err != nil {
		return domain.VerificationToken{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.VerificationToken{}, "", err
	}

	tok.ConsumedAt = &now
	return tok, domain.ResolveSuccess, nil
}

func (r *PgTokenRepository) PurgeStale(ctx context.Context, consumedBefore, issuedBefore time.Time) (int64, error) {
	const query = `
		DELETE FROM verification_tokens
		WHERE (consumed_at IS NOT NULL AND consumed_at < $1)
		   OR issued_at < $2
	`
	tag, err := r.pool.Exec(ctx, query, consumedBefore, issuedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
