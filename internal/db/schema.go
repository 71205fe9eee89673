package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Los tokens vencidos no se borran al resolver: quedan como basura lógica
// hasta que el sweeper los elimina.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS leech_users (
		user_id            BIGINT PRIMARY KEY,
		free_attempts_used INTEGER NOT NULL DEFAULT 0 CHECK (free_attempts_used >= 0),
		is_verified        BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at        TIMESTAMPTZ,
		total_attempts     BIGINT NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS verification_tokens (
		token_digest TEXT PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES leech_users (user_id),
		issued_at    TIMESTAMPTZ NOT NULL,
		consumed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS verification_tokens_user_idx
		ON verification_tokens (user_id) WHERE consumed_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS verification_tokens_issued_idx
		ON verification_tokens (issued_at)`,
}

// EnsureSchema crea las tablas e índices si no existen.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
