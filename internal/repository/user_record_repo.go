package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leech-bot/internal/domain"
)

// UserRecordRepository define el contrato de persistencia para los contadores por usuario.
type UserRecordRepository interface {
	// Get devuelve pgx.ErrNoRows si el usuario nunca interactuó con el bot.
	Get(ctx context.Context, userID int64) (domain.UserRecord, error)
	GetOrCreate(ctx context.Context, userID int64) (domain.UserRecord, error)
	// ConsumeAttempt incrementa los contadores solo si el usuario está verificado
	// o todavía tiene intentos gratis. Devuelve false sin mutar cuando no hay cupo.
	ConsumeAttempt(ctx context.Context, userID int64, freeLimit int) (domain.UserRecord, bool, error)
	Aggregate(ctx context.Context) (domain.Stats, error)
}

// PgUserRecordRepository implementa UserRecordRepository usando pgxpool.
type PgUserRecordRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRecordRepository(pool *pgxpool.Pool) *PgUserRecordRepository {
	return &PgUserRecordRepository{pool: pool}
}

const userRecordColumns = `user_id, free_attempts_used, is_verified, verified_at, total_attempts, created_at, updated_at`

func (r *PgUserRecordRepository) Get(ctx context.Context, userID int64) (domain.UserRecord, error) {
	return r.getByID(ctx, userID)
}

func (r *PgUserRecordRepository) GetOrCreate(ctx context.Context, userID int64) (domain.UserRecord, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return domain.UserRecord{}, err
	}
	return r.getByID(ctx, userID)
}

func (r *PgUserRecordRepository) ConsumeAttempt(ctx context.Context, userID int64, freeLimit int) (domain.UserRecord, bool, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return domain.UserRecord{}, false, err
	}

	// El lock de fila del UPDATE serializa llamadas concurrentes del mismo usuario
	// y la condición se reevalúa sobre la versión ya comprometida.
	const query = `
		UPDATE leech_users
		SET total_attempts = total_attempts + 1,
		    free_attempts_used = CASE WHEN is_verified THEN free_attempts_used ELSE free_attempts_used + 1 END,
		    updated_at = now()
		WHERE user_id = $1 AND (is_verified OR free_attempts_used < $2)
		RETURNING ` + userRecordColumns
	rec, err := scanUserRecord(r.pool.QueryRow(ctx, query, userID, freeLimit))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := r.getByID(ctx, userID)
		return current, false, err
	}
	if err != nil {
		return domain.UserRecord{}, false, err
	}
	return rec, true, nil
}

func (r *PgUserRecordRepository) Aggregate(ctx context.Context) (domain.Stats, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_verified),
		       COALESCE(SUM(total_attempts), 0)::BIGINT
		FROM leech_users
	`
	var s domain.Stats
	err := r.pool.QueryRow(ctx, query).Scan(&s.TotalUsers, &s.VerifiedUsers, &s.TotalAttempts)
	return s, err
}

func (r *PgUserRecordRepository) ensure(ctx context.Context, userID int64) error {
	const query = `
		INSERT INTO leech_users (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func (r *PgUserRecordRepository) getByID(ctx context.Context, userID int64) (domain.UserRecord, error) {
	query := `SELECT ` + userRecordColumns + ` FROM leech_users WHERE user_id = $1`
	return scanUserRecord(r.pool.QueryRow(ctx, query, userID))
}

func scanUserRecord(row pgx.Row) (domain.UserRecord, error) {
	var u domain.UserRecord
	err := row.Scan(
		&u.UserID,
		&u.FreeAttemptsUsed,
		&u.IsVerified,
		&u.VerifiedAt,
		&u.TotalAttempts,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.UserRecord{}, err
	}
	return u, nil
}
