package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"leech-bot/internal/domain"
	"leech-bot/internal/repository"
)

// StatsAggregator expone proyecciones de solo lectura sobre los usuarios.
// Los agregados pueden quedar levemente desfasados frente a escrituras concurrentes.
type StatsAggregator struct {
	users repository.UserRecordRepository
}

func NewStatsAggregator(users repository.UserRecordRepository) *StatsAggregator {
	return &StatsAggregator{users: users}
}

func (s *StatsAggregator) Snapshot(ctx context.Context) (domain.Stats, error) {
	if s.users == nil {
		return domain.Stats{}, errors.New("stats aggregator not configured")
	}
	stats, err := s.users.Aggregate(ctx)
	if err != nil {
		return domain.Stats{}, storageError("aggregate stats", err)
	}
	return stats, nil
}

// UserStats devuelve el registro del usuario sin crearlo; ErrUserNotFound si no existe.
func (s *StatsAggregator) UserStats(ctx context.Context, userID int64) (domain.UserRecord, error) {
	if s.users == nil {
		return domain.UserRecord{}, errors.New("stats aggregator not configured")
	}
	if userID == 0 {
		return domain.UserRecord{}, ErrInvalidUser
	}
	record, err := s.users.Get(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return domain.UserRecord{}, storageError("load user record", err)
	}
	return record, nil
}
