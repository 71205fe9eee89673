package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"leech-bot/internal/repository"
)

// TokenSweeper borra tokens consumidos o vencidos hace más de retention.
// La validez de un token nunca depende de que el sweeper haya corrido.
type TokenSweeper struct {
	logger    *zap.Logger
	tokens    repository.TokenRepository
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

func NewTokenSweeper(logger *zap.Logger, tokens repository.TokenRepository, timeout, retention time.Duration) *TokenSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention < 0 {
		retention = 0
	}
	return &TokenSweeper{
		logger:    logger,
		tokens:    tokens,
		timeout:   timeout,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep ejecuta una pasada de limpieza.
func (s *TokenSweeper) Sweep(ctx context.Context) (int64, error) {
	if s.tokens == nil {
		return 0, errors.New("token sweeper not configured")
	}
	now := s.now()
	consumedBefore := now.Add(-s.retention)
	issuedBefore := now.Add(-(s.timeout + s.retention))
	n, err := s.tokens.PurgeStale(ctx, consumedBefore, issuedBefore)
	if err != nil {
		return 0, storageError("purge stale tokens", err)
	}
	return n, nil
}

// Start agenda Sweep con una expresión cron. Un schedule vacío desactiva el job.
func (s *TokenSweeper) Start(schedule string) error {
	if schedule == "" {
		s.logger.Info("token sweeper disabled")
		return nil
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	if _, err := c.AddFunc(schedule, s.runJob); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("token sweeper scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop detiene el cron y devuelve un contexto que se cierra al terminar el job en curso.
func (s *TokenSweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

func (s *TokenSweeper) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("token sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("token sweep finished", zap.Int64("deleted", n))
}
