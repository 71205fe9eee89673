package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"leech-bot/internal/domain"
	"leech-bot/internal/repository"
)

// LeechRequest es un intento de leech tal como llega desde la capa de chat.
type LeechRequest struct {
	UserID         int64
	SenderName     string
	SenderUsername string
	Artifact       domain.Artifact
}

// Decision es la respuesta del gate. Allowed=false equivale a cupo agotado y
// trae el link de verificación recién emitido.
type Decision struct {
	Allowed      bool
	Record       domain.UserRecord
	Verification *IssuedToken
}

// ForwardScheduler programa un reenvío best-effort sin bloquear al llamador.
type ForwardScheduler interface {
	Dispatch(ev domain.ForwardEvent)
}

// AttemptGate decide si un intento de leech se permite o requiere verificación.
type AttemptGate struct {
	logger    *zap.Logger
	users     repository.UserRecordRepository
	issuer    *TokenIssuer
	forwards  ForwardScheduler
	freeLimit int
	now       func() time.Time
}

func NewAttemptGate(logger *zap.Logger, users repository.UserRecordRepository, issuer *TokenIssuer, forwards ForwardScheduler, freeLimit int) *AttemptGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if freeLimit <= 0 {
		freeLimit = 1
	}
	return &AttemptGate{
		logger:    logger,
		users:     users,
		issuer:    issuer,
		forwards:  forwards,
		freeLimit: freeLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FreeLimit devuelve el número de intentos gratis configurado.
func (g *AttemptGate) FreeLimit() int {
	return g.freeLimit
}

// Register crea el registro del usuario en su primera interacción y lo devuelve.
func (g *AttemptGate) Register(ctx context.Context, userID int64) (domain.UserRecord, error) {
	if g.users == nil {
		return domain.UserRecord{}, errors.New("attempt gate not configured")
	}
	if userID == 0 {
		return domain.UserRecord{}, ErrInvalidUser
	}
	record, err := g.users.GetOrCreate(ctx, userID)
	if err != nil {
		return domain.UserRecord{}, storageError("register user", err)
	}
	return record, nil
}

// TryConsume aplica el conteo atómico. Si no hay cupo no muta contadores y
// emite un token nuevo.
func (g *AttemptGate) TryConsume(ctx context.Context, req LeechRequest) (Decision, error) {
	if g.users == nil {
		return Decision{}, errors.New("attempt gate not configured")
	}
	if req.UserID == 0 {
		return Decision{}, ErrInvalidUser
	}

	record, allowed, err := g.users.ConsumeAttempt(ctx, req.UserID, g.freeLimit)
	if err != nil {
		return Decision{}, storageError("consume attempt", err)
	}

	if allowed {
		g.scheduleForward(req, record)
		return Decision{Allowed: true, Record: record}, nil
	}

	if g.issuer == nil {
		return Decision{}, errors.New("token issuer not configured")
	}
	issued, err := g.issuer.Issue(ctx, req.UserID)
	if err != nil {
		return Decision{}, err
	}
	g.logger.Info("free leech limit reached, verification issued",
		zap.Int64("user_id", req.UserID),
		zap.Int("free_attempts_used", record.FreeAttemptsUsed),
		zap.Bool("shortened", issued.Shortened),
	)
	return Decision{Allowed: false, Record: record, Verification: &issued}, nil
}

func (g *AttemptGate) scheduleForward(req LeechRequest, record domain.UserRecord) {
	if g.forwards == nil {
		return
	}
	g.forwards.Dispatch(domain.ForwardEvent{
		Artifact:       req.Artifact,
		UserID:         req.UserID,
		SenderName:     req.SenderName,
		SenderUsername: req.SenderUsername,
		TotalAttempts:  record.TotalAttempts,
		Verified:       record.IsVerified,
		CreatedAt:      g.now(),
	})
}
