package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leech-bot/internal/domain"
)

// Forwarder espeja un artefacto al canal de respaldo con un único intento.
type Forwarder interface {
	Forward(ctx context.Context, ev domain.ForwardEvent) error
}

// OperatorReporter avisa a un operador cuando un reenvío falla.
type OperatorReporter interface {
	ReportForwardFailure(ctx context.Context, ev domain.ForwardEvent, cause error) error
}

// ForwardDispatcher ejecuta reenvíos fire-and-forget con timeout duro.
// Sus fallas nunca vuelven al flujo que decidió el intento.
type ForwardDispatcher struct {
	logger    *zap.Logger
	forwarder Forwarder
	reporter  OperatorReporter
	channelID int64
	enabled   bool
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewForwardDispatcher(logger *zap.Logger, forwarder Forwarder, reporter OperatorReporter, channelID int64, enabled bool, timeout time.Duration) *ForwardDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ForwardDispatcher{
		logger:    logger,
		forwarder: forwarder,
		reporter:  reporter,
		channelID: channelID,
		enabled:   enabled,
		timeout:   timeout,
	}
}

// Dispatch agenda el reenvío en segundo plano.
func (d *ForwardDispatcher) Dispatch(ev domain.ForwardEvent) {
	if d == nil || !d.enabled || d.forwarder == nil {
		return
	}
	ev = d.prepare(ev)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		_ = d.forward(ctx, ev)
	}()
}

// ForwardNow reenvía de forma síncrona; lo usa el comando de prueba del owner.
func (d *ForwardDispatcher) ForwardNow(ctx context.Context, ev domain.ForwardEvent) error {
	if d == nil || d.forwarder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.forward(ctx, d.prepare(ev))
}

// Wait bloquea hasta que terminan los reenvíos en curso.
func (d *ForwardDispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *ForwardDispatcher) prepare(ev domain.ForwardEvent) domain.ForwardEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.DestinationChannelID == 0 {
		ev.DestinationChannelID = d.channelID
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	return ev
}

func (d *ForwardDispatcher) forward(ctx context.Context, ev domain.ForwardEvent) error {
	err := d.forwarder.Forward(ctx, ev)
	if err == nil {
		d.logger.Info("artifact forwarded",
			zap.String("forward_id", ev.ID),
			zap.Int64("user_id", ev.UserID),
			zap.Int64("channel_id", ev.DestinationChannelID),
		)
		return nil
	}

	d.logger.Warn("forward failed",
		zap.String("forward_id", ev.ID),
		zap.Int64("user_id", ev.UserID),
		zap.Int64("channel_id", ev.DestinationChannelID),
		zap.Error(err),
	)
	if d.reporter != nil {
		// El contexto original puede estar vencido justamente por el timeout.
		reportCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if rerr := d.reporter.ReportForwardFailure(reportCtx, ev, err); rerr != nil {
			d.logger.Warn("operator report failed", zap.String("forward_id", ev.ID), zap.Error(rerr))
		}
	}
	return err
}
