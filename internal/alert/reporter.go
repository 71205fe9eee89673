package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leech-bot/internal/domain"
)

// Reporter avisa al operador cuando un reenvío al canal de respaldo falla.
type Reporter interface {
	ReportForwardFailure(ctx context.Context, ev domain.ForwardEvent, cause error) error
}

type disabledReporter struct {
	reason string
}

func NewDisabledReporter(reason string) Reporter {
	return &disabledReporter{reason: reason}
}

func (r *disabledReporter) ReportForwardFailure(_ context.Context, _ domain.ForwardEvent, _ error) error {
	if r.reason == "" {
		return errors.New("operator alerts disabled")
	}
	return errors.New(r.reason)
}

type multiReporter struct {
	reporters []Reporter
}

// NewMultiReporter reparte el aviso entre varios canales; ignora los nil.
func NewMultiReporter(reporters ...Reporter) Reporter {
	kept := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return NewDisabledReporter("")
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return &multiReporter{reporters: kept}
}

func (m *multiReporter) ReportForwardFailure(ctx context.Context, ev domain.ForwardEvent, cause error) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.ReportForwardFailure(ctx, ev, cause); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func failureSubject(ev domain.ForwardEvent) string {
	return fmt.Sprintf("Auto-forward failed for user %d", ev.UserID)
}

func failureBody(ev domain.ForwardEvent, cause error) string {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	lines := []string{
		"⚠️ Auto-forward failed",
		fmt.Sprintf("Forward ID: %s", ev.ID),
		fmt.Sprintf("User ID: %d", ev.UserID),
		fmt.Sprintf("Channel: %d", ev.DestinationChannelID),
		fmt.Sprintf("Source: chat %d message %d", ev.Artifact.ChatID, ev.Artifact.MessageID),
		fmt.Sprintf("Time: %s", ev.CreatedAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("Error: %s", reason),
	}
	return strings.Join(lines, "\n") + "\n"
}
