package forward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"leech-bot/internal/domain"
)

var ErrForwardFailed = errors.New("forward to backup channel failed")

// MessageSender es la parte de tgbotapi.BotAPI que usa el forwarder.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramForwarder reenvía el mensaje original al canal y publica los créditos como respuesta.
type TelegramForwarder struct {
	sender MessageSender
	logger *zap.Logger
}

func NewTelegramForwarder(sender MessageSender, logger *zap.Logger) *TelegramForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramForwarder{sender: sender, logger: logger}
}

// Forward hace un único intento. Sin canal destino no hace nada.
func (f *TelegramForwarder) Forward(ctx context.Context, ev domain.ForwardEvent) error {
	if ev.DestinationChannelID == 0 {
		f.logger.Warn("backup channel not configured, skipping forward", zap.Int64("user_id", ev.UserID))
		return nil
	}
	if f.sender == nil {
		return fmt.Errorf("%w: sender not configured", ErrForwardFailed)
	}
	if ev.Artifact.ChatID == 0 || ev.Artifact.MessageID == 0 {
		return fmt.Errorf("%w: artifact without source message", ErrForwardFailed)
	}

	fwd := tgbotapi.NewForward(ev.DestinationChannelID, ev.Artifact.ChatID, ev.Artifact.MessageID)
	forwarded, err := f.send(ctx, fwd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}

	credit := tgbotapi.NewMessage(ev.DestinationChannelID, CreditCaption(ev))
	credit.ReplyToMessageID = forwarded.MessageID
	credit.DisableWebPagePreview = true
	if _, err := f.send(ctx, credit); err != nil {
		// El artefacto ya quedó espejado; los créditos no cambian el resultado.
		f.logger.Warn("credit message failed",
			zap.String("forward_id", ev.ID),
			zap.Int64("channel_id", ev.DestinationChannelID),
			zap.Error(err),
		)
	}
	return nil
}

// tgbotapi no acepta contexto; el select acota la espera al deadline del llamador.
func (f *TelegramForwarder) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	type result struct {
		msg tgbotapi.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := f.sender.Send(c)
		done <- result{msg: msg, err: err}
	}()
	select {
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	case r := <-done:
		return r.msg, r.err
	}
}

// CreditCaption arma el texto de créditos que acompaña al reenvío.
func CreditCaption(ev domain.ForwardEvent) string {
	name := strings.TrimSpace(ev.SenderName)
	if name == "" {
		name = "Unknown"
	}
	username := "none"
	if u := strings.TrimPrefix(strings.TrimSpace(ev.SenderUsername), "@"); u != "" {
		username = "@" + u
	}
	status := "Free user"
	if ev.Verified {
		status = "Verified"
	}
	link := ev.Artifact.Link
	if link == "" {
		link = "n/a"
	}

	var b strings.Builder
	b.WriteString("🤖 Auto-Forward from Leech Bot\n\n")
	fmt.Fprintf(&b, "👤 User: %s (%s)\n", name, username)
	fmt.Fprintf(&b, "🆔 User ID: %d\n", ev.UserID)
	fmt.Fprintf(&b, "📅 Date: %s\n", ev.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "🔗 Original Link: %s\n\n", link)
	fmt.Fprintf(&b, "📊 User Stats: %d total attempts\n", ev.TotalAttempts)
	fmt.Fprintf(&b, "✅ Verification Status: %s\n\n", status)
	b.WriteString("#LeechBot #AutoBackup")
	return b.String()
}
