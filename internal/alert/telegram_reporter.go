package alert

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leech-bot/internal/domain"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramReporter manda el aviso por mensaje privado al owner del bot.
type TelegramReporter struct {
	sender  messageSender
	ownerID int64
}

func NewTelegramReporter(sender messageSender, ownerID int64) (*TelegramReporter, error) {
	if sender == nil {
		return nil, errors.New("telegram sender is required")
	}
	if ownerID == 0 {
		return nil, errors.New("owner id is required")
	}
	return &TelegramReporter{sender: sender, ownerID: ownerID}, nil
}

func (r *TelegramReporter) ReportForwardFailure(ctx context.Context, ev domain.ForwardEvent, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(r.ownerID, failureBody(ev, cause))
	msg.DisableWebPagePreview = true
	_, err := r.sender.Send(msg)
	return err
}
