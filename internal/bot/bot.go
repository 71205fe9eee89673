package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leech-bot/internal/domain"
	"leech-bot/internal/service"
)

const (
	updateDedupeTTL  = 10 * time.Minute
	handlerTimeout   = 30 * time.Second
	defaultWorkers   = 8
	longPollTimeoutS = 60
)

// Sender es la parte de tgbotapi.BotAPI que usan los handlers.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateSource entrega updates por long polling.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Settings agrupa los valores de configuración que el bot muestra o usa para autorizar.
type Settings struct {
	BotUsername     string
	OwnerID         int64
	BackupChannelID int64
	AutoForward     bool
	Tutorial        string
	Workers         int
}

// Deps son los servicios del núcleo que atiende el bot.
type Deps struct {
	Gate       *service.AttemptGate
	Resolver   *service.VerificationResolver
	Stats      *service.StatsAggregator
	Dispatcher *service.ForwardDispatcher
	Shortener  service.Shortener
	Deduper    service.UpdateDeduper
}

// Handler traduce updates de Telegram en operaciones del núcleo.
type Handler struct {
	logger   *zap.Logger
	sender   Sender
	deps     Deps
	settings Settings
}

func NewHandler(logger *zap.Logger, sender Sender, deps Deps, settings Settings) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Workers <= 0 {
		settings.Workers = defaultWorkers
	}
	return &Handler{
		logger:   logger,
		sender:   sender,
		deps:     deps,
		settings: settings,
	}
}

// Run consume updates hasta que se cancela el contexto.
func (h *Handler) Run(ctx context.Context, src UpdateSource) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = longPollTimeoutS
	updates := src.GetUpdatesChan(cfg)

	var g errgroup.Group
	g.SetLimit(h.settings.Workers)
	defer func() { _ = g.Wait() }()

	h.logger.Info("telegram polling started", zap.String("bot", h.settings.BotUsername))
	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			h.logger.Info("telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			g.Go(func() error {
				hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
				defer cancel()
				h.HandleUpdate(hctx, upd)
				return nil
			})
		}
	}
}

// HandleUpdate procesa un update; los duplicados re-entregados se descartan.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if !h.firstSeen(upd.UpdateID) {
		h.logger.Debug("duplicate update skipped", zap.Int("update_id", upd.UpdateID))
		return
	}

	if upd.CallbackQuery != nil {
		h.handleCallback(upd.CallbackQuery)
		return
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if !msg.IsCommand() {
		if text := strings.TrimSpace(msg.Text); text != "" {
			h.handleLeech(ctx, msg, text)
		}
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.reply(msg.Chat.ID, msg.MessageID, helpMessage(h.freeLimit(), h.isOwner(msg.From.ID)), nil)
	case "leech":
		h.handleLeech(ctx, msg, strings.TrimSpace(msg.CommandArguments()))
	case "stats":
		h.handleStats(ctx, msg)
	case "testforward":
		h.handleTestForward(ctx, msg)
	case "testapi":
		h.handleTestAPI(ctx, msg)
	default:
		h.reply(msg.Chat.ID, msg.MessageID, msgUnknownCommand, nil)
	}
}

// NotifyVerified avisa por chat privado a un usuario verificado desde el callback web.
func (h *Handler) NotifyVerified(_ context.Context, userID int64) {
	h.reply(userID, 0, msgVerified, nil)
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if token, ok := service.TokenFromStartPayload(msg.CommandArguments()); ok {
		h.handleVerify(ctx, msg, token)
		return
	}

	rec, err := h.deps.Gate.Register(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("load user on start failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
		return
	}
	h.reply(msg.Chat.ID, msg.MessageID, startMessage(displayName(msg.From), rec, h.freeLimit()), nil)
}

func (h *Handler) handleVerify(ctx context.Context, msg *tgbotapi.Message, token string) {
	tok, err := h.deps.Resolver.Resolve(ctx, token)
	switch {
	case err == nil:
		if tok.UserID != msg.From.ID {
			h.logger.Info("token redeemed by another account",
				zap.Int64("token_user_id", tok.UserID),
				zap.Int64("redeemer_id", msg.From.ID),
			)
		}
		h.reply(msg.Chat.ID, msg.MessageID, msgVerified, nil)
	case errors.Is(err, service.ErrTokenExpired):
		h.reply(msg.Chat.ID, msg.MessageID, msgTokenExpired, nil)
	case errors.Is(err, service.ErrTokenAlreadyConsumed):
		h.reply(msg.Chat.ID, msg.MessageID, msgTokenUsed, nil)
	case errors.Is(err, service.ErrTokenNotFound):
		h.reply(msg.Chat.ID, msg.MessageID, msgTokenInvalid, nil)
	default:
		h.logger.Error("resolve token failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
	}
}

func (h *Handler) handleLeech(ctx context.Context, msg *tgbotapi.Message, link string) {
	decision, err := h.deps.Gate.TryConsume(ctx, service.LeechRequest{
		UserID:         msg.From.ID,
		SenderName:     displayName(msg.From),
		SenderUsername: msg.From.UserName,
		Artifact: domain.Artifact{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			Link:      link,
		},
	})
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			var rlErr *service.RateLimitError
			var retryAfter time.Duration
			if errors.As(err, &rlErr) {
				retryAfter = rlErr.RetryAfter
			}
			h.reply(msg.Chat.ID, msg.MessageID, rateLimitedMessage(retryAfter), nil)
			return
		}
		h.logger.Error("leech attempt failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
		return
	}

	if decision.Allowed {
		h.reply(msg.Chat.ID, msg.MessageID, leechAcceptedMessage(decision.Record, h.freeLimit(), h.settings.AutoForward), nil)
		return
	}

	issued := decision.Verification
	if issued == nil {
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
		return
	}
	text := verificationMessage(*issued, h.freeLimit(), h.settings.Tutorial)
	h.reply(msg.Chat.ID, msg.MessageID, text, verificationKeyboard(issued.VerificationURL, h.settings.Tutorial))
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	rec, err := h.deps.Gate.Register(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("load user stats failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
		return
	}
	text := userStatsMessage(rec, h.freeLimit(), h.settings.AutoForward)

	if h.isOwner(msg.From.ID) {
		snapshot, err := h.deps.Stats.Snapshot(ctx)
		if err != nil {
			h.logger.Error("aggregate stats failed", zap.Error(err))
		} else {
			text += botStatsMessage(snapshot, h.settings.BackupChannelID, h.deps.Shortener != nil)
		}
	}
	h.reply(msg.Chat.ID, msg.MessageID, text, nil)
}

func (h *Handler) handleTestForward(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		h.reply(msg.Chat.ID, msg.MessageID, msgOwnerOnly, nil)
		return
	}
	if h.settings.BackupChannelID == 0 {
		h.reply(msg.Chat.ID, msg.MessageID, "⚠️ BACKUP_CHANNEL_ID is not set.", nil)
		return
	}

	probe, err := h.sender.Send(tgbotapi.NewMessage(msg.Chat.ID, msgTestForwardBody))
	if err != nil {
		h.logger.Warn("send forward probe failed", zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, msgTryAgain, nil)
		return
	}
	err = h.deps.Dispatcher.ForwardNow(ctx, domain.ForwardEvent{
		Artifact:       domain.Artifact{ChatID: msg.Chat.ID, MessageID: probe.MessageID, Link: "test"},
		UserID:         msg.From.ID,
		SenderName:     displayName(msg.From),
		SenderUsername: msg.From.UserName,
		Verified:       true,
	})
	if err != nil {
		h.reply(msg.Chat.ID, msg.MessageID, "❌ Auto-forward test failed: "+err.Error(), nil)
		return
	}
	h.reply(msg.Chat.ID, msg.MessageID, "✅ Auto-forward test successful!", nil)
}

func (h *Handler) handleTestAPI(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From.ID) {
		h.reply(msg.Chat.ID, msg.MessageID, msgOwnerOnly, nil)
		return
	}
	if h.deps.Shortener == nil {
		h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Shortlink API is not configured (SHORTLINK_API / SHORTLINK_URL).", nil)
		return
	}

	probeURL := "https://t.me/" + strings.TrimPrefix(h.settings.BotUsername, "@")
	short, err := h.deps.Shortener.Shorten(ctx, probeURL)
	if err != nil {
		h.logger.Warn("shortlink probe failed", zap.Error(err))
		h.reply(msg.Chat.ID, msg.MessageID, "❌ Shortlink API test failed: "+err.Error()+
			"\n\n💡 The bot falls back to direct links when the shortlink fails.", nil)
		return
	}
	h.reply(msg.Chat.ID, msg.MessageID, "✅ Shortlink API test successful!\n\n🔗 "+short, nil)
}

func (h *Handler) handleCallback(q *tgbotapi.CallbackQuery) {
	if _, err := h.sender.Request(tgbotapi.NewCallback(q.ID, msgCallbackHint)); err != nil {
		h.logger.Warn("answer callback failed", zap.String("callback_id", q.ID), zap.Error(err))
	}
}

func (h *Handler) reply(chatID int64, replyTo int, text string, markup interface{}) {
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyToMessageID = replyTo
	out.DisableWebPagePreview = true
	if markup != nil {
		out.ReplyMarkup = markup
	}
	if _, err := h.sender.Send(out); err != nil {
		h.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) firstSeen(updateID int) bool {
	if h.deps.Deduper == nil {
		return true
	}
	first, err := h.deps.Deduper.FirstSeen(strconv.Itoa(updateID), updateDedupeTTL)
	if err != nil {
		h.logger.Warn("update dedupe failed", zap.Int("update_id", updateID), zap.Error(err))
		return true
	}
	return first
}

func (h *Handler) isOwner(userID int64) bool {
	return h.settings.OwnerID != 0 && userID == h.settings.OwnerID
}

func (h *Handler) freeLimit() int {
	if h.deps.Gate == nil {
		return 0
	}
	return h.deps.Gate.FreeLimit()
}
