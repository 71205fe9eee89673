package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leech-bot/internal/alert"
	"leech-bot/internal/bot"
	"leech-bot/internal/config"
	"leech-bot/internal/db"
	"leech-bot/internal/forward"
	apihttp "leech-bot/internal/http"
	"leech-bot/internal/repository"
	"leech-bot/internal/service"
	"leech-bot/internal/shortlink"
)

const (
	serviceName = "terabox-leech-bot"
	version     = "1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	userRepo := repository.NewPgUserRecordRepository(pool)
	tokenRepo := repository.NewPgTokenRepository(pool)

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("telegram connect", zap.Error(err))
	}
	// Cliente aparte con timeout para los reenvíos; el del polling no lo tiene.
	forwardAPI, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.ForwardTimeout})
	if err != nil {
		logger.Fatal("telegram forward client", zap.Error(err))
	}

	var (
		limiter     service.RateLimiter
		deduper     service.UpdateDeduper
		redisClient *redis.Client
		redisReady  bool
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, cfg.IssueRateWindow, cfg.IssueRateMax)
			deduper = service.NewRedisUpdateDeduper(redisClient)
			redisReady = true
		}
		cancel()
		defer redisClient.Close()
	}
	if limiter == nil {
		limiter = service.NewMemoryRateLimiter(cfg.IssueRateWindow, cfg.IssueRateMax)
	}
	if deduper == nil {
		deduper = service.NewMemoryUpdateDeduper()
	}

	var shortener service.Shortener
	if cfg.ShortlinkConfigured() {
		shortener = shortlink.NewClient(cfg.ShortlinkURL, cfg.ShortlinkAPIKey, 10*time.Second)
	}

	reporter := buildReporter(logger, cfg, botAPI)
	forwarder := forward.NewTelegramForwarder(forwardAPI, logger)
	dispatcher := service.NewForwardDispatcher(logger, forwarder, reporter, cfg.BackupChannelID, cfg.ForwardingActive(), cfg.ForwardTimeout)

	links := service.CallbackLinks{BotUsername: cfg.BotUsername, PublicBaseURL: cfg.PublicBaseURL}
	issuer := service.NewTokenIssuer(logger, tokenRepo, shortener, limiter, links, cfg.VerifyTokenTimeout)
	gate := service.NewAttemptGate(logger, userRepo, issuer, dispatcher, cfg.FreeLeechLimit)
	resolver := service.NewVerificationResolver(logger, tokenRepo, issuer.Timeout())
	stats := service.NewStatsAggregator(userRepo)

	sweeper := service.NewTokenSweeper(logger, tokenRepo, issuer.Timeout(), cfg.TokenRetention)
	if err := sweeper.Start(cfg.TokenSweepSchedule); err != nil {
		logger.Fatal("token sweeper", zap.Error(err))
	}

	adminTokens := service.NewAdminTokenService(cfg.AdminJWTSecret, cfg.AdminJWTTTL)
	if !adminTokens.Configured() {
		logger.Warn("admin jwt secret not configured, admin api disabled")
	}

	handler := bot.NewHandler(logger, botAPI, bot.Deps{
		Gate:       gate,
		Resolver:   resolver,
		Stats:      stats,
		Dispatcher: dispatcher,
		Shortener:  shortener,
		Deduper:    deduper,
	}, bot.Settings{
		BotUsername:     cfg.BotUsername,
		OwnerID:         cfg.OwnerID,
		BackupChannelID: cfg.BackupChannelID,
		AutoForward:     cfg.ForwardingActive(),
		Tutorial:        cfg.VerifyTutorial,
	})

	router := apihttp.NewRouter(
		logger,
		apihttp.NewHealthHandler(serviceName, version),
		apihttp.NewVerifyHandler(logger, resolver, handler),
		apihttp.NewAdminHandler(logger, stats, cfg.FreeLeechLimit),
		apihttp.AdminAuthMiddleware(adminTokens, cfg.OwnerID),
	)
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logStartup(logger, cfg, botAPI.Self.UserName, redisReady)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Run(gctx, botAPI)
	})
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
	dispatcher.Wait()
	<-sweeper.Stop().Done()
	logger.Info("bot stopped")
}

func buildReporter(logger *zap.Logger, cfg *config.Config, botAPI *tgbotapi.BotAPI) alert.Reporter {
	var reporters []alert.Reporter
	if cfg.OwnerID != 0 {
		r, err := alert.NewTelegramReporter(botAPI, cfg.OwnerID)
		if err != nil {
			logger.Warn("telegram reporter init failed", zap.Error(err))
		} else {
			reporters = append(reporters, r)
		}
	}
	if cfg.SMTPHost != "" {
		r, err := alert.NewSMTPReporter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.OperatorEmail, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp reporter init failed", zap.Error(err))
		} else {
			reporters = append(reporters, r)
		}
	}
	if len(reporters) == 0 {
		return alert.NewDisabledReporter("operator alerts not configured")
	}
	return alert.NewMultiReporter(reporters...)
}

func logStartup(logger *zap.Logger, cfg *config.Config, botUser string, redisReady bool) {
	if cfg.AutoForwardEnabled && cfg.BackupChannelID == 0 {
		logger.Warn("AUTO_FORWARD_ENABLED is set but BACKUP_CHANNEL_ID is missing, forwarding disabled")
	}
	if !cfg.ShortlinkConfigured() {
		logger.Warn("shortlink api not configured, verification uses direct links")
	}
	logger.Info("leech bot configured",
		zap.String("bot", botUser),
		zap.Int64("owner_id", cfg.OwnerID),
		zap.Int("free_leech_limit", cfg.FreeLeechLimit),
		zap.Duration("verify_token_timeout", cfg.VerifyTokenTimeout),
		zap.Bool("auto_forward", cfg.ForwardingActive()),
		zap.Int64("backup_channel_id", cfg.BackupChannelID),
		zap.Bool("shortlinks", cfg.ShortlinkConfigured()),
		zap.Bool("web_callback", cfg.PublicBaseURL != ""),
		zap.Bool("redis", redisReady),
		zap.String("token_sweep_schedule", cfg.TokenSweepSchedule),
	)
}
