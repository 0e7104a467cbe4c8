// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-ai-entitlements/internal/config"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/adapter"
	"telegram-ai-entitlements/internal/infra/adapters/telegram"
	"telegram-ai-entitlements/internal/infra/api"
	pg "telegram-ai-entitlements/internal/infra/db/postgres"
	"telegram-ai-entitlements/internal/infra/i18n"
	"telegram-ai-entitlements/internal/infra/logging"
	"telegram-ai-entitlements/internal/infra/metrics"
	"telegram-ai-entitlements/internal/infra/payment"
	red "telegram-ai-entitlements/internal/infra/redis"
	"telegram-ai-entitlements/internal/infra/sched"
	"telegram-ai-entitlements/internal/infra/worker"
	"telegram-ai-entitlements/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Policy ----
	pol, err := cfg.Entitlement.Policy()
	if err != nil {
		return err
	}
	cat, err := cfg.Entitlement.Catalog.Build()
	if err != nil {
		return err
	}
	clock := model.Clock(model.SystemClock)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Str("database", logging.Redact(cfg.Database.URL, cfg.Runtime.Dev)).Msg("postgres connected")
	tm := pg.NewTxManager(pool)
	entRepo := pg.NewEntitlementRepo(pool)
	settlementRepo := pg.NewSettlementRepo(pool)
	notifLogRepo := pg.NewNotificationLogRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)
	sessionRepo := red.NewSessionRepo(redisClient, cfg.Redis.SessionTTL)

	// ---- Notifications ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return err
	}
	var bot adapter.TelegramBotAdapter
	if cfg.Bot.Token == "" {
		logger.Warn().Msg("bot.token not set; notifications are logged only")
		bot = telegram.NewNoopBotAdapter(logger)
	} else {
		bot, err = telegram.NewRealTelegramBotAdapter(&cfg.Bot, logger)
		if err != nil {
			return err
		}
	}
	notifUC := usecase.NewNotificationUseCase(bot, tr, notifLogRepo, logging.Component(logger, "notifier"))
	workers := worker.NewPool(cfg.Scheduler.NotifyWorkers, logger)
	// Queued notifications are drained on Stop, after the signal context is gone.
	workers.Start(context.WithoutCancel(ctx))
	defer workers.Stop()
	notify := worker.NewDispatcher(workers, notifUC, logger)

	// ---- Use cases ----
	consumeUC := usecase.NewConsumptionUseCase(entRepo, tm, cat, pol, clock, cfg.Entitlement.ConsumeTimeout, logger)
	reconcileUC := usecase.NewReconcileUseCase(entRepo, tm, notify, cat, pol, clock,
		cfg.Scheduler.BatchSize, cfg.Scheduler.Parallelism, logger)
	settleUC := usecase.NewSettlementUseCase(settlementRepo, entRepo, tm, notify, cat, pol, clock,
		cfg.Payment.PaidStatusSet(), logger)
	sessionUC := usecase.NewSessionUseCase(sessionRepo, clock, logging.Component(logger, "session"))
	referralUC := usecase.NewReferralUseCase(entRepo, tm, clock, logging.Component(logger, "referral"))
	statsUC := usecase.NewStatsUseCase(entRepo, settlementRepo, logging.Component(logger, "stats"))
	adminUC := usecase.NewAdminUseCase(entRepo, tm, notify, cat, clock, logger)

	verifier, err := payment.NewHMACWebhookVerifier(cfg.Payment.Provider, cfg.Payment.WebhookSecret)
	if err != nil {
		return err
	}

	// ---- HTTP ----
	router := api.NewRouter(api.Deps{
		Consumption:    consumeUC,
		Settlement:     settleUC,
		Sessions:       sessionUC,
		Referrals:      referralUC,
		Stats:          statsUC,
		Admin:          adminUC,
		Verifier:       verifier,
		Auth:           api.NewAuthManager(cfg.Security.APISecret, time.Hour),
		Messages:       tr,
		Limiter:        limiter,
		RateLimit:      cfg.HTTP.RateLimit,
		RateWindow:     cfg.HTTP.RateWindow,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, logger)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---- Workers ----
	reconciler := sched.NewReconcileWorker(cfg.Scheduler.ReconcileInterval, cfg.Scheduler.LockTTL, reconcileUC, locker, logger)
	poolStats := func() (int32, int32, int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	}
	statsWorker := sched.NewStatsWorker(time.Minute, statsUC, poolStats, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return statsWorker.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
