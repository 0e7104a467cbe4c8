package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain/ports/adapter"
	"telegram-ai-entitlements/internal/infra/logging"
	"telegram-ai-entitlements/internal/infra/metrics"
	"telegram-ai-entitlements/internal/usecase"
)

// RateLimiter is satisfied by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Verifier = adapter.WebhookVerifier

// Messages renders user-facing text; i18n.Translator satisfies it.
type Messages interface {
	Render(key string, args map[string]string) string
}

type Deps struct {
	Consumption usecase.ConsumptionUseCase
	Settlement  usecase.SettlementUseCase
	Sessions    usecase.SessionUseCase
	Referrals   usecase.ReferralUseCase
	Stats       usecase.StatsUseCase
	Admin       usecase.AdminUseCase

	Verifier Verifier
	Auth     *AuthManager
	Messages Messages

	Limiter    RateLimiter
	RateLimit  int
	RateWindow time.Duration

	RequestTimeout time.Duration
}

// NewRouter mounts the public webhook, health and metrics endpoints and the
// token-protected /api/v1 group.
func NewRouter(d Deps, logger *zerolog.Logger) http.Handler {
	log := logging.Component(logger, "http")

	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(log), Recover(log), Timeout(d.RequestTimeout))

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/webhooks/payment", paymentWebhookHandler(d.Settlement, d.Verifier, log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(d.Auth.RequireToken())

		r.Post("/consume", consumeHandler(d.Consumption, d.Messages, d.Limiter, d.RateLimit, d.RateWindow, log))
		r.Get("/entitlements/{userID}", entitlementHandler(d.Consumption))
		r.Post("/purchases", purchaseHandler(d.Settlement))
		r.Post("/referrals", referralHandler(d.Referrals))

		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Get("/", sessionGetHandler(d.Sessions))
			r.Delete("/", sessionClearHandler(d.Sessions))
			r.Put("/mode", sessionModeHandler(d.Sessions))
			r.Put("/support", sessionSupportHandler(d.Sessions))
		})

		r.Get("/stats", statsHandler(d.Stats))
		r.Get("/stats/users/{userID}/paid", paidTotalHandler(d.Stats))

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))
			r.Post("/grants", grantHandler(d.Admin))
			r.Put("/plans/{userID}", setPlanHandler(d.Admin))
		})
	})
	return r
}
