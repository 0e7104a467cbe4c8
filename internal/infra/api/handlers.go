package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/infra/logging"
	"telegram-ai-entitlements/internal/infra/metrics"
	"telegram-ai-entitlements/internal/infra/payment"
	redisinfra "telegram-ai-entitlements/internal/infra/redis"
	"telegram-ai-entitlements/internal/usecase"
)

const maxWebhookBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	Upsell            string `json:"upsell,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps use case errors that are not denials to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownActionKind),
		errors.Is(err, domain.ErrUnknownPurchaseKind),
		errors.Is(err, domain.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrReferrerAlreadySet),
		errors.Is(err, domain.ErrNoActivePlan):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

// ===== consume =====

type consumeRequest struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
	Amount *int   `json:"amount"`
}

type consumeResponse struct {
	UserID    int64  `json:"user_id"`
	Kind      string `json:"kind"`
	Amount    int    `json:"amount"`
	Balance   string `json:"balance"`
	Remaining int    `json:"remaining"`
}

func consumeHandler(uc usecase.ConsumptionUseCase, msgs Messages, limiter RateLimiter, limit int, window time.Duration, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req consumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		amount := 1
		if req.Amount != nil {
			amount = *req.Amount
		}
		ctx := logging.WithUserID(r.Context(), req.UserID)

		if limiter != nil && limit > 0 && req.UserID > 0 {
			ok, err := limiter.Allow(ctx, redisinfra.UserActionKey(req.UserID, "consume"), limit, window)
			if err != nil {
				// Fail open: the entitlement record is the real gate.
				logging.With(ctx, logger).Warn().Err(err).Msg("rate limiter unavailable")
			} else if !ok {
				metrics.IncRateLimited()
				writeError(w, http.StatusTooManyRequests, "rate limited")
				return
			}
		}

		start := time.Now()
		kind := model.ActionKind(req.Kind)
		d, err := uc.AuthorizeAndConsume(ctx, req.UserID, kind, amount)
		elapsed := time.Since(start).Seconds()

		var deny *model.DenyError
		switch {
		case err == nil:
			metrics.ObserveConsume(string(kind), "ok", elapsed)
			writeJSON(w, http.StatusOK, consumeResponse{
				UserID:    req.UserID,
				Kind:      string(d.Kind),
				Amount:    d.Amount,
				Balance:   string(d.Balance),
				Remaining: d.Remaining,
			})
		case errors.As(err, &deny):
			metrics.ObserveConsume(string(kind), "denied", elapsed)
			writeDenial(w, deny, msgs)
		default:
			metrics.ObserveConsume(string(kind), "error", elapsed)
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				logging.With(ctx, logger).Error().Err(err).Msg("consume failed")
			}
			writeError(w, status, err.Error())
		}
	}
}

// writeDenial answers 429 for an active block and 402 for an exhausted quota.
// With msgs the body also carries the user-facing text.
func writeDenial(w http.ResponseWriter, deny *model.DenyError, msgs Messages) {
	status := http.StatusPaymentRequired
	key := "deny.quota_exhausted"
	if errors.Is(deny.Reason, domain.ErrBlocked) {
		status = http.StatusTooManyRequests
		key = "deny.blocked"
	}
	body := errorBody{Error: deny.Reason.Error(), Upsell: string(deny.Upsell)}
	if deny.RetryAfter > 0 {
		secs := int64(math.Ceil(deny.RetryAfter.Seconds()))
		body.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	if msgs != nil {
		args := map[string]string{"kind": string(deny.Kind), "retry_after": humanDuration(deny.RetryAfter)}
		if deny.Upsell != model.UpsellNone {
			key += "_upsell"
			args["upsell"] = msgs.Render("upsell."+string(deny.Upsell), nil)
		}
		body.Message = msgs.Render(key, args)
	}
	writeJSON(w, status, body)
}

// humanDuration renders d rounded up to the minute, e.g. "5h 59m" or "3m".
func humanDuration(d time.Duration) string {
	mins := int64(math.Ceil(d.Minutes()))
	if mins < 1 {
		mins = 1
	}
	h, m := mins/60, mins%60
	switch {
	case h == 0:
		return strconv.FormatInt(m, 10) + "m"
	case m == 0:
		return strconv.FormatInt(h, 10) + "h"
	default:
		return strconv.FormatInt(h, 10) + "h " + strconv.FormatInt(m, 10) + "m"
	}
}

// ===== entitlements =====

type entitlementView struct {
	UserID          int64      `json:"user_id"`
	Plan            string     `json:"plan"`
	PlanUntil       *time.Time `json:"plan_until,omitempty"`
	ChatLeft        int        `json:"chat_left"`
	VideoLeft       int        `json:"video_left"`
	MusicLeft       int        `json:"music_left"`
	ImageLeft       int        `json:"image_left"`
	VoiceLeft       int        `json:"voice_left"`
	DocLeft         int        `json:"doc_left"`
	FreeDailyCount  int        `json:"free_daily_count"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"`
	VIPVideoCredits int        `json:"vip_video_credits"`
	VIPMusicMinutes int        `json:"vip_music_minutes"`
	ReferralBalance string     `json:"referral_balance"`
	ReferrerID      *int64     `json:"referrer_id,omitempty"`
}

func newEntitlementView(e *model.Entitlement) entitlementView {
	return entitlementView{
		UserID:          e.UserID,
		Plan:            string(e.Plan),
		PlanUntil:       e.PlanUntil,
		ChatLeft:        e.ChatLeft,
		VideoLeft:       e.VideoLeft,
		MusicLeft:       e.MusicLeft,
		ImageLeft:       e.ImageLeft,
		VoiceLeft:       e.VoiceLeft,
		DocLeft:         e.DocLeft,
		FreeDailyCount:  e.FreeDailyCount,
		BlockedUntil:    e.BlockedUntil,
		VIPVideoCredits: e.VIPVideoCredits,
		VIPMusicMinutes: e.VIPMusicMinutes,
		ReferralBalance: e.ReferralBalance.StringFixed(2),
		ReferrerID:      e.ReferrerID,
	}
}

func entitlementHandler(uc usecase.ConsumptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		e, err := uc.Balance(r.Context(), userID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newEntitlementView(e))
	}
}

// ===== purchases =====

type purchaseRequest struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
}

type purchaseResponse struct {
	OrderID string `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Kind    string `json:"kind"`
	Price   string `json:"price"`
	Status  string `json:"status"`
}

func purchaseHandler(uc usecase.SettlementUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req purchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kind, err := model.ParsePurchaseKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		price, err := uc.Quote(kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s, err := uc.CreatePending(r.Context(), ulid.Make().String(), req.UserID, kind, price)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		metrics.IncPurchase(kind.String())
		writeJSON(w, http.StatusCreated, purchaseResponse{
			OrderID: s.OrderID,
			UserID:  s.UserID,
			Kind:    s.Kind.String(),
			Price:   s.Price.StringFixed(2),
			Status:  string(s.Status),
		})
	}
}

// ===== sessions =====

func sessionGetHandler(uc usecase.SessionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		s, err := uc.Get(r.Context(), userID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func sessionModeHandler(uc usecase.SessionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s, err := uc.SetMode(r.Context(), userID, model.ActionKind(req.Mode))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func sessionSupportHandler(uc usecase.SessionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		var req struct {
			Awaiting bool `json:"awaiting"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s, err := uc.SetAwaitingSupport(r.Context(), userID, req.Awaiting)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func sessionClearHandler(uc usecase.SessionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		if err := uc.Clear(r.Context(), userID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ===== referrals =====

type referralRequest struct {
	UserID     int64 `json:"user_id"`
	ReferrerID int64 `json:"referrer_id"`
}

func referralHandler(uc usecase.ReferralUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req referralRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := uc.Attach(r.Context(), req.UserID, req.ReferrerID); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ===== stats =====

func statsHandler(uc usecase.StatsUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := uc.PlanCounts(r.Context())
		if err != nil {
			writeError(w, statusFor(err), "failed to count plans")
			return
		}
		plans := make(map[string]int, len(counts))
		total := 0
		for p, n := range counts {
			plans[string(p)] = n
			total += n
		}
		writeJSON(w, http.StatusOK, struct {
			TotalUsers int            `json:"total_users"`
			ByPlan     map[string]int `json:"by_plan"`
		}{TotalUsers: total, ByPlan: plans})
	}
}

func paidTotalHandler(uc usecase.StatsUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		total, err := uc.PaidTotal(r.Context(), userID)
		if err != nil {
			writeError(w, statusFor(err), "failed to sum payments")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			UserID    int64  `json:"user_id"`
			PaidTotal string `json:"paid_total"`
		}{UserID: userID, PaidTotal: total})
	}
}

// ===== payment webhook =====

type webhookResponse struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// paymentWebhookHandler acknowledges every authenticated callback it could
// process with 200 so providers stop retrying; only storage failures ask for
// a retry.
func paymentWebhookHandler(uc usecase.SettlementUseCase, verifier Verifier, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		conf, err := verifier.Verify(body, r.Header.Get(payment.SignatureHeader))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) {
				logging.With(r.Context(), logger).Warn().Str("provider", verifier.Name()).Msg("webhook signature rejected")
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx := logging.WithOrderID(r.Context(), conf.OrderID)
		res, err := uc.Settle(ctx, conf.OrderID, conf.Status, conf.AmountPaid)
		if err != nil {
			metrics.IncSettlement("error")
			logging.With(ctx, logger).Error().Err(err).Msg("settlement failed")
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		metrics.IncSettlement(string(res.Outcome))
		resp := webhookResponse{OrderID: conf.OrderID, Outcome: string(res.Outcome)}
		if res.Reason != nil {
			resp.Reason = res.Reason.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ===== admin =====

type grantRequest struct {
	UserID   int64  `json:"user_id"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
}

func grantHandler(uc usecase.AdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kind, err := model.ParseGrantKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		e, err := uc.GrantCredits(r.Context(), req.UserID, kind, req.Quantity)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newEntitlementView(e))
	}
}

type setPlanRequest struct {
	Plan string `json:"plan"`
	Days int    `json:"days"`
}

func setPlanHandler(uc usecase.AdminUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		var req setPlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		plan, err := model.ParsePlanCode(req.Plan)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		e, err := uc.SetPlan(r.Context(), userID, plan, req.Days)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newEntitlementView(e))
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
