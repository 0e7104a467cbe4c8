package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/infra/metrics"
	redisinfra "telegram-ai-entitlements/internal/infra/redis"
	"telegram-ai-entitlements/internal/usecase"
)

const reconcileLockKey = "lock:reconcile-sweep"

// Locker is a best-effort cross-replica mutex.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ReconcileWorker runs the reconciliation sweep on a fixed interval. With a
// Locker, only the replica holding the lock sweeps on a given tick; when the
// lock store itself fails the sweep runs unlocked.
type ReconcileWorker struct {
	interval time.Duration
	lockTTL  time.Duration
	uc       usecase.ReconcileUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewReconcileWorker(interval, lockTTL time.Duration, uc usecase.ReconcileUseCase, locker Locker, logger *zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	compLog := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{
		interval: interval,
		lockTTL:  lockTTL,
		uc:       uc,
		locker:   locker,
		log:      &compLog,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconcile worker")
	// Run once on startup, then on every tick
	w.Tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one guarded sweep and reports whether it ran.
func (w *ReconcileWorker) Tick(ctx context.Context) bool {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcileLockKey, w.lockTTL)
		switch {
		case errors.Is(err, redisinfra.ErrLockHeld):
			metrics.IncSweepSkipped()
			return false
		case err != nil:
			// Reconcile is idempotent; overlapping sweeps are harmless.
			w.log.Warn().Err(err).Msg("reconcile lock unavailable; sweeping unlocked")
			return w.sweep(ctx)
		}
		defer func() {
			// release on a fresh context so shutdown does not strand the lease
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.locker.Unlock(uctx, reconcileLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconcile lock release failed")
			}
		}()
	}
	return w.sweep(ctx)
}

func (w *ReconcileWorker) sweep(ctx context.Context) bool {
	stats, err := w.uc.Sweep(ctx)
	metrics.ObserveSweep(stats.Duration.Seconds())
	metrics.AddReconcileTransition("daily_reset", stats.DailyReset)
	metrics.AddReconcileTransition("unblocked", stats.Unblocked)
	metrics.AddReconcileTransition("expired_to_free", stats.ExpiredToFree)
	metrics.AddReconcileTransition("monthly_refilled", stats.MonthlyRefilled)
	metrics.AddReconcileFailures(stats.Failed)
	if err != nil {
		w.log.Error().Err(err).Int("scanned", stats.Scanned).Msg("reconcile sweep error")
	}
	return true
}
