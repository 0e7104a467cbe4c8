// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/logging"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Sweep reconciles every record once. A record that fails is counted and
	// skipped; only a failure to page through the store aborts the sweep.
	Sweep(ctx context.Context) (SweepStats, error)
	// ReconcileUser reconciles a single record.
	ReconcileUser(ctx context.Context, userID int64) (model.ReconcileReport, error)
}

// SweepStats counts what one sweep did.
type SweepStats struct {
	Scanned         int
	DailyReset      int
	Unblocked       int
	ExpiredToFree   int
	MonthlyRefilled int
	Touched         int
	Failed          int
	Notified        int
	Duration        time.Duration
}

func (s *SweepStats) add(r model.ReconcileReport) {
	if r.DailyReset {
		s.DailyReset++
	}
	if r.Unblocked {
		s.Unblocked++
	}
	if r.ExpiredToFree {
		s.ExpiredToFree++
	}
	if r.MonthlyRefilled {
		s.MonthlyRefilled++
	}
	if r.Changed() {
		s.Touched++
	}
}

type reconcileUC struct {
	ents        repository.EntitlementRepository
	tm          repository.TransactionManager
	notify      IntentDispatcher
	cat         *model.Catalog
	pol         model.Policy
	clock       model.Clock
	batchSize   int
	parallelism int

	log *zerolog.Logger
}

func NewReconcileUseCase(
	ents repository.EntitlementRepository,
	tm repository.TransactionManager,
	notify IntentDispatcher,
	cat *model.Catalog,
	pol model.Policy,
	clock model.Clock,
	batchSize, parallelism int,
	logger *zerolog.Logger,
) *reconcileUC {
	if batchSize <= 0 {
		batchSize = 500
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &reconcileUC{
		ents:        ents,
		tm:          tm,
		notify:      orDiscard(notify),
		cat:         cat,
		pol:         pol,
		clock:       clock.OrSystem(),
		batchSize:   batchSize,
		parallelism: parallelism,
		log:         logging.Component(logger, "reconciler"),
	}
}

func (u *reconcileUC) Sweep(ctx context.Context) (SweepStats, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Sweep")()
	start := time.Now()

	var (
		stats   SweepStats
		intents []model.Intent
		mu      sync.Mutex
		afterID int64
	)
	for {
		ids, err := u.ents.ListUserIDs(ctx, repository.NoTX, afterID, u.batchSize)
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, storeErr("list entitlements", err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		var g errgroup.Group
		g.SetLimit(u.parallelism)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				rep, in, err := u.reconcileOne(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				stats.Scanned++
				if err != nil {
					stats.Failed++
					u.log.Error().Err(err).Int64("user_id", id).Msg("reconcile record failed")
					// one broken record must not stop the rest of the sweep
					return nil
				}
				stats.add(rep)
				intents = append(intents, in...)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			stats.Notified = u.notify.Dispatch(ctx, intents)
			return stats, err
		}
		if len(ids) < u.batchSize {
			break
		}
	}

	stats.Notified = u.notify.Dispatch(ctx, intents)
	stats.Duration = time.Since(start)
	if stats.Touched > 0 || stats.Failed > 0 {
		u.log.Info().
			Int("scanned", stats.Scanned).
			Int("touched", stats.Touched).
			Int("daily_reset", stats.DailyReset).
			Int("unblocked", stats.Unblocked).
			Int("expired_to_free", stats.ExpiredToFree).
			Int("monthly_refilled", stats.MonthlyRefilled).
			Int("failed", stats.Failed).
			Int("notified", stats.Notified).
			Dur("duration", stats.Duration).
			Msg("reconcile sweep finished")
	}
	return stats, nil
}

func (u *reconcileUC) ReconcileUser(ctx context.Context, userID int64) (model.ReconcileReport, error) {
	rep, intents, err := u.reconcileOne(ctx, userID)
	if err != nil {
		return rep, storeErr("reconcile", err)
	}
	u.notify.Dispatch(ctx, intents)
	return rep, nil
}

// reconcileOne runs one record through Reconcile inside its own transaction.
func (u *reconcileUC) reconcileOne(ctx context.Context, userID int64) (model.ReconcileReport, []model.Intent, error) {
	var (
		rep     model.ReconcileReport
		intents []model.Intent
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		e, err := u.ents.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		prevPlan := e.Plan
		rep = e.Reconcile(u.clock(), u.cat, u.pol)
		if !rep.Changed() {
			return nil
		}
		if err := u.ents.Save(ctx, tx, e); err != nil {
			return err
		}
		for _, kind := range rep.Intents {
			switch kind {
			case model.NotifyPlanExpired:
				intents = append(intents, model.NewIntent(userID, kind, "plan", string(prevPlan)))
			default:
				intents = append(intents, model.NewIntent(userID, kind))
			}
		}
		return nil
	})
	if err != nil {
		return model.ReconcileReport{}, nil, err
	}
	return rep, intents, nil
}
