package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/infra/metrics"
	"telegram-ai-entitlements/internal/usecase"
)

// PoolStats reports connection pool usage.
type PoolStats func() (total, idle, inUse int32)

// StatsWorker refreshes gauges that are read from storage rather than
// counted in-process.
type StatsWorker struct {
	interval time.Duration
	statsUC  usecase.StatsUseCase
	pool     PoolStats
	log      *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, statsUC usecase.StatsUseCase, pool PoolStats, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	compLog := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{interval: interval, statsUC: statsUC, pool: pool, log: &compLog}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	if w.pool != nil {
		metrics.SetDBPoolStats(w.pool())
	}
	counts, err := w.statsUC.PlanCounts(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("plan count refresh failed")
		return
	}
	byPlan := make(map[string]int, len(counts))
	for plan, n := range counts {
		byPlan[string(plan)] = n
	}
	metrics.SetEntitlementsByPlan(byPlan)
	w.log.Debug().Int("free", counts[model.PlanFree]).Int("plus", counts[model.PlanPlus]).Int("pro", counts[model.PlanPro]).Msg("stats refreshed")
}
