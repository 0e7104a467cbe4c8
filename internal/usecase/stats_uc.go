package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	// PlanCounts returns how many records hold each stored plan.
	PlanCounts(ctx context.Context) (map[model.PlanCode]int, error)
	// PaidTotal sums confirmed payments of one user.
	PaidTotal(ctx context.Context, userID int64) (string, error)
}

type statsUC struct {
	ents        repository.EntitlementRepository
	settlements repository.SettlementRepository

	log *zerolog.Logger
}

func NewStatsUseCase(ents repository.EntitlementRepository, settlements repository.SettlementRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{ents: ents, settlements: settlements, log: logger}
}

func (s *statsUC) PlanCounts(ctx context.Context) (map[model.PlanCode]int, error) {
	counts, err := s.ents.CountByPlan(ctx, repository.NoTX)
	if err != nil {
		return nil, storeErr("count plans", err)
	}
	for _, p := range []model.PlanCode{model.PlanFree, model.PlanPlus, model.PlanPro} {
		if _, ok := counts[p]; !ok {
			counts[p] = 0
		}
	}
	return counts, nil
}

func (s *statsUC) PaidTotal(ctx context.Context, userID int64) (string, error) {
	total, err := s.settlements.SumPaidByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return "", storeErr("sum payments", err)
	}
	return total.StringFixed(2), nil
}
