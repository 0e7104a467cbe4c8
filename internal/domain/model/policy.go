package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
)

// Policy holds the tunable entitlement rules.
type Policy struct {
	FreeDailyLimit       int
	BlockDuration        time.Duration
	RefillInterval       time.Duration
	PlanDuration         time.Duration
	RefBonus             decimal.Decimal
	RefFreePlusDays      int
	RefFreePlusThreshold decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		FreeDailyLimit:       10,
		BlockDuration:        6 * time.Hour,
		RefillInterval:       30 * 24 * time.Hour,
		PlanDuration:         30 * 24 * time.Hour,
		RefBonus:             decimal.NewFromInt(3),
		RefFreePlusDays:      7,
		RefFreePlusThreshold: decimal.NewFromInt(5),
	}
}

func (p Policy) Validate() error {
	switch {
	case p.FreeDailyLimit < 0:
		return fmt.Errorf("%w: free daily limit %d", domain.ErrInvalidArgument, p.FreeDailyLimit)
	case p.BlockDuration <= 0, p.RefillInterval <= 0, p.PlanDuration <= 0:
		return fmt.Errorf("%w: durations must be positive", domain.ErrInvalidArgument)
	case p.RefBonus.IsNegative(), p.RefFreePlusThreshold.IsNegative():
		return fmt.Errorf("%w: referral amounts must be non-negative", domain.ErrInvalidArgument)
	case p.RefFreePlusDays < 0:
		return fmt.Errorf("%w: referral plus days %d", domain.ErrInvalidArgument, p.RefFreePlusDays)
	}
	return nil
}

func (p Policy) refFreePlusDuration() time.Duration {
	return time.Duration(p.RefFreePlusDays) * 24 * time.Hour
}
