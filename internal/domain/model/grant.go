package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-ai-entitlements/internal/domain"
)

// Operator grant bounds.
const (
	MaxGrantQuantity = 100000
	MaxGrantDays     = 3650
)

// GrantKind names the balance an operator gift lands on.
type GrantKind string

const (
	GrantVideo GrantKind = "video"
	GrantMusic GrantKind = "music"
	GrantChat  GrantKind = "chat"
)

func ParseGrantKind(s string) (GrantKind, error) {
	switch k := GrantKind(strings.ToLower(strings.TrimSpace(s))); k {
	case GrantVideo, GrantMusic, GrantChat:
		return k, nil
	}
	return "", fmt.Errorf("%w: grant kind %q", domain.ErrInvalidArgument, s)
}

// GrantPlan starts a paid period of length d with a full bundle and a fresh
// refill anchor.
func (e *Entitlement) GrantPlan(code PlanCode, d time.Duration, now time.Time, cat *Catalog) {
	e.Plan = code
	e.PlanUntil = timePtr(now.Add(d))
	e.ApplyBundle(cat.Bundle(code))
	e.LastMonthlyRefillAt = timePtr(now)
	e.UpdatedAt = now
}

// DowngradeToFree drops the plan and its monthly quota. VIP balances and the
// referral balance are kept.
func (e *Entitlement) DowngradeToFree(now time.Time) {
	e.Plan = PlanFree
	e.PlanUntil = nil
	e.ZeroMonthly()
	e.UpdatedAt = now
}

// Gift adds n units to the balance named by k. Chat messages live in the
// monthly quota, so they can only be gifted to an active paid plan.
func (e *Entitlement) Gift(k GrantKind, n int, now time.Time) error {
	if n < 1 || n > MaxGrantQuantity {
		return fmt.Errorf("%w: quantity must be 1..%d", domain.ErrInvalidArgument, MaxGrantQuantity)
	}
	switch k {
	case GrantVideo:
		e.CreditVIP(VIPVideoPack(n), now)
	case GrantMusic:
		e.CreditVIP(VIPMusicPack(n), now)
	case GrantChat:
		if !e.HasActivePaidPlan(now) {
			return domain.ErrNoActivePlan
		}
		e.ChatLeft += n
		e.UpdatedAt = now
	default:
		return fmt.Errorf("%w: grant kind %q", domain.ErrInvalidArgument, k)
	}
	return nil
}
