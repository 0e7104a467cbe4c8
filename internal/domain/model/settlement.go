package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
)

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementPaid    SettlementStatus = "paid"
	SettlementFailed  SettlementStatus = "failed"
)

// DefaultPaidStatuses are provider statuses that count as a confirmed payment.
var DefaultPaidStatuses = []string{"paid", "paid_over", "paid_partial", "success"}

// PurchaseType distinguishes plan activations from VIP packs.
type PurchaseType string

const (
	PurchasePlan     PurchaseType = "PLAN"
	PurchaseVIPVideo PurchaseType = "VIP_VIDEO"
	PurchaseVIPMusic PurchaseType = "VIP_MUSIC"
)

// PurchaseKind is what an order buys: a plan, N video credits or M music minutes.
type PurchaseKind struct {
	Type     PurchaseType
	Plan     PlanCode
	Quantity int
}

func PlanPurchase(code PlanCode) PurchaseKind { return PurchaseKind{Type: PurchasePlan, Plan: code} }

func VIPVideoPack(n int) PurchaseKind { return PurchaseKind{Type: PurchaseVIPVideo, Quantity: n} }

func VIPMusicPack(m int) PurchaseKind { return PurchaseKind{Type: PurchaseVIPMusic, Quantity: m} }

// String renders the wire code: PLAN_PLUS, PLAN_PRO, VIP_VIDEO_3, VIP_MUSIC_5.
func (k PurchaseKind) String() string {
	switch k.Type {
	case PurchasePlan:
		return "PLAN_" + string(k.Plan)
	case PurchaseVIPVideo, PurchaseVIPMusic:
		return string(k.Type) + "_" + strconv.Itoa(k.Quantity)
	default:
		return string(k.Type)
	}
}

// ParsePurchaseKind is the inverse of String.
func ParsePurchaseKind(s string) (PurchaseKind, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(code, "PLAN_"):
		plan := PlanCode(strings.TrimPrefix(code, "PLAN_"))
		if !plan.IsPaid() {
			break
		}
		return PlanPurchase(plan), nil
	case strings.HasPrefix(code, string(PurchaseVIPVideo)+"_"):
		if n, err := strconv.Atoi(strings.TrimPrefix(code, string(PurchaseVIPVideo)+"_")); err == nil && n > 0 {
			return VIPVideoPack(n), nil
		}
	case strings.HasPrefix(code, string(PurchaseVIPMusic)+"_"):
		if m, err := strconv.Atoi(strings.TrimPrefix(code, string(PurchaseVIPMusic)+"_")); err == nil && m > 0 {
			return VIPMusicPack(m), nil
		}
	}
	return PurchaseKind{}, fmt.Errorf("%w: %q", domain.ErrUnknownPurchaseKind, s)
}

// Settlement tracks one payment attempt from purchase intent to confirmation.
type Settlement struct {
	OrderID        string
	UserID         int64
	Kind           PurchaseKind
	Price          decimal.Decimal
	Status         SettlementStatus
	ProviderStatus string
	AmountPaid     decimal.Decimal
	CreatedAt      time.Time
	SettledAt      *time.Time
}

func NewPendingSettlement(orderID string, userID int64, kind PurchaseKind, price decimal.Decimal, now time.Time) (*Settlement, error) {
	if strings.TrimSpace(orderID) == "" || userID == 0 || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if kind.Type == "" {
		return nil, domain.ErrUnknownPurchaseKind
	}
	return &Settlement{
		OrderID:    orderID,
		UserID:     userID,
		Kind:       kind,
		Price:      price,
		Status:     SettlementPending,
		AmountPaid: decimal.Zero,
		CreatedAt:  now,
	}, nil
}

func (s *Settlement) IsPaid() bool { return s.Status == SettlementPaid }

// MarkPaid stamps the confirmation. Paid is terminal.
func (s *Settlement) MarkPaid(providerStatus string, amountPaid decimal.Decimal, now time.Time) {
	s.Status = SettlementPaid
	s.ProviderStatus = providerStatus
	s.AmountPaid = amountPaid
	s.SettledAt = timePtr(now)
}

func (s *Settlement) MarkFailed(providerStatus string, now time.Time) {
	s.Status = SettlementFailed
	s.ProviderStatus = providerStatus
	s.SettledAt = timePtr(now)
}

// ActivatePlan starts a fresh paid period of the policy's plan duration.
func (e *Entitlement) ActivatePlan(code PlanCode, now time.Time, cat *Catalog, pol Policy) {
	e.GrantPlan(code, pol.PlanDuration, now, cat)
}

// CreditVIP adds a purchased VIP pack. Non-VIP kinds are ignored.
func (e *Entitlement) CreditVIP(k PurchaseKind, now time.Time) {
	switch k.Type {
	case PurchaseVIPVideo:
		e.VIPVideoCredits += k.Quantity
	case PurchaseVIPMusic:
		e.VIPMusicMinutes += k.Quantity
	default:
		return
	}
	e.UpdatedAt = now
}

// ReferralReward describes what a referrer received.
type ReferralReward struct {
	Bonus        decimal.Decimal
	PlusGranted  bool
	Bootstrapped bool
}

// ApplyReferralReward credits the referrer of a PLUS buyer. The bonus is always
// added; the temporary PLUS grant needs amountPaid to reach the threshold and
// is skipped when the referrer already holds an unexpired plan of equal or
// higher rank, so a reward never lowers plan rank or shortens a paid period.
func (e *Entitlement) ApplyReferralReward(amountPaid decimal.Decimal, now time.Time, cat *Catalog, pol Policy) ReferralReward {
	r := ReferralReward{Bonus: pol.RefBonus}
	e.ReferralBalance = e.ReferralBalance.Add(pol.RefBonus)
	e.UpdatedAt = now

	if amountPaid.LessThan(pol.RefFreePlusThreshold) || pol.RefFreePlusDays <= 0 {
		return r
	}
	if e.HasActivePaidPlan(now) && e.Plan.Rank() >= PlanPlus.Rank() {
		return r
	}

	e.Plan = PlanPlus
	e.PlanUntil = timePtr(now.Add(pol.refFreePlusDuration()))
	// The grant opens a new period; a stale anchor would refill leftovers
	// on the next reconcile.
	e.LastMonthlyRefillAt = timePtr(now)
	r.PlusGranted = true
	if !e.HasAnyMonthlyQuota() {
		e.ApplyBundle(cat.Bundle(PlanPlus))
		r.Bootstrapped = true
	}
	return r
}
