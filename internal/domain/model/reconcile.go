package model

import "time"

// ReconcileReport lists the transitions one Reconcile call applied.
type ReconcileReport struct {
	AnchorInitialized bool
	DailyReset        bool
	Unblocked         bool
	ExpiredToFree     bool
	MonthlyRefilled   bool
	Intents           []NotificationKind
}

func (r ReconcileReport) Changed() bool {
	return r.AnchorInitialized || r.DailyReset || r.Unblocked || r.ExpiredToFree || r.MonthlyRefilled
}

// Reconcile brings the record up to date with now. The steps run in a fixed
// order; expiry precedes refill so a lapsed plan is never refilled. Calling it
// twice with the same now changes nothing the second time.
func (e *Entitlement) Reconcile(now time.Time, cat *Catalog, pol Policy) ReconcileReport {
	var r ReconcileReport

	if e.Plan.IsPaid() && e.LastMonthlyRefillAt == nil {
		e.LastMonthlyRefillAt = timePtr(now)
		r.AnchorInitialized = true
	}

	if today := DayKey(now); e.FreeDayKey != today {
		e.FreeDayKey = today
		e.FreeDailyCount = 0
		r.DailyReset = true
	}

	if e.BlockedUntil != nil && !now.Before(*e.BlockedUntil) {
		e.BlockedUntil = nil
		r.Unblocked = true
		r.Intents = append(r.Intents, NotifyUnblocked)
	}

	if e.Plan.IsPaid() && e.PlanUntil != nil && !now.Before(*e.PlanUntil) {
		e.Plan = PlanFree
		e.PlanUntil = nil
		e.ZeroMonthly()
		r.ExpiredToFree = true
		r.Intents = append(r.Intents, NotifyPlanExpired)
	}

	if e.Plan.IsPaid() && e.LastMonthlyRefillAt != nil && Elapsed(*e.LastMonthlyRefillAt, pol.RefillInterval, now) {
		e.ApplyBundle(cat.Bundle(e.Plan))
		e.LastMonthlyRefillAt = timePtr(now)
		r.MonthlyRefilled = true
	}

	if r.Changed() {
		e.UpdatedAt = now
	}
	return r
}
