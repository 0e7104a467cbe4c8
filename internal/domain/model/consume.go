package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-ai-entitlements/internal/domain"
)

// ActionKind is a quota-consuming user action.
type ActionKind string

const (
	ActionChat     ActionKind = "chat"
	ActionVideo    ActionKind = "video"
	ActionMusic    ActionKind = "music"
	ActionImage    ActionKind = "image"
	ActionVoice    ActionKind = "voice"
	ActionDocument ActionKind = "document"
)

var actionKinds = []ActionKind{ActionChat, ActionVideo, ActionMusic, ActionImage, ActionVoice, ActionDocument}

func ActionKinds() []ActionKind { return append([]ActionKind(nil), actionKinds...) }

func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range actionKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownActionKind, s)
}

// Balance names the counter a successful consumption was charged to.
type Balance string

const (
	BalanceFreeDaily Balance = "free_daily"
	BalanceChat      Balance = "chat_left"
	BalanceVideo     Balance = "video_left"
	BalanceMusic     Balance = "music_left"
	BalanceImage     Balance = "image_left"
	BalanceVoice     Balance = "voice_left"
	BalanceDoc       Balance = "doc_left"
	BalanceVIPVideo  Balance = "vip_video_credits"
	BalanceVIPMusic  Balance = "vip_music_minutes"
)

// Upsell is the purchase that would unlock a denied action. Empty means the
// user can only wait.
type Upsell string

const (
	UpsellNone     Upsell = ""
	UpsellPlus     Upsell = "PLUS"
	UpsellPro      Upsell = "PRO"
	UpsellVIPVideo Upsell = "VIP_VIDEO"
	UpsellVIPMusic Upsell = "VIP_MUSIC"
)

// Decision is the outcome of a consumption attempt. Changed is set whenever the
// record was mutated, including the block applied on a denial, and tells the
// caller the record must be persisted.
type Decision struct {
	Kind      ActionKind
	Amount    int
	Balance   Balance
	Remaining int
	Changed   bool
}

// DenyError is a structured denial. It matches domain.ErrBlocked or
// domain.ErrQuotaExhausted with errors.Is; a denial that also started a
// block matches both.
type DenyError struct {
	Reason     error
	Kind       ActionKind
	RetryAfter time.Duration
	Upsell     Upsell
}

func (e *DenyError) Error() string {
	msg := fmt.Sprintf("%s denied: %v", e.Kind, e.Reason)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter.Round(time.Second))
	}
	if e.Upsell != UpsellNone {
		msg += fmt.Sprintf(" (upsell %s)", e.Upsell)
	}
	return msg
}

func (e *DenyError) Unwrap() []error {
	errs := []error{e.Reason}
	if e.RetryAfter > 0 && e.Reason != domain.ErrBlocked {
		errs = append(errs, domain.ErrBlocked)
	}
	return errs
}

// Consume decides whether kind may be performed amount times and, if so,
// debits exactly one balance. On denial no balance is touched; the only
// mutations a denial can carry are the stale day-key reset and the FREE
// block, both reported through Decision.Changed.
func (e *Entitlement) Consume(kind ActionKind, amount int, now time.Time, pol Policy) (Decision, error) {
	d := Decision{Kind: kind, Amount: amount}
	if amount < 1 {
		return d, fmt.Errorf("%w: got %d", domain.ErrInvalidAmount, amount)
	}
	if _, err := ParseActionKind(string(kind)); err != nil {
		return d, err
	}

	if e.IsBlocked(now) {
		return d, &DenyError{
			Reason:     domain.ErrBlocked,
			Kind:       kind,
			RetryAfter: e.BlockRemaining(now),
			Upsell:     UpsellPlus,
		}
	}

	plan := e.EffectivePlan(now)

	switch kind {
	case ActionChat:
		if plan == PlanFree {
			return e.consumeFreeChat(d, now, pol)
		}
		return e.debit(d, &e.ChatLeft, BalanceChat, nextTier(plan))
	case ActionVideo:
		return e.consumeWithVIP(d, plan, &e.VIPVideoCredits, BalanceVIPVideo, &e.VideoLeft, BalanceVideo, UpsellVIPVideo)
	case ActionMusic:
		return e.consumeWithVIP(d, plan, &e.VIPMusicMinutes, BalanceVIPMusic, &e.MusicLeft, BalanceMusic, UpsellVIPMusic)
	case ActionImage:
		return e.consumeMonthly(d, plan, &e.ImageLeft, BalanceImage)
	case ActionVoice:
		return e.consumeMonthly(d, plan, &e.VoiceLeft, BalanceVoice)
	default:
		return e.consumeMonthly(d, plan, &e.DocLeft, BalanceDoc)
	}
}

func (e *Entitlement) consumeFreeChat(d Decision, now time.Time, pol Policy) (Decision, error) {
	if today := DayKey(now); e.FreeDayKey != today {
		e.FreeDayKey = today
		e.FreeDailyCount = 0
		d.Changed = true
	}
	if e.FreeDailyCount+d.Amount > pol.FreeDailyLimit {
		until := now.Add(pol.BlockDuration)
		e.BlockedUntil = &until
		d.Changed = true
		return d, &DenyError{
			Reason:     domain.ErrQuotaExhausted,
			Kind:       d.Kind,
			RetryAfter: pol.BlockDuration,
			Upsell:     UpsellPlus,
		}
	}
	e.FreeDailyCount += d.Amount
	d.Balance = BalanceFreeDaily
	d.Remaining = pol.FreeDailyLimit - e.FreeDailyCount
	d.Changed = true
	return d, nil
}

func (e *Entitlement) consumeWithVIP(d Decision, plan PlanCode, vip *int, vipBal Balance, monthly *int, monthlyBal Balance, upsell Upsell) (Decision, error) {
	if *vip >= d.Amount {
		*vip -= d.Amount
		d.Balance = vipBal
		d.Remaining = *vip
		d.Changed = true
		return d, nil
	}
	if plan.IsPaid() && *monthly >= d.Amount {
		*monthly -= d.Amount
		d.Balance = monthlyBal
		d.Remaining = *monthly
		d.Changed = true
		return d, nil
	}
	return d, &DenyError{Reason: domain.ErrQuotaExhausted, Kind: d.Kind, Upsell: upsell}
}

func (e *Entitlement) consumeMonthly(d Decision, plan PlanCode, monthly *int, bal Balance) (Decision, error) {
	if !plan.IsPaid() {
		return d, &DenyError{Reason: domain.ErrQuotaExhausted, Kind: d.Kind, Upsell: UpsellPlus}
	}
	return e.debit(d, monthly, bal, nextTier(plan))
}

func (e *Entitlement) debit(d Decision, counter *int, bal Balance, upsell Upsell) (Decision, error) {
	if *counter < d.Amount {
		return d, &DenyError{Reason: domain.ErrQuotaExhausted, Kind: d.Kind, Upsell: upsell}
	}
	*counter -= d.Amount
	d.Balance = bal
	d.Remaining = *counter
	d.Changed = true
	return d, nil
}

func nextTier(p PlanCode) Upsell {
	switch p {
	case PlanFree:
		return UpsellPlus
	case PlanPlus:
		return UpsellPro
	default:
		return UpsellNone
	}
}
