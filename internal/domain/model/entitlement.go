package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
)

// Entitlement is the per-user plan, quota, block and credit state. UserID is
// the stable external id (the Telegram chat id).
type Entitlement struct {
	UserID    int64
	Plan      PlanCode
	PlanUntil *time.Time

	ChatLeft  int
	VideoLeft int
	MusicLeft int
	ImageLeft int
	VoiceLeft int
	DocLeft   int

	LastMonthlyRefillAt *time.Time

	FreeDailyCount int
	FreeDayKey     string
	BlockedUntil   *time.Time

	VIPVideoCredits int
	VIPMusicMinutes int

	ReferralBalance decimal.Decimal
	ReferrerID      *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntitlement returns a fresh FREE record.
func NewEntitlement(userID int64, now time.Time) (*Entitlement, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Entitlement{
		UserID:          userID,
		Plan:            PlanFree,
		FreeDayKey:      DayKey(now),
		ReferralBalance: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Clone returns a deep copy so callers can diff before and after.
func (e *Entitlement) Clone() *Entitlement {
	cp := *e
	cp.PlanUntil = clonePtr(e.PlanUntil)
	cp.LastMonthlyRefillAt = clonePtr(e.LastMonthlyRefillAt)
	cp.BlockedUntil = clonePtr(e.BlockedUntil)
	if e.ReferrerID != nil {
		id := *e.ReferrerID
		cp.ReferrerID = &id
	}
	return &cp
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (e *Entitlement) IsBlocked(now time.Time) bool {
	return e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}

// BlockRemaining is zero when no block is active.
func (e *Entitlement) BlockRemaining(now time.Time) time.Duration {
	if !e.IsBlocked(now) {
		return 0
	}
	return e.BlockedUntil.Sub(now)
}

// HasActivePaidPlan reports a PLUS/PRO plan whose validity has not lapsed.
// A paid plan without plan_until counts as active.
func (e *Entitlement) HasActivePaidPlan(now time.Time) bool {
	if !e.Plan.IsPaid() {
		return false
	}
	return e.PlanUntil == nil || now.Before(*e.PlanUntil)
}

// EffectivePlan is the tier used for consumption decisions: a paid plan whose
// validity lapsed but was not yet reconciled counts as FREE.
func (e *Entitlement) EffectivePlan(now time.Time) PlanCode {
	if e.Plan.IsPaid() && !e.HasActivePaidPlan(now) {
		return PlanFree
	}
	return e.Plan
}

// ApplyBundle overwrites the six monthly counters.
func (e *Entitlement) ApplyBundle(b Bundle) {
	e.ChatLeft = b.Chat
	e.VideoLeft = b.Video
	e.MusicLeft = b.Music
	e.ImageLeft = b.Image
	e.VoiceLeft = b.Voice
	e.DocLeft = b.Doc
}

func (e *Entitlement) ZeroMonthly() { e.ApplyBundle(Bundle{}) }

// Monthly returns the current monthly counters as a bundle.
func (e *Entitlement) Monthly() Bundle {
	return Bundle{
		Chat:  e.ChatLeft,
		Video: e.VideoLeft,
		Music: e.MusicLeft,
		Image: e.ImageLeft,
		Voice: e.VoiceLeft,
		Doc:   e.DocLeft,
	}
}

func (e *Entitlement) HasAnyMonthlyQuota() bool { return !e.Monthly().IsZero() }

// SetReferrer records who invited this user. It is set at most once.
func (e *Entitlement) SetReferrer(referrerID int64) error {
	if referrerID == 0 {
		return domain.ErrInvalidArgument
	}
	if referrerID == e.UserID {
		return domain.ErrSelfReferral
	}
	if e.ReferrerID != nil {
		return domain.ErrReferrerAlreadySet
	}
	e.ReferrerID = &referrerID
	return nil
}

// Validate checks the record invariants.
func (e *Entitlement) Validate() error {
	m := e.Monthly()
	for name, v := range map[string]int{
		"chat_left": m.Chat, "video_left": m.Video, "music_left": m.Music,
		"image_left": m.Image, "voice_left": m.Voice, "doc_left": m.Doc,
		"free_daily_count":  e.FreeDailyCount,
		"vip_video_credits": e.VIPVideoCredits,
		"vip_music_minutes": e.VIPMusicMinutes,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative", domain.ErrInvalidArgument, name)
		}
	}
	if e.Plan.Rank() < 0 {
		return fmt.Errorf("%w: plan %q", domain.ErrInvalidArgument, e.Plan)
	}
	if e.Plan == PlanFree && !m.IsZero() {
		return fmt.Errorf("%w: FREE record holds monthly quota", domain.ErrInvalidArgument)
	}
	if e.ReferralBalance.IsNegative() {
		return fmt.Errorf("%w: referral balance is negative", domain.ErrInvalidArgument)
	}
	return nil
}
