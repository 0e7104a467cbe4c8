//go:build !integration

package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-ai-entitlements/internal/domain"
)

func TestParsePurchaseKind(t *testing.T) {
	cases := []struct {
		in      string
		want    PurchaseKind
		wantErr bool
	}{
		{in: "PLAN_PLUS", want: PlanPurchase(PlanPlus)},
		{in: "plan_pro", want: PlanPurchase(PlanPro)},
		{in: "VIP_VIDEO_3", want: VIPVideoPack(3)},
		{in: "VIP_MUSIC_5", want: VIPMusicPack(5)},
		{in: "PLAN_FREE", wantErr: true},
		{in: "VIP_VIDEO_0", wantErr: true},
		{in: "VIP_MUSIC_x", wantErr: true},
		{in: "GIFT", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePurchaseKind(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnknownPurchaseKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) PurchaseKind {
	t.Helper()
	k, err := ParsePurchaseKind(s)
	require.NoError(t, err)
	return k
}

func TestCatalog_PriceOf(t *testing.T) {
	cat := DefaultCatalog()

	price, err := cat.PriceOf(PlanPurchase(PlanPlus))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(12)))

	price, err = cat.PriceOf(VIPVideoPack(3))
	require.NoError(t, err)
	assert.Equal(t, "49.99", price.StringFixed(2))

	_, err = cat.PriceOf(VIPMusicPack(4))
	assert.ErrorIs(t, err, domain.ErrUnknownPurchaseKind)

	assert.Equal(t, []int{1, 3, 5}, cat.VIPVideoPacks())
	assert.Equal(t, []int{3, 5}, cat.VIPMusicPacks())
}

func TestActivatePlanAndCreditVIP(t *testing.T) {
	cat := DefaultCatalog()
	pol := DefaultPolicy()
	e := freeRecord(t)

	e.ActivatePlan(PlanPlus, testNow, cat, pol)
	assert.Equal(t, PlanPlus, e.Plan)
	assert.Equal(t, testNow.Add(30*24*time.Hour), *e.PlanUntil)
	assert.Equal(t, cat.Bundle(PlanPlus), e.Monthly())
	assert.Equal(t, testNow, *e.LastMonthlyRefillAt)

	e.CreditVIP(VIPVideoPack(3), testNow)
	e.CreditVIP(VIPMusicPack(5), testNow)
	e.CreditVIP(PlanPurchase(PlanPro), testNow)
	assert.Equal(t, 3, e.VIPVideoCredits)
	assert.Equal(t, 5, e.VIPMusicMinutes)
	assert.Equal(t, PlanPlus, e.Plan)
}

func TestApplyReferralReward(t *testing.T) {
	cat := DefaultCatalog()
	pol := DefaultPolicy()
	paid := decimal.NewFromInt(12)

	t.Run("should grant bonus and a week of PLUS to a FREE referrer", func(t *testing.T) {
		e := freeRecord(t)
		r := e.ApplyReferralReward(paid, testNow, cat, pol)

		assert.True(t, r.PlusGranted)
		assert.True(t, r.Bootstrapped)
		assert.Equal(t, "3", e.ReferralBalance.String())
		assert.Equal(t, PlanPlus, e.Plan)
		assert.Equal(t, testNow.Add(7*24*time.Hour), *e.PlanUntil)
		assert.Equal(t, cat.Bundle(PlanPlus), e.Monthly())
	})

	t.Run("should only add the bonus below the threshold", func(t *testing.T) {
		e := freeRecord(t)
		r := e.ApplyReferralReward(decimal.RequireFromString("4.99"), testNow, cat, pol)

		assert.False(t, r.PlusGranted)
		assert.Equal(t, PlanFree, e.Plan)
		assert.Equal(t, "3", e.ReferralBalance.String())
	})

	t.Run("should never downgrade an active PRO referrer", func(t *testing.T) {
		e := paidRecord(t, PlanPro)
		until := *e.PlanUntil
		r := e.ApplyReferralReward(paid, testNow, cat, pol)

		assert.False(t, r.PlusGranted)
		assert.Equal(t, PlanPro, e.Plan)
		assert.Equal(t, until, *e.PlanUntil)
		assert.Equal(t, "3", e.ReferralBalance.String())
	})

	t.Run("should not shorten an active PLUS period", func(t *testing.T) {
		e := paidRecord(t, PlanPlus)
		until := *e.PlanUntil
		r := e.ApplyReferralReward(paid, testNow, cat, pol)

		assert.False(t, r.PlusGranted)
		assert.Equal(t, until, *e.PlanUntil)
	})

	t.Run("should grant PLUS over an expired PRO without reseeding leftovers", func(t *testing.T) {
		e := paidRecord(t, PlanPro)
		past := testNow.Add(-time.Hour)
		e.PlanUntil = &past
		e.ChatLeft = 5

		r := e.ApplyReferralReward(paid, testNow, cat, pol)

		assert.True(t, r.PlusGranted)
		assert.False(t, r.Bootstrapped)
		assert.Equal(t, PlanPlus, e.Plan)
		assert.Equal(t, 5, e.ChatLeft)
	})

	t.Run("should restart the refill anchor so leftovers are not refilled", func(t *testing.T) {
		e := paidRecord(t, PlanPlus)
		lapsed := testNow.Add(-time.Hour)
		stale := testNow.Add(-40 * 24 * time.Hour)
		e.PlanUntil = &lapsed
		e.LastMonthlyRefillAt = &stale
		e.ChatLeft = 5

		r := e.ApplyReferralReward(paid, testNow, cat, pol)
		require.True(t, r.PlusGranted)
		require.False(t, r.Bootstrapped)
		assert.Equal(t, testNow, *e.LastMonthlyRefillAt)

		rep := e.Reconcile(testNow, cat, pol)
		assert.False(t, rep.MonthlyRefilled)
		assert.Equal(t, 5, e.ChatLeft)
		assert.Equal(t, PlanPlus, e.Plan)
	})
}

func TestEntitlement_SetReferrer(t *testing.T) {
	e := freeRecord(t)

	assert.ErrorIs(t, e.SetReferrer(e.UserID), domain.ErrSelfReferral)
	require.NoError(t, e.SetReferrer(7))
	assert.ErrorIs(t, e.SetReferrer(8), domain.ErrReferrerAlreadySet)
	assert.Equal(t, int64(7), *e.ReferrerID)
}
