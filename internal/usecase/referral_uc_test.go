//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/usecase"
)

func TestReferralUseCase_Attach(t *testing.T) {
	ctx := context.Background()

	t.Run("should attach an existing referrer to a new user", func(t *testing.T) {
		ents := NewMockEntitlementRepo(freeRecord(100))
		uc := usecase.NewReferralUseCase(ents, NewMockTxManager(), fixedClock(testNow), newTestLogger())

		if err := uc.Attach(ctx, 200, 100); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := ents.Get(200)
		if got == nil || got.ReferrerID == nil || *got.ReferrerID != 100 {
			t.Errorf("expected referrer 100, got %+v", got)
		}
	})

	t.Run("should refuse to replace a referrer", func(t *testing.T) {
		user := freeRecord(200)
		user.ReferrerID = ptrInt64(100)
		ents := NewMockEntitlementRepo(freeRecord(100), freeRecord(300), user)
		uc := usecase.NewReferralUseCase(ents, NewMockTxManager(), fixedClock(testNow), newTestLogger())

		if err := uc.Attach(ctx, 200, 300); !errors.Is(err, domain.ErrReferrerAlreadySet) {
			t.Fatalf("expected ErrReferrerAlreadySet, got %v", err)
		}
		if *ents.Get(200).ReferrerID != 100 {
			t.Error("expected the original referrer to stay")
		}
	})

	t.Run("should reject unknown and self referrers", func(t *testing.T) {
		uc := usecase.NewReferralUseCase(NewMockEntitlementRepo(), NewMockTxManager(), fixedClock(testNow), newTestLogger())

		if err := uc.Attach(ctx, 200, 999); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := uc.Attach(ctx, 200, 200); !errors.Is(err, domain.ErrSelfReferral) {
			t.Errorf("expected ErrSelfReferral, got %v", err)
		}
	})
}
