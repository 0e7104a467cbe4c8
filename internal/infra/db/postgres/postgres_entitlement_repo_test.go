//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

func TestEntitlementRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewEntitlementRepo(testPool)
	tm := NewTxManager(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should create once and round-trip every field", func(t *testing.T) {
		cleanup(t)
		e, _ := model.NewEntitlement(1001, now)

		created, err := repo.EnsureExists(ctx, nil, e)
		if err != nil || !created {
			t.Fatalf("expected first EnsureExists to create, got created=%v err=%v", created, err)
		}
		created, err = repo.EnsureExists(ctx, nil, e)
		if err != nil || created {
			t.Fatalf("expected second EnsureExists to be a no-op, got created=%v err=%v", created, err)
		}

		e.ActivatePlan(model.PlanPro, now, model.DefaultCatalog(), model.DefaultPolicy())
		e.VIPVideoCredits = 3
		e.ReferralBalance = decimal.RequireFromString("6.50")
		blocked := now.Add(time.Hour)
		e.BlockedUntil = &blocked
		if err := e.SetReferrer(77); err != nil {
			t.Fatalf("set referrer: %v", err)
		}
		if err := repo.Save(ctx, nil, e); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := repo.FindByUserID(ctx, nil, 1001)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Plan != model.PlanPro || got.ChatLeft != 1200 || got.VIPVideoCredits != 3 {
			t.Errorf("unexpected record: %+v", got)
		}
		if !got.ReferralBalance.Equal(e.ReferralBalance) {
			t.Errorf("expected balance %s, got %s", e.ReferralBalance, got.ReferralBalance)
		}
		if got.PlanUntil == nil || !got.PlanUntil.Equal(*e.PlanUntil) {
			t.Errorf("plan_until mismatch: %v vs %v", got.PlanUntil, e.PlanUntil)
		}
		if got.ReferrerID == nil || *got.ReferrerID != 77 {
			t.Errorf("expected referrer 77, got %v", got.ReferrerID)
		}
	})

	t.Run("should never overwrite a stored referrer", func(t *testing.T) {
		cleanup(t)
		e, _ := model.NewEntitlement(1002, now)
		_ = e.SetReferrer(5)
		if _, err := repo.EnsureExists(ctx, nil, e); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		other := int64(6)
		e.ReferrerID = &other
		if err := repo.Save(ctx, nil, e); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, _ := repo.FindByUserID(ctx, nil, 1002)
		if got.ReferrerID == nil || *got.ReferrerID != 5 {
			t.Errorf("expected referrer to stay 5, got %v", got.ReferrerID)
		}
	})

	t.Run("should return ErrNotFound for a missing user", func(t *testing.T) {
		cleanup(t)
		_, err := repo.FindByUserID(ctx, nil, 404)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should page user ids in order", func(t *testing.T) {
		cleanup(t)
		for _, id := range []int64{30, 10, 20, 40} {
			e, _ := model.NewEntitlement(id, now)
			if _, err := repo.EnsureExists(ctx, nil, e); err != nil {
				t.Fatalf("ensure %d: %v", id, err)
			}
		}
		first, err := repo.ListUserIDs(ctx, nil, 0, 3)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(first) != 3 || first[0] != 10 || first[2] != 30 {
			t.Fatalf("unexpected first page %v", first)
		}
		rest, _ := repo.ListUserIDs(ctx, nil, first[len(first)-1], 3)
		if len(rest) != 1 || rest[0] != 40 {
			t.Fatalf("unexpected second page %v", rest)
		}
		counts, err := repo.CountByPlan(ctx, nil)
		if err != nil || counts[model.PlanFree] != 4 {
			t.Fatalf("expected 4 FREE records, got %v (err=%v)", counts, err)
		}
	})

	t.Run("should serialize concurrent debits through the row lock", func(t *testing.T) {
		cleanup(t)
		e, _ := model.NewEntitlement(1003, now)
		e.ActivatePlan(model.PlanPlus, now, model.DefaultCatalog(), model.DefaultPolicy())
		e.VideoLeft = 5
		if err := repo.Save(ctx, nil, e); err != nil {
			t.Fatalf("save: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		granted := 0
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
					rec, err := repo.FindByUserID(ctx, tx, 1003)
					if err != nil {
						return err
					}
					if _, err := rec.Consume(model.ActionVideo, 1, now, model.DefaultPolicy()); err != nil {
						return err
					}
					return repo.Save(ctx, tx, rec)
				})
				if err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		got, _ := repo.FindByUserID(ctx, nil, 1003)
		if granted != 5 || got.VideoLeft != 0 {
			t.Fatalf("expected exactly 5 grants and 0 left, got %d grants and %d left", granted, got.VideoLeft)
		}
	})
}
