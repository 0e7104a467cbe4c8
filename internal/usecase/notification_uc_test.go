//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/usecase"
)

func TestNotificationUseCase_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should render each intent and record the delivery", func(t *testing.T) {
		// --- Arrange ---
		bot := &MockTelegramBot{}
		logs := &MockNotificationLogRepo{}
		uc := usecase.NewNotificationUseCase(bot, keyRenderer{}, logs, newTestLogger())

		// --- Act ---
		sent := uc.Dispatch(ctx, []model.Intent{
			model.NewIntent(1, model.NotifyUnblocked),
			model.NewIntent(2, model.NotifyReferralReward, "bonus", "3.00"),
			model.NewIntent(3, model.NotifyReferralReward, "bonus", "3.00", "until", "2025-03-16"),
		})

		// --- Assert ---
		if sent != 3 {
			t.Fatalf("expected 3 sent, got %d", sent)
		}
		want := []string{"notify.unblocked", "notify.referral_reward", "notify.referral_plus"}
		for i, msg := range bot.Sent {
			if msg.Text != want[i] {
				t.Errorf("message %d: expected %q, got %q", i, want[i], msg.Text)
			}
		}
		if len(logs.Entries) != 3 || !logs.Entries[0].Delivered {
			t.Errorf("expected 3 delivered log entries, got %+v", logs.Entries)
		}
	})

	t.Run("should keep going after a failed send without retrying", func(t *testing.T) {
		// --- Arrange ---
		calls := 0
		bot := &MockTelegramBot{SendMessageFunc: func(ctx context.Context, userID int64, text string) error {
			calls++
			if userID == 1 {
				return errors.New("bot was blocked by the user")
			}
			return nil
		}}
		logs := &MockNotificationLogRepo{}
		uc := usecase.NewNotificationUseCase(bot, keyRenderer{}, logs, newTestLogger())

		// --- Act ---
		sent := uc.Dispatch(ctx, []model.Intent{
			model.NewIntent(1, model.NotifyPlanExpired, "plan", "PLUS"),
			model.NewIntent(2, model.NotifyVIPCredited, "quantity", "3", "unit", "video credits"),
		})

		// --- Assert ---
		if sent != 1 || calls != 2 {
			t.Fatalf("expected 1 sent out of 2 calls, got %d/%d", sent, calls)
		}
		if logs.Entries[0].Delivered || logs.Entries[0].ErrMsg == "" {
			t.Errorf("expected the failure recorded, got %+v", logs.Entries[0])
		}
	})

	t.Run("should drop intents once the context is done", func(t *testing.T) {
		bot := &MockTelegramBot{}
		uc := usecase.NewNotificationUseCase(bot, keyRenderer{}, nil, newTestLogger())
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if sent := uc.Dispatch(cctx, []model.Intent{model.NewIntent(1, model.NotifyUnblocked)}); sent != 0 {
			t.Errorf("expected nothing sent, got %d", sent)
		}
		if len(bot.Sent) != 0 {
			t.Error("expected no messages")
		}
	})
}
