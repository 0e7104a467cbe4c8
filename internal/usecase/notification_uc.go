package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/adapter"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/metrics"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

type NotificationUseCase interface {
	IntentDispatcher
}

// Renderer turns a message key and named arguments into user-facing text.
type Renderer interface {
	Render(key string, args map[string]string) string
}

type notificationUC struct {
	bot  adapter.TelegramBotAdapter
	tr   Renderer
	logs repository.NotificationLogRepository
	log  *zerolog.Logger
}

func NewNotificationUseCase(bot adapter.TelegramBotAdapter, tr Renderer, logs repository.NotificationLogRepository, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{bot: bot, tr: tr, logs: logs, log: logger}
}

// Dispatch sends each intent once. Failures are logged and recorded, never
// retried.
func (n *notificationUC) Dispatch(ctx context.Context, intents []model.Intent) int {
	sent := 0
	for _, in := range intents {
		if ctx.Err() != nil {
			metrics.IncNotification(string(in.Kind), "dropped")
			continue
		}
		err := n.bot.SendMessage(ctx, in.UserID, n.tr.Render(messageKey(in), in.Args))
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
			metrics.IncNotification(string(in.Kind), "failed")
			n.log.Warn().Err(err).Int64("user_id", in.UserID).Str("kind", string(in.Kind)).Msg("notification failed")
		} else {
			sent++
			metrics.IncNotification(string(in.Kind), "sent")
		}
		if n.logs != nil {
			if lerr := n.logs.Save(ctx, repository.NoTX, in.UserID, string(in.Kind), err == nil, errMsg); lerr != nil {
				n.log.Warn().Err(lerr).Int64("user_id", in.UserID).Msg("notification log write failed")
			}
		}
	}
	return sent
}

func messageKey(in model.Intent) string {
	if in.Kind == model.NotifyReferralReward && in.Args["until"] != "" {
		return "notify.referral_plus"
	}
	return "notify." + string(in.Kind)
}
