package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"telegram-ai-entitlements/internal/config"
	"telegram-ai-entitlements/internal/domain/ports/adapter"
	"telegram-ai-entitlements/internal/infra/metrics"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const breakerName = "telegram"

// sender is the slice of tgbotapi.BotAPI the adapter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RealTelegramBotAdapter delivers plain-text messages through the Bot API.
// Sends go through a circuit breaker so an API outage fails fast instead of
// stalling reconciliation and settlement notifications.
type RealTelegramBotAdapter struct {
	bot     sender
	breaker *gobreaker.CircuitBreaker[tgbotapi.Message]
	log     *zerolog.Logger
}

// NewRealTelegramBotAdapter connects to the Bot API with cfg.Token.
func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, logger), nil
}

func newAdapter(bot sender, logger *zerolog.Logger) *RealTelegramBotAdapter {
	compLog := logger.With().Str("component", "TelegramBot").Logger()
	a := &RealTelegramBotAdapter{bot: bot, log: &compLog}
	a.breaker = gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRecipientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			a.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("telegram circuit breaker state changed")
		},
	})
	return a
}

// isRecipientError reports failures caused by one chat (blocked bot, bad chat
// id) rather than by the API being unhealthy.
func isRecipientError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden
	}
	return false
}

// SendMessage sends text to the chat of telegramID.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	_, err := r.breaker.Execute(func() (tgbotapi.Message, error) {
		return r.bot.Send(msg)
	})
	return err
}
