package usecase

import (
	"context"

	"telegram-ai-entitlements/internal/domain/model"
)

// IntentDispatcher delivers notification intents after the state they
// describe has been committed. Delivery is best-effort; the return value is
// the number of intents sent or accepted for sending.
type IntentDispatcher interface {
	Dispatch(ctx context.Context, intents []model.Intent) int
}

type discardDispatcher struct{}

func (discardDispatcher) Dispatch(context.Context, []model.Intent) int { return 0 }

func orDiscard(d IntentDispatcher) IntentDispatcher {
	if d == nil {
		return discardDispatcher{}
	}
	return d
}
