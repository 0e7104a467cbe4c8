package worker

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/infra/metrics"
)

// IntentSink delivers notification intents synchronously and reports how
// many were sent.
type IntentSink interface {
	Dispatch(ctx context.Context, intents []model.Intent) int
}

// Dispatcher hands intents to a Pool so committed state changes are never
// held up by message delivery. It satisfies the same contract as the sink it
// wraps, reporting how many intents were accepted.
type Dispatcher struct {
	pool *Pool
	sink IntentSink
	log  *zerolog.Logger
}

func NewDispatcher(pool *Pool, sink IntentSink, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, sink: sink, log: logger}
}

func (d *Dispatcher) Dispatch(_ context.Context, intents []model.Intent) int {
	if len(intents) == 0 {
		return 0
	}
	batch := append([]model.Intent(nil), intents...)
	err := d.pool.Submit(func(ctx context.Context) error {
		d.sink.Dispatch(ctx, batch)
		return nil
	})
	if err != nil {
		for _, in := range batch {
			metrics.IncNotification(string(in.Kind), "dropped")
		}
		d.log.Warn().Err(err).Int("intents", len(batch)).Msg("notification batch dropped")
		return 0
	}
	return len(batch)
}
