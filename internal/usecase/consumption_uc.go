// File: internal/usecase/consumption_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/logging"
)

// Compile-time check
var _ ConsumptionUseCase = (*consumptionUC)(nil)

type ConsumptionUseCase interface {
	// AuthorizeAndConsume debits amount units of kind from the user's record or
	// returns a *model.DenyError. Storage failures and timeouts surface as
	// domain.ErrTransientStore and never debit anything.
	AuthorizeAndConsume(ctx context.Context, userID int64, kind model.ActionKind, amount int) (model.Decision, error)
	// Balance returns the record as the next reconciliation would leave it,
	// without persisting anything.
	Balance(ctx context.Context, userID int64) (*model.Entitlement, error)
}

type consumptionUC struct {
	ents    repository.EntitlementRepository
	tm      repository.TransactionManager
	cat     *model.Catalog
	pol     model.Policy
	clock   model.Clock
	timeout time.Duration

	log *zerolog.Logger
}

func NewConsumptionUseCase(
	ents repository.EntitlementRepository,
	tm repository.TransactionManager,
	cat *model.Catalog,
	pol model.Policy,
	clock model.Clock,
	timeout time.Duration,
	logger *zerolog.Logger,
) *consumptionUC {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &consumptionUC{
		ents:    ents,
		tm:      tm,
		cat:     cat,
		pol:     pol,
		clock:   clock.OrSystem(),
		timeout: timeout,
		log:     logging.Component(logger, "consumption"),
	}
}

func (u *consumptionUC) AuthorizeAndConsume(ctx context.Context, userID int64, kind model.ActionKind, amount int) (model.Decision, error) {
	defer logging.TraceDuration(u.log, "ConsumptionUC.AuthorizeAndConsume")()

	d := model.Decision{Kind: kind, Amount: amount}
	if userID <= 0 {
		return d, domain.ErrInvalidArgument
	}
	if amount < 1 {
		return d, fmt.Errorf("%w: got %d", domain.ErrInvalidAmount, amount)
	}
	if _, err := model.ParseActionKind(string(kind)); err != nil {
		return d, err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var denial error
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.clock()
		e, err := u.loadForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		d, denial = e.Consume(kind, amount, now, u.pol)
		if !d.Changed {
			return nil
		}
		e.UpdatedAt = now
		return u.ents.Save(ctx, tx, e)
	})
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Int64("user_id", userID).Str("kind", string(kind)).Msg("consume aborted")
		return model.Decision{Kind: kind, Amount: amount}, storeErr("consume", err)
	}
	if denial != nil {
		var deny *model.DenyError
		if errors.As(denial, &deny) && errors.Is(denial, domain.ErrBlocked) {
			logging.With(ctx, u.log).Debug().Int64("user_id", userID).Dur("retry_after", deny.RetryAfter).Msg("consume denied: blocked")
		}
		return d, denial
	}
	return d, nil
}

// loadForUpdate creates the record on first contact and returns it locked.
func (u *consumptionUC) loadForUpdate(ctx context.Context, tx repository.Tx, userID int64, now time.Time) (*model.Entitlement, error) {
	fresh, err := model.NewEntitlement(userID, now)
	if err != nil {
		return nil, err
	}
	if _, err := u.ents.EnsureExists(ctx, tx, fresh); err != nil {
		return nil, err
	}
	return u.ents.FindByUserID(ctx, tx, userID)
}

func (u *consumptionUC) Balance(ctx context.Context, userID int64) (*model.Entitlement, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	now := u.clock()
	e, err := u.ents.FindByUserID(ctx, repository.NoTX, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return model.NewEntitlement(userID, now)
	case err != nil:
		return nil, storeErr("balance", err)
	}
	view := e.Clone()
	view.Reconcile(now, u.cat, u.pol)
	return view, nil
}
