package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/logging"
)

// Compile-time check
var _ AdminUseCase = (*adminUC)(nil)

// AdminUseCase holds operator overrides. Both operations need an existing
// record and run in one row-locked transaction.
type AdminUseCase interface {
	// GrantCredits gifts n video credits, music minutes or chat messages.
	GrantCredits(ctx context.Context, userID int64, kind model.GrantKind, n int) (*model.Entitlement, error)
	// SetPlan puts userID on plan for days days. FREE clears the plan and its
	// monthly quota; PLUS and PRO start a fresh period with a full bundle.
	SetPlan(ctx context.Context, userID int64, plan model.PlanCode, days int) (*model.Entitlement, error)
}

type adminUC struct {
	ents   repository.EntitlementRepository
	tm     repository.TransactionManager
	notify IntentDispatcher
	cat    *model.Catalog
	clock  model.Clock
	log    *zerolog.Logger
}

func NewAdminUseCase(ents repository.EntitlementRepository, tm repository.TransactionManager, notify IntentDispatcher,
	cat *model.Catalog, clock model.Clock, logger *zerolog.Logger) *adminUC {
	return &adminUC{
		ents:   ents,
		tm:     tm,
		notify: orDiscard(notify),
		cat:    cat,
		clock:  clock.OrSystem(),
		log:    logging.Component(logger, "admin"),
	}
}

func (u *adminUC) GrantCredits(ctx context.Context, userID int64, kind model.GrantKind, n int) (*model.Entitlement, error) {
	defer logging.TraceDuration(u.log, "AdminUC.GrantCredits")()
	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithUserID(ctx, userID)

	var intents []model.Intent
	e, err := u.update(ctx, userID, func(e *model.Entitlement, now time.Time) error {
		intents = nil
		if err := e.Gift(kind, n, now); err != nil {
			return err
		}
		switch kind {
		case model.GrantVideo:
			intents = append(intents, model.NewIntent(userID, model.NotifyVIPCredited,
				"quantity", strconv.Itoa(n), "unit", "video credits"))
		case model.GrantMusic:
			intents = append(intents, model.NewIntent(userID, model.NotifyVIPCredited,
				"quantity", strconv.Itoa(n), "unit", "music minutes"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.With(ctx, u.log).Info().Str("kind", string(kind)).Int("quantity", n).Msg("credits granted")
	u.notify.Dispatch(ctx, intents)
	return e, nil
}

func (u *adminUC) SetPlan(ctx context.Context, userID int64, plan model.PlanCode, days int) (*model.Entitlement, error) {
	defer logging.TraceDuration(u.log, "AdminUC.SetPlan")()
	if userID <= 0 || plan.Rank() < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if days < 1 || days > model.MaxGrantDays {
		return nil, fmt.Errorf("%w: days must be 1..%d", domain.ErrInvalidArgument, model.MaxGrantDays)
	}
	ctx = logging.WithUserID(ctx, userID)

	var intents []model.Intent
	e, err := u.update(ctx, userID, func(e *model.Entitlement, now time.Time) error {
		intents = nil
		if !plan.IsPaid() {
			e.DowngradeToFree(now)
			return nil
		}
		e.GrantPlan(plan, time.Duration(days)*24*time.Hour, now, u.cat)
		intents = append(intents, model.NewIntent(userID, model.NotifyPlanActivated,
			"plan", string(plan), "until", e.PlanUntil.Format("2006-01-02")))
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.With(ctx, u.log).Info().Str("plan", string(plan)).Int("days", days).Msg("plan set")
	u.notify.Dispatch(ctx, intents)
	return e, nil
}

// update locks the record, applies fn and saves. Domain errors from fn are
// returned as is; store failures become ErrTransientStore.
func (u *adminUC) update(ctx context.Context, userID int64, fn func(e *model.Entitlement, now time.Time) error) (*model.Entitlement, error) {
	var (
		out       *model.Entitlement
		domainErr error
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		out, domainErr = nil, nil
		e, err := u.ents.FindByUserID(ctx, tx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			domainErr = domain.ErrNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if domainErr = fn(e, u.clock()); domainErr != nil {
			return nil
		}
		if err := u.ents.Save(ctx, tx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		logging.With(ctx, u.log).Error().Err(err).Msg("admin update aborted")
		return nil, storeErr("admin update", err)
	}
	return out, domainErr
}
