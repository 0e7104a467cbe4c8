package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

// Compile-time check
var _ ReferralUseCase = (*referralUC)(nil)

type ReferralUseCase interface {
	// Attach records who invited userID. The referrer must already have a
	// record and a referrer can be set only once.
	Attach(ctx context.Context, userID, referrerID int64) error
}

type referralUC struct {
	ents  repository.EntitlementRepository
	tm    repository.TransactionManager
	clock model.Clock
	log   *zerolog.Logger
}

func NewReferralUseCase(ents repository.EntitlementRepository, tm repository.TransactionManager, clock model.Clock, logger *zerolog.Logger) *referralUC {
	return &referralUC{ents: ents, tm: tm, clock: clock.OrSystem(), log: logger}
}

func (u *referralUC) Attach(ctx context.Context, userID, referrerID int64) error {
	if userID <= 0 || referrerID <= 0 {
		return domain.ErrInvalidArgument
	}
	if userID == referrerID {
		return domain.ErrSelfReferral
	}
	var domainErr error
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.clock()
		fresh, err := model.NewEntitlement(userID, now)
		if err != nil {
			return err
		}
		if _, err := u.ents.EnsureExists(ctx, tx, fresh); err != nil {
			return err
		}
		e, err := u.ents.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := u.ents.FindByUserID(ctx, tx, referrerID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				domainErr = domain.ErrNotFound
				return nil
			}
			return err
		}
		if domainErr = e.SetReferrer(referrerID); domainErr != nil {
			return nil
		}
		e.UpdatedAt = now
		return u.ents.Save(ctx, tx, e)
	})
	if err != nil {
		return storeErr("attach referrer", err)
	}
	if domainErr == nil {
		u.log.Info().Int64("user_id", userID).Int64("referrer_id", referrerID).Msg("referrer attached")
	}
	return domainErr
}
