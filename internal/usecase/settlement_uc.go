// File: internal/usecase/settlement_uc.go
package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
	"telegram-ai-entitlements/internal/infra/logging"
)

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

type SettlementUseCase interface {
	// Quote prices a purchase from the catalog.
	Quote(kind model.PurchaseKind) (decimal.Decimal, error)
	// CreatePending records a purchase intent before the user is sent to pay.
	CreatePending(ctx context.Context, orderID string, userID int64, kind model.PurchaseKind, price decimal.Decimal) (*model.Settlement, error)
	// Settle applies a provider confirmation at most once. A nil amountPaid
	// means the provider did not report one and the recorded price is used.
	// The error is reserved for storage failures; everything else is a
	// SettleResult.
	Settle(ctx context.Context, orderID, providerStatus string, amountPaid *decimal.Decimal) (SettleResult, error)
}

type SettleOutcome string

const (
	SettleApplied SettleOutcome = "applied"
	SettleNoop    SettleOutcome = "noop"
	SettleFailed  SettleOutcome = "failed"
)

// SettleResult describes a settlement attempt. Reason explains a no-op
// (domain.ErrUnknownOrder or domain.ErrDuplicateSettlement).
type SettleResult struct {
	Outcome  SettleOutcome
	Reason   error
	OrderID  string
	UserID   int64
	Kind     model.PurchaseKind
	Referral *model.ReferralReward
}

type settlementUC struct {
	settlements  repository.SettlementRepository
	ents         repository.EntitlementRepository
	tm           repository.TransactionManager
	notify       IntentDispatcher
	cat          *model.Catalog
	pol          model.Policy
	clock        model.Clock
	paidStatuses map[string]struct{}

	log *zerolog.Logger
}

func NewSettlementUseCase(
	settlements repository.SettlementRepository,
	ents repository.EntitlementRepository,
	tm repository.TransactionManager,
	notify IntentDispatcher,
	cat *model.Catalog,
	pol model.Policy,
	clock model.Clock,
	paidStatuses map[string]struct{},
	logger *zerolog.Logger,
) *settlementUC {
	if len(paidStatuses) == 0 {
		paidStatuses = make(map[string]struct{}, len(model.DefaultPaidStatuses))
		for _, s := range model.DefaultPaidStatuses {
			paidStatuses[s] = struct{}{}
		}
	}
	return &settlementUC{
		settlements:  settlements,
		ents:         ents,
		tm:           tm,
		notify:       orDiscard(notify),
		cat:          cat,
		pol:          pol,
		clock:        clock.OrSystem(),
		paidStatuses: paidStatuses,
		log:          logging.Component(logger, "settlement"),
	}
}

func (u *settlementUC) Quote(kind model.PurchaseKind) (decimal.Decimal, error) {
	return u.cat.PriceOf(kind)
}

func (u *settlementUC) CreatePending(ctx context.Context, orderID string, userID int64, kind model.PurchaseKind, price decimal.Decimal) (*model.Settlement, error) {
	if _, err := u.cat.PriceOf(kind); err != nil {
		return nil, err
	}
	s, err := model.NewPendingSettlement(orderID, userID, kind, price, u.clock())
	if err != nil {
		return nil, err
	}
	if err := u.settlements.Create(ctx, repository.NoTX, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		return nil, storeErr("create settlement", err)
	}
	logging.With(logging.WithOrderID(ctx, orderID), u.log).Info().
		Int64("user_id", userID).Str("kind", kind.String()).Str("price", price.String()).
		Msg("pending settlement created")
	return s, nil
}

func (u *settlementUC) isPaidStatus(status string) bool {
	_, ok := u.paidStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

func (u *settlementUC) Settle(ctx context.Context, orderID, providerStatus string, amountPaid *decimal.Decimal) (SettleResult, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Settle")()
	ctx = logging.WithOrderID(ctx, orderID)
	log := logging.With(ctx, u.log)

	res := SettleResult{OrderID: orderID}
	var intents []model.Intent
	var paid decimal.Decimal
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		res = SettleResult{OrderID: orderID}
		intents = nil

		s, err := u.settlements.FindByOrderID(ctx, tx, orderID)
		if errors.Is(err, domain.ErrNotFound) {
			res.Outcome, res.Reason = SettleNoop, domain.ErrUnknownOrder
			return nil
		}
		if err != nil {
			return err
		}
		res.UserID, res.Kind = s.UserID, s.Kind

		if s.IsPaid() {
			res.Outcome, res.Reason = SettleNoop, domain.ErrDuplicateSettlement
			return nil
		}

		now := u.clock()
		if !u.isPaidStatus(providerStatus) {
			s.MarkFailed(providerStatus, now)
			res.Outcome = SettleFailed
			return u.settlements.Update(ctx, tx, s)
		}

		paid = s.Price
		if amountPaid != nil {
			paid = *amountPaid
		}
		s.MarkPaid(providerStatus, paid, now)
		if err := u.settlements.Update(ctx, tx, s); err != nil {
			return err
		}

		buyer, err := u.lockOrCreate(ctx, tx, s.UserID, now)
		if err != nil {
			return err
		}
		switch s.Kind.Type {
		case model.PurchasePlan:
			buyer.ActivatePlan(s.Kind.Plan, now, u.cat, u.pol)
			intents = append(intents, model.NewIntent(buyer.UserID, model.NotifyPlanActivated,
				"plan", string(s.Kind.Plan), "until", buyer.PlanUntil.Format("2006-01-02")))
		case model.PurchaseVIPVideo, model.PurchaseVIPMusic:
			buyer.CreditVIP(s.Kind, now)
			unit := "video credits"
			if s.Kind.Type == model.PurchaseVIPMusic {
				unit = "music minutes"
			}
			intents = append(intents, model.NewIntent(buyer.UserID, model.NotifyVIPCredited,
				"quantity", strconv.Itoa(s.Kind.Quantity), "unit", unit))
		default:
			return domain.ErrUnknownPurchaseKind
		}
		if err := u.ents.Save(ctx, tx, buyer); err != nil {
			return err
		}

		if s.Kind.Type == model.PurchasePlan && s.Kind.Plan == model.PlanPlus && buyer.ReferrerID != nil {
			reward, in, err := u.rewardReferrer(ctx, tx, *buyer.ReferrerID, paid, now)
			if err != nil {
				return err
			}
			res.Referral = reward
			intents = append(intents, in...)
		}
		res.Outcome = SettleApplied
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("settlement aborted")
		return SettleResult{OrderID: orderID}, storeErr("settle", err)
	}

	switch res.Outcome {
	case SettleNoop:
		log.Warn().AnErr("reason", res.Reason).Str("provider_status", providerStatus).Msg("settlement ignored")
	case SettleFailed:
		log.Info().Int64("user_id", res.UserID).Str("provider_status", providerStatus).Msg("settlement marked failed")
	case SettleApplied:
		log.Info().Int64("user_id", res.UserID).Str("kind", res.Kind.String()).Str("amount_paid", paid.String()).Msg("settlement applied")
		u.notify.Dispatch(ctx, intents)
	}
	return res, nil
}

func (u *settlementUC) lockOrCreate(ctx context.Context, tx repository.Tx, userID int64, now time.Time) (*model.Entitlement, error) {
	fresh, err := model.NewEntitlement(userID, now)
	if err != nil {
		return nil, err
	}
	if _, err := u.ents.EnsureExists(ctx, tx, fresh); err != nil {
		return nil, err
	}
	return u.ents.FindByUserID(ctx, tx, userID)
}

// rewardReferrer credits the referrer of a PLUS buyer. A referrer id that no
// longer resolves is skipped.
func (u *settlementUC) rewardReferrer(ctx context.Context, tx repository.Tx, referrerID int64, amountPaid decimal.Decimal, now time.Time) (*model.ReferralReward, []model.Intent, error) {
	ref, err := u.ents.FindByUserID(ctx, tx, referrerID)
	if errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, u.log).Warn().Int64("referrer_id", referrerID).Msg("referrer not found; cascade skipped")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	reward := ref.ApplyReferralReward(amountPaid, now, u.cat, u.pol)
	if err := u.ents.Save(ctx, tx, ref); err != nil {
		return nil, nil, err
	}
	kv := []string{"bonus", reward.Bonus.StringFixed(2)}
	if reward.PlusGranted {
		kv = append(kv, "until", ref.PlanUntil.Format("2006-01-02"))
	}
	return &reward, []model.Intent{model.NewIntent(referrerID, model.NotifyReferralReward, kv...)}, nil
}
