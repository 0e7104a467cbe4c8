package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain/model"
)

// -----------------------------
// Settlements
// -----------------------------

type SettlementRepository interface {
	// Create inserts a pending settlement; a duplicate order id yields
	// domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, s *model.Settlement) error
	// FindByOrderID loads a settlement, locking it under a transactional tx.
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Settlement, error)
	Update(ctx context.Context, tx Tx, s *model.Settlement) error
	// SumPaidByUser totals confirmed payments of a user.
	SumPaidByUser(ctx context.Context, tx Tx, userID int64) (decimal.Decimal, error)
}
