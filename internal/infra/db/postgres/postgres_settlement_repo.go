package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

var _ repository.SettlementRepository = (*settlementRepo)(nil)

type settlementRepo struct {
	pool *pgxpool.Pool
}

func NewSettlementRepo(pool *pgxpool.Pool) *settlementRepo {
	return &settlementRepo{pool: pool}
}

func (r *settlementRepo) Create(ctx context.Context, tx repository.Tx, s *model.Settlement) error {
	const q = `
INSERT INTO settlements (order_id, user_id, kind, price, status, provider_status, amount_paid, created_at, settled_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8, $9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.OrderID, s.UserID, s.Kind.String(), s.Price.String(), string(s.Status),
		s.ProviderStatus, s.AmountPaid.String(), s.CreatedAt, s.SettledAt)
	return mapErr(err)
}

func (r *settlementRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Settlement, error) {
	q := `
SELECT order_id, user_id, kind, price::text, status, provider_status, amount_paid::text, created_at, settled_at
  FROM settlements WHERE order_id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", orderID)
	if err != nil {
		return nil, err
	}
	s, err := scanSettlement(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (r *settlementRepo) Update(ctx context.Context, tx repository.Tx, s *model.Settlement) error {
	const q = `
UPDATE settlements
   SET status=$2, provider_status=$3, amount_paid=$4::numeric, settled_at=$5
 WHERE order_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, s.OrderID, string(s.Status), s.ProviderStatus, s.AmountPaid.String(), s.SettledAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *settlementRepo) SumPaidByUser(ctx context.Context, tx repository.Tx, userID int64) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(amount_paid), 0)::text FROM settlements WHERE user_id=$1 AND status='paid';`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	var total string
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, mapErr(err)
	}
	return decimal.NewFromString(total)
}

func scanSettlement(row pgx.Row) (*model.Settlement, error) {
	var (
		s                 model.Settlement
		kind, status      string
		price, amountPaid string
	)
	if err := row.Scan(&s.OrderID, &s.UserID, &kind, &price, &status, &s.ProviderStatus, &amountPaid, &s.CreatedAt, &s.SettledAt); err != nil {
		return nil, err
	}
	var err error
	if s.Kind, err = model.ParsePurchaseKind(kind); err != nil {
		return nil, fmt.Errorf("%w: kind %q", domain.ErrReadDatabaseRow, kind)
	}
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("%w: price %q", domain.ErrReadDatabaseRow, price)
	}
	if s.AmountPaid, err = decimal.NewFromString(amountPaid); err != nil {
		return nil, fmt.Errorf("%w: amount_paid %q", domain.ErrReadDatabaseRow, amountPaid)
	}
	s.Status = model.SettlementStatus(status)
	return &s, nil
}
