package repository

import (
	"context"

	"telegram-ai-entitlements/internal/domain/model"
)

// -----------------------------
// Entitlements
// -----------------------------

type EntitlementRepository interface {
	// EnsureExists inserts a fresh FREE record for userID if none exists and
	// reports whether it created one.
	EnsureExists(ctx context.Context, tx Tx, e *model.Entitlement) (bool, error)
	// FindByUserID loads a record. With a transactional tx the row is locked
	// until the transaction ends.
	FindByUserID(ctx context.Context, tx Tx, userID int64) (*model.Entitlement, error)
	Save(ctx context.Context, tx Tx, e *model.Entitlement) error
	// ListUserIDs pages user ids in ascending order after afterID.
	ListUserIDs(ctx context.Context, tx Tx, afterID int64, limit int) ([]int64, error)
	CountByPlan(ctx context.Context, tx Tx) (map[model.PlanCode]int, error)
}
