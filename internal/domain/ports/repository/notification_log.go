package repository

import (
	"context"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records a delivery attempt and its outcome.
	Save(ctx context.Context, tx Tx, userID int64, kind string, delivered bool, errMsg string) error
	// CountSince returns attempts of kind for userID since the unix second.
	CountSince(ctx context.Context, tx Tx, userID int64, kind string, sinceUnix int64) (int, error)
}
