package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-ai-entitlements/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, userID int64, kind string, delivered bool, errMsg string) error {
	const q = `
INSERT INTO notification_log (id, user_id, kind, delivered, error)
VALUES ($1, $2, $3, $4, $5)`
	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), userID, kind, delivered, errMsg)
	return mapErr(err)
}

func (r *notificationLogRepo) CountSince(ctx context.Context, tx repository.Tx, userID int64, kind string, sinceUnix int64) (int, error) {
	const q = `
SELECT COUNT(*) FROM notification_log
 WHERE user_id = $1 AND kind = $2 AND created_at >= to_timestamp($3)`
	row, err := pickRow(ctx, r.pool, tx, q, userID, kind, sinceUnix)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}
