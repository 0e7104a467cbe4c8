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

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const entitlementColumns = `
user_id, plan, plan_until,
chat_left, video_left, music_left, image_left, voice_left, doc_left,
last_monthly_refill_at, free_daily_count, free_day_key, blocked_until,
vip_video_credits, vip_music_minutes, referral_balance::text, referrer_id,
created_at, updated_at`

func (r *entitlementRepo) EnsureExists(ctx context.Context, tx repository.Tx, e *model.Entitlement) (bool, error) {
	const q = `
INSERT INTO entitlements (user_id, plan, free_day_key, referral_balance, referrer_id, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
ON CONFLICT (user_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		e.UserID, string(e.Plan), e.FreeDayKey, e.ReferralBalance.String(), e.ReferrerID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *entitlementRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Entitlement, error) {
	q := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE user_id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID)
	if err != nil {
		return nil, err
	}
	e, err := scanEntitlement(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (r *entitlementRepo) Save(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = `
INSERT INTO entitlements (
  user_id, plan, plan_until,
  chat_left, video_left, music_left, image_left, voice_left, doc_left,
  last_monthly_refill_at, free_daily_count, free_day_key, blocked_until,
  vip_video_credits, vip_music_minutes, referral_balance, referrer_id,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16::numeric,$17,$18,$19)
ON CONFLICT (user_id) DO UPDATE SET
  plan=$2, plan_until=$3,
  chat_left=$4, video_left=$5, music_left=$6, image_left=$7, voice_left=$8, doc_left=$9,
  last_monthly_refill_at=$10, free_daily_count=$11, free_day_key=$12, blocked_until=$13,
  vip_video_credits=$14, vip_music_minutes=$15, referral_balance=$16::numeric,
  referrer_id=COALESCE(entitlements.referrer_id, $17),
  updated_at=$19;`
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		e.UserID, string(e.Plan), e.PlanUntil,
		e.ChatLeft, e.VideoLeft, e.MusicLeft, e.ImageLeft, e.VoiceLeft, e.DocLeft,
		e.LastMonthlyRefillAt, e.FreeDailyCount, e.FreeDayKey, e.BlockedUntil,
		e.VIPVideoCredits, e.VIPMusicMinutes, e.ReferralBalance.String(), e.ReferrerID,
		e.CreatedAt, e.UpdatedAt,
	)
	return mapErr(err)
}

func (r *entitlementRepo) ListUserIDs(ctx context.Context, tx repository.Tx, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	const q = `SELECT user_id FROM entitlements WHERE user_id > $1 ORDER BY user_id LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, afterID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *entitlementRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanCode]int, error) {
	const q = `SELECT plan, COUNT(*) FROM entitlements GROUP BY plan;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make(map[model.PlanCode]int, 3)
	for rows.Next() {
		var plan string
		var n int
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.PlanCode(plan)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	var (
		e       model.Entitlement
		plan    string
		balance string
	)
	err := row.Scan(
		&e.UserID, &plan, &e.PlanUntil,
		&e.ChatLeft, &e.VideoLeft, &e.MusicLeft, &e.ImageLeft, &e.VoiceLeft, &e.DocLeft,
		&e.LastMonthlyRefillAt, &e.FreeDailyCount, &e.FreeDayKey, &e.BlockedUntil,
		&e.VIPVideoCredits, &e.VIPMusicMinutes, &balance, &e.ReferrerID,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Plan = model.PlanCode(plan)
	if e.ReferralBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("%w: referral_balance %q", domain.ErrReadDatabaseRow, balance)
	}
	return &e, nil
}
