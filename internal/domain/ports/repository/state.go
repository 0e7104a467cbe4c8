package repository

import (
	"context"

	"telegram-ai-entitlements/internal/domain/model"
)

// SessionRepository stores short-lived per-user session state. GetSession
// returns domain.ErrNotFound once the state expired.
type SessionRepository interface {
	SetSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, userID int64) (*model.Session, error)
	ClearSession(ctx context.Context, userID int64) error
}
