package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

type SessionUseCase interface {
	Get(ctx context.Context, userID int64) (*model.Session, error)
	SetMode(ctx context.Context, userID int64, mode model.ActionKind) (*model.Session, error)
	SetAwaitingSupport(ctx context.Context, userID int64, awaiting bool) (*model.Session, error)
	Clear(ctx context.Context, userID int64) error
}

type sessionUC struct {
	repo  repository.SessionRepository
	clock model.Clock
	log   *zerolog.Logger
}

func NewSessionUseCase(repo repository.SessionRepository, clock model.Clock, logger *zerolog.Logger) *sessionUC {
	return &sessionUC{repo: repo, clock: clock.OrSystem(), log: logger}
}

// Get returns the stored session or the default chat session when none is
// live.
func (u *sessionUC) Get(ctx context.Context, userID int64) (*model.Session, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.repo.GetSession(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return model.DefaultSession(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (u *sessionUC) SetMode(ctx context.Context, userID int64, mode model.ActionKind) (*model.Session, error) {
	if _, err := model.ParseActionKind(string(mode)); err != nil {
		return nil, err
	}
	return u.update(ctx, userID, func(s *model.Session) { s.Mode = mode })
}

func (u *sessionUC) SetAwaitingSupport(ctx context.Context, userID int64, awaiting bool) (*model.Session, error) {
	return u.update(ctx, userID, func(s *model.Session) { s.AwaitingSupport = awaiting })
}

func (u *sessionUC) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return domain.ErrInvalidArgument
	}
	return u.repo.ClearSession(ctx, userID)
}

func (u *sessionUC) update(ctx context.Context, userID int64, mutate func(*model.Session)) (*model.Session, error) {
	s, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutate(s)
	s.UpdatedAt = u.clock().Truncate(time.Second)
	if err := u.repo.SetSession(ctx, s); err != nil {
		u.log.Warn().Err(err).Int64("user_id", userID).Msg("session write failed")
		return nil, err
	}
	return s, nil
}
