//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"telegram-ai-entitlements/internal/domain/model"
	redisinfra "telegram-ai-entitlements/internal/infra/redis"
	"telegram-ai-entitlements/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type fakeReconciler struct {
	mu     sync.Mutex
	sweeps int
	err    error
}

func (f *fakeReconciler) Sweep(ctx context.Context) (usecase.SweepStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return usecase.SweepStats{Scanned: 3, Touched: 1, DailyReset: 1}, f.err
}

func (f *fakeReconciler) ReconcileUser(ctx context.Context, userID int64) (model.ReconcileReport, error) {
	return model.ReconcileReport{}, nil
}

func (f *fakeReconciler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

type fakeLocker struct {
	held     bool
	fail     error
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.fail != nil {
		return "", l.fail
	}
	if l.held {
		return "", redisinfra.ErrLockHeld
	}
	return "token", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked++
	return nil
}

func TestReconcileWorker_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("should sweep and release the lock", func(t *testing.T) {
		rec := &fakeReconciler{}
		locker := &fakeLocker{}
		w := NewReconcileWorker(time.Minute, time.Minute, rec, locker, newTestLogger())

		assert.True(t, w.Tick(ctx))
		assert.Equal(t, 1, rec.count())
		assert.Equal(t, 1, locker.unlocked)
	})

	t.Run("should skip the tick when another replica holds the lock", func(t *testing.T) {
		rec := &fakeReconciler{}
		w := NewReconcileWorker(time.Minute, time.Minute, rec, &fakeLocker{held: true}, newTestLogger())

		assert.False(t, w.Tick(ctx))
		assert.Equal(t, 0, rec.count())
	})

	t.Run("should sweep unlocked when the lock store is down", func(t *testing.T) {
		rec := &fakeReconciler{}
		locker := &fakeLocker{fail: errors.New("redis down")}
		w := NewReconcileWorker(time.Minute, time.Minute, rec, locker, newTestLogger())

		assert.True(t, w.Tick(ctx))
		assert.Equal(t, 1, rec.count())
		assert.Equal(t, 0, locker.unlocked)
	})

	t.Run("should sweep without a locker and survive sweep errors", func(t *testing.T) {
		rec := &fakeReconciler{err: errors.New("boom")}
		w := NewReconcileWorker(time.Minute, 0, rec, nil, newTestLogger())

		assert.True(t, w.Tick(ctx))
		assert.Equal(t, 1, rec.count())
	})
}

func TestReconcileWorker_Run(t *testing.T) {
	t.Run("should sweep immediately and stop with the context", func(t *testing.T) {
		rec := &fakeReconciler{}
		w := NewReconcileWorker(time.Hour, time.Minute, rec, nil, newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
	})
}
