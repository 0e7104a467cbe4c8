//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
	"telegram-ai-entitlements/internal/domain/model"
	"telegram-ai-entitlements/internal/domain/ports/adapter"
	"telegram-ai-entitlements/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

var testNow = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) model.Clock { return func() time.Time { return t } }

func ptrTime(t time.Time) *time.Time { return &t }

func ptrInt64(v int64) *int64 { return &v }

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type sentMessage struct {
	UserID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage

	SendMessageFunc func(ctx context.Context, userID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, userID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, userID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{UserID: userID, Text: text})
	return nil
}

// ---- Mock Renderer ----

type keyRenderer struct{}

// Render echoes the key so tests can assert which message was picked.
func (keyRenderer) Render(key string, args map[string]string) string { return key }

// ---- Mock IntentDispatcher ----

type MockDispatcher struct {
	mu      sync.Mutex
	Batches [][]model.Intent
}

func (m *MockDispatcher) Dispatch(ctx context.Context, intents []model.Intent) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(intents) > 0 {
		m.Batches = append(m.Batches, append([]model.Intent(nil), intents...))
	}
	return len(intents)
}

func (m *MockDispatcher) All() []model.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Intent
	for _, b := range m.Batches {
		out = append(out, b...)
	}
	return out
}

// =============================
// Repositories
// =============================

// ---- Mock EntitlementRepository ----

type MockEntitlementRepo struct {
	mu   sync.Mutex
	data map[int64]*model.Entitlement

	Saves int
	// FindErrs makes FindByUserID fail for selected users.
	FindErrs map[int64]error

	EnsureExistsFunc func(ctx context.Context, tx repository.Tx, e *model.Entitlement) (bool, error)
	FindByUserIDFunc func(ctx context.Context, tx repository.Tx, userID int64) (*model.Entitlement, error)
	SaveFunc         func(ctx context.Context, tx repository.Tx, e *model.Entitlement) error
	ListUserIDsFunc  func(ctx context.Context, tx repository.Tx, afterID int64, limit int) ([]int64, error)
	CountByPlanFunc  func(ctx context.Context, tx repository.Tx) (map[model.PlanCode]int, error)
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo(seed ...*model.Entitlement) *MockEntitlementRepo {
	m := &MockEntitlementRepo{data: make(map[int64]*model.Entitlement)}
	for _, e := range seed {
		m.data[e.UserID] = e.Clone()
	}
	return m
}

// Get returns a copy of the stored record, or nil.
func (m *MockEntitlementRepo) Get(userID int64) *model.Entitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[userID]; ok {
		return e.Clone()
	}
	return nil
}

func (m *MockEntitlementRepo) EnsureExists(ctx context.Context, tx repository.Tx, e *model.Entitlement) (bool, error) {
	if m.EnsureExistsFunc != nil {
		return m.EnsureExistsFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[e.UserID]; ok {
		return false, nil
	}
	m.data[e.UserID] = e.Clone()
	return true, nil
}

func (m *MockEntitlementRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Entitlement, error) {
	if m.FindByUserIDFunc != nil {
		return m.FindByUserIDFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FindErrs[userID]; err != nil {
		return nil, err
	}
	e, ok := m.data[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (m *MockEntitlementRepo) Save(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, e)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[e.UserID] = e.Clone()
	m.Saves++
	return nil
}

func (m *MockEntitlementRepo) ListUserIDs(ctx context.Context, tx repository.Tx, afterID int64, limit int) ([]int64, error) {
	if m.ListUserIDsFunc != nil {
		return m.ListUserIDsFunc(ctx, tx, afterID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.data))
	for id := range m.data {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MockEntitlementRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanCode]int, error) {
	if m.CountByPlanFunc != nil {
		return m.CountByPlanFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.PlanCode]int)
	for _, e := range m.data {
		out[e.Plan]++
	}
	return out, nil
}

// ---- Mock SettlementRepository ----

type MockSettlementRepo struct {
	mu   sync.Mutex
	data map[string]*model.Settlement

	CreateFunc        func(ctx context.Context, tx repository.Tx, s *model.Settlement) error
	FindByOrderIDFunc func(ctx context.Context, tx repository.Tx, orderID string) (*model.Settlement, error)
	UpdateFunc        func(ctx context.Context, tx repository.Tx, s *model.Settlement) error
}

var _ repository.SettlementRepository = (*MockSettlementRepo)(nil)

func NewMockSettlementRepo(seed ...*model.Settlement) *MockSettlementRepo {
	m := &MockSettlementRepo{data: make(map[string]*model.Settlement)}
	for _, s := range seed {
		cp := *s
		m.data[s.OrderID] = &cp
	}
	return m
}

func (m *MockSettlementRepo) Get(orderID string) *model.Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.data[orderID]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (m *MockSettlementRepo) Create(ctx context.Context, tx repository.Tx, s *model.Settlement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[s.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	m.data[s.OrderID] = &cp
	return nil
}

func (m *MockSettlementRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Settlement, error) {
	if m.FindByOrderIDFunc != nil {
		return m.FindByOrderIDFunc(ctx, tx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSettlementRepo) Update(ctx context.Context, tx repository.Tx, s *model.Settlement) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[s.OrderID]; !ok {
		return domain.ErrNotFound
	}
	cp := *s
	m.data[s.OrderID] = &cp
	return nil
}

func (m *MockSettlementRepo) SumPaidByUser(ctx context.Context, tx repository.Tx, userID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, s := range m.data {
		if s.UserID == userID && s.IsPaid() {
			total = total.Add(s.AmountPaid)
		}
	}
	return total, nil
}

// ---- Mock NotificationLogRepository ----

type notificationLogEntry struct {
	UserID    int64
	Kind      string
	Delivered bool
	ErrMsg    string
}

type MockNotificationLogRepo struct {
	mu      sync.Mutex
	Entries []notificationLogEntry
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func (m *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, userID int64, kind string, delivered bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, notificationLogEntry{UserID: userID, Kind: kind, Delivered: delivered, ErrMsg: errMsg})
	return nil
}

func (m *MockNotificationLogRepo) CountSince(ctx context.Context, tx repository.Tx, userID int64, kind string, sinceUnix int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Entries {
		if e.UserID == userID && e.Kind == kind {
			n++
		}
	}
	return n, nil
}

// ---- Mock SessionRepository ----

type MockSessionRepo struct {
	mu   sync.Mutex
	data map[int64]model.Session

	SetSessionFunc func(ctx context.Context, s *model.Session) error
}

var _ repository.SessionRepository = (*MockSessionRepo)(nil)

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{data: make(map[int64]model.Session)}
}

func (m *MockSessionRepo) SetSession(ctx context.Context, s *model.Session) error {
	if m.SetSessionFunc != nil {
		return m.SetSessionFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.UserID] = *s
	return nil
}

func (m *MockSessionRepo) GetSession(ctx context.Context, userID int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *MockSessionRepo) ClearSession(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, userID)
	return nil
}

// =============================
// Transactions
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Fixtures
// =============================

func freeRecord(userID int64) *model.Entitlement {
	e, _ := model.NewEntitlement(userID, testNow.Add(-time.Hour))
	return e
}

func paidRecord(userID int64, plan model.PlanCode, until time.Time) *model.Entitlement {
	e := freeRecord(userID)
	e.ActivatePlan(plan, testNow.Add(-24*time.Hour), model.DefaultCatalog(), model.DefaultPolicy())
	e.PlanUntil = ptrTime(until)
	return e
}
