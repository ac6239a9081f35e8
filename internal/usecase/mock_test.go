//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/adapter"
	"guia-paracuru/internal/domain/ports/repository"
)

// -----------------------------
// Payments
// -----------------------------

// MockPaymentRepo keeps payments in memory. TransitionIfPending is a real
// compare-and-set under the mutex, so racing callers behave as they would
// against the database.
type MockPaymentRepo struct {
	mu    sync.Mutex
	store map[string]*model.Payment

	SaveErr     error
	FindByIDErr error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func (m *MockPaymentRepo) Get(id string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if m.FindByIDErr != nil {
		return nil, m.FindByIDErr
	}
	if p := m.Get(id); p != nil {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) AttachCharge(ctx context.Context, tx repository.Tx, id, externalID, qrCode, qrImage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ExternalID, p.QRCode, p.QRCodeImage = &externalID, &qrCode, &qrImage
	return nil
}

func (m *MockPaymentRepo) TransitionIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if status == model.PaymentStatusApproved && paidAt != nil {
		t := *paidAt
		p.PaidAt = &t
	}
	return true, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && p.HasCharge() && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) Touch(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.store[id]; ok && p.Status == model.PaymentStatusPending {
		p.UpdatedAt = at
	}
	return nil
}

func (m *MockPaymentRepo) ExpireUncharged(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.store {
		if p.Status == model.PaymentStatusPending && !p.HasCharge() && !now.Before(p.ExpiresAt) {
			p.Status = model.PaymentStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MockPaymentRepo) SumApprovedSince(ctx context.Context, tx repository.Tx, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, p := range m.store {
		if p.Status == model.PaymentStatusApproved && p.PaidAt != nil && !p.PaidAt.Before(since) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

// -----------------------------
// Entitlements
// -----------------------------

type MockEntitlementRepo struct {
	mu    sync.Mutex
	store map[string]*model.Entitlement // by payment id

	CreateCalls atomic.Int32
}

var _ repository.EntitlementRepository = (*MockEntitlementRepo)(nil)

func NewMockEntitlementRepo() *MockEntitlementRepo {
	return &MockEntitlementRepo{store: make(map[string]*model.Entitlement)}
}

func (m *MockEntitlementRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func (m *MockEntitlementRepo) Create(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	m.CreateCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[e.PaymentID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *e
	m.store[e.PaymentID] = &cp
	return nil
}

func (m *MockEntitlementRepo) FindActiveByDevice(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Entitlement
	for _, e := range m.store {
		if e.DeviceID == deviceID && e.Active(now) && (best == nil || e.ExpiresAt.After(best.ExpiresAt)) {
			best = e
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MockEntitlementRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockEntitlementRepo) CountActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := map[string]struct{}{}
	for _, e := range m.store {
		if e.Active(now) {
			devices[e.DeviceID] = struct{}{}
		}
	}
	return len(devices), nil
}

func (m *MockEntitlementRepo) DeleteExpiredBefore(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.store {
		if e.ExpiresAt.Before(before) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

// -----------------------------
// Settings
// -----------------------------

type MockSettingRepo struct {
	mu     sync.Mutex
	values map[string]string
	GetErr error
}

var _ repository.SettingRepository = (*MockSettingRepo)(nil)

func NewMockSettingRepo(kv map[string]string) *MockSettingRepo {
	m := &MockSettingRepo{values: make(map[string]string)}
	for k, v := range kv {
		m.values[k] = v
	}
	return m
}

func (m *MockSettingRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.Setting{Key: key, Value: v}, nil
}

func (m *MockSettingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// -----------------------------
// Processor
// -----------------------------

type MockPixProcessor struct {
	CreateChargeFunc    func(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error)
	GetChargeStatusFunc func(ctx context.Context, externalID string) (*adapter.ChargeState, error)

	CreateCalls atomic.Int32
	StatusCalls atomic.Int32
}

var _ adapter.PixProcessor = (*MockPixProcessor)(nil)

func (m *MockPixProcessor) Name() string { return "mock" }

func (m *MockPixProcessor) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	m.CreateCalls.Add(1)
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, req)
	}
	return &adapter.Charge{ExternalID: "ext-" + req.Reference, QRCode: "00020101", QRCodeImage: "aW1n", Status: adapter.ChargeStatusPending}, nil
}

func (m *MockPixProcessor) GetChargeStatus(ctx context.Context, externalID string) (*adapter.ChargeState, error) {
	m.StatusCalls.Add(1)
	if m.GetChargeStatusFunc != nil {
		return m.GetChargeStatusFunc(ctx, externalID)
	}
	return &adapter.ChargeState{Status: adapter.ChargeStatusPending}, nil
}

// -----------------------------
// Guards
// -----------------------------

type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]bool{}} }

func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return "", domain.ErrLockBusy
	}
	m.held[key] = true
	return "token-" + key, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

type MockRateLimiter struct {
	mu    sync.Mutex
	hits  map[string]int
	Limit int
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits = map[string]int{}
	}
	m.hits[key]++
	if m.Limit > 0 {
		limit = m.Limit
	}
	return m.hits[key] <= limit, nil
}

// -----------------------------
// Transactions
// -----------------------------

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      atomic.Int32
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls.Add(1)
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// -----------------------------
// Utilities
// -----------------------------

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeClock is a settable clock shared by the use cases under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
