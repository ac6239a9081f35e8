//go:build !integration

package web

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/usecase"
)

type mockSettingsUC struct {
	mu      sync.Mutex
	terms   usecase.PremiumTerms
	ReadErr error
}

func newMockSettingsUC() *mockSettingsUC {
	return &mockSettingsUC{terms: usecase.PremiumTerms{Price: decimal.RequireFromString("1.99"), DurationDays: 30}}
}

func (m *mockSettingsUC) Premium(ctx context.Context) (usecase.PremiumTerms, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terms, m.ReadErr
}

func (m *mockSettingsUC) UpdatePremium(ctx context.Context, t usecase.PremiumTerms) error {
	if !t.Price.IsPositive() || t.DurationDays < 1 || t.DurationDays > 366 {
		return domain.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = t
	return nil
}

type mockStatsUC struct {
	rev    usecase.Revenue
	active int
	err    error
}

func (m *mockStatsUC) Revenue(ctx context.Context) (usecase.Revenue, error) { return m.rev, m.err }

func (m *mockStatsUC) ActiveEntitlements(ctx context.Context) (int, error) { return m.active, m.err }
