package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// Revenue sums approved payments over rolling windows ending now.
type Revenue struct {
	Day   decimal.Decimal
	Week  decimal.Decimal
	Month decimal.Decimal
}

type StatsUseCase interface {
	Revenue(ctx context.Context) (Revenue, error)
	ActiveEntitlements(ctx context.Context) (int, error)
}

type statsUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	now          func() time.Time

	log *zerolog.Logger
}

func NewStatsUseCase(payments repository.PaymentRepository, entitlements repository.EntitlementRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{payments: payments, entitlements: entitlements, now: time.Now, log: logger}
}

func (s *statsUC) Revenue(ctx context.Context) (Revenue, error) {
	now := s.now()
	d, err := s.payments.SumApprovedSince(ctx, repository.NoTX, now.Add(-24*time.Hour))
	if err != nil {
		return Revenue{}, err
	}
	w, err := s.payments.SumApprovedSince(ctx, repository.NoTX, now.AddDate(0, 0, -7))
	if err != nil {
		return Revenue{}, err
	}
	m, err := s.payments.SumApprovedSince(ctx, repository.NoTX, now.AddDate(0, -1, 0))
	if err != nil {
		return Revenue{}, err
	}
	return Revenue{Day: d, Week: w, Month: m}, nil
}

func (s *statsUC) ActiveEntitlements(ctx context.Context) (int, error) {
	return s.entitlements.CountActive(ctx, repository.NoTX, s.now())
}
