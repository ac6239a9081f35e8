//go:build !integration

package api_test

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type mockPaymentUC struct {
	usecase.PaymentUseCase

	CreateFunc       func(ctx context.Context, deviceID string) (*model.Payment, error)
	GetStatusFunc    func(ctx context.Context, id string) (*usecase.PaymentStatusView, error)
	NotificationFunc func(ctx context.Context, externalID string) (*usecase.PaymentStatusView, error)

	NotifiedIDs []string
}

func (m *mockPaymentUC) CreatePayment(ctx context.Context, deviceID string) (*model.Payment, error) {
	return m.CreateFunc(ctx, deviceID)
}

func (m *mockPaymentUC) GetStatus(ctx context.Context, id string) (*usecase.PaymentStatusView, error) {
	return m.GetStatusFunc(ctx, id)
}

func (m *mockPaymentUC) HandleNotification(ctx context.Context, externalID string) (*usecase.PaymentStatusView, error) {
	m.NotifiedIDs = append(m.NotifiedIDs, externalID)
	if m.NotificationFunc == nil {
		return &usecase.PaymentStatusView{Status: model.PaymentStatusPending}, nil
	}
	return m.NotificationFunc(ctx, externalID)
}

type mockEntitlementUC struct {
	usecase.EntitlementUseCase
	byDevice map[string]*model.Entitlement
	err      error
}

func (m *mockEntitlementUC) Active(ctx context.Context, deviceID string) (*model.Entitlement, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.byDevice[deviceID]
	if !ok || !e.Active(time.Now()) {
		return nil, errNotFound
	}
	return e, nil
}
