package repository

import (
	"context"
	"time"

	"guia-paracuru/internal/domain/model"
)

// EntitlementRepository is the port for premium access grants.
type EntitlementRepository interface {
	// Create inserts the grant. A second grant for the same payment returns
	// domain.ErrAlreadyExists and leaves the first one untouched.
	Create(ctx context.Context, tx Tx, e *model.Entitlement) error
	FindActiveByDevice(ctx context.Context, tx Tx, deviceID string, now time.Time) (*model.Entitlement, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Entitlement, error)
	CountActive(ctx context.Context, tx Tx, now time.Time) (int, error)
	DeleteExpiredBefore(ctx context.Context, tx Tx, before time.Time) (int64, error)
}
