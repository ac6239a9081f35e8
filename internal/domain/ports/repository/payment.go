package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Payment, error)

	// AttachCharge stores the processor reference and QR materials in one statement.
	AttachCharge(ctx context.Context, tx Tx, id, externalID, qrCode, qrImage string) error

	// TransitionIfPending moves a pending payment to status and reports whether
	// this call performed the transition. paidAt is only stored for approvals.
	TransitionIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)

	// ListPendingOlderThan returns pending payments created before olderThan that
	// already carry a charge, least recently updated first.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)

	// Touch bumps updated_at of a pending payment so sweeps move on to others.
	Touch(ctx context.Context, tx Tx, id string, at time.Time) error

	// ExpireUncharged marks pending payments without a charge whose window closed before now.
	ExpireUncharged(ctx context.Context, tx Tx, now time.Time) (int64, error)

	// SumApprovedSince returns the revenue of payments approved at or after since.
	SumApprovedSince(ctx context.Context, tx Tx, since time.Time) (decimal.Decimal, error)
}
