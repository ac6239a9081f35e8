package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const entitlementColumns = `id, device_id, payment_id, expires_at, created_at`

func scanEntitlement(row rowScanner) (*model.Entitlement, error) {
	var e model.Entitlement
	if err := row.Scan(&e.ID, &e.DeviceID, &e.PaymentID, &e.ExpiresAt, &e.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return &e, nil
}

// Create relies on the unique payment_id: a second grant for one payment is a no-op
// reported as domain.ErrAlreadyExists.
func (r *entitlementRepo) Create(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	const q = `
INSERT INTO entitlements (id, device_id, payment_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (payment_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, e.ID, e.DeviceID, e.PaymentID, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *entitlementRepo) FindActiveByDevice(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) (*model.Entitlement, error) {
	const q = `SELECT ` + entitlementColumns + ` FROM entitlements
 WHERE device_id = $1 AND expires_at > $2
 ORDER BY expires_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, deviceID, now)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Entitlement, error) {
	const q = `SELECT ` + entitlementColumns + ` FROM entitlements WHERE payment_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) CountActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `SELECT COUNT(DISTINCT device_id) FROM entitlements WHERE expires_at > $1;`
	row, err := pickRow(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapScanErr(err)
	}
	return n, nil
}

func (r *entitlementRepo) DeleteExpiredBefore(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	const q = `DELETE FROM entitlements WHERE expires_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return cmd.RowsAffected(), nil
}
