package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, device_id, amount::text, currency, status, external_id, qr_code, qr_code_base64, expires_at, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p      model.Payment
		amount string
		status string
	)
	if err := row.Scan(&p.ID, &p.DeviceID, &amount, &p.Currency, &status, &p.ExternalID, &p.QRCode, &p.QRCodeImage, &p.ExpiresAt, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.Amount = d
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, device_id, amount, currency, status, external_id, qr_code, qr_code_base64, expires_at, paid_at, created_at, updated_at
) VALUES (
  $1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12
);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.DeviceID, p.Amount.String(), p.Currency, string(p.Status),
		p.ExternalID, p.QRCode, p.QRCodeImage, p.ExpiresAt, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE external_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, externalID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// AttachCharge writes the three charge columns together and only onto a
// payment that has none yet.
func (r *paymentRepo) AttachCharge(ctx context.Context, tx repository.Tx, id, externalID, qrCode, qrImage string) error {
	const q = `
UPDATE payments
   SET external_id = $2,
       qr_code = $3,
       qr_code_base64 = $4,
       updated_at = NOW()
 WHERE id = $1
   AND external_id IS NULL;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, externalID, qrCode, qrImage)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionIfPending is the compare-and-set that guards every status change.
func (r *paymentRepo) TransitionIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if !status.Valid() || status == model.PaymentStatusPending {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments
   SET status = $2::text,
       paid_at = CASE WHEN $2::text = 'approved' THEN COALESCE($3::timestamptz, NOW()) ELSE NULL END,
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), paidAt)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments
 WHERE status = 'pending' AND external_id IS NOT NULL AND created_at < $1
 ORDER BY updated_at ASC, created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *paymentRepo) Touch(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE payments SET updated_at = $2 WHERE id = $1 AND status = 'pending';`
	_, err := execSQL(ctx, r.pool, tx, q, id, at)
	return mapErr(err)
}

func (r *paymentRepo) ExpireUncharged(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `
UPDATE payments
   SET status = 'expired', updated_at = NOW()
 WHERE status = 'pending'
   AND external_id IS NULL
   AND expires_at <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *paymentRepo) SumApprovedSince(ctx context.Context, tx repository.Tx, since time.Time) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(amount), 0)::text FROM payments WHERE status = 'approved' AND paid_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return decimal.Zero, err
	}
	var s string
	if err := row.Scan(&s); err != nil {
		return decimal.Zero, mapScanErr(err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return d, nil
}
