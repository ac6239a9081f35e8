package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
)

var _ repository.SettingRepository = (*settingRepo)(nil)

type settingRepo struct{ pool *pgxpool.Pool }

func NewSettingRepo(pool *pgxpool.Pool) *settingRepo {
	return &settingRepo{pool: pool}
}

func (r *settingRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	const q = `SELECT key, value, updated_at FROM settings WHERE key = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	var s model.Setting
	if err := row.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return &s, nil
}

func (r *settingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, key, value)
	return mapErr(err)
}
