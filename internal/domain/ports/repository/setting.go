package repository

import (
	"context"

	"guia-paracuru/internal/domain/model"
)

// SettingRepository is the key/value settings store shared with the content back-office.
type SettingRepository interface {
	Get(ctx context.Context, tx Tx, key string) (*model.Setting, error)
	Set(ctx context.Context, tx Tx, key, value string) error
}
