//go:build !integration

package postgres

import (
	"context"
	"time"

	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
	red "guia-paracuru/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerSettingRepo mocks the database repository that the settings decorator wraps.
type mockInnerSettingRepo struct {
	GetFunc func(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error)
	SetFunc func(ctx context.Context, tx repository.Tx, key, value string) error
}

func (m *mockInnerSettingRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	return m.GetFunc(ctx, tx, key)
}
func (m *mockInnerSettingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	return m.SetFunc(ctx, tx, key, value)
}

// mockRedisClient embeds the interface so tests only stub what they use.
type mockRedisClient struct {
	red.RedisClient
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", red.Nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
