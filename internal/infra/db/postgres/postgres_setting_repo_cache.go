package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
	"guia-paracuru/internal/infra/metrics"
	red "guia-paracuru/internal/infra/redis"
)

var _ repository.SettingRepository = (*settingRepoCacheDecorator)(nil)

// settingRepoCacheDecorator serves settings from Redis and invalidates on write.
// Redis failures fall through to the inner repository.
type settingRepoCacheDecorator struct {
	inner repository.SettingRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSettingRepoCacheDecorator(inner repository.SettingRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SettingRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "SettingsCache").Logger()
	return &settingRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func settingKey(key string) string { return "setting:" + key }

func (d *settingRepoCacheDecorator) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	// reads inside a transaction must see the database
	if tx != nil {
		return d.inner.Get(ctx, tx, key)
	}

	val, err := d.cache.Get(ctx, settingKey(key))
	if err == nil {
		var s model.Setting
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("settings", "hit")
			return &s, nil
		}
	} else if !errors.Is(err, red.Nil) {
		metrics.IncCacheRequest("settings", "error")
		d.log.Warn().Err(err).Str("key", key).Msg("settings cache read failed")
	}

	metrics.IncCacheRequest("settings", "miss")
	s, err := d.inner.Get(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if b, merr := json.Marshal(s); merr == nil {
		if serr := d.cache.Set(ctx, settingKey(key), b, d.ttl); serr != nil {
			d.log.Warn().Err(serr).Str("key", key).Msg("settings cache write failed")
		}
	}
	return s, nil
}

func (d *settingRepoCacheDecorator) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	if err := d.inner.Set(ctx, tx, key, value); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, settingKey(key)); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("settings cache invalidation failed")
	}
	return nil
}
