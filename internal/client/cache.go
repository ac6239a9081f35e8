package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const premiumAccessKey = "premium_access"

// CachedEntitlement is the locally remembered grant. It only drives the UI and
// is never proof of payment.
type CachedEntitlement struct {
	PaymentID string    `json:"payment_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type EntitlementCache struct {
	store Store
	now   func() time.Time
	log   *zerolog.Logger
}

func NewEntitlementCache(store Store, logger *zerolog.Logger) *EntitlementCache {
	l := logger.With().Str("component", "EntitlementCache").Logger()
	return &EntitlementCache{store: store, now: time.Now, log: &l}
}

// WithClock replaces the clock used for expiry checks.
func (c *EntitlementCache) WithClock(now func() time.Time) *EntitlementCache {
	c.now = now
	return c
}

// Read returns the cached grant, or nil when there is none. Expired and
// unreadable entries are removed.
func (c *EntitlementCache) Read() (*CachedEntitlement, error) {
	raw, err := c.store.Get(premiumAccessKey)
	if errors.Is(err, ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e CachedEntitlement
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.ExpiresAt.IsZero() {
		c.log.Warn().Err(err).Msg("dropping unreadable premium cache entry")
		return nil, c.Clear()
	}
	if !c.now().Before(e.ExpiresAt) {
		return nil, c.Clear()
	}
	return &e, nil
}

// Write overwrites the cached grant.
func (c *EntitlementCache) Write(paymentID string, expiresAt time.Time) error {
	b, err := json.Marshal(CachedEntitlement{PaymentID: paymentID, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return err
	}
	return c.store.Set(premiumAccessKey, string(b))
}

func (c *EntitlementCache) Clear() error {
	return c.store.Delete(premiumAccessKey)
}

// EntitlementSource is the server side of Refresh.
type EntitlementSource interface {
	Entitlement(ctx context.Context, deviceID string) (*Entitlement, error)
}

// Refresh replaces the cache with the server's answer for deviceID. On a
// network failure the cache is left as it is and the error returned.
func (c *EntitlementCache) Refresh(ctx context.Context, src EntitlementSource, deviceID string) (*CachedEntitlement, error) {
	e, err := src.Entitlement(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !e.Active || !c.now().Before(e.ExpiresAt) {
		return nil, c.Clear()
	}
	if err := c.Write(e.PaymentID, e.ExpiresAt); err != nil {
		return nil, err
	}
	return &CachedEntitlement{PaymentID: e.PaymentID, ExpiresAt: e.ExpiresAt.UTC()}, nil
}
