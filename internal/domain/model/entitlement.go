package model

import (
	"time"

	"guia-paracuru/internal/domain"
)

// Entitlement grants premium features to a device until ExpiresAt.
// It is written once, together with the approval of PaymentID, and never mutated.
type Entitlement struct {
	ID        string
	DeviceID  string
	PaymentID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewEntitlement grants durationDays of premium access starting at now.
func NewEntitlement(id, deviceID, paymentID string, now time.Time, durationDays int) (*Entitlement, error) {
	if id == "" || deviceID == "" || paymentID == "" || durationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Entitlement{
		ID:        id,
		DeviceID:  deviceID,
		PaymentID: paymentID,
		ExpiresAt: now.Add(time.Duration(durationDays) * 24 * time.Hour),
		CreatedAt: now,
	}, nil
}

// Active reports whether the grant is still valid at now.
func (e *Entitlement) Active(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}
