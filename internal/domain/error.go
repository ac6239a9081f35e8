package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Payment flow errors
	ErrPaymentNotFound      = fmt.Errorf("payment %w", ErrNotFound)
	ErrAlreadyEntitled      = errors.New("device already has active premium access")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrPaymentExpired       = errors.New("payment window expired")
	ErrRateLimited          = errors.New("too many requests")
	ErrLockBusy             = errors.New("resource is locked")
)

// AlreadyEntitledError carries the expiry of the entitlement that blocked a purchase.
type AlreadyEntitledError struct {
	ExpiresAt time.Time
}

func (e *AlreadyEntitledError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAlreadyEntitled.Error(), e.ExpiresAt.Format(time.RFC3339))
}

func (e *AlreadyEntitledError) Unwrap() error { return ErrAlreadyEntitled }
