// Package paywall drives the premium purchase screen: it creates a Pix
// charge, shows the QR code with a countdown, polls for approval and records
// the grant locally.
package paywall

import (
	"context"
	"time"

	"guia-paracuru/internal/client"
)

type State string

const (
	StateIntro   State = "intro"
	StateLoading State = "loading"
	StateQRCode  State = "qrcode"
	StateSuccess State = "success"
	StateError   State = "error"
)

// ErrorKind tells the front-end which message to show in StateError.
type ErrorKind string

const (
	ErrorNone            ErrorKind = ""
	ErrorAlreadyEntitled ErrorKind = "already_entitled"
	ErrorProcessor       ErrorKind = "processor_unavailable"
	ErrorRateLimited     ErrorKind = "rate_limited"
	ErrorNotFound        ErrorKind = "not_found"
	ErrorExpired         ErrorKind = "expired"
	ErrorRejected        ErrorKind = "rejected"
	ErrorUnavailable     ErrorKind = "unavailable"
)

// Snapshot is an immutable copy of the machine's visible state.
type Snapshot struct {
	State     State
	Checkout  *client.Checkout // set in qrcode and success
	Remaining time.Duration    // countdown in qrcode

	PremiumExpiresAt time.Time // set in success

	ErrorKind ErrorKind
	// EntitledUntil is the blocking grant's expiry for ErrorAlreadyEntitled.
	EntitledUntil time.Time
	Err           error
}

// PaymentAPI is the server side of the paywall.
type PaymentAPI interface {
	CreatePayment(ctx context.Context, deviceID string) (*client.Checkout, error)
	Status(ctx context.Context, paymentID string) (*client.PaymentStatus, error)
}

// Cache receives the grant once the server confirms it.
type Cache interface {
	Write(paymentID string, expiresAt time.Time) error
}
