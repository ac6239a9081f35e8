package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrTransport is wrapped by every processor failure (network error or non-2xx answer).
var ErrTransport = errors.New("payment processor transport error")

// ChargeStatus is the processor-side state of a Pix charge, already mapped
// onto the local payment statuses.
type ChargeStatus string

const (
	ChargeStatusPending  ChargeStatus = "pending"
	ChargeStatusApproved ChargeStatus = "approved"
	ChargeStatusRejected ChargeStatus = "rejected"
	ChargeStatusExpired  ChargeStatus = "expired"
)

// ChargeRequest describes one Pix charge.
type ChargeRequest struct {
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string    // resent unchanged on retries so the processor never charges twice
	Reference      string    // our payment id, echoed back by the processor
	ExpiresAt      time.Time // the processor must refuse the transfer after this instant
}

// Charge is the processor's answer to a creation request.
type Charge struct {
	ExternalID  string
	QRCode      string // EMV "copia e cola" payload
	QRCodeImage string // base64 PNG
	Status      ChargeStatus
}

// ChargeState is the processor's answer to a status lookup.
type ChargeState struct {
	Status ChargeStatus
	PaidAt *time.Time
}

// PixProcessor is the hex port for Pix-capable payment processors.
type PixProcessor interface {
	Name() string

	// CreateCharge issues a Pix charge; exactly one charge exists per IdempotencyKey.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// GetChargeStatus reads the charge state; it has no side effects.
	GetChargeStatus(ctx context.Context, externalID string) (*ChargeState, error)
}
