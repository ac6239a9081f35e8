package model

import (
	"time"

	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // charge requested; awaiting the Pix transfer
	PaymentStatusApproved PaymentStatus = "approved" // confirmed by the processor
	PaymentStatusRejected PaymentStatus = "rejected" // refused or cancelled at the processor
	PaymentStatusExpired  PaymentStatus = "expired"  // payment window passed without approval
)

// DefaultPaymentWindow is how long a payer has to complete the Pix transfer.
const DefaultPaymentWindow = 30 * time.Minute

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected, PaymentStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusRejected || s == PaymentStatusExpired
}

// Payment is one attempted purchase of premium access by a device.
type Payment struct {
	ID          string
	DeviceID    string
	Amount      decimal.Decimal
	Currency    string // always "BRL" for Pix
	Status      PaymentStatus
	ExternalID  *string // processor reference; set together with the QR fields
	QRCode      *string // Pix copy-and-paste payload (EMV BR Code)
	QRCodeImage *string // base64 PNG of QRCode
	ExpiresAt   time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPayment constructs a pending payment whose window closes after window.
func NewPayment(id, deviceID string, amount decimal.Decimal, now time.Time, window time.Duration) (*Payment, error) {
	if id == "" || deviceID == "" || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	if window <= 0 {
		window = DefaultPaymentWindow
	}
	return &Payment{
		ID:        id,
		DeviceID:  deviceID,
		Amount:    amount,
		Currency:  "BRL",
		Status:    PaymentStatusPending,
		ExpiresAt: now.Add(window),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasCharge reports whether the processor charge was attached.
func (p *Payment) HasCharge() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}

// WindowClosed reports whether the payer can no longer complete the transfer.
func (p *Payment) WindowClosed(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// EffectiveStatus is the status as observed at now: a pending payment whose
// window has closed reads as expired even before it is persisted that way.
func (p *Payment) EffectiveStatus(now time.Time) PaymentStatus {
	if p.Status == PaymentStatusPending && p.WindowClosed(now) {
		return PaymentStatusExpired
	}
	return p.Status
}

// AttachCharge sets the processor reference and QR materials together.
func (p *Payment) AttachCharge(externalID, qrCode, qrImage string) error {
	if externalID == "" || qrCode == "" {
		return domain.ErrInvalidArgument
	}
	if p.Status.Terminal() {
		return domain.ErrInvalidArgument
	}
	p.ExternalID = &externalID
	p.QRCode = &qrCode
	p.QRCodeImage = &qrImage
	return nil
}
