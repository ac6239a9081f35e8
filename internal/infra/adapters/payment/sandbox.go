package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"guia-paracuru/internal/domain/ports/adapter"
)

var _ adapter.PixProcessor = (*SandboxProcessor)(nil)

// SandboxConfig describes the receiving account printed into sandbox payloads.
type SandboxConfig struct {
	PixKey       string
	MerchantName string
	MerchantCity string
	ApproveAfter time.Duration // 0 keeps charges pending until Approve is called
}

type sandboxCharge struct {
	externalID string
	createdAt  time.Time
	expiresAt  time.Time
	status     adapter.ChargeStatus
	paidAt     *time.Time
}

// SandboxProcessor is an in-memory processor for development and tests. It
// renders real BR Code payloads, honours idempotency keys and approves charges
// after a delay.
type SandboxProcessor struct {
	cfg SandboxConfig
	now func() time.Time

	mu      sync.Mutex
	seq     int64
	byKey   map[string]*sandboxCharge // idempotency key -> charge
	charges map[string]*sandboxCharge // external id -> charge
}

func NewSandboxProcessor(cfg SandboxConfig) *SandboxProcessor {
	return &SandboxProcessor{
		cfg:     cfg,
		now:     time.Now,
		byKey:   make(map[string]*sandboxCharge),
		charges: make(map[string]*sandboxCharge),
	}
}

// WithClock replaces the sandbox clock.
func (s *SandboxProcessor) WithClock(now func() time.Time) *SandboxProcessor {
	s.now = now
	return s
}

func (s *SandboxProcessor) Name() string { return "sandbox" }

func (s *SandboxProcessor) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	if req.IdempotencyKey == "" || !req.Amount.IsPositive() {
		return nil, errors.New("sandbox: idempotency key and positive amount required")
	}

	s.mu.Lock()
	c, ok := s.byKey[req.IdempotencyKey]
	if !ok {
		s.seq++
		c = &sandboxCharge{
			externalID: fmt.Sprintf("sbx-%d", s.seq),
			createdAt:  s.now(),
			expiresAt:  req.ExpiresAt,
			status:     adapter.ChargeStatusPending,
		}
		s.byKey[req.IdempotencyKey] = c
		s.charges[c.externalID] = c
	}
	s.mu.Unlock()

	payload := PixPayload{
		Key:          s.cfg.PixKey,
		MerchantName: s.cfg.MerchantName,
		MerchantCity: s.cfg.MerchantCity,
		Amount:       req.Amount,
		TxID:         req.Reference,
	}.String()
	image, err := RenderQRBase64(payload)
	if err != nil {
		return nil, err
	}
	return &adapter.Charge{
		ExternalID:  c.externalID,
		QRCode:      payload,
		QRCodeImage: image,
		Status:      adapter.ChargeStatusPending,
	}, nil
}

func (s *SandboxProcessor) GetChargeStatus(ctx context.Context, externalID string) (*adapter.ChargeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[externalID]
	if !ok {
		return nil, &HTTPError{Op: "get_status", StatusCode: 404, Body: "charge not found"}
	}
	now := s.now()
	if c.status == adapter.ChargeStatusPending {
		switch {
		case s.cfg.ApproveAfter > 0 && !now.Before(c.createdAt.Add(s.cfg.ApproveAfter)) &&
			(c.expiresAt.IsZero() || c.createdAt.Add(s.cfg.ApproveAfter).Before(c.expiresAt)):
			paid := c.createdAt.Add(s.cfg.ApproveAfter)
			c.status, c.paidAt = adapter.ChargeStatusApproved, &paid
		case !c.expiresAt.IsZero() && !now.Before(c.expiresAt):
			c.status = adapter.ChargeStatusExpired
		}
	}
	return &adapter.ChargeState{Status: c.status, PaidAt: c.paidAt}, nil
}

// Approve simulates the payer completing the transfer.
func (s *SandboxProcessor) Approve(externalID string) error {
	return s.settle(externalID, adapter.ChargeStatusApproved)
}

// Reject simulates the processor refusing the transfer.
func (s *SandboxProcessor) Reject(externalID string) error {
	return s.settle(externalID, adapter.ChargeStatusRejected)
}

func (s *SandboxProcessor) settle(externalID string, status adapter.ChargeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[externalID]
	if !ok {
		return fmt.Errorf("sandbox: unknown charge %s", externalID)
	}
	if c.status != adapter.ChargeStatusPending {
		return fmt.Errorf("sandbox: charge %s already %s", externalID, c.status)
	}
	c.status = status
	if status == adapter.ChargeStatusApproved {
		now := s.now()
		c.paidAt = &now
	}
	return nil
}
