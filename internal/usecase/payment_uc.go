package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/adapter"
	"guia-paracuru/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentStatusView is what a status check reports back to the device.
// PaidAt and PremiumExpiresAt are only set for approved payments.
type PaymentStatusView struct {
	PaymentID        string
	Status           model.PaymentStatus
	PaidAt           *time.Time
	PremiumExpiresAt *time.Time
}

type PaymentUseCase interface {
	// CreatePayment opens a pending payment for the device and attaches a Pix charge to it.
	CreatePayment(ctx context.Context, deviceID string) (*model.Payment, error)
	// GetStatus reports the payment status, consulting the processor while it is pending.
	GetStatus(ctx context.Context, paymentID string) (*PaymentStatusView, error)
	// HandleNotification refreshes the payment bound to a processor reference.
	HandleNotification(ctx context.Context, externalID string) (*PaymentStatusView, error)
	// PendingCharged lists charged payments still pending that were created before
	// olderThan, least recently checked first.
	PendingCharged(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error)
	// ExpireUncharged persists the expiry of payments that never got a charge.
	ExpireUncharged(ctx context.Context) (int64, error)
}

// PaymentOptions tunes the orchestrator. Zero values fall back to defaults.
type PaymentOptions struct {
	Window      time.Duration // how long the payer has to complete the transfer
	Description string        // shown on the payer's bank statement

	// Per-device limit on CreatePayment; ignored without a RateLimiter.
	CreateLimit  int
	CreateWindow time.Duration

	// TTL of the per-payment lock taken around processor checks; ignored without a Locker.
	LockTTL time.Duration

	// OnGrant, when set, runs after an approval commits with its entitlement.
	OnGrant func(p *model.Payment, e *model.Entitlement)

	Now func() time.Time
}

func (o PaymentOptions) withDefaults() PaymentOptions {
	if o.Window <= 0 {
		o.Window = model.DefaultPaymentWindow
	}
	if o.Description == "" {
		o.Description = "Guia Paracuru Premium"
	}
	if o.CreateLimit <= 0 {
		o.CreateLimit = 5
	}
	if o.CreateWindow <= 0 {
		o.CreateWindow = time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type paymentUC struct {
	payments     repository.PaymentRepository
	entitlements repository.EntitlementRepository
	settings     SettingsUseCase
	processor    adapter.PixProcessor
	tm           repository.TransactionManager
	locker       adapter.Locker      // optional
	limiter      adapter.RateLimiter // optional
	opts         PaymentOptions
	now          func() time.Time
	newID        func() string
	log          *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	entitlements repository.EntitlementRepository,
	settings SettingsUseCase,
	processor adapter.PixProcessor,
	tm repository.TransactionManager,
	locker adapter.Locker,
	limiter adapter.RateLimiter,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUseCase").Str("processor", processor.Name()).Logger()
	opts = opts.withDefaults()
	return &paymentUC{
		payments:     payments,
		entitlements: entitlements,
		settings:     settings,
		processor:    processor,
		tm:           tm,
		locker:       locker,
		limiter:      limiter,
		opts:         opts,
		now:          opts.Now,
		newID:        uuid.NewString,
		log:          &l,
	}
}

func (u *paymentUC) CreatePayment(ctx context.Context, deviceID string) (*model.Payment, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, domain.ErrInvalidArgument
	}

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, "create_payment:"+deviceID, u.opts.CreateLimit, u.opts.CreateWindow)
		if err != nil {
			u.log.Warn().Err(err).Str("device_id", deviceID).Msg("rate limiter unavailable; allowing request")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	now := u.now()
	active, err := u.entitlements.FindActiveByDevice(ctx, repository.NoTX, deviceID, now)
	switch {
	case err == nil && active.Active(now):
		return nil, &domain.AlreadyEntitledError{ExpiresAt: active.ExpiresAt}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	terms, err := u.settings.Premium(ctx)
	if err != nil {
		return nil, err
	}

	p, err := model.NewPayment(u.newID(), deviceID, terms.Price, now, u.opts.Window)
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}

	charge, err := u.processor.CreateCharge(ctx, adapter.ChargeRequest{
		Amount:         p.Amount,
		Description:    u.opts.Description,
		IdempotencyKey: p.ID,
		Reference:      p.ID,
		ExpiresAt:      p.ExpiresAt,
	})
	if err != nil {
		// the record stays pending without a charge and ages out on its own
		u.log.Error().Err(err).Str("payment_id", p.ID).Msg("create charge failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessorUnavailable, err)
	}

	if err := p.AttachCharge(charge.ExternalID, charge.QRCode, charge.QRCodeImage); err != nil {
		u.log.Error().Str("payment_id", p.ID).Msg("processor returned an incomplete charge")
		return nil, fmt.Errorf("%w: incomplete charge", domain.ErrProcessorUnavailable)
	}
	if err := u.payments.AttachCharge(ctx, repository.NoTX, p.ID, charge.ExternalID, charge.QRCode, charge.QRCodeImage); err != nil {
		return nil, err
	}

	u.log.Info().
		Str("payment_id", p.ID).
		Str("device_id", deviceID).
		Str("external_id", charge.ExternalID).
		Str("amount", p.Amount.StringFixed(2)).
		Time("expires_at", p.ExpiresAt).
		Msg("payment created")
	return p, nil
}

func (u *paymentUC) GetStatus(ctx context.Context, paymentID string) (*PaymentStatusView, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.refresh(ctx, p)
}

func (u *paymentUC) HandleNotification(ctx context.Context, externalID string) (*PaymentStatusView, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	p, err := u.payments.FindByExternalID(ctx, repository.NoTX, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.refresh(ctx, p)
}

func (u *paymentUC) PendingCharged(ctx context.Context, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	return u.payments.ListPendingOlderThan(ctx, repository.NoTX, olderThan, limit)
}

func (u *paymentUC) ExpireUncharged(ctx context.Context) (int64, error) {
	return u.payments.ExpireUncharged(ctx, repository.NoTX, u.now())
}

// refresh converges the stored payment with the processor. Processor failures
// never escape: the stored status is reported instead, read as expired once
// the window has closed.
func (u *paymentUC) refresh(ctx context.Context, p *model.Payment) (*PaymentStatusView, error) {
	now := u.now()

	if p.Status == model.PaymentStatusApproved {
		return u.approvedView(ctx, p)
	}
	if p.Status.Terminal() {
		return &PaymentStatusView{PaymentID: p.ID, Status: p.Status}, nil
	}
	if !p.HasCharge() {
		if p.WindowClosed(now) {
			return u.transition(ctx, p, model.PaymentStatusExpired)
		}
		return &PaymentStatusView{PaymentID: p.ID, Status: p.Status}, nil
	}

	if u.locker != nil {
		key := "payment:" + p.ID
		token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
		switch {
		case err == nil:
			defer func() {
				if uerr := u.locker.Unlock(context.WithoutCancel(ctx), key, token); uerr != nil {
					u.log.Warn().Err(uerr).Str("payment_id", p.ID).Msg("unlock failed")
				}
			}()
		case errors.Is(err, domain.ErrLockBusy):
			// another check for this payment is in flight
			return &PaymentStatusView{PaymentID: p.ID, Status: p.EffectiveStatus(now)}, nil
		default:
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("lock unavailable; checking without it")
		}
	}

	state, err := u.processor.GetChargeStatus(ctx, *p.ExternalID)
	if err != nil {
		u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("charge status check failed; reporting stored status")
		if terr := u.payments.Touch(ctx, repository.NoTX, p.ID, now); terr != nil {
			u.log.Warn().Err(terr).Str("payment_id", p.ID).Msg("touch failed")
		}
		return &PaymentStatusView{PaymentID: p.ID, Status: p.EffectiveStatus(now)}, nil
	}

	switch state.Status {
	case adapter.ChargeStatusApproved:
		return u.approve(ctx, p, state.PaidAt)
	case adapter.ChargeStatusRejected:
		return u.transition(ctx, p, model.PaymentStatusRejected)
	case adapter.ChargeStatusExpired:
		return u.transition(ctx, p, model.PaymentStatusExpired)
	}
	if p.WindowClosed(u.now()) {
		return u.transition(ctx, p, model.PaymentStatusExpired)
	}
	return &PaymentStatusView{PaymentID: p.ID, Status: model.PaymentStatusPending}, nil
}

// approve moves the payment to approved and grants the entitlement in one
// transaction. Only the caller whose compare-and-set wins creates the grant;
// the others read back what the winner stored. A transfer the processor
// settled after the window closed never grants; the payment is expired and
// the money has to be refunded by hand.
func (u *paymentUC) approve(ctx context.Context, p *model.Payment, reportedPaidAt *time.Time) (*PaymentStatusView, error) {
	if reportedPaidAt != nil && reportedPaidAt.After(p.ExpiresAt) {
		u.log.Error().
			Str("payment_id", p.ID).
			Str("device_id", p.DeviceID).
			Str("external_id", *p.ExternalID).
			Time("paid_at", *reportedPaidAt).
			Time("expires_at", p.ExpiresAt).
			Msg("charge settled after the payment window; refund required")
		return u.transition(ctx, p, model.PaymentStatusExpired)
	}

	terms, err := u.settings.Premium(ctx)
	if err != nil {
		return nil, err
	}

	now := u.now()
	paidAt := now
	if reportedPaidAt != nil && !reportedPaidAt.IsZero() {
		paidAt = *reportedPaidAt
	}

	var grant *model.Entitlement
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.payments.TransitionIfPending(ctx, tx, p.ID, model.PaymentStatusApproved, &paidAt)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		e, err := model.NewEntitlement(u.newID(), p.DeviceID, p.ID, now, terms.DurationDays)
		if err != nil {
			return err
		}
		if err := u.entitlements.Create(ctx, tx, e); err != nil {
			return err
		}
		grant = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if grant == nil {
		return u.reload(ctx, p.ID)
	}

	u.log.Info().
		Str("payment_id", p.ID).
		Str("device_id", p.DeviceID).
		Time("paid_at", paidAt).
		Time("premium_expires_at", grant.ExpiresAt).
		Msg("payment approved; entitlement granted")
	if u.opts.OnGrant != nil {
		u.opts.OnGrant(p, grant)
	}
	return &PaymentStatusView{
		PaymentID:        p.ID,
		Status:           model.PaymentStatusApproved,
		PaidAt:           &paidAt,
		PremiumExpiresAt: &grant.ExpiresAt,
	}, nil
}

func (u *paymentUC) transition(ctx context.Context, p *model.Payment, status model.PaymentStatus) (*PaymentStatusView, error) {
	won, err := u.payments.TransitionIfPending(ctx, repository.NoTX, p.ID, status, nil)
	if err != nil {
		return nil, err
	}
	if !won {
		return u.reload(ctx, p.ID)
	}
	u.log.Info().Str("payment_id", p.ID).Str("status", string(status)).Msg("payment closed")
	return &PaymentStatusView{PaymentID: p.ID, Status: status}, nil
}

// reload reports the stored state after losing a compare-and-set race.
func (u *paymentUC) reload(ctx context.Context, id string) (*PaymentStatusView, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PaymentStatusApproved {
		return u.approvedView(ctx, p)
	}
	return &PaymentStatusView{PaymentID: p.ID, Status: p.Status}, nil
}

func (u *paymentUC) approvedView(ctx context.Context, p *model.Payment) (*PaymentStatusView, error) {
	v := &PaymentStatusView{PaymentID: p.ID, Status: model.PaymentStatusApproved, PaidAt: p.PaidAt}
	e, err := u.entitlements.FindByPaymentID(ctx, repository.NoTX, p.ID)
	switch {
	case err == nil:
		v.PremiumExpiresAt = &e.ExpiresAt
	case errors.Is(err, domain.ErrNotFound):
		u.log.Warn().Str("payment_id", p.ID).Msg("approved payment without entitlement")
	default:
		return nil, err
	}
	return v, nil
}
