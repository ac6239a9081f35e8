package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

type EntitlementUseCase interface {
	// Active returns the device's unexpired grant or domain.ErrNotFound.
	Active(ctx context.Context, deviceID string) (*model.Entitlement, error)
	CountActive(ctx context.Context) (int, error)
	// PurgeExpired deletes grants that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type entitlementUC struct {
	entitlements repository.EntitlementRepository
	now          func() time.Time
	log          *zerolog.Logger
}

func NewEntitlementUseCase(entitlements repository.EntitlementRepository, logger *zerolog.Logger) *entitlementUC {
	l := logger.With().Str("component", "EntitlementUseCase").Logger()
	return &entitlementUC{entitlements: entitlements, now: time.Now, log: &l}
}

func (u *entitlementUC) Active(ctx context.Context, deviceID string) (*model.Entitlement, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	e, err := u.entitlements.FindActiveByDevice(ctx, repository.NoTX, deviceID, u.now())
	if err != nil {
		return nil, err
	}
	if !e.Active(u.now()) {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (u *entitlementUC) CountActive(ctx context.Context) (int, error) {
	return u.entitlements.CountActive(ctx, repository.NoTX, u.now())
}

func (u *entitlementUC) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := u.entitlements.DeleteExpiredBefore(ctx, repository.NoTX, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.log.Info().Int64("count", n).Time("before", before).Msg("expired entitlements purged")
	}
	return n, nil
}
