package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/infra/metrics"
	"guia-paracuru/internal/usecase"
)

// EntitlementJanitor deletes grants that expired longer ago than the
// retention. A zero retention keeps every grant.
type EntitlementJanitor struct {
	uc        usecase.EntitlementUseCase
	retention time.Duration
	now       func() time.Time
	log       *zerolog.Logger
}

func NewEntitlementJanitor(uc usecase.EntitlementUseCase, retention time.Duration, logger *zerolog.Logger) *EntitlementJanitor {
	l := logger.With().Str("component", "EntitlementJanitor").Logger()
	return &EntitlementJanitor{uc: uc, retention: retention, now: time.Now, log: &l}
}

func (j *EntitlementJanitor) Name() string { return "entitlement-janitor" }

func (j *EntitlementJanitor) Run(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}
	n, err := j.uc.PurgeExpired(ctx, j.now().Add(-j.retention))
	if err != nil {
		return err
	}
	metrics.AddReconcilerItems("purged", n)
	if n > 0 {
		j.log.Info().Int64("count", n).Msg("expired entitlements purged")
	}
	return nil
}
