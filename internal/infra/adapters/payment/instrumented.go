package payment

import (
	"context"
	"time"

	"guia-paracuru/internal/domain/ports/adapter"
	"guia-paracuru/internal/infra/metrics"
)

type instrumented struct {
	inner adapter.PixProcessor
}

// Instrument records latency and outcome of every processor call.
func Instrument(p adapter.PixProcessor) adapter.PixProcessor {
	return &instrumented{inner: p}
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	start := time.Now()
	c, err := i.inner.CreateCharge(ctx, req)
	metrics.ObserveProcessor(i.inner.Name(), "create", err == nil, time.Since(start))
	return c, err
}

func (i *instrumented) GetChargeStatus(ctx context.Context, externalID string) (*adapter.ChargeState, error) {
	start := time.Now()
	st, err := i.inner.GetChargeStatus(ctx, externalID)
	metrics.ObserveProcessor(i.inner.Name(), "status", err == nil, time.Since(start))
	return st, err
}
