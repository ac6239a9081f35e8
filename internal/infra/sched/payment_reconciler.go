package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/adapter"
	"guia-paracuru/internal/infra/logging"
	"guia-paracuru/internal/infra/metrics"
	"guia-paracuru/internal/infra/worker"
	"guia-paracuru/internal/usecase"
)

const reconcilerLockKey = "reconciler:payments"

// PaymentReconciler settles payments nobody is polling anymore. It persists
// the expiry of uncharged payments and re-checks stale pending charges with the
// processor, so approvals that arrived after the device went away still grant
// premium access.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	pool       *worker.Pool   // optional; nil refreshes inline
	locker     adapter.Locker // optional; keeps replicas from overlapping
	staleAfter time.Duration
	batch      int
	lockTTL    time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, pool *worker.Pool, locker adapter.Locker, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:         uc,
		pool:       pool,
		locker:     locker,
		staleAfter: staleAfter,
		batch:      batch,
		lockTTL:    5 * time.Minute,
		now:        time.Now,
		log:        &l,
	}
}

func (r *PaymentReconciler) Name() string { return "payment-reconciler" }

func (r *PaymentReconciler) Run(ctx context.Context) error {
	if r.locker != nil {
		token, err := r.locker.TryLock(ctx, reconcilerLockKey, r.lockTTL)
		if errors.Is(err, domain.ErrLockBusy) {
			metrics.IncReconcilerRun("skipped")
			r.log.Debug().Msg("another instance is reconciling")
			return nil
		}
		if err != nil {
			metrics.IncReconcilerRun("error")
			return err
		}
		defer func() {
			if err := r.locker.Unlock(context.WithoutCancel(ctx), reconcilerLockKey, token); err != nil {
				r.log.Warn().Err(err).Msg("unlock failed")
			}
		}()
	}

	err := r.tick(ctx)
	if err != nil {
		metrics.IncReconcilerRun("error")
		return err
	}
	metrics.IncReconcilerRun("ok")
	return nil
}

func (r *PaymentReconciler) tick(ctx context.Context) error {
	defer logging.TraceDuration(r.log, "PaymentReconciler.tick")()

	expired, err := r.uc.ExpireUncharged(ctx)
	if err != nil {
		return err
	}
	metrics.AddReconcilerItems("expired", expired)

	pending, err := r.uc.PendingCharged(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return err
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int64
		settled   atomic.Int64
	)
	for _, p := range pending {
		id := p.ID
		task := func(ctx context.Context) error {
			defer wg.Done()
			view, err := r.uc.GetStatus(ctx, id)
			if err != nil {
				return err
			}
			refreshed.Add(1)
			if view.Status != model.PaymentStatusPending {
				settled.Add(1)
			}
			return nil
		}
		wg.Add(1)
		if r.pool == nil {
			if err := task(ctx); err != nil {
				r.log.Warn().Err(err).Str("payment_id", id).Msg("refresh failed")
			}
			continue
		}
		if err := r.pool.SubmitWait(ctx, task); err != nil {
			wg.Done()
			r.log.Warn().Err(err).Str("payment_id", id).Msg("refresh not scheduled")
		}
	}
	// Queued tasks are dropped if the pool stops; do not wait past ctx.
	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-ctx.Done():
	}

	metrics.AddReconcilerItems("refreshed", refreshed.Load())
	if expired > 0 || len(pending) > 0 {
		r.log.Info().
			Int64("expired_uncharged", expired).
			Int("stale_pending", len(pending)).
			Int64("refreshed", refreshed.Load()).
			Int64("settled", settled.Load()).
			Msg("reconcile pass done")
	}
	return ctx.Err()
}
