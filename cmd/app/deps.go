package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"guia-paracuru/internal/config"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/adapter"
	"guia-paracuru/internal/domain/ports/repository"
	payAdapters "guia-paracuru/internal/infra/adapters/payment"
	pg "guia-paracuru/internal/infra/db/postgres"
	"guia-paracuru/internal/infra/metrics"
	red "guia-paracuru/internal/infra/redis"
	"guia-paracuru/internal/usecase"
)

// deps is the object graph shared by every subcommand.
type deps struct {
	pool  *pgxpool.Pool
	redis red.RedisClient // nil without redis.url

	settingRepo repository.SettingRepository

	settingsUC usecase.SettingsUseCase
	entUC      usecase.EntitlementUseCase
	statsUC    usecase.StatsUseCase
	payUC      usecase.PaymentUseCase

	locker adapter.Locker // nil without redis
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*deps, func(), error) {
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	d := &deps{pool: pool}
	closers := []func(){pool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// ---- Redis (optional) ----
	var limiter adapter.RateLimiter
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		d.redis = rc
		d.locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
	} else {
		logger.Warn().Msg("redis.url not set: settings cache, status locks and rate limiting disabled")
	}

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepo(pool)
	entitlementRepo := pg.NewEntitlementRepo(pool)
	d.settingRepo = pg.NewSettingRepo(pool)
	if d.redis != nil {
		d.settingRepo = pg.NewSettingRepoCacheDecorator(d.settingRepo, d.redis, cfg.Redis.TTL, logger)
	}
	tm := pg.NewTxManager(pool)

	// ---- Processor ----
	processor, err := newProcessor(cfg, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	// ---- Use cases ----
	price, _ := cfg.Premium.Price() // validated by LoadConfig
	defaults := usecase.PremiumTerms{Price: price, DurationDays: cfg.Premium.DefaultDurationDays}
	d.settingsUC = usecase.NewSettingsUseCase(d.settingRepo, defaults, logger)
	d.entUC = usecase.NewEntitlementUseCase(entitlementRepo, logger)
	d.statsUC = usecase.NewStatsUseCase(paymentRepo, entitlementRepo, logger)
	d.payUC = usecase.NewPaymentUseCase(
		paymentRepo, entitlementRepo, d.settingsUC, processor, tm, d.locker, limiter,
		usecase.PaymentOptions{
			Window:       cfg.Payment.Window,
			Description:  cfg.Premium.Description,
			CreateLimit:  cfg.RateLimit.CreatePerWindow,
			CreateWindow: cfg.RateLimit.Window,
			LockTTL:      cfg.Payment.LockTTL,
			OnGrant: func(p *model.Payment, _ *model.Entitlement) {
				metrics.ObserveGrant(p.Currency, p.Amount)
			},
		},
		logger,
	)
	return d, closeAll, nil
}

func newProcessor(cfg *config.Config, logger *zerolog.Logger) (adapter.PixProcessor, error) {
	switch cfg.Payment.Processor {
	case "sandbox":
		sb := cfg.Payment.Sandbox
		logger.Warn().Dur("approve_after", sb.ApproveAfter).Msg("using the sandbox Pix processor")
		return payAdapters.Instrument(payAdapters.NewSandboxProcessor(payAdapters.SandboxConfig{
			PixKey:       sb.PixKey,
			MerchantName: sb.MerchantName,
			MerchantCity: sb.MerchantCity,
			ApproveAfter: sb.ApproveAfter,
		})), nil
	case "mercadopago":
		mp := cfg.Payment.MercadoPago
		retry := payAdapters.DefaultRetryConfig()
		retry.MaxRetries = mp.MaxRetries
		p, err := payAdapters.NewMercadoPagoProcessor(payAdapters.MercadoPagoConfig{
			BaseURL:         mp.BaseURL,
			AccessToken:     mp.AccessToken,
			PayerEmail:      mp.PayerEmail,
			NotificationURL: mp.NotificationURL,
			Timeout:         mp.Timeout,
			Retry:           retry,
			RatePerSecond:   mp.RatePerSecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("mercadopago: %w", err)
		}
		return payAdapters.Instrument(p), nil
	default:
		return nil, fmt.Errorf("unknown payment processor %q", cfg.Payment.Processor)
	}
}

// poolStatsEvery copies pool stats into metrics until ctx ends.
func poolStatsEvery(ctx context.Context, pool *pgxpool.Pool, every time.Duration, observe func(*pgxpool.Pool)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			observe(pool)
		}
	}
}
