package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"guia-paracuru/internal/config"
	"guia-paracuru/internal/infra/api"
	"guia-paracuru/internal/infra/metrics"
	"guia-paracuru/internal/infra/sched"
	"guia-paracuru/internal/infra/scheduler"
	"guia-paracuru/internal/infra/web"
	"guia-paracuru/internal/infra/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the payment API, the admin API and the reconciler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(parent context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	d, closeDeps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()
	go poolStatsEvery(ctx, d.pool, 15*time.Second, metrics.ObservePool)

	// ---- Reconciler ----
	pool := worker.NewPool(cfg.Scheduler.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()
	sch, err := newReconcileScheduler(cfg, d, pool, logger)
	if err != nil {
		return err
	}
	sch.Start(ctx)
	defer sch.Stop()

	// ---- Public API ----
	apiSrv := api.NewServer(d.payUC, d.entUC, cfg.Payment.MercadoPago.WebhookSecret, cfg.Runtime.Dev, logger)
	servers := []*http.Server{{
		Addr: cfg.HTTP.Addr,
		Handler: apiSrv.Handler(api.Options{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Metrics:        true,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}}

	// ---- Admin API ----
	if cfg.Admin.APIKey != "" && cfg.Admin.JWTSecret != "" {
		auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, "", cfg.Admin.TokenTTL)
		adminSrv := web.NewServer(d.settingsUC, d.statsUC, cfg.Admin.APIKey, auth, logger)
		servers = append(servers, &http.Server{
			Addr:         cfg.Admin.Addr,
			Handler:      api.Recover(logger)(api.TraceID()(api.RequestLog(logger)(adminSrv.Handler()))),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		})
	} else {
		logger.Warn().Msg("admin.api_key or admin.jwt_secret not set: admin API disabled")
	}

	errc := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			logger.Info().Str("addr", s.Addr).Msg("http server listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(s)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err = <-errc:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	for _, s := range servers {
		if serr := s.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Str("addr", s.Addr).Msg("shutdown")
		}
	}
	return err
}

func newReconcileScheduler(cfg *config.Config, d *deps, pool *worker.Pool, logger *zerolog.Logger) (*scheduler.Scheduler, error) {
	reconciler := sched.NewPaymentReconciler(d.payUC, pool, d.locker, cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, logger)
	janitor := sched.NewEntitlementJanitor(d.entUC, cfg.Scheduler.EntitlementRetention, logger)
	return scheduler.NewScheduler(cfg.Scheduler.ReconcileCron, 5*time.Minute, logger, reconciler, janitor)
}
