package main

import (
	"github.com/spf13/cobra"

	"guia-paracuru/internal/infra/worker"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciler pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		d, closeDeps, err := buildDeps(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeDeps()

		pool := worker.NewPool(cfg.Scheduler.Workers, logger)
		pool.Start(ctx)
		defer pool.Stop()

		sch, err := newReconcileScheduler(cfg, d, pool, logger)
		if err != nil {
			return err
		}
		return sch.RunOnce(ctx)
	},
}
