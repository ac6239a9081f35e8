package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
	"guia-paracuru/internal/usecase"
)

var (
	seedCmd = &cobra.Command{
		RunE:  runSeed,
		Use:   "seed",
		Short: "Store the configured premium price and duration",
		Long:  `Writes premium.default_price and premium.default_duration_days into the settings table unless values are already present.`,
	}
	seedForce bool
)

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "overwrite existing settings")
}

func runSeed(cmd *cobra.Command, _ []string) error {
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

	if !seedForce {
		_, err := d.settingRepo.Get(ctx, repository.NoTX, model.SettingPremiumPrice)
		switch {
		case err == nil:
			terms, _ := d.settingsUC.Premium(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "settings already present: price=%s days=%d. No changes.\n", terms.Price.StringFixed(2), terms.DurationDays)
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}

	price, err := cfg.Premium.Price()
	if err != nil {
		return err
	}
	terms := usecase.PremiumTerms{Price: price, DurationDays: cfg.Premium.DefaultDurationDays}
	if err := d.settingsUC.UpdatePremium(ctx, terms); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded premium terms: price=%s days=%d\n", price.StringFixed(2), terms.DurationDays)
	return nil
}
