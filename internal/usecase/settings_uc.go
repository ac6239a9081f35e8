package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/domain/ports/repository"
)

// Compile-time check
var _ SettingsUseCase = (*settingsUC)(nil)

// PremiumTerms is what a purchase costs and how long it lasts.
type PremiumTerms struct {
	Price        decimal.Decimal
	DurationDays int
}

type SettingsUseCase interface {
	// Premium reads price and duration, falling back to the configured defaults.
	Premium(ctx context.Context) (PremiumTerms, error)
	UpdatePremium(ctx context.Context, terms PremiumTerms) error
}

const maxPremiumDurationDays = 366

type settingsUC struct {
	settings repository.SettingRepository
	defaults PremiumTerms
	log      *zerolog.Logger
}

func NewSettingsUseCase(settings repository.SettingRepository, defaults PremiumTerms, logger *zerolog.Logger) *settingsUC {
	l := logger.With().Str("component", "SettingsUseCase").Logger()
	return &settingsUC{settings: settings, defaults: defaults, log: &l}
}

func (u *settingsUC) Premium(ctx context.Context) (PremiumTerms, error) {
	terms := u.defaults

	price, err := u.lookup(ctx, model.SettingPremiumPrice)
	if err != nil {
		return PremiumTerms{}, err
	}
	if price != "" {
		if d, perr := parsePrice(price); perr == nil {
			terms.Price = d
		} else {
			u.log.Warn().Str("key", model.SettingPremiumPrice).Str("value", price).Msg("invalid stored price; using default")
		}
	}

	days, err := u.lookup(ctx, model.SettingPremiumDurationDays)
	if err != nil {
		return PremiumTerms{}, err
	}
	if days != "" {
		if n, perr := parseDays(days); perr == nil {
			terms.DurationDays = n
		} else {
			u.log.Warn().Str("key", model.SettingPremiumDurationDays).Str("value", days).Msg("invalid stored duration; using default")
		}
	}
	return terms, nil
}

func (u *settingsUC) UpdatePremium(ctx context.Context, terms PremiumTerms) error {
	if !terms.Price.IsPositive() || terms.DurationDays < 1 || terms.DurationDays > maxPremiumDurationDays {
		return domain.ErrInvalidArgument
	}
	if err := u.settings.Set(ctx, repository.NoTX, model.SettingPremiumPrice, terms.Price.StringFixed(2)); err != nil {
		return err
	}
	if err := u.settings.Set(ctx, repository.NoTX, model.SettingPremiumDurationDays, strconv.Itoa(terms.DurationDays)); err != nil {
		return err
	}
	u.log.Info().Str("price", terms.Price.StringFixed(2)).Int("duration_days", terms.DurationDays).Msg("premium terms updated")
	return nil
}

func (u *settingsUC) lookup(ctx context.Context, key string) (string, error) {
	s, err := u.settings.Get(ctx, repository.NoTX, key)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s.Value), nil
}

// parsePrice accepts "1.99" as well as the back-office's "1,99".
func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, domain.ErrInvalidArgument
	}
	return d.Round(2), nil
}

func parseDays(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxPremiumDurationDays {
		return 0, domain.ErrInvalidArgument
	}
	return n, nil
}
