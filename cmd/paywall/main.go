package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"guia-paracuru/internal/client"
	"guia-paracuru/internal/config"
	"guia-paracuru/internal/infra/i18n"
	"guia-paracuru/internal/infra/logging"
	"guia-paracuru/internal/paywall"
)

var (
	apiURL    string
	storeKind string
	storePath string
	logFile   string
	lang      string
	devMode   bool
)

var rootCmd = &cobra.Command{
	Use:          "paywall",
	Short:        "Unlock Guia Paracuru premium with Pix",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "payment API base URL")
	rootCmd.Flags().StringVar(&storeKind, "store", "file", "device store backend: file|keyring")
	rootCmd.Flags().StringVar(&storePath, "store-path", "", "file store path (default: user config dir)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	rootCmd.Flags().StringVar(&lang, "lang", os.Getenv("LANG"), "message language: pt|en")
	rootCmd.Flags().BoolVar(&devMode, "dev", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	tr := i18n.MustLoad(lang)
	store, err := newStore()
	if err != nil {
		return err
	}
	deviceID, err := client.DeviceID(store)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	api := client.NewAPI(apiURL, 15*time.Second)
	cache := client.NewEntitlementCache(store, logger)

	if active, err := currentAccess(ctx, cache, api, deviceID, logger); err != nil {
		return err
	} else if active != nil {
		fmt.Println(renderActive(tr, active.ExpiresAt))
		return nil
	}

	ok, err := confirm(tr, "confirm_purchase")
	if err != nil || !ok {
		return ignoreAbort(err)
	}

	changes := make(chan paywall.Snapshot, 64)
	machine := paywall.New(api, cache, paywall.Options{
		DeviceID: deviceID,
		OnChange: func(s paywall.Snapshot) {
			select {
			case changes <- s:
			case <-ctx.Done():
			}
		},
		OnEntitlementGranted: func(paymentID string, expiresAt time.Time) {
			logger.Info().Str("payment_id", paymentID).Time("expires_at", expiresAt).Msg("premium granted")
		},
	}, logger)
	go func() { _ = machine.Run(ctx) }()
	machine.Start()

	for {
		final, err := tea.NewProgram(newModel(tr, machine, changes)).Run()
		if err != nil {
			return err
		}
		m := final.(model)
		if m.aborted || m.snap.State == paywall.StateSuccess {
			return nil
		}
		ok, err := confirm(tr, "confirm_retry")
		if err != nil || !ok {
			return ignoreAbort(err)
		}
		machine.Retry()
		machine.Start()
	}
}

// currentAccess returns the cached grant, falling back to the server when the
// cache is empty. Network failures there are not fatal.
func currentAccess(ctx context.Context, cache *client.EntitlementCache, api *client.API, deviceID string, logger *zerolog.Logger) (*client.CachedEntitlement, error) {
	cached, err := cache.Read()
	if err != nil {
		return nil, fmt.Errorf("read premium cache: %w", err)
	}
	if cached != nil {
		return cached, nil
	}
	refreshed, err := cache.Refresh(ctx, api, deviceID)
	if err != nil {
		logger.Warn().Err(err).Msg("entitlement refresh failed")
		return nil, nil
	}
	return refreshed, nil
}

// confirm asks the yes/no question stored under key, described by key+"_desc".
func confirm(tr *i18n.Translator, key string) (bool, error) {
	value := true
	c := huh.NewConfirm().
		Title(tr.T(key)).
		Description(tr.T(key + "_desc")).
		Affirmative(tr.T("answer_yes")).
		Negative(tr.T("answer_no")).
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(c)).WithShowHelp(true).Run(); err != nil {
		return false, err
	}
	return value, nil
}

func ignoreAbort(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return nil
	}
	return err
}

func newStore() (client.Store, error) {
	switch storeKind {
	case "keyring":
		return client.NewKeyringStore("guia-paracuru"), nil
	case "file":
		path := storePath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "guia-paracuru", "state.json")
		}
		return client.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown store %q", storeKind)
	}
}

func newLogger() (*zerolog.Logger, func(), error) {
	if logFile == "" {
		l := zerolog.Nop()
		return &l, func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	level := "info"
	if devMode {
		level = "debug"
	}
	return logging.NewWithWriter(config.LogConfig{Level: level, Format: "json"}, false, f), func() { _ = f.Close() }, nil
}
