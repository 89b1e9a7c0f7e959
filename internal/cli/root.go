// Package cli implements the rtdb command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/Ratio1/rtdb_sdk_go/internal/config"
	"github.com/Ratio1/rtdb_sdk_go/internal/keychain"
	"github.com/Ratio1/rtdb_sdk_go/internal/rtdbapi"
	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb"
)

// Version is set at build time.
var Version = "dev"

// app carries state shared by every subcommand.
type app struct {
	cfgPath string
	isDebug bool
	url     string
	secret  string

	cfg *config.Config
	// openKeychain is replaced in tests.
	openKeychain func() (*keychain.Manager, error)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{openKeychain: keychain.Open})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "rtdb",
		Short:         "Batch client for realtime database REST endpoints",
		Long:          `rtdb reads and writes realtime database paths over REST, batching requests and retrying transient failures.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (YAML)")
	root.PersistentFlags().BoolVar(&a.isDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.url, "url", "", "database URL (overrides config and RTDB_URL)")
	root.PersistentFlags().StringVar(&a.secret, "secret", "", "database secret or OAuth2 access token")

	root.AddCommand(
		a.getCmd(),
		a.setCmd(),
		a.pushCmd(),
		a.updateCmd(),
		a.removeCmd(),
		a.getAllCmd(),
		a.sandboxCmd(),
		a.secretCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the CLI application.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func (a *app) init() error {
	_ = godotenv.Load()

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return err
	}
	a.cfg = cfg

	level := slog.LevelInfo
	switch {
	case a.isDebug, cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	return nil
}

// openDatabase resolves the target from flags, then config, then the
// environment. Without any URL it falls back to NewFromEnv (mock mode).
// RTDB_RUNTIME_MODE=mock also selects NewFromEnv unless --url is given.
func (a *app) openDatabase() (*rtdb.Database, error) {
	opts := a.databaseOptions()

	baseURL := strings.TrimSpace(a.url)
	if baseURL == "" && !config.MockMode() {
		baseURL = a.cfg.Database.URL
	}
	if baseURL == "" {
		db, mode, err := rtdb.NewFromEnv(opts...)
		if err != nil {
			return nil, err
		}
		slog.Debug("database opened from environment", "mode", mode, "url", db.URL())
		return db, nil
	}

	secret, err := a.resolveSecret(baseURL)
	if err != nil {
		return nil, err
	}
	return rtdb.New(baseURL, secret, opts...)
}

func (a *app) resolveSecret(baseURL string) (string, error) {
	if a.secret != "" {
		return a.secret, nil
	}
	if a.cfg.Database.Secret != "" {
		return a.cfg.Database.Secret, nil
	}
	kc, err := a.openKeychain()
	if err != nil {
		slog.Debug("keychain unavailable", "error", err)
		return "", nil
	}
	secret, err := kc.LoadSecret(baseURL)
	if errors.Is(err, keychain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load secret from keychain: %w", err)
	}
	return secret, nil
}

func (a *app) databaseOptions() []rtdb.Option {
	cfg := a.cfg
	policy := rtdb.RetryPolicy{
		MaxGenerations: rtdb.DefaultMaxGenerations,
		BaseDelay:      cfg.Retry.BaseDelay,
		Jitter:         cfg.Retry.Jitter,
	}
	if cfg.Retry.MaxGenerations != nil {
		policy.MaxGenerations = *cfg.Retry.MaxGenerations
	}
	return []rtdb.Option{
		rtdb.WithLogger(slog.Default()),
		rtdb.WithRetryPolicy(policy),
		rtdb.WithTimeout(cfg.Transport.Timeout),
		rtdb.WithConcurrency(cfg.Transport.Concurrency),
		rtdb.WithRateLimit(cfg.Transport.RateLimit, cfg.Transport.Burst),
	}
}

// redact strips the active secret from messages printed to the terminal.
func (a *app) redact(err error) error {
	if err == nil {
		return nil
	}
	secrets := []string{a.secret}
	if a.cfg != nil {
		secrets = append(secrets, a.cfg.Database.Secret)
	}
	msg := err.Error()
	for _, s := range secrets {
		msg = rtdbapi.Redact(msg, s)
	}
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rtdb %s\n", Version)
		},
	}
}
