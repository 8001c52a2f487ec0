package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

type Config struct {
	allowedOrigins    []string
	bind              string
	databaseURL       string
	feedSweepInterval time.Duration
	idleTimeout       time.Duration
	port              int
	shutdownTimeout   time.Duration
	store             string
	syncTimeout       time.Duration
	verbose           bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.store {
	case storeMemory:
	case storePostgres:
		if c.databaseURL == "" {
			return errors.New("--database-url is required with --store=postgres")
		}
	default:
		return fmt.Errorf("unknown store %q (must be %q or %q)", c.store, storeMemory, storePostgres)
	}
	if c.syncTimeout <= 0 {
		return errors.New("--sync-timeout must be positive")
	}
	if c.idleTimeout < 0 {
		return errors.New("--idle-timeout must not be negative")
	}
	if c.feedSweepInterval < 0 {
		return errors.New("--feed-sweep-interval must not be negative")
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("EMOJI_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "emoji-relay",
		Short:   "Game server for Emoji Relay: take turns adding emoji to a shared story.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "origin patterns allowed to open websockets, e.g. localhost:* (env: EMOJI_RELAY_ALLOWED_ORIGINS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: EMOJI_RELAY_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string (env: EMOJI_RELAY_DATABASE_URL)")
	fs.DurationVar(&cfg.feedSweepInterval, "feed-sweep-interval", 5*time.Minute, "how often rooms nobody follows are dropped from memory, 0 to disable (env: EMOJI_RELAY_FEED_SWEEP_INTERVAL)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 0, "close websockets that send nothing for this long, 0 to disable (env: EMOJI_RELAY_IDLE_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: EMOJI_RELAY_PORT)")
	fs.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for open requests to finish on shutdown (env: EMOJI_RELAY_SHUTDOWN_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", storeMemory, "session store: memory or postgres (env: EMOJI_RELAY_STORE)")
	fs.DurationVar(&cfg.syncTimeout, "sync-timeout", 5*time.Second, "timeout for each store round trip (env: EMOJI_RELAY_SYNC_TIMEOUT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log at debug level (env: EMOJI_RELAY_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, v.GetString(f.Name))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("emoji-relay v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
