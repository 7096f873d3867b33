package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"certalign/internal/cache"
	"certalign/internal/config"
	"certalign/internal/logging"
	"certalign/internal/stats"
	"certalign/internal/store"
)

const Version = "1.0.0"

var (
	cfg    *config.Config
	logger *logging.Logger

	// Backends resolved in PersistentPreRunE. Either may be nil when the
	// matching flag disables it.
	cacheStore  cache.Store
	statsSource stats.Source
	pgStore     *store.Postgres
	verboseFlag bool
	noCacheFlag bool
	noStatsFlag bool
)

var rootCmd = &cobra.Command{
	Use:     "certalign",
	Short:   "Certificate alignment verification engine",
	Long:    "Verifies that generated certificates render text fields at reference positions within a pixel tolerance.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		if verboseFlag {
			logger = logging.New("certalign")
		}

		return initBackends(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pgStore != nil {
			pgStore.Close()
		}
		if rs, ok := cacheStore.(*cache.RedisStore); ok {
			rs.Close()
		}
	},
}

// initBackends selects storage backends by configuration precedence:
// Postgres serves both cache and stats when configured, Redis serves the
// cache with file-backed stats, and plain files are the default.
func initBackends(ctx context.Context) error {
	if cfg.DatabaseURL != "" {
		pg, err := store.New(ctx, cfg.DatabaseURL, cfg.CacheTTL())
		if err != nil {
			return fmt.Errorf("postgres backend: %w", err)
		}
		pgStore = pg
		cacheStore = pg
		statsSource = pg
	} else {
		if cfg.RedisURL != "" {
			rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, cfg.CacheTTL())
			if err != nil {
				return fmt.Errorf("redis backend: %w", err)
			}
			cacheStore = rs
		} else {
			fs, err := cache.NewFileStore(cfg.CacheFile, cfg.CacheTTL())
			if err != nil {
				return fmt.Errorf("file cache: %w", err)
			}
			cacheStore = fs
		}

		tracker, err := stats.NewTracker(cfg.StatsFile)
		if err != nil {
			return fmt.Errorf("stats tracker: %w", err)
		}
		statsSource = tracker
	}

	if noCacheFlag {
		cacheStore = nil
	}
	if noStatsFlag {
		statsSource = nil
	}
	return nil
}

// Execute runs the root command with signal-aware cancellation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable diagnostic logging")
	rootCmd.PersistentFlags().BoolVar(&noCacheFlag, "no-cache", false, "Disable the position cache")
	rootCmd.PersistentFlags().BoolVar(&noStatsFlag, "no-stats", false, "Disable stats recording")
}
