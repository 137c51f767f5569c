package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/nextlesson/internal/app"
	"github.com/abhisek/nextlesson/internal/config"
	"github.com/abhisek/nextlesson/internal/logger"
	"github.com/abhisek/nextlesson/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "nextlesson",
	Short:         "Adaptive next-lesson recommendations",
	Long:          "nextlesson tracks per-outcome mastery from lesson completions and recommends what each learner should study next.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides NEXTLESSON_DB env var)")
	rootCmd.PersistentFlags().String("catalog", "", "Directory holding course catalog files")
	rootCmd.PersistentFlags().String("driver", "", "Store driver: memory, sqlite, postgres or redis")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(masteryCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.Store.Driver = d
	}
	if dir, _ := cmd.Flags().GetString("catalog"); dir != "" {
		cfg.Catalog.Dir = dir
	}
	if cfg.Store.Driver == store.DriverSQLite {
		p, err := resolveDBPath(cmd, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		cfg.Store.DSN = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the configured DSN, then NEXTLESSON_DB env var and the default XDG path.
func resolveDBPath(cmd *cobra.Command, configured string) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if configured != "" {
		return configured, store.EnsureDir(configured)
	}
	return store.DefaultDBPath()
}

// openApp builds the application for one command invocation.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}
