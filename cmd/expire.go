package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Taoreunda/ptsd-homework-agent/internal/config"
	"github.com/Taoreunda/ptsd-homework-agent/internal/database"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

var expireOlderThan time.Duration

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Deactivate sessions idle past the inactivity window",
	Long: `expire sweeps the sessions table and deactivates every active session
whose last access is older than the inactivity window. Intended for a cron
job; session resolution also retires stale sessions inline, so the sweep is
housekeeping, not a correctness requirement.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		olderThan := cfg.SessionWindow
		if expireOlderThan > 0 {
			olderThan = expireOlderThan
		}

		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		store := session.NewStore(pool, cfg.SessionWindow, newLogger(cfg))
		n, err := store.ExpireInactive(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("expiring sessions: %w", err)
		}
		fmt.Printf("expired %d session(s) idle longer than %s\n", n, olderThan)
		return nil
	},
}

func init() {
	expireCmd.Flags().DurationVar(&expireOlderThan, "older-than", 0,
		"idle threshold (default: the configured session window)")
	rootCmd.AddCommand(expireCmd)
}
