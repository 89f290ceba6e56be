package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/mdingest/internal/core"
	"github.com/sawpanic/mdingest/internal/ingestor"
)

// Execute builds and runs the mdingest root command, returning once ctx is
// cancelled (SIGINT/SIGTERM) or a subcommand fails.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:     appName,
		Short:   "Multi-venue cryptocurrency market-data ingestor",
		Version: version,
		Long: appName + ` connects to multiple exchange WebSocket feeds, normalizes
every venue's wire format into a single canonical event stream, keeps local
order books in sync via snapshot+diff reconciliation, and fans out the
result with priority-based backpressure shedding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(ctx, configPath)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config overlay")

	return root.ExecuteContext(ctx)
}

func runIngest(ctx context.Context, configPath string) error {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Info().
		Int("exchanges", len(cfg.Exchanges)).
		Int("chunk_size", cfg.ChunkSize).
		Bool("metrics_enabled", cfg.EnableMetrics).
		Msg("starting mdingest")

	d, err := ingestor.New(cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("building driver: %w", err)
	}

	return d.Run(ctx)
}
