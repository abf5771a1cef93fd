package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics for the stored snapshot",
		RunE:  runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	stats := rt.service.Statistics(ctx)

	// read-only: skip rt.close so the snapshot is not rewritten
	if rt.store != nil {
		_ = rt.store.Close()
	}
	_ = rt.telemetry.Shutdown(ctx)
	return printJSON(stats)
}
