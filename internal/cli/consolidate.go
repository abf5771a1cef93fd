package cli

import (
	"context"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/service"
	"github.com/spf13/cobra"
)

var consolidateInput struct {
	accessCount int
	importance  float64
	pruneAge    string
}

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation sweep against the stored snapshot",
		Long:  "Loads the DuckDB snapshot, promotes and prunes records once, prints the result and writes the snapshot back.",
		RunE:  runConsolidate,
	}
	cmd.Flags().IntVar(&consolidateInput.accessCount, "access-count", -1, "Access count threshold (default: from config)")
	cmd.Flags().Float64Var(&consolidateInput.importance, "importance", -1, "Importance threshold (default: from config)")
	cmd.Flags().StringVar(&consolidateInput.pruneAge, "prune-age", "", "Prune age, e.g. 30d or 720h (default: from config)")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) (err error) {
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
	defer func() {
		if cerr := rt.close(context.Background()); err == nil {
			err = cerr
		}
	}()

	in := service.ConsolidateInput{PruneAge: consolidateInput.pruneAge}
	if cmd.Flags().Changed("access-count") {
		in.AccessCountThreshold = &consolidateInput.accessCount
	}
	if cmd.Flags().Changed("importance") {
		in.ImportanceThreshold = &consolidateInput.importance
	}

	res, err := rt.service.Consolidate(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(res)
}
