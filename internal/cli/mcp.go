package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP stdio",
		Long:  "Serves the memory tools over stdin/stdout for MCP clients. Logs go to stderr or the configured log file.",
		RunE:  runMCP,
	}

	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.close(shutdownCtx); err != nil {
			rt.logger.Error().Err(err).Msg("Shutdown incomplete")
		}
	}()

	sched, err := rt.newScheduler()
	if err != nil {
		return err
	}
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()

	var g errgroup.Group
	g.Go(func() error {
		sched.Start(schedCtx)
		return nil
	})

	// ServeStdio returns on EOF or on a signal it handles itself
	serveErr := mcp.NewServer(rt.service, rt.logger).Serve()
	cancelSched()
	_ = g.Wait()
	return serveErr
}
