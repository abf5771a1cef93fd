package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/api"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var servePort int

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, MCP over SSE and the background scheduler",
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides server.port)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, runtimeOptions{metrics: true})
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

	opts := []api.Option{
		api.WithLogger(rt.logger),
		api.WithReadiness(rt.ping),
	}
	if h := rt.telemetry.Handler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}
	srv := api.NewServer(rt.service, cfg.Server.Port, opts...)
	srv.AddMCPServer(mcp.NewServer(rt.service, rt.logger).GetMCPServer())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	return g.Wait()
}
