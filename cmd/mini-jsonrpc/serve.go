package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-jsonrpc/middleware"
	"mini-jsonrpc/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithCodec(cfg.CodecType()),
		server.WithHeartbeat(cfg.Heartbeat()),
	}
	reg, err := a.registry()
	if err != nil {
		return err
	}
	if reg != nil {
		opts = append(opts, server.WithRegistry(reg, cfg.Server.Service, cfg.AdvertiseAddr(), cfg.RegistryTTL()))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.LoggingMiddleware(a.logger))
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, max(cfg.Server.RateBurst, 1)))
	}
	if timeout := cfg.InvokeTimeout(); timeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(timeout))
	}
	if err := registerDemo(svr, a.logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svr.Serve("tcp", cfg.Server.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout()))
		return svr.Shutdown(cfg.ShutdownTimeout())
	})
	return g.Wait()
}
