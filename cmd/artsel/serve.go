package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/artsel/internal/server"
	"github.com/Sternrassler/artsel/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultSweepInterval = time.Minute

// serveOptions tunes the server lifecycle.
type serveOptions struct {
	ShutdownTimeout time.Duration
	SessionIdle     time.Duration
	SweepInterval   time.Duration
}

func newServeCmd(a *app) *cobra.Command {
	var idle time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the selection HTTP API",
		Example: `  # Serve on the configured address with the page cache in Redis
  artsel serve --redis-addr localhost:6379

  # Serve on another port
  ARTSEL_SERVER_ADDR=:9090 artsel serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, cleanup, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
			}

			store := session.NewStore(c, c.PageSize())
			return runServer(ctx, server.New(a.cfg.Server.Addr, store), ln, store, serveOptions{
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				SessionIdle:     idle,
				SweepInterval:   defaultSweepInterval,
			}, a.logger)
		},
	}

	cmd.Flags().StringP("addr", "a", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&idle, "session-idle", 30*time.Minute, "drop sessions idle for longer than this (0 keeps them)")
	if err := a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}

	return cmd
}

// runServer serves on ln until ctx ends, then shuts srv down gracefully. Idle
// sessions are swept in the background.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, store *session.Store, opts serveOptions, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Starting HTTP server")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if opts.SessionIdle > 0 && opts.SweepInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					store.Sweep(opts.SessionIdle)
				}
			}
		})
	}

	return g.Wait()
}
