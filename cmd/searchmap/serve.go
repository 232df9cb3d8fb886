package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/searchmap/searchmap"
	"github.com/tailored-agentic-units/searchmap/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, snapshot string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the map over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scfg := server.DefaultConfig()
			scfg.Merge(&server.Config{Addr: addr, Snapshot: snapshot, Logger: opts.logger})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", scfg.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", scfg.Addr, err)
			}
			return runServe(ctx, opts, scfg, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default 127.0.0.1:8080)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot file loaded at start and written on shutdown")

	return cmd
}

// runServe serves on ln until ctx ends, then writes the snapshot and stops
// the engine.
func runServe(ctx context.Context, opts *rootOptions, scfg server.Config, ln net.Listener) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	logger := cfg.Logger

	store, err := searchmap.New[string](context.WithoutCancel(ctx), *cfg)
	if err != nil {
		return fmt.Errorf("failed to create map: %w", err)
	}
	defer store.Destroy()

	if scfg.Snapshot != "" {
		n, err := store.LoadSnapshot(ctx, scfg.Snapshot)
		if err != nil {
			return err
		}
		logger.Info("snapshot loaded", slog.String("path", scfg.Snapshot), slog.Int("entries", n))
	}

	srv := &http.Server{
		Handler:           server.New(store, scfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if scfg.Snapshot != "" {
		if serr := store.WriteSnapshot(scfg.Snapshot); serr != nil {
			err = errors.Join(err, serr)
		} else {
			logger.Info("snapshot written", slog.String("path", scfg.Snapshot), slog.Int("entries", store.Size()))
		}
	}

	return err
}
