package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rostersync/internal/adapters/http/api"
	"github.com/okian/rostersync/internal/adapters/remote/httpsource"
	app "github.com/okian/rostersync/internal/app"
	"github.com/okian/rostersync/internal/config"
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/inflight"
	"github.com/okian/rostersync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr, remote string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replica and its consumer API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("remote") {
				cfg.RemoteURL = remote
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "consumer API listen address")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of the remote source")
	return cmd
}

// newReplica wires a replica service against the remote source in cfg. A
// reconnected change stream triggers a full reload, since changes made
// while disconnected were never delivered.
func newReplica(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	var svc *app.Service
	client, err := httpsource.New(cfg.RemoteURL,
		httpsource.WithTimeout(cfg.RemoteTimeout()),
		httpsource.WithReconnectRate(cfg.ReconnectPerSecond),
		httpsource.WithLogger(log),
		httpsource.WithReconnectHook(func() {
			go func() {
				if err := svc.Reload(ctx); err != nil {
					log.Warn(ctx, "reload after reconnect failed", logger.Error(err))
				}
			}()
		}),
	)
	if err != nil {
		return nil, err
	}

	svc = app.New(client,
		app.WithLogger(log),
		app.WithQueueSize(cfg.QueueSize),
		app.WithSuppressionMode(inflight.Mode(cfg.SuppressionMode)),
		app.WithRollbackPolicy(engine.RollbackPolicy(cfg.RollbackPolicy)),
	)
	return svc, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	svc, err := newReplica(ctx, cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, svc).Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// The API is up before the initial load so /v1/state can report it.
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := svc.Start(ctx); err != nil {
		shutdown(srv, log)
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")
	shutdown(srv, log)
	log.Info(ctx, "server stopped")
	return nil
}

func shutdown(srv *http.Server, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
}
