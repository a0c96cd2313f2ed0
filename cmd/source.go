package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rostersync/internal/adapters/http/sourceapi"
	"github.com/okian/rostersync/internal/adapters/remote/sqlsource"
	"github.com/okian/rostersync/internal/config"
	"github.com/okian/rostersync/pkg/logger"
)

func newSourceCmd(root *rootOptions) *cobra.Command {
	var addr, dsn, seed string
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Run a development source backed by SQLite",
		Long: `source serves a SQLite-backed guild database over the REST and
WebSocket protocol the replica consumes. --seed loads a YAML file mapping
collection names to rows before serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SourceAddr = addr
			}
			if cmd.Flags().Changed("dsn") {
				cfg.SourceDSN = dsn
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSource(ctx, cfg, seed)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "source listen address")
	cmd.Flags().StringVar(&dsn, "dsn", "", "SQLite DSN")
	cmd.Flags().StringVar(&seed, "seed", "", "YAML seed file")
	return cmd
}

// openSource opens the SQLite source and applies the optional seed file.
func openSource(ctx context.Context, cfg *config.Config, seed string, log logger.Logger) (*sqlsource.Source, error) {
	db, err := sqlsource.Open(ctx, cfg.SourceDSN, sqlsource.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if seed != "" {
		n, err := db.LoadSeedFile(ctx, seed)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed %s: %w", seed, err)
		}
		log.Info(ctx, "seeded source", logger.String("file", seed), logger.Int("rows", n))
	}
	return db, nil
}

func runSource(ctx context.Context, cfg *config.Config, seed string) error {
	log := logger.Get()

	db, err := openSource(ctx, cfg, seed, log)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := sourceapi.New(db, sourceapi.WithLogger(log))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.SourceAddr) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return errors.New("source server exited")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
