package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Player124413/PolGen-RVC/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the PolGen HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, manager, cleanup, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			h := server.NewHandler(svc, manager,
				server.WithWorkers(cfg.Server.MaxConcurrent),
				server.WithRequestTimeout(time.Duration(cfg.Server.RequestTimeout)*time.Second),
				server.WithLogger(slog.Default()),
			)

			srv := server.New(cfg.Server.ListenAddr, h, slog.Default())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}
}
