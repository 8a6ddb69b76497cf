package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docqa-rag-api/internal/wire"
	"docqa-rag-api/pkg/logger"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, shutdownTracer, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	repos, cleanup, err := wire.InitializeRepositories(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect storage: %w", err)
	}
	defer cleanup()

	if repos.Postgres == nil {
		logger.Info(ctx, "storage driver has no schema, nothing to migrate", "driver", cfg.Storage.Driver)
		return nil
	}
	if err := repos.Postgres.AutoMigrate(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "migration completed")
	return nil
}
