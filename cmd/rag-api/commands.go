package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docqa-rag-api/internal/config"
	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/tracer"
)

var (
	configDir string

	rootCmd = &cobra.Command{
		Use:           "rag-api",
		Short:         "Document Q&A service with focus-aware retrieval and streamed answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE:  runMigrate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rag-api %s (built %s)\n", Version, BuildTime)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir,
		"directory containing config.yaml and config.<APP_ENV>.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// bootstrap 加载配置并初始化日志与追踪，返回追踪的 shutdown
func bootstrap(ctx context.Context) (*config.Config, func(context.Context) error, error) {
	cfg, err := config.LoadFrom(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	logCfg := cfg.Observability.Logging
	logger.Init(logger.Options{
		Level:      logCfg.Level,
		Format:     logCfg.Format,
		Output:     logCfg.Output,
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAgeDays,
	})

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	return cfg, shutdown, nil
}
