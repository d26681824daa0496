package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/observability/logging"
)

const service = "ragctl"

var (
	ingestService ports.DocumentIngestor
	queryService  ports.DocumentQueryService

	app     *bootstrap.App
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Ingest documents and ask questions about them",
	Long: `ragctl talks to the same index as the API server.
Configuration comes from the environment, an optional .env file and CONFIG_FILE.`,
	SilenceUsage:      true,
	PersistentPreRunE: connect,
	PersistentPostRun: func(*cobra.Command, []string) {
		if app != nil {
			app.Close()
			app = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

// connect builds the services on first use. Tests install fakes beforehand.
func connect(cmd *cobra.Command, _ []string) error {
	level := "warn"
	if verbose {
		level = "debug"
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, service, level))

	if ingestService != nil && queryService != nil {
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err = bootstrap.New(ctx, cfg, bootstrap.Options{Service: service})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	ingestService = app.IngestUC
	queryService = app.QueryUC
	return nil
}
