package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"queue2blob/internal/app"
	"queue2blob/internal/config"
	"queue2blob/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "queue2blob",
	Short: "Copy S3 objects announced on an SQS queue into an Azure blob container",
	Long: `Polls an SQS queue for S3 object creation events, copies each referenced object
into a blob container and removes the message once the copy has completed.`,
	SilenceUsage: true,
	RunE:         runBridge,
}

func init() {
	config.BindFlags(rootCmd.Flags())
}

func runBridge(cmd *cobra.Command, args []string) error {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	region, _ := cmd.Flags().GetString("region")
	profile, _ := cmd.Flags().GetString("profile")
	loader := &config.Loader{
		Flags:  cmd.Flags(),
		Remote: &config.S3Fetcher{Region: region, Profile: profile},
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	bridge, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		return err
	}

	err = bridge.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("Received shutdown signal, stopped")
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
