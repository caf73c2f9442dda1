package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/Kaifuku/internal/app"
	"github.com/shizukutanaka/Kaifuku/internal/config"
	"github.com/shizukutanaka/Kaifuku/internal/logging"
	"github.com/shizukutanaka/Kaifuku/internal/repair"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring and auto-repair engine",
	Long: `Start the engine with the specified configuration.

Examples:
  # Start with default config
  kaifuku start

  # Start with a specific config file
  kaifuku start --config kaifuku.yaml

  # Start with debug logging
  kaifuku start --log-level debug`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("config", "kaifuku.yaml", "Configuration file path")
	startCmd.Flags().String("log-level", "", "Override configured log level")
	startCmd.Flags().String("listen", "", "Override API listen address")
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if listen != "" {
		cfg.API.ListenAddr = listen
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting Kaifuku",
		zap.String("version", Version),
		zap.String("config", configPath),
	)

	application, err := app.New(logger, cfg, repair.Hooks{})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx, configPath); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	logger.Info("Kaifuku started successfully",
		zap.String("api", cfg.API.ListenAddr),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	application.Stop()
	return nil
}
