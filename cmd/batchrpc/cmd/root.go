package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"batchrpc/internal/client"
	"batchrpc/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "batchrpc",
	Short: "Batched remote-call dispatcher",
	Long: `batchrpc invokes remote operations declared in a config file.

Calls issued together are coalesced into one batch per endpoint and every
result or remote exception is reported back per call.

Examples:
  batchrpc ops --config endpoints.toml
  batchrpc call add '[1,2,3]' divide '[1,0]'`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "batchrpc.toml", "path to config file (.json, .toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// startClient loads the config and brings up a client with every configured endpoint
func startClient(ctx context.Context) (*client.Client, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Debug().
		Str("config", cfgFile).
		Int("endpoints", len(cfg.Endpoints)).
		Int("exceptions", len(cfg.Exceptions)).
		Msg("starting batchrpc")

	c, err := client.New(cfg, logger)
	if err != nil {
		return nil, nil, logger, fmt.Errorf("failed to create client: %w", err)
	}
	for _, epCfg := range cfg.Endpoints {
		if err := c.AddEndpoint(ctx, epCfg); err != nil {
			c.Stop(ctx)
			return nil, nil, logger, fmt.Errorf("failed to add endpoint: %w", err)
		}
	}
	return c, cfg, logger, nil
}

// stopClient shuts the client down within the configured timeout
func stopClient(c *client.Client, cfg *config.Config, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeoutDuration())
	defer cancel()

	if err := c.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var lvl zerolog.Level
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	// results go to stdout
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
