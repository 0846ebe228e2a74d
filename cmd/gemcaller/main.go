// Gemcaller - Early-stage token scanner with Telegram alerts
//
// Polls DexScreener (and optionally PumpPortal) for fresh tokens, filters and
// scores them, alerts the best candidate once per identity, then follows each
// alert with a single threaded gain report when it pumps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web3guy0/gemcaller/internal/config"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gemcaller",
		Short:        "Token scanner with one-shot Telegram alerts",
		Version:      version,
		SilenceUsage: true,
		RunE:         runDaemon,
	}
	root.AddCommand(runCmd(), statusCmd(), resetCmd())
	return root
}

// loadConfig reads configuration and applies the log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}
