package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web3guy0/gemcaller/bot"
	"github.com/web3guy0/gemcaller/core"
	"github.com/web3guy0/gemcaller/feeds"
	"github.com/web3guy0/gemcaller/internal/health"
	"github.com/web3guy0/gemcaller/internal/metrics"
	"github.com/web3guy0/gemcaller/journal"
	"github.com/web3guy0/gemcaller/storage"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scanner daemon",
		RunE:  runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("version", version).
		Str("profile", cfg.Profile.Name).
		Str("mode", cfg.Profile.Selector.Mode).
		Int("min_score", cfg.Profile.Selector.MinScore).
		Str("state", cfg.StateBackend).
		Msg("💎 Gemcaller starting")

	reg := metrics.New()

	// State
	store, err := storage.Open(cfg.StateBackend, cfg.StatePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer store.Close()

	// Telegram
	tg, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotifyTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram bot")
	}

	// Journal
	var jr *journal.Journal
	if len(cfg.KafkaBrokers) > 0 {
		jr, err = journal.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn().Err(err).Msg("Kafka journal unavailable, continuing without it")
			jr = nil
		}
	}
	defer jr.Close()

	// Feeds
	dex := feeds.NewDexScreener(cfg.Feeds, reg)
	adapters := []feeds.Adapter{dex}
	if cfg.Feeds.PumpPortalURL != "" {
		pump := feeds.NewPumpPortal(cfg.Feeds.PumpPortalURL, dex, cfg.Feeds.PumpPortalBuffer, reg)
		go pump.Run(ctx)
		adapters = append(adapters, pump)
	}

	engine := core.NewEngine(cfg, core.Deps{
		Adapters: adapters,
		Quoter:   dex,
		Notifier: tg,
		Store:    store,
		Journal:  jr,
		Metrics:  reg,
	})
	if err := engine.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load state")
	}

	tg.SetAdmin(engine)
	tg.Start()
	defer tg.Stop()

	health.NewServer(cfg.HTTPPort, engine, reg.Handler()).Start(ctx)

	engine.Run(ctx)
	log.Info().Msg("🛑 Shutdown complete")
	return nil
}
