package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"

	"github.com/blockedby/tg-archive/internal/archive"
	"github.com/blockedby/tg-archive/internal/collector"
	"github.com/blockedby/tg-archive/internal/config"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/nats"
	"github.com/blockedby/tg-archive/internal/publisher"
	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	store := settings.NewStore(cfg.SettingsFile)
	st, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Str("file", store.Path()).Msg("failed to load settings")
	}

	if st.APICredentials.Configured() {
		apiID, _ := st.APICredentials.APIID.Int()
		cfg.ApplyCredentials(apiID, st.APICredentials.APIHash)
	}
	if !cfg.HasCredentials() {
		log.Fatal().Str("file", store.Path()).Msg("api credentials are not configured, set api_id and api_hash")
	}

	enabled, err := store.EnabledChannels()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read channels")
	}
	identifiers := lo.Map(enabled, func(ch settings.Channel, _ int) string { return ch.Identifier })
	if len(identifiers) == 0 {
		log.Fatal().Msg("no enabled channels found in settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := telegram.OpenSessionDB(cfg.SessionDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session db")
	}

	tgManager := telegram.NewManager(cfg, db)
	if err := tgManager.Init(ctx); err != nil {
		log.Error().Err(err).Msg("telegram manager init failed")
	}
	if err := tgManager.WaitReady(); err != nil {
		log.Fatal().Err(err).Msg("telegram client is not ready")
	}

	tgClient := telegram.NewClient(tgManager)
	defer tgClient.Close()

	var pub collector.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL, "tg-monitor")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureArchiveStream(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure archive stream")
			}
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	monitor := collector.NewMonitor(
		tgClient,
		archive.NewLiveWriter(cfg.LiveArchiveDir),
		pub,
		collector.MonitorOptions{
			DownloadMedia: st.ArchiveSettings.DownloadMedia,
			MaxFileSizeMB: st.ArchiveSettings.MaxFileSizeMB,
		},
		log,
	)

	log.Info().
		Int("channels", len(identifiers)).
		Str("output", cfg.LiveArchiveDir).
		Msg("🔴 Starting live monitor, press Ctrl+C to stop")

	if err := monitor.Run(ctx, identifiers); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("monitor stopped")
		os.Exit(1)
	}

	log.Info().Msg("monitor stopped")
}
