package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"

	"github.com/blockedby/tg-archive/internal/collector"
	"github.com/blockedby/tg-archive/internal/config"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/nats"
	"github.com/blockedby/tg-archive/internal/publisher"
	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	// 3. Read settings
	store := settings.NewStore(cfg.SettingsFile)
	st, err := store.Load()
	if err != nil {
		log.Error().Err(err).Str("file", store.Path()).Msg("failed to load settings")
		return 1
	}

	if st.APICredentials.Configured() {
		apiID, _ := st.APICredentials.APIID.Int()
		cfg.ApplyCredentials(apiID, st.APICredentials.APIHash)
	}
	if !cfg.HasCredentials() {
		log.Error().Str("file", store.Path()).Msg("api credentials are not configured, set api_id and api_hash")
		return 1
	}

	enabled, err := store.EnabledChannels()
	if err != nil {
		log.Error().Err(err).Msg("failed to read channels")
		return 1
	}
	if len(enabled) == 0 {
		log.Error().Msg("no enabled channels found in settings")
		return 1
	}
	identifiers := lo.Map(enabled, func(ch settings.Channel, _ int) string { return ch.Identifier })

	// 4. Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Connect to telegram
	db, err := telegram.OpenSessionDB(cfg.SessionDB)
	if err != nil {
		log.Error().Err(err).Msg("failed to open session db")
		return 1
	}

	tgManager := telegram.NewManager(cfg, db)
	if err := tgManager.Init(ctx); err != nil {
		log.Error().Err(err).Msg("telegram manager init failed")
	}
	if err := tgManager.WaitReady(); err != nil {
		log.Error().Err(err).Msg("telegram client is not ready")
		return 1
	}

	tgClient := telegram.NewClient(tgManager)
	defer tgClient.Close()

	// 6. Optional event publishing
	var pub collector.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL, "tg-archiver")
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

	// 7. Archive
	as, err := store.ArchiveSettings()
	if err != nil {
		log.Error().Err(err).Msg("failed to read archive settings")
		return 1
	}
	opts := collector.NewOptions(as, cfg.ArchiveDir)

	log.Info().
		Int("channels", len(identifiers)).
		Int("limit", opts.Limit).
		Int("days_back", opts.DaysBack).
		Str("output", opts.OutputDir).
		Bool("media", opts.DownloadMedia).
		Msg("🚀 Starting Telegram archiver")

	events := make(chan collector.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			log.Info().Str("event", string(ev.Kind)).Str("channel", ev.Channel).Msg(ev.Message)
		}
	}()

	svc := collector.NewService(tgClient, pub, log)
	summary := svc.ArchiveChannels(ctx, identifiers, opts, events)
	close(events)
	<-done

	for _, res := range summary.Results {
		if res.Succeeded() {
			log.Info().
				Str("channel", res.Title).
				Int("messages", res.Messages).
				Int("media", res.Media).
				Int("skipped_media", res.SkippedMedia).
				Str("file", res.FilePath).
				Msg("channel archived")
		}
	}

	if summary.Canceled {
		log.Warn().Msg("archiving interrupted")
		return 130
	}
	if summary.Succeeded == 0 {
		return 1
	}
	return 0
}
