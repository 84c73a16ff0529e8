package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockedby/tg-archive/internal/collector"
	"github.com/blockedby/tg-archive/internal/config"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/nats"
	"github.com/blockedby/tg-archive/internal/publisher"
	"github.com/blockedby/tg-archive/internal/repository"
	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
	"github.com/blockedby/tg-archive/internal/web"
	"github.com/blockedby/tg-archive/internal/web/handlers"
)

func main() {
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
	log.Info().Msg("starting archive web frontend")

	// 3. Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Settings
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
		log.Warn().Msg("api credentials are not configured, archiving and login are unavailable")
	}

	// 5. Telegram. The frontend keeps running without a session so the
	// user can log in with a QR code.
	db, err := telegram.OpenSessionDB(cfg.SessionDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session db")
	}

	tgManager := telegram.NewManager(cfg, db)
	if err := tgManager.Init(ctx); err != nil {
		log.Error().Err(err).Msg("telegram manager init failed")
	}

	tgClient := telegram.NewClient(tgManager)
	defer tgClient.Close()

	// 6. WebSocket hub
	hub := web.NewHub()
	go hub.Run()

	// 7. NATS: publish archive events and relay them to websocket clients
	var pub collector.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL, "tg-archive-web")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureArchiveStream(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure archive stream")
			}
			pub = publisher.NewNATSPublisher(nc)

			stopRelay, err := nc.Subscribe(ctx, nats.StreamName, "web-relay", nats.SubjectAll, hub.RelayHandler())
			if err != nil {
				log.Warn().Err(err).Msg("failed to subscribe to archive events")
			} else {
				defer stopRelay()
			}
		}
	}

	// 8. Archiving control
	svc := collector.NewService(tgClient, pub, log)
	archiveManager := collector.NewArchiveManager(svc, hub, log)
	archivingHandler := collector.NewHandler(archiveManager, store, tgClient, cfg.ArchiveDir)

	// 9. Archive index over batch and live roots
	roots := []string{cfg.ArchiveDir, cfg.LiveArchiveDir}
	if st.ArchiveSettings.OutputDirectory != "" {
		roots = append([]string{st.ArchiveSettings.OutputDirectory}, roots...)
	}
	index := repository.NewArchiveIndex(roots...)

	// 10. Templates
	tmpl := web.NewTemplateEngine(cfg.TemplatesDir, cfg.LogLevel == "debug")
	if err := tmpl.Load(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.TemplatesDir).Msg("failed to load templates")
	}

	// 11. Server
	server := web.NewServer(&web.Config{
		Port:      cfg.HTTPPort,
		StaticDir: cfg.StaticDir,
	}, hub)

	server.RegisterPagesHandler(handlers.NewPagesHandler(tmpl, index, store, cfg.SearchLimit))
	server.RegisterArchiveHandler(handlers.NewArchiveHandler(index))
	server.RegisterChannelsHandler(handlers.NewChannelsHandler(store))
	server.RegisterSettingsHandler(handlers.NewSettingsHandler(store))
	server.RegisterAuthHandler(handlers.NewAuthHandler(tgClient, hub))
	server.RegisterArchivingRouter(collector.NewRouter(archivingHandler))

	log.Info().Int("port", cfg.HTTPPort).Strs("roots", index.Roots()).Msg("starting web server")
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 12. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	if err := archiveManager.Stop(); err == nil {
		log.Info().Msg("stopped running archive job")
	}
	tgManager.CancelQR()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
