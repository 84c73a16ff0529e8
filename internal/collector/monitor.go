package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockedby/tg-archive/internal/archive"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/telegram"
)

// LiveClient is a TelegramClient that can also stream new messages
type LiveClient interface {
	TelegramClient
	Subscribe(handler telegram.MessageHandler) error
}

// MonitorOptions controls live archiving
type MonitorOptions struct {
	DownloadMedia bool
	MaxFileSizeMB int // 0 = unlimited
}

// MonitorStats counts what the monitor has written so far
type MonitorStats struct {
	Channels    int       `json:"channels"`
	Messages    int       `json:"messages"`
	Media       int       `json:"media"`
	Errors      int       `json:"errors"`
	LastMessage time.Time `json:"last_message,omitempty"`
}

// Monitor appends new messages of watched channels to daily live files
type Monitor struct {
	tgClient  LiveClient
	writer    *archive.LiveWriter
	publisher EventPublisher
	opts      MonitorOptions
	log       *logger.Logger

	mu       sync.Mutex
	channels map[int64]*telegram.Channel
	stats    MonitorStats
	done     <-chan struct{}
}

// NewMonitor creates a live monitor writing under writer's root.
// publisher may be nil.
func NewMonitor(tgClient LiveClient, writer *archive.LiveWriter, publisher EventPublisher, opts MonitorOptions, log *logger.Logger) *Monitor {
	return &Monitor{
		tgClient:  tgClient,
		writer:    writer,
		publisher: publisher,
		opts:      opts,
		log:       log,
		channels:  make(map[int64]*telegram.Channel),
	}
}

// Run resolves the identifiers, subscribes to new messages and blocks until
// ctx is canceled. Identifiers that fail to resolve are skipped; an error is
// returned only when none resolves.
func (m *Monitor) Run(ctx context.Context, identifiers []string) error {
	resolved := make(map[int64]*telegram.Channel, len(identifiers))
	for _, id := range identifiers {
		ch, err := m.tgClient.ResolveChannel(ctx, id)
		if err != nil {
			m.log.Warn().Err(err).Str("channel", id).Msg("failed to resolve channel, skipping")
			continue
		}
		resolved[ch.ID] = ch
		m.log.Info().Str("channel", ch.Title).Int64("channel_id", ch.ID).Msg("monitoring channel")
	}

	if len(resolved) == 0 {
		return fmt.Errorf("monitor: %w", ErrNoChannels)
	}

	m.mu.Lock()
	m.channels = resolved
	m.stats.Channels = len(resolved)
	m.done = ctx.Done()
	m.mu.Unlock()

	if err := m.tgClient.Subscribe(m.handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	m.log.Info().
		Int("channels", len(resolved)).
		Str("dir", m.writer.Root()).
		Msg("live monitor started")

	<-ctx.Done()

	st := m.Stats()
	m.log.Info().
		Int("messages", st.Messages).
		Int("media", st.Media).
		Int("errors", st.Errors).
		Msg("live monitor stopped")
	return nil
}

// Stats returns a copy of the counters
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// handle archives one incoming message when it belongs to a watched channel
func (m *Monitor) handle(ctx context.Context, msg telegram.Message) {
	m.mu.Lock()
	ch, ok := m.channels[msg.ChannelID]
	done := m.done
	m.mu.Unlock()

	if !ok {
		return
	}
	if done != nil {
		select {
		case <-done:
			return
		default:
		}
	}

	log := m.log.With().Str("channel", ch.Title).Int("message_id", msg.ID).Logger()

	mediaDir := archive.MediaDir(m.writer.Root(), ch.Title)
	ref, _ := fetchMedia(ctx, m.tgClient, m.log, msg, mediaDir, m.opts.DownloadMedia, m.opts.MaxFileSizeMB, nil)

	path, err := m.writer.Append(ch.Title, archive.RenderMessage(msg, ch.Title, ref))
	if err != nil {
		log.Error().Err(err).Msg("failed to append live message")
		m.mu.Lock()
		m.stats.Errors++
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.stats.Messages++
	if ref != "" {
		m.stats.Media++
	}
	m.stats.LastMessage = msg.Date
	m.mu.Unlock()

	log.Info().Str("file", path).Msg("live message archived")

	if m.publisher != nil {
		err := m.publisher.PublishMessageArchived(ctx, MessageArchivedEvent{
			Channel:   ch.Title,
			ChannelID: ch.ID,
			MessageID: msg.ID,
			Date:      msg.Date,
			File:      path,
			MediaPath: ref,
			Live:      true,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to publish message event")
		}
	}
}
