package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blockedby/tg-archive/internal/archive"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/blockedby/tg-archive/internal/telegram"
)

// TelegramClient defines interface for telegram operations
type TelegramClient interface {
	ResolveChannel(ctx context.Context, identifier string) (*telegram.Channel, error)
	GetHistory(ctx context.Context, ch *telegram.Channel, req telegram.HistoryRequest) ([]telegram.Message, error)
	DownloadMedia(ctx context.Context, media *telegram.Media, path string) error
}

// EventPublisher publishes archive events to the message bus
type EventPublisher interface {
	PublishMessageArchived(ctx context.Context, event MessageArchivedEvent) error
	PublishBatchCompleted(ctx context.Context, event BatchCompletedEvent) error
}

// MessageArchivedEvent is published for every message written to an archive
type MessageArchivedEvent struct {
	Channel   string    `json:"channel"`
	ChannelID int64     `json:"channel_id"`
	MessageID int       `json:"message_id"`
	Date      time.Time `json:"date"`
	File      string    `json:"file"`
	MediaPath string    `json:"media_path,omitempty"`
	Live      bool      `json:"live"`
}

// BatchCompletedEvent is published after a batch archive file is written
type BatchCompletedEvent struct {
	Channel      string    `json:"channel"`
	ChannelID    int64     `json:"channel_id"`
	File         string    `json:"file"`
	MessageCount int       `json:"message_count"`
	MediaCount   int       `json:"media_count"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Options controls one archive run
type Options struct {
	OutputDir     string // batch archive root
	Limit         int    // max messages per channel, 0 = unlimited
	DaysBack      int    // lookback window in days, 0 = no date bound
	DownloadMedia bool
	MaxFileSizeMB int // attachments above this are skipped, 0 = unlimited
}

// ChannelResult describes the outcome for one channel
type ChannelResult struct {
	Identifier   string `json:"identifier"`
	Title        string `json:"title,omitempty"`
	Messages     int    `json:"messages"`
	Media        int    `json:"media"`
	SkippedMedia int    `json:"skipped_media"`
	FilePath     string `json:"file_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Succeeded reports whether the channel was archived without error.
func (r ChannelResult) Succeeded() bool {
	return r.Error == ""
}

// Summary aggregates a multi-channel run
type Summary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Canceled  bool            `json:"canceled"`
	Results   []ChannelResult `json:"results"`
}

// Service archives channels into batch markdown files
type Service struct {
	tgClient  TelegramClient
	publisher EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new archive service. publisher may be nil.
func NewService(tgClient TelegramClient, publisher EventPublisher, log *logger.Logger) *Service {
	return &Service{
		tgClient:  tgClient,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// ArchiveChannel fetches the configured window of one channel and writes it
// to a new batch file. A window without messages succeeds without a file.
func (s *Service) ArchiveChannel(ctx context.Context, identifier string, opts Options) (*ChannelResult, error) {
	return s.archiveChannel(ctx, identifier, opts, nil)
}

func (s *Service) archiveChannel(ctx context.Context, identifier string, opts Options, events chan<- Event) (*ChannelResult, error) {
	result := &ChannelResult{Identifier: identifier}

	ch, err := s.tgClient.ResolveChannel(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	result.Title = ch.Title

	log := s.log.With().Str("channel", ch.Title).Logger()
	emit(ctx, events, Event{Kind: EventChannelResolved, Channel: ch.Title, Message: "📋 Channel: " + ch.Title})

	end := s.now().UTC()
	req := telegram.HistoryRequest{Limit: opts.Limit, Until: end}
	if opts.DaysBack > 0 {
		req.Since = end.AddDate(0, 0, -opts.DaysBack)
	}

	messages, err := s.tgClient.GetHistory(ctx, ch, req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	if len(messages) == 0 {
		log.Info().Msg("no messages found in the specified date range")
		emit(ctx, events, Event{Kind: EventLog, Channel: ch.Title, Message: "📭 No messages found in the specified date range"})
		return result, nil
	}

	log.Info().Int("count", len(messages)).Msg("messages fetched")
	emit(ctx, events, Event{Kind: EventLog, Channel: ch.Title, Message: fmt.Sprintf("📨 Found %d messages", len(messages))})

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Date.Equal(messages[j].Date) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Date.Before(messages[j].Date)
	})

	mediaDir := archive.MediaDir(opts.OutputDir, ch.Title)
	sections := make([]string, 0, len(messages))
	mediaPaths := make([]string, len(messages))

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, skipped := s.downloadMedia(ctx, msg, mediaDir, opts, events)
		if skipped {
			result.SkippedMedia++
		}
		if path != "" {
			result.Media++
			mediaPaths[i] = path
		}
		sections = append(sections, archive.RenderMessage(msg, ch.Title, path))
	}

	start := req.Since
	if start.IsZero() {
		start = messages[0].Date
	}

	res, err := archive.NewBatchWriter(opts.OutputDir).Write(archive.BatchArchive{
		Channel:    *ch,
		Sections:   sections,
		MediaCount: result.Media,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}

	result.Messages = len(messages)
	result.FilePath = res.Path

	log.Info().
		Str("file", res.Path).
		Int("messages", result.Messages).
		Int("media", result.Media).
		Int("skipped_media", result.SkippedMedia).
		Msg("archive written")
	emit(ctx, events, Event{
		Kind:    EventLog,
		Channel: ch.Title,
		Message: fmt.Sprintf("✅ Saved %d messages to %s", result.Messages, res.Path),
	})

	s.publish(ctx, ch, res, messages, mediaPaths)
	return result, nil
}

// ArchiveChannels archives each identifier in order. A failing channel is
// logged and recorded, and the run moves on to the next one. Progress is
// reported on events, which may be nil; the channel is not closed.
func (s *Service) ArchiveChannels(ctx context.Context, identifiers []string, opts Options, events chan<- Event) *Summary {
	summary := &Summary{Total: len(identifiers), Results: make([]ChannelResult, 0, len(identifiers))}

	s.log.Info().Int("channels", len(identifiers)).Msg("starting archive run")
	emit(ctx, events, Event{
		Kind:    EventRunStarted,
		Total:   len(identifiers),
		Message: fmt.Sprintf("🚀 Starting archive process for %d channels...", len(identifiers)),
	})

	for i, id := range identifiers {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}

		emit(ctx, events, Event{
			Kind:    EventChannelStarted,
			Channel: id,
			Index:   i + 1,
			Total:   len(identifiers),
			Message: fmt.Sprintf("📂 Processing %s (%d/%d)", id, i+1, len(identifiers)),
		})

		res, err := s.archiveChannel(ctx, id, opts, events)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				summary.Canceled = true
				break
			}
			s.log.Error().Err(err).Str("channel", id).Msg("failed to archive channel")
			res = &ChannelResult{Identifier: id, Error: err.Error()}
			emit(ctx, events, Event{
				Kind:    EventChannelFailed,
				Channel: id,
				Index:   i + 1,
				Total:   len(identifiers),
				Message: fmt.Sprintf("❌ Error archiving channel %s: %v", id, err),
				Result:  res,
			})
		} else {
			summary.Succeeded++
			emit(ctx, events, Event{
				Kind:    EventChannelDone,
				Channel: id,
				Index:   i + 1,
				Total:   len(identifiers),
				Message: fmt.Sprintf("✔️ Finished %s", id),
				Result:  res,
			})
		}
		summary.Results = append(summary.Results, *res)
	}

	s.log.Info().
		Int("succeeded", summary.Succeeded).
		Int("total", summary.Total).
		Bool("canceled", summary.Canceled).
		Msg("archive run finished")
	emit(ctx, events, Event{
		Kind:    EventRunFinished,
		Total:   summary.Total,
		Message: fmt.Sprintf("📊 Successful: %d/%d", summary.Succeeded, summary.Total),
	})

	return summary
}

// downloadMedia stores the attachment of msg and returns its markdown
// reference. skipped is set when the size cap excluded the file.
func (s *Service) downloadMedia(ctx context.Context, msg telegram.Message, mediaDir string, opts Options, events chan<- Event) (ref string, skipped bool) {
	return fetchMedia(ctx, s.tgClient, s.log, msg, mediaDir, opts.DownloadMedia, opts.MaxFileSizeMB, events)
}

// fetchMedia is shared by batch and live archiving.
func fetchMedia(
	ctx context.Context,
	tgClient TelegramClient,
	log *logger.Logger,
	msg telegram.Message,
	mediaDir string,
	enabled bool,
	maxFileSizeMB int,
	events chan<- Event,
) (string, bool) {
	m := msg.Media
	if !enabled || m == nil || m.Kind == telegram.MediaOther {
		return "", false
	}

	if maxFileSizeMB > 0 && m.Size > int64(maxFileSizeMB)*1024*1024 {
		log.Info().Int("message_id", msg.ID).Int64("size", m.Size).Msg("skipping large media file")
		emit(ctx, events, Event{
			Kind:    EventMediaSkipped,
			Message: fmt.Sprintf("⏭️ Skipping large file for message %d (%.1f MB)", msg.ID, float64(m.Size)/1024/1024),
		})
		return "", true
	}

	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		log.Warn().Err(err).Msg("failed to create media dir")
		return "", false
	}

	name := archive.MediaFileName(msg.ID, m.FileName, m.MimeType)
	if err := tgClient.DownloadMedia(ctx, m, filepath.Join(mediaDir, name)); err != nil {
		log.Warn().Err(err).Int("message_id", msg.ID).Msg("failed to download media")
		return "", false
	}

	emit(ctx, events, Event{Kind: EventMediaDownloaded, Message: "📥 Downloading media: " + name})
	return archive.MediaRef(name), false
}

func (s *Service) publish(ctx context.Context, ch *telegram.Channel, res *archive.BatchResult, messages []telegram.Message, mediaPaths []string) {
	if s.publisher == nil {
		return
	}

	for i, msg := range messages {
		err := s.publisher.PublishMessageArchived(ctx, MessageArchivedEvent{
			Channel:   ch.Title,
			ChannelID: ch.ID,
			MessageID: msg.ID,
			Date:      msg.Date,
			File:      res.Path,
			MediaPath: mediaPaths[i],
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to publish message event")
			break
		}
	}

	err := s.publisher.PublishBatchCompleted(ctx, BatchCompletedEvent{
		Channel:      ch.Title,
		ChannelID:    ch.ID,
		File:         res.Path,
		MessageCount: res.MessageCount,
		MediaCount:   res.MediaCount,
		CompletedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to publish batch event")
	}
}
