package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blockedby/tg-archive/internal/telegram"
)

const (
	batchStampLayout = "2006-01-02_15-04-05"
	dayLayout        = "2006-01-02"
)

// MediaDir returns the attachment directory of a channel under root.
func MediaDir(root, channel string) string {
	return filepath.Join(root, SanitizeName(channel), MediaDirName)
}

// BatchArchive is one rendered export of a channel window.
type BatchArchive struct {
	Channel    telegram.Channel
	Sections   []string // rendered messages, oldest first
	MediaCount int
	Start      time.Time
	End        time.Time
}

// BatchResult describes the files produced by a batch write.
type BatchResult struct {
	Path         string `json:"path"`
	MetadataPath string `json:"metadata_path"`
	MessageCount int    `json:"message_count"`
	MediaCount   int    `json:"media_count"`
}

// metadata is the sidecar document written next to each batch file.
type metadata struct {
	ChannelInfo  channelInfo `json:"channel_info"`
	ArchiveDate  string      `json:"archive_date"`
	MessageCount int         `json:"message_count"`
	MediaCount   int         `json:"media_count"`
	DateRange    dateRange   `json:"date_range"`
	FilePath     string      `json:"file_path"`
}

type channelInfo struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Username *string `json:"username"`
	Type     string  `json:"type"`
}

type dateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BatchWriter writes one timestamped markdown file per archive run.
type BatchWriter struct {
	root string
	now  func() time.Time
}

// NewBatchWriter creates a writer rooted at dir.
func NewBatchWriter(root string) *BatchWriter {
	return &BatchWriter{root: root, now: time.Now}
}

// Root returns the output directory.
func (w *BatchWriter) Root() string {
	return w.root
}

// Write creates <root>/<channel>/<channel>_<stamp>.md and its metadata
// sidecar. An existing file is never overwritten.
func (w *BatchWriter) Write(a BatchArchive) (*BatchResult, error) {
	now := w.now()
	safe := SanitizeName(a.Channel.Title)
	dir := filepath.Join(w.root, safe)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create channel dir: %w", err)
	}

	base := safe + "_" + now.Format(batchStampLayout)
	path := filepath.Join(dir, base+".md")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Channel.Title)
	fmt.Fprintf(&b, "**Archive Date:** %s\n", now.Format(DateLayout))
	fmt.Fprintf(&b, "**Messages:** %d\n", len(a.Sections))
	fmt.Fprintf(&b, "**Date Range:** %s to %s\n\n", a.Start.Format(dayLayout), a.End.Format(dayLayout))
	b.WriteString("---\n\n")
	for _, s := range a.Sections {
		b.WriteString(s)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}

	meta := metadata{
		ChannelInfo: channelInfo{
			ID:    a.Channel.ID,
			Title: a.Channel.Title,
			Type:  a.Channel.Type,
		},
		ArchiveDate:  now.Format(time.RFC3339),
		MessageCount: len(a.Sections),
		MediaCount:   a.MediaCount,
		DateRange: dateRange{
			Start: a.Start.Format(time.RFC3339),
			End:   a.End.Format(time.RFC3339),
		},
		FilePath: path,
	}
	if a.Channel.Username != "" {
		username := a.Channel.Username
		meta.ChannelInfo.Username = &username
	}

	metaPath := filepath.Join(dir, base+"_metadata.json")
	if err := writeJSON(metaPath, meta); err != nil {
		return nil, err
	}

	return &BatchResult{
		Path:         path,
		MetadataPath: metaPath,
		MessageCount: len(a.Sections),
		MediaCount:   a.MediaCount,
	}, nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LiveWriter appends messages to one file per channel per day.
type LiveWriter struct {
	root string
	now  func() time.Time
	mu   sync.Mutex
}

// NewLiveWriter creates a writer rooted at dir.
func NewLiveWriter(root string) *LiveWriter {
	return &LiveWriter{root: root, now: time.Now}
}

// Root returns the output directory.
func (w *LiveWriter) Root() string {
	return w.root
}

// Append adds a rendered section to today's file of the channel, writing the
// file header first when the file is new. Returns the file path.
func (w *LiveWriter) Append(channel, section string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	safe := SanitizeName(channel)
	dir := filepath.Join(w.root, safe)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create channel dir: %w", err)
	}

	day := now.Format(dayLayout)
	path := filepath.Join(dir, safe+"_"+day+"_live.md")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("open live file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat live file: %w", err)
	}

	var b strings.Builder
	if info.Size() == 0 {
		fmt.Fprintf(&b, "# %s - Live Archive\n\n", channel)
		fmt.Fprintf(&b, "**Date:** %s\n", day)
		fmt.Fprintf(&b, "**Real-time monitoring started:** %s\n\n", now.Format(DateLayout))
		b.WriteString("---\n\n")
	}
	b.WriteString(section)

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("append live file: %w", err)
	}
	return path, nil
}
