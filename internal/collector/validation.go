package collector

import (
	"errors"

	"github.com/blockedby/tg-archive/internal/settings"
)

// DefaultMaxFileSizeMB caps attachment downloads for a start request that
// gives no limit while the settings file has none either
const DefaultMaxFileSizeMB = 50

// validation errors
var (
	ErrInvalidFileSize = errors.New("max_file_size_mb must be non-negative")
)

// StartRequest is the body of POST /api/archiving/start
type StartRequest struct {
	// MaxFileSizeMB - attachments above this size are skipped.
	// nil falls back to the settings file, then to DefaultMaxFileSizeMB.
	MaxFileSizeMB *int `json:"max_file_size_mb,omitempty"`

	// SkipLargeFiles - when false, attachments are downloaded regardless of size.
	// nil means true.
	SkipLargeFiles *bool `json:"skip_large_files,omitempty"`
}

// Validate performs basic validation of the request
func (r *StartRequest) Validate() error {
	if r.MaxFileSizeMB != nil && *r.MaxFileSizeMB < 0 {
		return ErrInvalidFileSize
	}
	return nil
}

// NewOptions maps stored archive settings to run options. fallbackDir is
// used when the settings leave output_directory empty. A zero
// max_file_size_mb means no size limit.
func NewOptions(as settings.ArchiveSettings, fallbackDir string) Options {
	opts := Options{
		OutputDir:     as.OutputDirectory,
		Limit:         as.MessagesPerChannel,
		DaysBack:      as.DaysBack,
		DownloadMedia: as.DownloadMedia,
		MaxFileSizeMB: as.MaxFileSizeMB,
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fallbackDir
	}
	return opts
}

// Options merges the request with the stored archive settings. A request
// without max_file_size_mb uses the stored limit, or DefaultMaxFileSizeMB
// when the settings have none.
func (r *StartRequest) Options(as settings.ArchiveSettings, fallbackDir string) Options {
	opts := NewOptions(as, fallbackDir)

	if r.SkipLargeFiles != nil && !*r.SkipLargeFiles {
		opts.MaxFileSizeMB = 0
		return opts
	}

	switch {
	case r.MaxFileSizeMB != nil:
		opts.MaxFileSizeMB = *r.MaxFileSizeMB
	case as.MaxFileSizeMB > 0:
		opts.MaxFileSizeMB = as.MaxFileSizeMB
	default:
		opts.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	return opts
}

// StartResponse is returned when a run starts
type StartResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	JobID    string `json:"job_id"`
	Channels int    `json:"channels"`
}
