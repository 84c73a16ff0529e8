package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blockedby/tg-archive/internal/settings"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestStartRequest_Validate(t *testing.T) {
	assert.NoError(t, (&StartRequest{}).Validate())
	assert.NoError(t, (&StartRequest{MaxFileSizeMB: intPtr(0)}).Validate())
	assert.ErrorIs(t, (&StartRequest{MaxFileSizeMB: intPtr(-5)}).Validate(), ErrInvalidFileSize)
}

func TestNewOptions(t *testing.T) {
	t.Run("zero size stays unlimited", func(t *testing.T) {
		opts := NewOptions(settings.ArchiveSettings{
			MessagesPerChannel: 100,
			DaysBack:           7,
			DownloadMedia:      true,
		}, "fallback")
		assert.Equal(t, 0, opts.MaxFileSizeMB)
		assert.Equal(t, "fallback", opts.OutputDir)
		assert.Equal(t, 100, opts.Limit)
		assert.Equal(t, 7, opts.DaysBack)
		assert.True(t, opts.DownloadMedia)
	})

	t.Run("stored size and directory", func(t *testing.T) {
		opts := NewOptions(settings.ArchiveSettings{OutputDirectory: "out", MaxFileSizeMB: 12}, "fallback")
		assert.Equal(t, 12, opts.MaxFileSizeMB)
		assert.Equal(t, "out", opts.OutputDir)
	})
}

func TestStartRequest_Options(t *testing.T) {
	stored := settings.ArchiveSettings{
		MessagesPerChannel: 20,
		DaysBack:           2,
		OutputDirectory:    "archives",
		DownloadMedia:      true,
	}

	tests := []struct {
		name     string
		req      StartRequest
		stored   settings.ArchiveSettings
		wantSize int
		wantDir  string
	}{
		{"defaults", StartRequest{}, stored, DefaultMaxFileSizeMB, "archives"},
		{"request size wins", StartRequest{MaxFileSizeMB: intPtr(5)}, stored, 5, "archives"},
		{"stored size", StartRequest{}, settings.ArchiveSettings{MaxFileSizeMB: 8}, 8, "fallback"},
		{"skip disabled", StartRequest{MaxFileSizeMB: intPtr(5), SkipLargeFiles: boolPtr(false)}, stored, 0, "archives"},
		{"skip disabled ignores stored size", StartRequest{SkipLargeFiles: boolPtr(false)}, settings.ArchiveSettings{MaxFileSizeMB: 8}, 0, "fallback"},
		{"explicit zero is unlimited", StartRequest{MaxFileSizeMB: intPtr(0)}, stored, 0, "archives"},
		{"skip enabled explicitly", StartRequest{SkipLargeFiles: boolPtr(true)}, stored, DefaultMaxFileSizeMB, "archives"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.req.Options(tt.stored, "fallback")
			assert.Equal(t, tt.wantSize, opts.MaxFileSizeMB)
			assert.Equal(t, tt.wantDir, opts.OutputDir)
			assert.Equal(t, tt.stored.MessagesPerChannel, opts.Limit)
			assert.Equal(t, tt.stored.DaysBack, opts.DaysBack)
			assert.Equal(t, tt.stored.DownloadMedia, opts.DownloadMedia)
		})
	}
}
