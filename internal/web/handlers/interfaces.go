package handlers

import (
	"context"

	"github.com/blockedby/tg-archive/internal/repository"
	"github.com/blockedby/tg-archive/internal/settings"
	"github.com/blockedby/tg-archive/internal/telegram"
)

// ArchiveIndex defines read access to archives on disk
type ArchiveIndex interface {
	Channels() []repository.ChannelSummary
	Files(channel string) ([]repository.FileInfo, error)
	ReadFile(channel, file string) (string, error)
	MediaPath(channel, file string) (string, error)
	Stats() repository.Stats
	Search(query, channel string, limit int) []repository.SearchResult
}

// SettingsStore defines access to the settings document
type SettingsStore interface {
	Load() (*settings.Settings, error)
	Channels() ([]settings.Channel, error)
	AddChannel(ch settings.Channel) (settings.Channel, error)
	UpdateChannel(index int, patch settings.ChannelPatch) (settings.Channel, error)
	DeleteChannel(index int) (settings.Channel, error)
	ArchiveSettings() (settings.ArchiveSettings, error)
	UpdateArchiveSettings(patch settings.ArchiveSettingsPatch) (settings.ArchiveSettings, error)
}

// TelegramClient defines the interface required by AuthHandler
type TelegramClient interface {
	StartQR(ctx context.Context, onQRCode func(url string)) error
	GetStatus() telegram.Status
	IsQRInProgress() bool
}

// HubBroadcaster defines the interface for broadcasting events to connected clients.
type HubBroadcaster interface {
	BroadcastEvent(eventType string, payload any)
}
