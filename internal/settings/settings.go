// Package settings stores archive credentials, the channel list and archive
// options in a single JSON document.
package settings

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// default archive options, used when the settings file omits them
const (
	DefaultMessagesPerChannel = 100
	DefaultDaysBack           = 7
	DefaultOutputDirectory    = "archived_channels"
	DefaultSessionName        = "archiver_session"
)

// validation errors
var (
	ErrNotFound          = errors.New("channel not found")
	ErrDuplicate         = errors.New("channel already exists")
	ErrRequired          = errors.New("identifier and name are required")
	ErrInvalidIdentifier = errors.New("invalid telegram channel format, use https://t.me/channel or @channel")
	ErrInvalidSettings   = errors.New("archive settings values must be non-negative")
)

// Settings is the whole settings document.
type Settings struct {
	APICredentials  APICredentials  `json:"api_credentials"`
	Channels        []Channel       `json:"channels"`
	ArchiveSettings ArchiveSettings `json:"archive_settings"`
}

// APICredentials holds the Telegram application credentials.
type APICredentials struct {
	APIID       APIID  `json:"api_id"`
	APIHash     string `json:"api_hash"`
	SessionName string `json:"session_name,omitempty"`
}

// Configured reports whether real credentials were filled in.
func (c APICredentials) Configured() bool {
	if _, err := c.APIID.Int(); err != nil {
		return false
	}
	return c.APIHash != "" && c.APIHash != "YOUR_API_HASH"
}

// Channel is one configured channel.
type Channel struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
}

// ArchiveSettings holds batch archive options.
type ArchiveSettings struct {
	MessagesPerChannel int    `json:"messages_per_channel"`
	DaysBack           int    `json:"days_back"`
	OutputDirectory    string `json:"output_directory"`
	DownloadMedia      bool   `json:"download_media"`
	MaxFileSizeMB      int    `json:"max_file_size_mb,omitempty"` // 0 = unlimited
}

// Defaults returns a settings document with default archive options.
func Defaults() *Settings {
	return &Settings{
		APICredentials: APICredentials{SessionName: DefaultSessionName},
		Channels:       []Channel{},
		ArchiveSettings: ArchiveSettings{
			MessagesPerChannel: DefaultMessagesPerChannel,
			DaysBack:           DefaultDaysBack,
			OutputDirectory:    DefaultOutputDirectory,
			DownloadMedia:      true,
		},
	}
}

// UnmarshalJSON fills missing archive options with defaults.
// download_media defaults to true when absent.
func (a *ArchiveSettings) UnmarshalJSON(data []byte) error {
	type plain ArchiveSettings
	raw := struct {
		plain
		DownloadMedia *bool `json:"download_media"`
	}{plain: plain(Defaults().ArchiveSettings)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = ArchiveSettings(raw.plain)
	if raw.DownloadMedia != nil {
		a.DownloadMedia = *raw.DownloadMedia
	} else {
		a.DownloadMedia = true
	}
	return nil
}

// UnmarshalJSON treats a missing enabled flag as enabled.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var raw struct {
		Identifier string `json:"identifier"`
		Name       string `json:"name"`
		Enabled    *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Identifier = raw.Identifier
	c.Name = raw.Name
	c.Enabled = raw.Enabled == nil || *raw.Enabled
	return nil
}

// APIID is the numeric Telegram app id. The file may hold it as a number or
// as a string (including the "YOUR_API_ID" placeholder).
type APIID string

// UnmarshalJSON accepts both JSON numbers and strings.
func (a *APIID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = APIID(s)
		return nil
	}
	if string(data) == "null" {
		*a = ""
		return nil
	}
	*a = APIID(data)
	return nil
}

// MarshalJSON writes numeric ids as numbers and anything else as a string.
func (a APIID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(string(a)); err == nil {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

// Int returns the numeric app id.
func (a APIID) Int() (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(a)))
}

// ValidIdentifier reports whether s looks like a public channel reference.
func ValidIdentifier(s string) bool {
	return strings.HasPrefix(s, "https://t.me/") || strings.HasPrefix(s, "@")
}
