// Package config loads process configuration from environment variables.
//
// Per-archive options (channels, credentials, fetch limits) live in the JSON
// settings file managed by package settings; this package only covers where
// things are and how the process runs.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all process configuration.
type Config struct {
	// settings file with channels and archive options
	SettingsFile string

	// archive roots
	ArchiveDir     string // batch output when settings leave output_directory empty
	LiveArchiveDir string

	// telegram
	SessionDB string
	TGApiID   int
	TGApiHash string

	// server
	HTTPPort     int
	TemplatesDir string
	StaticDir    string
	SearchLimit  int

	// nats, empty disables event publishing
	NatsURL string

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SettingsFile:   getEnv("SETTINGS_FILE", "./config.json"),
		ArchiveDir:     getEnv("ARCHIVE_DIR", "./archived_channels"),
		LiveArchiveDir: getEnv("LIVE_ARCHIVE_DIR", "./live_archive"),
		SessionDB:      getEnv("SESSION_DB", "./tg_session.db"),
		TGApiID:        getEnvInt("TG_API_ID", 0),
		TGApiHash:      getEnv("TG_API_HASH", ""),
		HTTPPort:       getEnvInt("HTTP_PORT", 5000),
		TemplatesDir:   getEnv("TEMPLATES_DIR", "./internal/web/templates"),
		StaticDir:      getEnv("STATIC_DIR", "./internal/web/static"),
		SearchLimit:    getEnvInt("SEARCH_LIMIT", 50),
		NatsURL:        getEnv("NATS_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", "./logs/app.log"),
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// ApplyCredentials fills the Telegram app credentials from the settings file.
// Values already set through TG_API_ID/TG_API_HASH win.
func (c *Config) ApplyCredentials(apiID int, apiHash string) {
	if c.TGApiID == 0 {
		c.TGApiID = apiID
	}
	if c.TGApiHash == "" {
		c.TGApiHash = apiHash
	}
}

// HasCredentials reports whether both Telegram app credentials are set.
func (c *Config) HasCredentials() bool {
	return c.TGApiID != 0 && c.TGApiHash != ""
}
