package config

import (
	"time"
)

type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RemoteConfig describes the hosted backend the engine syncs against:
// a per-table REST API plus a websocket change feed.
type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	StreamURL string `mapstructure:"stream_url"`
	APIKey    string `mapstructure:"api_key"`
	UserID    string `mapstructure:"user_id"`
	Timeout   string `mapstructure:"timeout"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type SyncConfig struct {
	AutoSync    bool   `mapstructure:"auto_sync"`
	WifiOnly    bool   `mapstructure:"wifi_only"`
	Frequency   string `mapstructure:"frequency"` // duration string, or "manual"
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// Manual reports whether the periodic sync loop is disabled entirely.
func (s SyncConfig) Manual() bool {
	return s.Frequency == "manual"
}

func (s SyncConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(s.Frequency)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (s SyncConfig) GetMaxAttempts() int {
	if s.MaxAttempts <= 0 {
		return 5
	}
	return s.MaxAttempts
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
