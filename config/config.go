// Package config loads proxy settings once at startup:
// defaults, then an optional YAML file, then PROXY_* environment variables.
package config

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Cache CacheConfig `yaml:"cache"`
	Proxy ProxyConfig `yaml:"proxy"`
	Log   LogConfig   `yaml:"log"`
	Admin AdminConfig `yaml:"admin"`
}

type CacheConfig struct {
	MaxCacheSize  uint `yaml:"max_cache_size"`
	MaxObjectSize uint `yaml:"max_object_size"`
}

type ProxyConfig struct {
	ChunkSize     uint           `yaml:"chunk_size"`
	MaxLineLength uint           `yaml:"max_line_length"`
	Timeouts      TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig bounds blocking steps of a connection. Zero means no limit.
type TimeoutsConfig struct {
	Dial  time.Duration `yaml:"dial"`
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error.
	Format string `yaml:"format"` // text or json.
}

type AdminConfig struct {
	// Address of the admin endpoint. Empty disables it.
	Address string `yaml:"address"`
	// ReportSchedule is a cron expression for the cache report. Empty disables it.
	ReportSchedule string `yaml:"report_schedule"`
}

func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format and level.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
