package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError is a validation failure of a single field.
type FieldError struct {
	Field   string // dotted path, e.g. "cache.max_object_size".
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError collects every failing field.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func Validate(cfg *Config) error {
	var errs []FieldError
	fail := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Cache.MaxCacheSize == 0 {
		fail("cache.max_cache_size", "must be positive")
	}
	if cfg.Cache.MaxObjectSize == 0 {
		fail("cache.max_object_size", "must be positive")
	}
	if cfg.Cache.MaxObjectSize > cfg.Cache.MaxCacheSize {
		fail("cache.max_object_size", "%d exceeds max_cache_size %d", cfg.Cache.MaxObjectSize, cfg.Cache.MaxCacheSize)
	}

	if cfg.Proxy.ChunkSize == 0 {
		fail("proxy.chunk_size", "must be positive")
	}

	t := cfg.Proxy.Timeouts
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"proxy.timeouts.dial", t.Dial},
		{"proxy.timeouts.read", t.Read},
		{"proxy.timeouts.write", t.Write},
	} {
		if d.value < 0 {
			fail(d.field, "must not be negative")
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		fail("log.level", "unknown level %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		fail("log.format", "unknown format %q", cfg.Log.Format)
	}

	if s := cfg.Admin.ReportSchedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			fail("admin.report_schedule", "%s", err)
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
