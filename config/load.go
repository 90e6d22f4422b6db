package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PROXY_"

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %q", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %q", path)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	uints := []struct {
		name string
		dst  *uint
	}{
		{"CACHE_MAX_CACHE_SIZE", &cfg.Cache.MaxCacheSize},
		{"CACHE_MAX_OBJECT_SIZE", &cfg.Cache.MaxObjectSize},
		{"CHUNK_SIZE", &cfg.Proxy.ChunkSize},
		{"MAX_LINE_LENGTH", &cfg.Proxy.MaxLineLength},
	}
	for _, v := range uints {
		val, ok := os.LookupEnv(envPrefix + v.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(val, 10, 0)
		if err != nil {
			return errors.Wrapf(err, "parsing %s%s", envPrefix, v.name)
		}
		*v.dst = uint(n)
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"DIAL_TIMEOUT", &cfg.Proxy.Timeouts.Dial},
		{"READ_TIMEOUT", &cfg.Proxy.Timeouts.Read},
		{"WRITE_TIMEOUT", &cfg.Proxy.Timeouts.Write},
	}
	for _, v := range durations {
		val, ok := os.LookupEnv(envPrefix + v.name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.Wrapf(err, "parsing %s%s", envPrefix, v.name)
		}
		*v.dst = d
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"ADMIN_ADDRESS", &cfg.Admin.Address},
		{"ADMIN_REPORT_SCHEDULE", &cfg.Admin.ReportSchedule},
	}
	for _, v := range strs {
		if val, ok := os.LookupEnv(envPrefix + v.name); ok {
			*v.dst = val
		}
	}

	return nil
}
