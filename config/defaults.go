package config

const (
	DefaultMaxCacheSize  = 1049000
	DefaultMaxObjectSize = 102400

	DefaultChunkSize     = 8192
	DefaultMaxLineLength = 8192

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxCacheSize:  DefaultMaxCacheSize,
			MaxObjectSize: DefaultMaxObjectSize,
		},
		Proxy: ProxyConfig{
			ChunkSize:     DefaultChunkSize,
			MaxLineLength: DefaultMaxLineLength,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
