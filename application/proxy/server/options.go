package server

import (
	"time"

	"caching-proxy/application/proxy/request"
)

const (
	DefaultChunkSize     = 8192
	DefaultMaxLineLength = 8192
)

type Options struct {
	// Parse.MaxLineLength defaults to DefaultMaxLineLength; it cannot be unlimited here.
	Parse request.ParseOptions

	// ChunkSize is the most bytes relayed per read once the response headers are done.
	ChunkSize uint

	Timeout TimeoutOptions
}

// TimeoutOptions bounds blocking steps of a connection. Zero means no limit.
type TimeoutOptions struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
