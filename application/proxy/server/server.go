// Package server accepts client connections and serves each one in its own
// goroutine: parse, answer from cache or forward to the origin, then close.
package server

import (
	"context"
	"log/slog"
	"sync"

	iolib "caching-proxy/lib/io"
	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Cache is the response store shared by every connection.
type Cache interface {
	Lookup(key string) ([]byte, bool)
	Insert(key string, content []byte) bool
	MaxObjectSize() uint
}

type Server struct {
	l      transport.ConnListener
	dialer transport.ConnDialer
	cache  Cache

	closeListener func()
	wg            sync.WaitGroup

	logger *slog.Logger
	opts   Options

	clock clock.Clock
}

func New(
	l transport.ConnListener,
	dialer transport.ConnDialer,
	cache Cache,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Server {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Parse.MaxLineLength == 0 {
		opts.Parse.MaxLineLength = DefaultMaxLineLength
	}

	return &Server{
		l:             l,
		dialer:        dialer,
		cache:         cache,
		closeListener: func() {},
		logger:        logger,
		opts:          opts,
		clock:         clock,
	}
}

// Start runs the accept loop in the background. It never waits on connections.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.closeListener = cancel

	s.logger.Info("accepting connections", "addr", s.l.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Cancelled once accepting stops, aborting every open connection.
		connCtx, connCancel := context.WithCancel(context.Background())
		defer connCancel()

		for {
			conn, err := s.acceptConn(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrConnListenerClosed) {
					s.logger.Error(
						"unexpected error when accepting connection",
						"error", err.Error(),
					)
				}
				return
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				conn.start(connCtx)
			}()
		}
	}()
}

func (s *Server) acceptConn(ctx context.Context) (*conn, error) {
	con, err := s.l.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listening for connection")
	}

	conn := &conn{
		con:    con,
		lr:     iolib.NewLineReader(con),
		dialer: s.dialer,
		cache:  s.cache,
		opts:   s.opts,
		logger: s.logger.With("conn", uuid.NewString(), "remote", con.RemoteAddr().String()),
		clock:  s.clock,
	}

	return conn, nil
}

// Close stops accepting, closes the listener and
// waits for in-flight connections, which are aborted.
func (s *Server) Close() error {
	s.closeListener()

	err := s.l.Close()
	if errors.Is(err, transport.ErrConnListenerClosed) {
		err = nil
	}

	s.wg.Wait()

	return errors.Wrap(err, "closing listener")
}
