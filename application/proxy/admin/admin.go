// Package admin serves the proxy's operational endpoints and
// logs cache statistics on a schedule.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"caching-proxy/application/proxy/cache"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheInspector exposes cache state without touching recency.
type CacheInspector interface {
	Stats() cache.Stats
	Keys() []string
}

type cacheResponse struct {
	cache.Stats
	Keys []string `json:"keys"`
}

// NewRouter mounts:
//   - GET /healthz
//   - GET /cache: counters, occupancy and resident keys from least to most recently used
//   - GET /metrics: everything registered on gatherer
func NewRouter(c CacheInspector, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/cache", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cacheResponse{Stats: c.Stats(), Keys: c.Keys()})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return r
}

type Server struct {
	srv    *http.Server
	l      net.Listener
	logger *slog.Logger
}

// Listen binds addr right away so that a bad address fails at startup.
func Listen(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}

	return &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		l:      l,
		logger: logger,
	}, nil
}

func (s *Server) Addr() string { return s.l.Addr().String() }

func (s *Server) Start() {
	s.logger.Info("admin endpoint listening", "addr", s.Addr())
	go func() {
		if err := s.srv.Serve(s.l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin endpoint stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.srv.Shutdown(ctx), "shutting down admin endpoint")
}
