package admin

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Reporter logs a cache statistics line on a cron schedule.
type Reporter struct {
	cache    CacheInspector
	schedule string

	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewReporter validates schedule, a standard 5-field cron expression
// or a descriptor such as "@every 1m".
func NewReporter(schedule string, c CacheInspector, logger *slog.Logger) (*Reporter, error) {
	r := &Reporter{
		cache:    c,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}

	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return nil, errors.Wrapf(err, "invalid report schedule %q", schedule)
	}

	return r, nil
}

func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.cron.Start()
	r.running = true

	r.logger.Info("cache report scheduled", "schedule", r.schedule)
}

// Stop waits for a running report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}

func (r *Reporter) report() {
	st := r.cache.Stats()

	ratio := 0.0
	if lookups := st.Hits + st.Misses; lookups > 0 {
		ratio = float64(st.Hits) / float64(lookups)
	}

	r.logger.Info("cache report",
		"entries", st.Entries,
		"size", st.Size,
		"max_cache_size", st.MaxCacheSize,
		"hits", st.Hits,
		"misses", st.Misses,
		"hit_ratio", ratio,
		"inserts", st.Inserts,
		"rejections", st.Rejections,
		"evictions", st.Evictions,
	)
}
