// Package collector runs the periodic background work of the
// instrumentation: refreshing runtime metrics in the store and triggering
// on-demand CPU profiles for endpoints that exceed latency or error
// thresholds.
package collector

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/pkg/config"
)

// profilingCollector aggregates runtime metrics into the Store and
// coordinates on-demand CPU profiling. Per-endpoint cooldowns keep the
// profiler from running back to back.
type profilingCollector struct {
	store         domain.Store
	config        *config.Config
	log           zerolog.Logger
	profiler      profiler
	cooldowns     map[string]time.Time
	cooldownsLock sync.Mutex
}

// Start launches a background goroutine that periodically updates runtime
// metrics and delegates profiling checks. It returns a function that stops
// the goroutine; calling it more than once is safe.
func Start(store domain.Store, cfg *config.Config, log zerolog.Logger) (stop func()) {
	c := &profilingCollector{
		store:     store,
		config:    cfg,
		log:       log,
		profiler:  &realProfiler{},
		cooldowns: make(map[string]time.Time),
	}

	done := make(chan struct{})
	var once sync.Once
	ticker := time.NewTicker(cfg.CollectionInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.store.UpdateRuntime()
				c.checkForProblematicEndpoints()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
