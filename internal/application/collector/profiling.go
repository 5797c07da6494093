package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// checkForProblematicEndpoints checks for endpoints exceeding configured
// thresholds and triggers on-demand CPU profiling when necessary.
func (c *profilingCollector) checkForProblematicEndpoints() {
	if !c.config.ProfilingEnabled {
		return
	}

	snapshot := c.store.GetSnapshot()
	latencyThreshold := uint64(c.config.ProfilingLatencyThreshold.Nanoseconds())
	errorThreshold := uint64(c.config.ProfilingErrorThreshold)

	for path, endpointMetrics := range snapshot.ServerEndpoints {
		triggeredByLatency := endpointMetrics.AvgRequestTimeNs > latencyThreshold
		triggeredByErrors := errorThreshold > 0 && endpointMetrics.Status5xx >= errorThreshold

		if (triggeredByLatency || triggeredByErrors) && !c.isCoolingDown(path) {
			if triggeredByLatency {
				c.log.Warn().Str("endpoint", path).
					Uint64("avg_request_time_ns", endpointMetrics.AvgRequestTimeNs).
					Msg("endpoint exceeded latency threshold, starting CPU profile")
			} else {
				c.log.Warn().Str("endpoint", path).
					Uint64("status_5xx", endpointMetrics.Status5xx).
					Msg("endpoint exceeded error threshold, starting CPU profile")
			}
			go c.startProfiling(path)
		}
	}
}

// startProfiling runs a CPU profile for the configured duration and writes
// it to the temp directory.
func (c *profilingCollector) startProfiling(path string) {
	c.setCooldown(path)

	sanitizedPath := strings.ReplaceAll(path, "/", "_")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("profile_%s_%d.pprof", sanitizedPath, time.Now().Unix()))

	f, err := os.Create(filename)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", path).Msg("creating profile file failed")
		return
	}
	defer f.Close()

	if err := c.profiler.StartCPUProfile(f); err != nil {
		c.log.Error().Err(err).Str("endpoint", path).Msg("starting CPU profile failed")
		return
	}

	time.Sleep(c.config.ProfilingDuration)
	c.profiler.StopCPUProfile()

	c.log.Info().Str("endpoint", path).Str("file", filename).Msg("CPU profile completed")
}

// cooldown helpers -----------------------------------------------------------

func (c *profilingCollector) isCoolingDown(path string) bool {
	c.cooldownsLock.Lock()
	defer c.cooldownsLock.Unlock()

	if cooldownEnd, exists := c.cooldowns[path]; exists {
		if time.Now().Before(cooldownEnd) {
			return true
		}
		delete(c.cooldowns, path)
	}
	return false
}

func (c *profilingCollector) setCooldown(path string) {
	c.cooldownsLock.Lock()
	defer c.cooldownsLock.Unlock()

	c.cooldowns[path] = time.Now().Add(c.config.ProfilingCooldown)
}
