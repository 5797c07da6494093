package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the instrumentation reads at startup: the
// new_relic_* keys from the host's ini configuration file plus the
// NEW_RELIC_ODOO_* environment knobs for the local collector.
type Config struct {
	// AgentConfigFile is the path to the agent's own configuration file
	// (new_relic_config_file).
	AgentConfigFile string
	// AgentEnvironment names a section within the agent configuration file
	// (new_relic_environment).
	AgentEnvironment string

	// Trace is the raw method-tracing spec (new_relic_odoo_trace). TraceSet
	// distinguishes "never configured" from "explicitly empty": only the
	// former falls back to the built-in default.
	Trace    string
	TraceSet bool

	// StopAfterInit marks a one-shot init run; no instrumentation happens.
	StopAfterInit bool
	// Workers is the host's worker process count. Zero means threaded
	// single-process mode.
	Workers int

	CollectionInterval time.Duration

	ProfilingEnabled          bool
	ProfilingLatencyThreshold time.Duration
	ProfilingDuration         time.Duration
	ProfilingCooldown         time.Duration
	ProfilingErrorThreshold   int

	NPlusOneThreshold int
}

// DefaultTraceSpec is applied when no trace spec was configured anywhere.
const DefaultTraceSpec = "odoo.models.BaseModel:limited"

// Load reads the host configuration file at path (ini format, keys under the
// [options] section) and applies environment variable overrides. A missing
// or unreadable file is not fatal: the returned Config is always usable and
// the error is informational.
func Load(path string) (*Config, error) {
	cfg := &Config{
		CollectionInterval:        10 * time.Second,
		ProfilingLatencyThreshold: 500 * time.Millisecond,
		ProfilingDuration:         30 * time.Second,
		ProfilingCooldown:         300 * time.Second,
		ProfilingErrorThreshold:   5,
		NPlusOneThreshold:         10,
	}

	var loadErr error
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("ini")
		if err := v.ReadInConfig(); err != nil {
			loadErr = err
		} else {
			sec := v.Sub("options")
			if sec == nil {
				// Tolerate sectionless files.
				sec = v
			}
			cfg.AgentConfigFile = sec.GetString("new_relic_config_file")
			cfg.AgentEnvironment = sec.GetString("new_relic_environment")
			if sec.IsSet("new_relic_odoo_trace") {
				cfg.Trace = sec.GetString("new_relic_odoo_trace")
				cfg.TraceSet = true
			}
			cfg.StopAfterInit = sec.GetBool("stop_after_init")
			cfg.Workers = sec.GetInt("workers")
		}
	}

	cfg.applyEnv()
	return cfg, loadErr
}

// applyEnv layers environment variables over the file configuration. The
// NEW_RELIC_ODOO_TRACE variable takes precedence over the config key.
func (c *Config) applyEnv() {
	c.AgentConfigFile = getEnv("NEW_RELIC_CONFIG_FILE", c.AgentConfigFile)
	c.AgentEnvironment = getEnv("NEW_RELIC_ENVIRONMENT", c.AgentEnvironment)
	if value, exists := os.LookupEnv("NEW_RELIC_ODOO_TRACE"); exists {
		c.Trace = value
		c.TraceSet = true
	}

	c.CollectionInterval = getEnvAsDuration("NEW_RELIC_ODOO_COLLECTION_INTERVAL_S", c.CollectionInterval)
	c.ProfilingEnabled = getEnvAsBool("NEW_RELIC_ODOO_PROFILING_ENABLED", c.ProfilingEnabled)
	c.ProfilingLatencyThreshold = getEnvAsDurationMs("NEW_RELIC_ODOO_PROFILING_LATENCY_THRESHOLD_MS", c.ProfilingLatencyThreshold)
	c.ProfilingDuration = getEnvAsDuration("NEW_RELIC_ODOO_PROFILING_DURATION_S", c.ProfilingDuration)
	c.ProfilingCooldown = getEnvAsDuration("NEW_RELIC_ODOO_PROFILING_COOLDOWN_S", c.ProfilingCooldown)
	c.ProfilingErrorThreshold = getEnvAsInt("NEW_RELIC_ODOO_PROFILING_ERROR_THRESHOLD_COUNT", c.ProfilingErrorThreshold)
	c.NPlusOneThreshold = getEnvAsInt("NEW_RELIC_ODOO_N_PLUS_ONE_THRESHOLD_COUNT", c.NPlusOneThreshold)
}

// TraceSpec returns the effective method-tracing spec. An unset spec gets the
// built-in default; an explicitly empty one stays empty, which disables
// method tracing.
func (c *Config) TraceSpec() string {
	if !c.TraceSet {
		return DefaultTraceSpec
	}
	return c.Trace
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsBool reads a boolean environment variable or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsInt reads an integer environment variable or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration reads a duration environment variable (in seconds) or
// returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return defaultValue
}

// getEnvAsDurationMs reads a duration environment variable (in milliseconds)
// or returns a default value.
func getEnvAsDurationMs(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Millisecond
		}
	}
	return defaultValue
}
