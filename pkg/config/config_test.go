package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odoo.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `[options]
new_relic_config_file = /etc/newrelic.ini
new_relic_environment = staging
new_relic_odoo_trace = odoo.models.BaseModel:public
stop_after_init = True
workers = 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/newrelic.ini", cfg.AgentConfigFile)
	assert.Equal(t, "staging", cfg.AgentEnvironment)
	assert.Equal(t, "odoo.models.BaseModel:public", cfg.Trace)
	assert.True(t, cfg.TraceSet)
	assert.True(t, cfg.StopAfterInit)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.Error(t, err)
	require.NotNil(t, cfg)

	assert.False(t, cfg.StopAfterInit)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.CollectionInterval)
	assert.Equal(t, 10, cfg.NPlusOneThreshold)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `[options]
new_relic_config_file = /etc/newrelic.ini
new_relic_odoo_trace = odoo.models.BaseModel:limited
`)

	t.Setenv("NEW_RELIC_CONFIG_FILE", "/srv/other.ini")
	t.Setenv("NEW_RELIC_ODOO_TRACE", "odoo.models.BaseModel:all")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/other.ini", cfg.AgentConfigFile)
	assert.Equal(t, "odoo.models.BaseModel:all", cfg.Trace)
	assert.True(t, cfg.TraceSet)
}

func TestTraceSpecDefaulting(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTraceSpec, cfg.TraceSpec(), "unset spec falls back to the default")

	// An explicitly empty spec disables tracing instead of defaulting.
	t.Setenv("NEW_RELIC_ODOO_TRACE", "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.TraceSet)
	assert.Equal(t, "", cfg.TraceSpec())
}

func TestCollectorEnvKnobs(t *testing.T) {
	t.Setenv("NEW_RELIC_ODOO_COLLECTION_INTERVAL_S", "30")
	t.Setenv("NEW_RELIC_ODOO_PROFILING_ENABLED", "true")
	t.Setenv("NEW_RELIC_ODOO_PROFILING_LATENCY_THRESHOLD_MS", "250")
	t.Setenv("NEW_RELIC_ODOO_N_PLUS_ONE_THRESHOLD_COUNT", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.CollectionInterval)
	assert.True(t, cfg.ProfilingEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.ProfilingLatencyThreshold)
	assert.Equal(t, 3, cfg.NPlusOneThreshold)
}
