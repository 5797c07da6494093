package nragent

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/QuatraInternational/odoo-newrelic/pkg/config"
)

const defaultAppName = "Odoo"

// Initialize starts the agent runtime, trying progressively simpler
// configurations: the agent config file with a named environment section,
// the config file alone, then environment variables only. A strategy whose
// configuration cannot be resolved or whose startup fails falls through to
// the next one; the terminal fallback is a disabled application, so the
// caller always receives a usable handle and never an error.
func Initialize(cfg *config.Config, log zerolog.Logger) *newrelic.Application {
	for _, s := range strategies(cfg) {
		opts, err := s.options()
		if err != nil {
			log.Info().Err(err).Str("strategy", s.name).Msg("agent configuration unavailable, trying next strategy")
			continue
		}
		app, err := newrelic.NewApplication(opts...)
		if err != nil {
			log.Info().Err(err).Str("strategy", s.name).Msg("agent startup failed, trying next strategy")
			continue
		}
		log.Info().Str("strategy", s.name).Msg("agent initialized")
		return app
	}

	log.Warn().Msg("agent could not be initialized, monitoring is disabled")
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(defaultAppName),
		newrelic.ConfigEnabled(false),
	)
	if err != nil {
		// Disabled startup takes no external input; this should not happen.
		log.Error().Err(err).Msg("disabled agent startup failed")
		return nil
	}
	return app
}

type strategy struct {
	name    string
	options func() ([]newrelic.ConfigOption, error)
}

func strategies(cfg *config.Config) []strategy {
	var out []strategy
	if cfg.AgentConfigFile != "" && cfg.AgentEnvironment != "" {
		file, env := cfg.AgentConfigFile, cfg.AgentEnvironment
		out = append(out, strategy{
			name: "config file with environment",
			options: func() ([]newrelic.ConfigOption, error) {
				return fileOptions(file, env)
			},
		})
	}
	if cfg.AgentConfigFile != "" {
		file := cfg.AgentConfigFile
		out = append(out, strategy{
			name: "config file",
			options: func() ([]newrelic.ConfigOption, error) {
				return fileOptions(file, "")
			},
		})
	}
	out = append(out, strategy{
		name: "environment variables",
		options: func() ([]newrelic.ConfigOption, error) {
			return []newrelic.ConfigOption{newrelic.ConfigFromEnvironment()}, nil
		},
	})
	return out
}

// fileOptions translates an agent ini file into config options. The file
// follows the agent's own layout: a [newrelic] base section and optional
// [newrelic:<environment>] overlay sections. NEW_RELIC_* environment
// variables still take precedence over file values.
func fileOptions(path, environment string) ([]newrelic.ConfigOption, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("nragent: reading %s: %w", path, err)
	}

	section := "newrelic"
	if environment != "" {
		section = "newrelic:" + environment
	}
	sec := v.Sub(section)
	if sec == nil {
		return nil, fmt.Errorf("nragent: section [%s] not found in %s", section, path)
	}

	var opts []newrelic.ConfigOption
	if name := sec.GetString("app_name"); name != "" {
		opts = append(opts, newrelic.ConfigAppName(name))
	}
	if key := sec.GetString("license_key"); key != "" {
		opts = append(opts, newrelic.ConfigLicense(key))
	}
	if sec.IsSet("monitor_mode") {
		opts = append(opts, newrelic.ConfigEnabled(sec.GetBool("monitor_mode")))
	}
	if sec.IsSet("distributed_tracing") {
		opts = append(opts, newrelic.ConfigDistributedTracerEnabled(sec.GetBool("distributed_tracing")))
	}
	opts = append(opts, newrelic.ConfigFromEnvironment())
	return opts, nil
}
