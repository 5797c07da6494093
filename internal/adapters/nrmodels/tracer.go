// Package nrmodels wraps configurable sets of ORM model methods with
// function traces. The set is described by a comma separated spec such as
//
//	odoo.models.BaseModel:public,odoo.other.Something:limited
//
// sourced from NEW_RELIC_ODOO_TRACE or the new_relic_odoo_trace config key.
package nrmodels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/pkg/config"
)

var tracedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "odoo_newrelic_traced_method_calls_total",
	Help: "Invocations of ORM methods wrapped with function traces.",
}, []string{"method"})

// Apply parses the configured trace spec and registers a function-trace
// interceptor for every resolved method. Errors never reach the caller: a
// malformed spec or a rejected hook is logged and the remaining, already
// registered hooks stay in place.
func Apply(models domain.ModelHookRegistry, current domain.CurrentTransaction, store domain.StoreWriter, cfg *config.Config, log zerolog.Logger) {
	if models == nil {
		log.Debug().Msg("host exposes no model registry, skipping method tracing")
		return
	}

	raw := cfg.TraceSpec()
	specs, err := parseTraceSpec(raw)
	if err != nil {
		log.Error().Err(err).Str("spec", raw).Msg("method tracing spec rejected")
		return
	}

	log.Info().Str("spec", raw).Msg("applying method tracing")
	for _, sp := range specs {
		target, ok := targets[sp.target]
		if !ok {
			continue
		}
		for _, name := range target.Methods(sp.mode) {
			path := target.Model + "." + name
			if err := models.AddMethodHook(target.Model, name, functionTrace(path, current, store)); err != nil {
				log.Error().Err(err).Str("method", path).Msg("registering method trace failed")
				return
			}
		}
	}
}

type traceSpec struct {
	target string
	mode   Mode
}

func parseTraceSpec(raw string) ([]traceSpec, error) {
	var out []traceSpec
	for _, entry := range strings.Split(strings.TrimSpace(raw), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target, mode, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("nrmodels: entry %q is missing the target:mode separator", entry)
		}
		out = append(out, traceSpec{target: target, mode: Mode(mode)})
	}
	return out, nil
}

// functionTrace builds the interceptor that runs a method inside a segment
// named after it. Calls outside a monitored request pass through untouched.
func functionTrace(name string, current domain.CurrentTransaction, store domain.StoreWriter) domain.MethodInterceptor {
	return func(next domain.MethodCall) domain.MethodCall {
		return func(ctx context.Context, args ...any) (any, error) {
			txn := current(ctx)
			if txn == nil {
				return next(ctx, args...)
			}

			start := time.Now()
			seg := txn.StartSegment(name)
			res, err := next(ctx, args...)
			seg.End()

			if store != nil {
				store.AddMethodCall(name, time.Since(start))
			}
			tracedCalls.WithLabelValues(name).Inc()
			return res, err
		}
	}
}
