// Package wsgi installs the per-request transaction wrapper on the host's
// application entry point, falling back to the application factory and the
// running server instance when the primary binding is not writable.
package wsgi

import (
	"errors"
	"net/http"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/internal/adapters/nrhttp"
	"github.com/QuatraInternational/odoo-newrelic/internal/ports/http_middleware"
	"github.com/QuatraInternational/odoo-newrelic/pkg/config"
)

// Patcher wraps the host application exactly once per process.
type Patcher struct {
	app     *newrelic.Application
	store   domain.StoreWriter
	cfg     *config.Config
	log     zerolog.Logger
	patched bool
}

func NewPatcher(app *newrelic.Application, store domain.StoreWriter, cfg *config.Config, log zerolog.Logger) *Patcher {
	return &Patcher{app: app, store: store, cfg: cfg, log: log}
}

// Patch installs the transaction wrapper on host's application binding.
// It returns false only when instrumentation is already in place (or the
// host exposes nothing to patch); any attempted patch, including one that
// had to take the fallback route, returns true. Failures are logged, never
// raised.
func (p *Patcher) Patch(host *domain.Host) bool {
	if host == nil || host.Application == nil {
		p.log.Warn().Msg("host exposes no application binding, nothing to patch")
		return false
	}
	if p.patched || host.Instrumented() || nrhttp.Instrumented(host.Application.App()) {
		p.log.Info().Msg("application instrumented already")
		return false
	}

	err := host.Application.SetApp(p.wrap(host.Application.App()))
	if err != nil {
		// Another middleware owns the binding; this happens when an error
		// tracker wrapped the application first. Fall back to wrapping the
		// factory and the application instance the running server already
		// holds. Worker processes forked before this point stay
		// uninstrumented.
		if !errors.Is(err, domain.ErrReadOnlyApplication) {
			p.log.Error().Err(err).Msg("replacing the application failed")
		}
		if host.Factory != nil {
			host.Factory.WrapApp(p.wrap)
		}
		if host.Server != nil && !nrhttp.Instrumented(host.Server.App()) {
			if serr := host.Server.SetApp(p.wrap(host.Server.App())); serr != nil {
				p.log.Error().Err(serr).Msg("replacing the running server application failed")
			}
		}
		if p.cfg.Workers == 0 {
			p.log.Warn().Err(err).Msg("failed to patch the application entry point; in threaded mode consider loading the module server-wide")
		}
	}

	// The mark must survive this patcher instance: on the fallback path the
	// read-only binding keeps its unwrapped handler, so the wrapper type
	// alone cannot stop a later patch attempt.
	host.MarkInstrumented()
	p.patched = true
	return true
}

// wrap layers the store middleware and the transaction wrapper over h. The
// result carries the instrumented marker type, so wrapping is idempotent.
func (p *Patcher) wrap(h http.Handler) http.Handler {
	if nrhttp.Instrumented(h) {
		return h
	}
	collect := http_middleware.Collect(p.store, p.cfg.NPlusOneThreshold)
	return nrhttp.Wrap(collect(h), p.app)
}
