// Package odoonewrelic wires the New Relic agent into an Odoo-style server
// at startup. The host exposes its integration surface as a domain.Host and
// calls PostLoad once, before serving begins: the agent runtime is
// initialized, the application entry point is wrapped in per-request
// transactions, the websocket bus dispatch gets a background transaction,
// configured ORM methods get function traces, and the dispatchers' error
// handlers report to the active transaction.
//
// Instrumentation is a best-effort overlay: no failure in here ever
// prevents the host from starting or serving.
package odoonewrelic

import (
	"net/http"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/internal/adapters/nragent"
	"github.com/QuatraInternational/odoo-newrelic/internal/adapters/nrbus"
	"github.com/QuatraInternational/odoo-newrelic/internal/adapters/nrhttp"
	"github.com/QuatraInternational/odoo-newrelic/internal/adapters/nrmodels"
	"github.com/QuatraInternational/odoo-newrelic/internal/application/collector"
	"github.com/QuatraInternational/odoo-newrelic/internal/ports/status"
	"github.com/QuatraInternational/odoo-newrelic/internal/ports/wsgi"
	"github.com/QuatraInternational/odoo-newrelic/pkg/config"
	"github.com/QuatraInternational/odoo-newrelic/storage/inmemory"
)

// Instrumentation is the handle PostLoad returns to the host. It stays
// valid (as an inert shell) even when instrumentation was skipped.
type Instrumentation struct {
	app           *newrelic.Application
	store         *inmemory.Store
	log           zerolog.Logger
	stopCollector func()
	instrumented  bool
	methodTracing bool
}

// Option adjusts PostLoad behavior.
type Option func(*settings)

type settings struct {
	cfg *config.Config
	log *zerolog.Logger
}

// WithConfig supplies a pre-loaded configuration instead of reading the file
// named by ODOO_RC.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithLogger replaces the default stderr logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *settings) { s.log = &log }
}

// PostLoad applies the full instrumentation to host. It never panics and
// never returns an error: every failure is logged and degraded around.
func PostLoad(host *domain.Host, opts ...Option) *Instrumentation {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	log := defaultLogger()
	if s.log != nil {
		log = *s.log
	}

	cfg := s.cfg
	if cfg == nil {
		loaded, err := config.Load(os.Getenv("ODOO_RC"))
		if err != nil {
			log.Info().Err(err).Msg("host configuration not readable, using defaults")
		}
		cfg = loaded
	}

	if cfg.StopAfterInit {
		// Only patch servers that will actually serve.
		log.Info().Msg("stop_after_init is set, skipping instrumentation")
		return &Instrumentation{log: log}
	}

	app := nragent.Initialize(cfg, log)

	store := inmemory.NewStore()
	inst := &Instrumentation{app: app, store: store, log: log}

	patcher := wsgi.NewPatcher(app, store, cfg, log)
	if !patcher.Patch(host) {
		// Only execute the rest when the server was patched by this call.
		return inst
	}
	inst.instrumented = true
	log.Info().Msg("application patching done")

	nrbus.Patch(app, host.Bus, log)

	nrmodels.Apply(host.Models, nragent.CurrentTransaction, store, cfg, log)
	inst.methodTracing = host.Models != nil && cfg.TraceSpec() != ""

	nrhttp.PatchDispatchers(host.Dispatchers, nragent.CurrentTransaction, log)

	inst.stopCollector = collector.Start(store, cfg, log)

	return inst
}

// Application exposes the agent handle for host code that wants to start
// its own transactions. Nil when the agent could not be started at all.
func (i *Instrumentation) Application() *newrelic.Application {
	return i.app
}

// Store exposes the locally aggregated metrics.
func (i *Instrumentation) Store() domain.StoreReader {
	if i.store == nil {
		return nil
	}
	return i.store
}

// StatusHandler returns the debug router with the status and Prometheus
// endpoints, for the host to mount.
func (i *Instrumentation) StatusHandler() http.Handler {
	return status.NewRouter(i.Store(), func() status.State {
		return status.State{
			Instrumented:  i.instrumented,
			MethodTracing: i.methodTracing,
			AgentStarted:  i.app != nil,
		}
	})
}

// Client returns a copy of base (or a fresh client) whose transport reports
// outbound requests as external segments and records them locally.
func (i *Instrumentation) Client(base *http.Client) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	var store domain.StoreWriter
	if i.store != nil {
		store = i.store
	}
	client.Transport = nrhttp.NewTransport(client.Transport, store)
	return client
}

// Shutdown stops the collector and flushes the agent, waiting at most
// timeout for pending data.
func (i *Instrumentation) Shutdown(timeout time.Duration) {
	if i.stopCollector != nil {
		i.stopCollector()
	}
	if i.app != nil {
		i.app.Shutdown(timeout)
	}
}

func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("module", "odoo_newrelic").Logger()
}
