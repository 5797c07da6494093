package nrhttp

import (
	"context"
	"net/http"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/QuatraInternational/odoo-newrelic/domain"
)

var reportedErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "odoo_newrelic_reported_errors_total",
	Help: "Errors reported to the agent by the dispatcher error handlers.",
})

// dispatcherKinds are the dispatchers whose error handling gets wrapped.
var dispatcherKinds = []string{"http", "jsonrpc"}

// PatchDispatchers replaces the registered dispatchers with versions whose
// HandleError reports to the active transaction. A host without a given
// dispatcher kind is skipped.
func PatchDispatchers(reg domain.DispatcherRegistry, current domain.CurrentTransaction, log zerolog.Logger) {
	if reg == nil {
		log.Debug().Msg("host exposes no dispatcher registry, skipping error handler setup")
		return
	}
	for _, kind := range dispatcherKinds {
		d, ok := reg.Dispatcher(kind)
		if !ok {
			log.Debug().Str("dispatcher", kind).Msg("dispatcher not registered, skipping")
			continue
		}
		if err := reg.Replace(kind, &tracedDispatcher{Dispatcher: d, current: current}); err != nil {
			log.Error().Err(err).Str("dispatcher", kind).Msg("replacing dispatcher failed")
			continue
		}
		log.Info().Str("dispatcher", kind).Msg("error handler wrapped")
	}
}

// tracedDispatcher delegates everything to the wrapped dispatcher and layers
// error reporting onto HandleError.
type tracedDispatcher struct {
	domain.Dispatcher
	current domain.CurrentTransaction
}

func (d *tracedDispatcher) HandleError(ctx context.Context, err error) http.Handler {
	txn := d.current(ctx)
	if txn == nil {
		return d.Dispatcher.HandleError(ctx, err)
	}

	txn.NoticeError(withStatusCode(err))
	reportedErrors.Inc()

	seg := txn.StartSegment(callableName(err))
	defer seg.End()
	return d.Dispatcher.HandleError(ctx, err)
}

// withStatusCode attaches the HTTP status to errors that carry one. Other
// errors pass through untouched and the agent classifies them itself.
func withStatusCode(err error) error {
	if code, ok := domain.HTTPStatusCode(err); ok {
		return &statusCodeError{err: err, code: code}
	}
	return err
}

// statusCodeError decorates an error with the http.statusCode attribute the
// agent expects. ErrorClass keeps the reported class that of the original
// error rather than the wrapper.
type statusCodeError struct {
	err  error
	code int
}

func (e *statusCodeError) Error() string { return e.err.Error() }

func (e *statusCodeError) Unwrap() error { return e.err }

func (e *statusCodeError) ErrorClass() string { return callableName(e.err) }

func (e *statusCodeError) ErrorAttributes() map[string]any {
	return map[string]any{"http.statusCode": e.code}
}

// StatusCodeAttribute reports the status code attached by withStatusCode,
// for callers inspecting a reported error.
func StatusCodeAttribute(err error) (int, bool) {
	sce, ok := err.(*statusCodeError)
	if !ok {
		return 0, false
	}
	return sce.code, true
}

// callableName names v's type the way the agent names callables: import path
// plus type name.
func callableName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
