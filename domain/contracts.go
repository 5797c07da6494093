package domain

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/QuatraInternational/odoo-newrelic/domain/metrics"
)

// ErrReadOnlyApplication is returned by AppSlot.SetApp when another component
// has taken exclusive ownership of the application binding, e.g. an error
// tracking middleware that was installed first.
var ErrReadOnlyApplication = errors.New("domain: application binding is read-only")

// AppSlot is a mutable binding to the host's request-handling entry point.
// The host server exposes its root http.Handler through this at construction
// time so instrumentation can be layered on before serving starts.
type AppSlot interface {
	App() http.Handler
	SetApp(h http.Handler) error
}

// AppFactory wraps applications that have not been constructed yet, such as
// the per-worker applications built after a fork in multi-process mode.
type AppFactory interface {
	WrapApp(mw func(http.Handler) http.Handler)
}

// BusDispatch delivers pending bus notifications to websocket subscribers.
// It runs outside any web request.
type BusDispatch func(ctx context.Context) error

// BusSlot is the mutable binding to the websocket bus dispatch routine.
type BusSlot interface {
	Dispatch() BusDispatch
	SetDispatch(d BusDispatch)
}

// Dispatcher routes a decoded request to its handler and renders errors.
// Kind distinguishes the host's dispatcher flavors ("http", "jsonrpc").
// HandleError returns the handler that writes the error response.
type Dispatcher interface {
	Kind() string
	HandleError(ctx context.Context, err error) http.Handler
}

// DispatcherRegistry exposes the host's dispatchers for replacement at
// construction time.
type DispatcherRegistry interface {
	Dispatcher(kind string) (Dispatcher, bool)
	Replace(kind string, d Dispatcher) error
}

// MethodCall is the uniform invocation shape of ORM model methods.
type MethodCall func(ctx context.Context, args ...any) (any, error)

// MethodInterceptor wraps a model method invocation.
type MethodInterceptor func(next MethodCall) MethodCall

// ModelHookRegistry registers interceptors on ORM model methods. The host's
// model registry dispatches every method call through the registered chain.
type ModelHookRegistry interface {
	AddMethodHook(model, method string, ic MethodInterceptor) error
}

// Segment is an agent-recorded span around a single function call.
type Segment interface {
	End()
}

// Transaction is the subset of the agent's per-request monitoring context
// consumed by this module.
type Transaction interface {
	NoticeError(err error)
	StartSegment(name string) Segment
}

// CurrentTransaction reports the transaction monitoring the request in ctx,
// or nil when none is active.
type CurrentTransaction func(ctx context.Context) Transaction

// HTTPError is implemented by errors that carry an HTTP status code, such as
// the host's NotFound/Forbidden request errors.
type HTTPError interface {
	error
	HTTPStatus() int
}

// HTTPStatusCode extracts the HTTP status carried by err or anything it
// wraps. The second return is false for non-HTTP errors, which the agent
// then classifies on its own.
func HTTPStatusCode(err error) (int, bool) {
	var he HTTPError
	if errors.As(err, &he) {
		return he.HTTPStatus(), true
	}
	return 0, false
}

// Host is the integration surface a server exposes to the instrumentation.
// Every field except Application is optional; absent seams are skipped.
type Host struct {
	Application AppSlot
	Factory     AppFactory
	Server      AppSlot // the running server's instantiated application
	Bus         BusSlot
	Dispatchers DispatcherRegistry
	Models      ModelHookRegistry

	mu           sync.Mutex
	instrumented bool
}

// MarkInstrumented records that a patch attempt ran against this host. The
// mark lives on the host itself because the application binding cannot carry
// the wrapper type when it is read-only.
func (h *Host) MarkInstrumented() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.instrumented = true
}

// Instrumented reports whether a patch attempt already ran against this host.
func (h *Host) Instrumented() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instrumented
}

// Snapshot is a point-in-time, read-only copy of all locally aggregated
// metrics. It is what the status controller serializes.
type Snapshot struct {
	ServerEndpoints map[string]metrics.EndpointMetricsSnapshot `json:"server_endpoints"`
	TracedMethods   map[string]metrics.MethodMetricsSnapshot   `json:"traced_methods"`
	Client          metrics.ClientMetricsSnapshot              `json:"client_metrics"`
	Runtime         metrics.RuntimeMetrics                     `json:"runtime_metrics"`
	Errors          []metrics.ErrorEvent                       `json:"errors"`
	NPlusOneEvents  []metrics.NPlusOneEvent                    `json:"n_plus_one_events"`
}

// StoreReader defines the contract for reading metrics from a store.
type StoreReader interface {
	GetSnapshot() *Snapshot
}

// StoreWriter defines the contract for writing metrics to a store.
type StoreWriter interface {
	AddRequest(path string, duration time.Duration, statusCode int)
	AddClientRequest(duration time.Duration, statusCode int)
	AddMethodCall(name string, duration time.Duration)
	AddError(event metrics.ErrorEvent)
	RecordNPlusOne(path, query string, count int)
	UpdateRuntime()
}

// Store is the combined interface for a metric store.
type Store interface {
	StoreReader
	StoreWriter
}
