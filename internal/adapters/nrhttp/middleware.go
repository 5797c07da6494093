package nrhttp

import (
	"fmt"
	"net/http"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Handler is the instrumented application entry point. Its concrete type is
// the "already instrumented" marker the patcher checks before wrapping, so
// an application is never wrapped twice.
type Handler struct {
	next http.Handler
	app  *newrelic.Application
}

// Wrap returns next wrapped in a per-request transaction. Wrapping an
// already instrumented handler returns it unchanged.
func Wrap(next http.Handler, app *newrelic.Application) http.Handler {
	if Instrumented(next) {
		return next
	}
	return &Handler{next: next, app: app}
}

// Instrumented reports whether h is already the instrumented entry point.
func Instrumented(h http.Handler) bool {
	_, ok := h.(*Handler)
	return ok
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.app == nil {
		h.next.ServeHTTP(w, r)
		return
	}

	txn := h.app.StartTransaction(transactionName(r))
	defer txn.End()

	txn.SetWebRequestHTTP(r)
	w = txn.SetWebResponse(w)
	r = newrelic.RequestWithTransactionContext(r, txn)

	// A panicking handler is reported before the panic continues; the host's
	// own recovery semantics stay untouched.
	defer func() {
		if rec := recover(); rec != nil {
			txn.NoticeError(fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
	}()

	h.next.ServeHTTP(w, r)
}

// transactionName names the transaction after the request. The host routes
// on exact paths, so the raw path is the route.
func transactionName(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
