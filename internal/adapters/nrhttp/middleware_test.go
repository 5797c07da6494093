package nrhttp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApplication(t *testing.T) *newrelic.Application {
	t.Helper()
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("odoo-newrelic-test"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)
	return app
}

func TestWrapServesAndMarks(t *testing.T) {
	app := testApplication(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The transaction must be reachable from the handler context.
		assert.NotNil(t, newrelic.FromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprintln(w, "ok")
	})

	wrapped := Wrap(inner, app)
	require.True(t, Instrumented(wrapped))

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest("GET", "/web/login", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestWrapIsIdempotent(t *testing.T) {
	app := testApplication(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	wrapped := Wrap(inner, app)
	rewrapped := Wrap(wrapped, app)

	assert.Same(t, wrapped, rewrapped, "wrapping an instrumented handler must return it unchanged")
}

func TestWrapNilApplicationPassesThrough(t *testing.T) {
	var served bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served = true })

	wrapped := Wrap(inner, nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.True(t, served)
}

func TestWrapReportsAndRepanics(t *testing.T) {
	app := testApplication(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("dispatch exploded")
	})
	wrapped := Wrap(inner, app)

	require.Panics(t, func() {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}, "host recovery semantics must be preserved")
}

func TestTransactionName(t *testing.T) {
	r := httptest.NewRequest("POST", "/web/dataset/call_kw", nil)
	assert.Equal(t, "POST /web/dataset/call_kw", transactionName(r))
}
