package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuatraInternational/odoo-newrelic/storage/inmemory"
)

func TestStatusEndpoint(t *testing.T) {
	store := inmemory.NewStore()
	store.AddRequest("/web/login", 120*time.Millisecond, http.StatusOK)
	store.AddRequest("/web/login", 80*time.Millisecond, http.StatusOK)
	store.AddRequest("/web/dataset/call_kw", 40*time.Millisecond, http.StatusInternalServerError)
	store.AddMethodCall("BaseModel.search", 5*time.Millisecond)
	store.RecordNPlusOne("/odoo/partners", "SELECT name FROM res_partner WHERE id = ?", 12)

	router := NewRouter(store, func() State {
		return State{Instrumented: true, MethodTracing: true, AgentStarted: false}
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/newrelic/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var report Report
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&report))

	assert.True(t, report.State.Instrumented)
	assert.True(t, report.State.MethodTracing)
	assert.False(t, report.State.AgentStarted)

	require.NotNil(t, report.Metrics)
	login := report.Metrics.ServerEndpoints["/web/login"]
	assert.Equal(t, uint64(2), login.TotalRequests)
	assert.Equal(t, uint64(100*time.Millisecond), login.AvgRequestTimeNs)
	assert.Equal(t, uint64(1), report.Metrics.ServerEndpoints["/web/dataset/call_kw"].Status5xx)

	search := report.Metrics.TracedMethods["BaseModel.search"]
	assert.Equal(t, uint64(1), search.Calls)

	require.Len(t, report.Metrics.NPlusOneEvents, 1)
	assert.Equal(t, 12, report.Metrics.NPlusOneEvents[0].Count)
}

func TestStatusEndpointWithoutStore(t *testing.T) {
	router := NewRouter(nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/newrelic/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&report))
	assert.False(t, report.State.Instrumented)
	assert.Nil(t, report.Metrics)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(inmemory.NewStore(), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
