// Package status serves the local debug endpoints: a JSON snapshot of the
// instrumentation state plus the aggregated metrics, and the Prometheus
// scrape endpoint. The host mounts the router wherever it serves internals.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/QuatraInternational/odoo-newrelic/domain"
)

// State is the patch-state section of the status report.
type State struct {
	Instrumented  bool `json:"instrumented"`
	MethodTracing bool `json:"method_tracing"`
	AgentStarted  bool `json:"agent_started"`
}

// Report is the full status document.
type Report struct {
	State   State            `json:"state"`
	Metrics *domain.Snapshot `json:"metrics"`
}

// NewRouter returns the router serving /newrelic/status and /metrics.
func NewRouter(store domain.StoreReader, state func() State) chi.Router {
	r := chi.NewRouter()
	r.Get("/newrelic/status", statusHandler(store, state))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func statusHandler(store domain.StoreReader, state func() State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Report{}
		if state != nil {
			report.State = state()
		}
		if store != nil {
			report.Metrics = store.GetSnapshot()
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, "Failed to encode status to JSON", http.StatusInternalServerError)
		}
	}
}
