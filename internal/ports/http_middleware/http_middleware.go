package http_middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/QuatraInternational/odoo-newrelic/domain"
	"github.com/QuatraInternational/odoo-newrelic/domain/metrics"
	"github.com/QuatraInternational/odoo-newrelic/pkg/nrsql"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "odoo_newrelic_requests_total",
	Help: "Requests handled by the instrumented application.",
}, []string{"status"})

// responseWriter is a wrapper around http.ResponseWriter to capture the
// status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Collect returns the middleware that records request metrics into the store
// and runs N+1 detection over the query log collected during the request.
// With a nil store it degrades to a no-op.
func Collect(store domain.StoreWriter, nPlusOneThreshold int) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := nrsql.WithQueryLog(r.Context())
			r = r.WithContext(ctx)

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			store.AddRequest(r.URL.Path, duration, rw.statusCode)
			requestsTotal.WithLabelValues(strconv.Itoa(rw.statusCode)).Inc()

			if rw.statusCode >= 500 {
				store.AddError(metrics.NewErrorEvent(r))
			}

			queries := nrsql.QueryLogFromContext(ctx)
			if nPlusOneThreshold > 0 && len(queries) >= nPlusOneThreshold {
				detectNPlusOne(r.URL.Path, queries, store, nPlusOneThreshold)
			}
		})
	}
}

// A regular expression to find numbers in SQL queries. Simple on purpose;
// it does not try to cover every dialect.
var sqlNumberRegex = regexp.MustCompile(`\b\d+\b`)

// normalizeQuery replaces numeric literals in a SQL query with a placeholder
// so N+1 sequences that differ only in the id collapse to one statement.
func normalizeQuery(query string) string {
	return sqlNumberRegex.ReplaceAllString(query, "?")
}

// detectNPlusOne counts identical normalized statements and reports those
// repeated at least threshold times.
func detectNPlusOne(path string, queries []*nrsql.QueryInfo, store domain.StoreWriter, threshold int) {
	counts := make(map[string]int)
	for _, q := range queries {
		counts[normalizeQuery(q.Query)]++
	}

	for query, count := range counts {
		if count >= threshold {
			store.RecordNPlusOne(path, query, count)
		}
	}
}
