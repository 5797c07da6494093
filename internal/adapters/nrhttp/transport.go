package nrhttp

import (
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/QuatraInternational/odoo-newrelic/domain"
)

// Transport is an http.RoundTripper that reports outbound requests as
// external segments on the transaction in the request context and records
// them in the local store.
type Transport struct {
	base  http.RoundTripper
	store domain.StoreWriter
}

// NewTransport wraps base (http.DefaultTransport when nil) with agent and
// store instrumentation.
func NewTransport(base http.RoundTripper, store domain.StoreWriter) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:  newrelic.NewRoundTripper(base),
		store: store,
	}
}

// RoundTrip executes a single HTTP transaction.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.store != nil {
		t.store.AddClientRequest(time.Since(start), resp.StatusCode)
	}
	return resp, nil
}
