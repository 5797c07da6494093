package nrhttp

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuatraInternational/odoo-newrelic/domain/metrics"
)

type recordingStore struct {
	mu       sync.Mutex
	requests []int
}

func (s *recordingStore) AddClientRequest(d time.Duration, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, status)
}

func (s *recordingStore) AddRequest(path string, d time.Duration, status int) {}
func (s *recordingStore) AddMethodCall(name string, d time.Duration)          {}
func (s *recordingStore) AddError(event metrics.ErrorEvent)                   {}
func (s *recordingStore) RecordNPlusOne(path, query string, count int)        {}
func (s *recordingStore) UpdateRuntime()                                      {}

func TestTransportRecordsClientRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	store := &recordingStore{}
	client := &http.Client{Transport: NewTransport(nil, store)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, store.requests, 1)
	assert.Equal(t, http.StatusAccepted, store.requests[0])
}

func TestTransportNilStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportPropagatesErrors(t *testing.T) {
	client := &http.Client{
		Transport: NewTransport(nil, &recordingStore{}),
		Timeout:   100 * time.Millisecond,
	}

	_, err := client.Get("http://127.0.0.1:1")
	require.Error(t, err)
}
