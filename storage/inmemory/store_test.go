package inmemory

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuatraInternational/odoo-newrelic/domain/metrics"
)

func TestAddRequestAggregation(t *testing.T) {
	s := NewStore()
	s.AddRequest("/web/login", 100*time.Millisecond, http.StatusOK)
	s.AddRequest("/web/login", 300*time.Millisecond, http.StatusNotFound)
	s.AddRequest("/web/login", 200*time.Millisecond, http.StatusBadGateway)

	snap := s.GetSnapshot()
	ep, ok := snap.ServerEndpoints["/web/login"]
	require.True(t, ok)
	assert.Equal(t, uint64(3), ep.TotalRequests)
	assert.Equal(t, uint64(200*time.Millisecond), ep.AvgRequestTimeNs)
	assert.Equal(t, uint64(1), ep.Status2xx)
	assert.Equal(t, uint64(1), ep.Status4xx)
	assert.Equal(t, uint64(1), ep.Status5xx)
}

func TestAddMethodCallAggregation(t *testing.T) {
	s := NewStore()
	s.AddMethodCall("BaseModel.search", 10*time.Millisecond)
	s.AddMethodCall("BaseModel.search", 30*time.Millisecond)
	s.AddMethodCall("BaseModel.write", 5*time.Millisecond)

	snap := s.GetSnapshot()
	search := snap.TracedMethods["BaseModel.search"]
	assert.Equal(t, uint64(2), search.Calls)
	assert.Equal(t, uint64(20*time.Millisecond), search.AvgCallTimeNs)
	assert.Equal(t, uint64(1), snap.TracedMethods["BaseModel.write"].Calls)
}

func TestClientRequestAggregation(t *testing.T) {
	s := NewStore()
	s.AddClientRequest(50*time.Millisecond, http.StatusOK)
	s.AddClientRequest(150*time.Millisecond, http.StatusInternalServerError)

	snap := s.GetSnapshot()
	assert.Equal(t, uint64(2), snap.Client.TotalRequests)
	assert.Equal(t, uint64(100*time.Millisecond), snap.Client.AvgRequestTimeNs)
	assert.Equal(t, uint64(1), snap.Client.Status5xx)
}

func TestErrorRingBufferEvictsOldest(t *testing.T) {
	s := NewStore()
	for i := 0; i < defaultEventBufferSize+5; i++ {
		s.AddError(metrics.ErrorEvent{Path: fmt.Sprintf("/p/%d", i)})
	}

	errs := s.GetSnapshot().Errors
	require.Len(t, errs, defaultEventBufferSize)
	assert.Equal(t, "/p/5", errs[0].Path, "the oldest events are dropped first")
	assert.Equal(t, fmt.Sprintf("/p/%d", defaultEventBufferSize+4), errs[len(errs)-1].Path)
}

func TestRecordNPlusOne(t *testing.T) {
	s := NewStore()
	s.RecordNPlusOne("/odoo/partners", "SELECT name FROM res_partner WHERE id = ?", 12)

	events := s.GetSnapshot().NPlusOneEvents
	require.Len(t, events, 1)
	assert.Equal(t, "/odoo/partners", events[0].Path)
	assert.Equal(t, 12, events[0].Count)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestUpdateRuntime(t *testing.T) {
	s := NewStore()
	s.UpdateRuntime()

	rt := s.GetSnapshot().Runtime
	assert.Greater(t, rt.NumGoroutine, 0)
	assert.Greater(t, rt.MemoryAllocBytes, uint64(0))
}

func TestConcurrentWrites(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.AddRequest("/web/login", time.Millisecond, http.StatusOK)
				s.AddMethodCall("BaseModel.read", time.Microsecond)
				s.AddError(metrics.ErrorEvent{Path: "/web/login"})
			}
		}()
	}
	wg.Wait()

	snap := s.GetSnapshot()
	assert.Equal(t, uint64(1000), snap.ServerEndpoints["/web/login"].TotalRequests)
	assert.Equal(t, uint64(1000), snap.TracedMethods["BaseModel.read"].Calls)
	assert.Len(t, snap.Errors, defaultEventBufferSize)
}
