package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/active-time", "GET", 200, time.Millisecond)
	m.RecordRequest("/active-time", "GET", 200, time.Millisecond)
	m.RecordError("/status/:userId", "PUT", "FORBIDDEN")
	m.RecordCycle(2, 1, nil)
	m.RecordCycle(1, 0, errors.New("store down"))
	m.RecordLiveRefresh()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/active-time|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/status/:userId|PUT|FORBIDDEN"])
	assert.Equal(t, TrackerCounters{
		Cycles:         2,
		FailedCycles:   1,
		SessionsOpened: 3,
		SessionsClosed: 1,
		LiveRefreshes:  1,
	}, snap.Tracker)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordCycle(1, 1, nil)
	m.RecordLiveRefresh()

	snap := m.Snapshot()
	assert.Empty(t, snap.Requests)
}
