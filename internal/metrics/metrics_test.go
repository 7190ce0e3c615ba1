package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllMetrics(t *testing.T) {
	m := New()
	require.NotNil(t, m.Registry)

	m.ConnectAttempts.WithLabelValues("ok").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("ok")))

	m.ReadRequests.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReadRequests))

	m.SessionsConnected.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SessionsConnected))
}

func TestObserveLatency(t *testing.T) {
	m := New()
	m.ObserveLatency("read", time.Now().Add(-10*time.Millisecond))
	// Recording is sufficient; histogram bucket exactness is not asserted.
}
