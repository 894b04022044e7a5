package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndSnapshot(t *testing.T) {
	m := NewMetrics(nil)

	m.IncReceived()
	m.IncReceived()
	m.IncRelayed()
	m.IncDropped(DropInvalidPayload)
	m.IncRejected()
	m.IncFanoutFailed(2)
	m.IncFanoutFailed(0)
	m.IncConnect(true)
	m.IncConnect(false)
	m.IncTeardowns()
	m.SetSubscribers(3)

	assert.Equal(t, uint64(2), m.Received())
	assert.Equal(t, uint64(1), m.Relayed())
	assert.Equal(t, uint64(1), m.Dropped())
	assert.Equal(t, uint64(1), m.Rejected())
	assert.Equal(t, uint64(1), m.Teardowns())

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap["fanout_failures"])
	assert.Equal(t, int64(3), snap["subscribers"])

	broker, ok := snap["broker"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, uint64(1), broker["connects"])
	assert.Equal(t, uint64(1), broker["connect_failures"])
}

func TestMetrics_PrometheusRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncRelayed()
	m.IncDropped(DropInvalidPayload)
	m.SetSubscribers(-4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.promRelayed))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.promSubscribers))

	expected := `
# HELP relay_messages_dropped_total Deliveries acknowledged without being relayed.
# TYPE relay_messages_dropped_total counter
relay_messages_dropped_total{reason="invalid_payload"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "relay_messages_dropped_total"))
}
