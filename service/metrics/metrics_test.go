package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamsActiveGaugeTracksAccounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.StreamStarted("G1")
	m.StreamStarted("G2")
	m.StreamStopped("G2")

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "transaction_streams_active" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			require.Len(t, metric.GetLabel(), 1)
			assert.Equal(t, "account", metric.GetLabel()[0].GetName())
			values[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{"G1": 1, "G2": 0}, values)
}
