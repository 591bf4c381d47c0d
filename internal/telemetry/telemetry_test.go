package telemetry

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsClaimed.Inc()
	m.Record(ErrorKindModel)
	m.Record(ErrorKindModel)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]*dto.MetricFamily{}
	for _, f := range families {
		found[f.GetName()] = f
	}

	require.Contains(t, found, "gemma_broker_requests_claimed_total")
	require.Equal(t, float64(1), found["gemma_broker_requests_claimed_total"].Metric[0].Counter.GetValue())

	require.Contains(t, found, "gemma_broker_errors_total")
	require.Equal(t, float64(2), found["gemma_broker_errors_total"].Metric[0].Counter.GetValue())
}

func TestRecordLabelsUnknownKindDefensively(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Record(ErrorKind("bogus"))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "gemma_broker_errors_total" {
			require.Equal(t, "unknown:bogus", f.Metric[0].Label[0].GetValue())
		}
	}
}

func TestNewLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "not-a-real-level")
	require.Equal(t, "info", log.GetLevel().String())
}

func TestNewLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "debug")
	log.WithFields(StageFields("req-1", 3, "deliver", "success")).Info("delivered")

	require.Contains(t, buf.String(), `"request_id":"req-1"`)
	require.Contains(t, buf.String(), `"stage":"deliver"`)
}
