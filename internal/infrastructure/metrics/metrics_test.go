package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BusCall("GetConfigAll", nil)
	m.BusCall("GetConfigAll", errors.New("timeout"))
	m.BusCall("GetConfigAll", nil)
	m.BusConnected(true, true)
	m.Snapshot("push")
	m.ActiveAlarms("engine", 2)
	m.Things(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.busCalls.WithLabelValues("GetConfigAll", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busCalls.WithLabelValues("GetConfigAll", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("push")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeAlarms.WithLabelValues("engine")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.things))

	m.BusConnected(false, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.busConnected))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BusCall("Control", nil)
		m.BusConnected(true, false)
		m.Snapshot("pull")
		m.ConfigFetch("full", nil)
		m.ControlCommand("SetAbsolute", nil)
		m.ActiveAlarms("backend", 1)
		m.Things(1)
	})
}
