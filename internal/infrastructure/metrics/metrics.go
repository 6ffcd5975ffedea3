// Package metrics exposes gateway counters and gauges to Prometheus.
//
// All recording methods are nil-safe so components can be built without
// metrics in tests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "czonegw"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds every collector the gateway reports.
type Metrics struct {
	busCalls        *prometheus.CounterVec
	busReconnects   prometheus.Counter
	busConnected    prometheus.Gauge
	snapshots       *prometheus.CounterVec
	configFetches   *prometheus.CounterVec
	controlCommands *prometheus.CounterVec
	activeAlarms    *prometheus.GaugeVec
	things          prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		busCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_calls_total",
			Help:      "Remote bus calls by method and outcome",
		}, []string{"method", "outcome"}),
		busReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_reconnects_total",
			Help:      "Increase every time the bus link is re-established",
		}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_connected_binary",
			Help:      "1 while the bus link to the backend is up",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "State snapshots merged, by source (push or pull)",
		}, []string{"source"}),
		configFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_fetches_total",
			Help:      "Configuration and engine fetches by kind and outcome",
		}, []string{"kind", "outcome"}),
		controlCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_commands_total",
			Help:      "Circuit control commands by operation and outcome",
		}, []string{"operation", "outcome"}),
		activeAlarms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alarms",
			Help:      "Published alarms by list (backend or engine)",
		}, []string{"list"}),
		things: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "things",
			Help:      "Things in the current system model, engines included",
		}),
	}

	reg.MustRegister(
		m.busCalls,
		m.busReconnects,
		m.busConnected,
		m.snapshots,
		m.configFetches,
		m.controlCommands,
		m.activeAlarms,
		m.things,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// BusCall records one attempt of a remote call.
func (m *Metrics) BusCall(method string, err error) {
	if m == nil {
		return
	}
	m.busCalls.WithLabelValues(method, outcome(err)).Inc()
}

// BusConnected sets the link gauge. A false→true change counts as a reconnect.
func (m *Metrics) BusConnected(up bool, reconnected bool) {
	if m == nil {
		return
	}
	if up {
		m.busConnected.Set(1)
	} else {
		m.busConnected.Set(0)
	}
	if reconnected {
		m.busReconnects.Inc()
	}
}

// Snapshot records one merged snapshot.
func (m *Metrics) Snapshot(source string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(source).Inc()
}

// ConfigFetch records one configuration or engine fetch.
func (m *Metrics) ConfigFetch(kind string, err error) {
	if m == nil {
		return
	}
	m.configFetches.WithLabelValues(kind, outcome(err)).Inc()
}

// ControlCommand records one circuit command.
func (m *Metrics) ControlCommand(operation string, err error) {
	if m == nil {
		return
	}
	m.controlCommands.WithLabelValues(operation, outcome(err)).Inc()
}

// ActiveAlarms sets the number of published alarms in a list.
func (m *Metrics) ActiveAlarms(list string, n int) {
	if m == nil {
		return
	}
	m.activeAlarms.WithLabelValues(list).Set(float64(n))
}

// Things sets the size of the current Thing graph.
func (m *Metrics) Things(n int) {
	if m == nil {
		return
	}
	m.things.Set(float64(n))
}

// Serve exposes reg on /metrics at addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
