package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
)

const (
	categoriesJSON = `{"Items":[{"Name":"Lighting","Enabled":true,"Index":0}]}`
	configJSON     = `{
		"Circuits":[{"ControlId":10,"Name":"Saloon","RemoteVisibility":1,"Categories":[0],"Dimmable":true}],
		"DcMeters":[{"Instance":1,"Name":"House","DcType":"Battery"}]
	}`
	metadataJSON = `{"SerialNumber":"CZ-1","ConfigId":42}`
	enginesJSON  = `{"Engines":[{"Instance":0,"Name":"Port","Address":16640}]}`
	noAlarmsJSON = `{"Alarms":[]}`
	oneAlarmJSON = `{"Alarms":[{"Id":29,"State":"Enabled","Severity":"Warning","Type":"External","ChannelId":3,"ExternalAlarmId":1,"ExternalAlarmType":20,"Title":"Low Voltage"}]}`
)

// MockTransport answers calls from a per-method table and keeps the signal
// handlers so tests can emit signals.
type MockTransport struct {
	mu       sync.Mutex
	results  map[bus.Method]string
	failures map[bus.Method]int
	calls    []bus.Method
	handlers map[string]bus.SignalHandler
	opens    int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		results: map[bus.Method]string{
			bus.MethodGetCategories:    categoriesJSON,
			bus.MethodGetConfigAll:     configJSON,
			bus.MethodGetSetting:       metadataJSON,
			bus.MethodGetConfig:        enginesJSON,
			bus.MethodAlarmList:        noAlarmsJSON,
			bus.MethodSingleSnapshot:   `{}`,
			bus.MethodControl:          bus.ResultOK,
			bus.MethodAlarmAcknowledge: bus.ResultOK,
			bus.MethodPutFile:          bus.ResultOK,
			bus.MethodOperation:        bus.ResultOK,
		},
		failures: make(map[bus.Method]int),
		handlers: make(map[string]bus.SignalHandler),
	}
}

func (m *MockTransport) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return nil
}

func (m *MockTransport) Call(_ context.Context, method bus.Method, _ []any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	if m.failures[method] > 0 {
		m.failures[method]--
		return "", errors.New("broker went away")
	}
	return m.results[method], nil
}

func (m *MockTransport) Subscribe(signal string, handler bus.SignalHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[signal] = handler
	return nil
}

func (m *MockTransport) Close() error { return nil }

func (m *MockTransport) Set(method bus.Method, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[method] = result
}

func (m *MockTransport) FailNext(method bus.Method) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method]++
}

func (m *MockTransport) Count(method bus.Method) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *MockTransport) Emit(signal string, payload string) {
	m.mu.Lock()
	handler := m.handlers[signal]
	m.mu.Unlock()
	handler([]byte(payload))
}

func testConfig() *config.Config {
	return &config.Config{
		Bus:           config.BusConfig{RetryDelay: 1, ControlMaxAttempts: 2},
		Snapshot:      config.SnapshotConfig{Interval: 3600},
		ConfigService: config.ConfigServiceConfig{WriteDelay: 1},
	}
}

// startClient starts a client on transport and runs its loop until the
// test ends.
func startClient(t *testing.T, transport *MockTransport) *Client {
	t.Helper()
	c, err := New(Options{Config: testConfig(), Transport: transport})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
		c.Close() //nolint:errcheck // Test cleanup
	})

	require.NoError(t, c.Start(ctx))
	go func() {
		defer close(done)
		c.Run(ctx) //nolint:errcheck // returns nil on cancel
	}()
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	// The default transport needs a complete bus section.
	_, err = New(Options{Config: testConfig()})
	assert.ErrorIs(t, err, bus.ErrInvalidOptions)
}

func TestStart_InitialLoad(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)

	assert.Equal(t, bus.StateConnected, c.ConnectionStatus().Value().State)

	require.NotNil(t, c.Config().Value())
	assert.Equal(t, []string{"battery.1", "light.10"}, c.EmpowerSystem().Value().IDs())
	assert.Equal(t, []string{"marineEngine.0"}, c.EngineList().Value().IDs())
	assert.Equal(t, "CZ-1", c.FactoryMetadata().Value().SerialNumber)
	assert.Empty(t, c.ActiveAlarms().Value())
	assert.Empty(t, c.EngineAlarms().Value())

	assert.Equal(t, 1, transport.Count(bus.MethodGetConfigAll))
	assert.Equal(t, 1, transport.Count(bus.MethodGetConfig))
	assert.Equal(t, 1, transport.Count(bus.MethodAlarmList))
	assert.Equal(t, 2, transport.Count(bus.MethodSingleSnapshot))
}

func TestRun_SnapshotSignal(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)

	transport.Emit(bus.SignalSnapshot, `{"Circuits":{"10":{"Level":40.0}}}`)

	require.Eventually(t, func() bool {
		v, ok := c.Devices().Value().Value("circuit.10", "Level")
		return ok && v == 40.0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_AlarmEvent(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)

	transport.Set(bus.MethodAlarmList, oneAlarmJSON)
	transport.Emit(bus.SignalEvent, `{"Type":"AlarmAdded"}`)

	require.Eventually(t, func() bool { return len(c.ActiveAlarms().Value()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"battery.1"}, c.ActiveAlarms().Value()["29"].Things)

	assert.True(t, c.AcknowledgeAlarm(context.Background(), "29"))
	assert.Equal(t, 1, transport.Count(bus.MethodAlarmAcknowledge))
}

func TestRun_RescanAfterReconnect(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)

	transport.FailNext(bus.MethodSingleSnapshot)
	assert.True(t, c.RequestStateSnapshot(context.Background()))

	require.Eventually(t, func() bool {
		return transport.Count(bus.MethodGetConfigAll) == 2 &&
			transport.Count(bus.MethodGetConfig) == 2 &&
			transport.Count(bus.MethodAlarmList) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, bus.StateConnected, c.ConnectionStatus().Value().State)
}

func TestPublicAPI(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)
	ctx := context.Background()

	assert.True(t, c.SetCircuitLevel(ctx, 10, 50))
	assert.False(t, c.SetCircuitLevel(ctx, 10, 150))
	assert.False(t, c.SetCircuitPowerState(ctx, 99, true))
	assert.Equal(t, 1, transport.Count(bus.MethodControl))

	assert.True(t, c.WriteConfiguration(ctx, "deadbeef"))
	assert.Equal(t, 1, transport.Count(bus.MethodPutFile))
	assert.Equal(t, 1, transport.Count(bus.MethodOperation))

	transport.Set(bus.MethodOperation, "Busy")
	assert.False(t, c.WriteConfiguration(ctx, "deadbeef"))

	ok, reason := c.RefreshActiveAlarms(ctx)
	assert.True(t, ok)
	assert.Empty(t, reason)

	assert.True(t, c.ScanMarineEngines(ctx, false))
}

func TestRun_RecoversPanickingTask(t *testing.T) {
	transport := NewMockTransport()
	c := startClient(t, transport)

	ran := make(chan struct{})
	c.queue.push(task{name: "boom", run: func(context.Context) { panic("boom") }})
	c.queue.push(task{name: "after", run: func(context.Context) { close(ran) }})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a panicking task")
	}
	assert.Zero(t, c.pending())
}
