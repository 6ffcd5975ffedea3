package control

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/state"
)

// MockCaller records Control commands and answers with a fixed result.
type MockCaller struct {
	mu       sync.Mutex
	result   string
	commands []Command
	attempts []int
}

func (m *MockCaller) Call(_ context.Context, _ bus.Method, maxAttempts int, args ...any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, args[0].(Command))
	m.attempts = append(m.attempts, maxAttempts)
	return m.result, nil
}

func testStore(values map[string]any) *state.Store {
	cfg := czone.NewConfig()
	cfg.Circuits["circuit.1"] = czone.Circuit{ControlID: 1, SwitchType: czone.SwitchLatch, RemoteVisibility: 1}
	cfg.Circuits["circuit.2"] = czone.Circuit{ControlID: 2, SwitchType: czone.SwitchOnOff, RemoteVisibility: 1}
	cfg.Circuits["circuit.3"] = czone.Circuit{ControlID: 3, SwitchType: czone.SwitchDimLinear, RemoteVisibility: 1}

	store := state.NewStore()
	store.Config.Publish(cfg)
	store.Update(func(live *state.LiveDevices) {
		for _, id := range []string{"circuit.1", "circuit.2", "circuit.3"} {
			live.Register(czone.KindCircuit, id)
		}
		for id, v := range values {
			live.Merge(id, v.(map[string]any))
		}
	})
	return store
}

func newTestService(t *testing.T, caller *MockCaller, store *state.Store) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{Caller: caller, Store: store, MaxAttempts: 2})
	require.NoError(t, err)
	return svc
}

func TestSetCircuitPowerState_AlreadyOnIsNoop(t *testing.T) {
	caller := &MockCaller{result: bus.ResultOK}
	store := testStore(map[string]any{"circuit.1": map[string]any{"Power": true}})
	svc := newTestService(t, caller, store)

	require.NoError(t, svc.SetCircuitPowerState(context.Background(), 1, true))
	assert.Empty(t, caller.commands)
}

func TestSetCircuitPowerState_LevelCountsAsOn(t *testing.T) {
	caller := &MockCaller{result: bus.ResultOK}
	store := testStore(map[string]any{"circuit.3": map[string]any{"Level": 40.0}})
	svc := newTestService(t, caller, store)

	require.NoError(t, svc.SetCircuitPowerState(context.Background(), 3, true))
	assert.Empty(t, caller.commands)
}

func TestSetCircuitPowerState_Commands(t *testing.T) {
	full, off := 100, 0
	tests := []struct {
		name    string
		circuit uint32
		on      bool
		values  map[string]any
		want    []Command
	}{
		{
			name: "latch toggles with single throw", circuit: 1, on: true,
			want: []Command{
				{Type: OpActivate, ID: 1, ThrowType: ThrowSingle},
				{Type: OpRelease, ID: 1, ThrowType: ThrowSingle},
			},
		},
		{
			name: "on/off switch on", circuit: 2, on: true,
			want: []Command{
				{Type: OpActivate, ID: 2, ThrowType: ThrowDoubleOn},
				{Type: OpRelease, ID: 2, ThrowType: ThrowDoubleOn},
			},
		},
		{
			name: "on/off switch off", circuit: 2, on: false,
			values: map[string]any{"circuit.2": map[string]any{"Power": true}},
			want: []Command{
				{Type: OpActivate, ID: 2, ThrowType: ThrowDoubleOff},
				{Type: OpRelease, ID: 2, ThrowType: ThrowDoubleOff},
			},
		},
		{
			name: "dimmer on", circuit: 3, on: true,
			want: []Command{{Type: OpSetAbsolute, ID: 3, Value: &full}},
		},
		{
			name: "dimmer off", circuit: 3, on: false,
			values: map[string]any{"circuit.3": map[string]any{"Level": 55.0}},
			want:   []Command{{Type: OpSetAbsolute, ID: 3, Value: &off}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &MockCaller{result: bus.ResultOK}
			svc := newTestService(t, caller, testStore(tt.values))

			require.NoError(t, svc.SetCircuitPowerState(context.Background(), tt.circuit, tt.on))
			assert.Equal(t, tt.want, caller.commands)
			for _, n := range caller.attempts {
				assert.Equal(t, 2, n)
			}
		})
	}
}

func TestSetCircuitPowerState_NotOk(t *testing.T) {
	caller := &MockCaller{result: "Failed"}
	svc := newTestService(t, caller, testStore(nil))

	err := svc.SetCircuitPowerState(context.Background(), 1, true)
	assert.ErrorIs(t, err, bus.ErrNotOk)
	assert.Len(t, caller.commands, 1)
}

func TestSetCircuitPowerState_UnknownCircuit(t *testing.T) {
	caller := &MockCaller{result: bus.ResultOK}
	svc := newTestService(t, caller, testStore(nil))

	assert.ErrorIs(t, svc.SetCircuitPowerState(context.Background(), 9, true), ErrUnknownCircuit)
	assert.Empty(t, caller.commands)
}

func TestSetCircuitLevel_Validation(t *testing.T) {
	tests := []struct {
		name    string
		circuit uint32
		level   int
		wantErr error
	}{
		{"above range", 3, 101, ErrInvalidLevel},
		{"below range", 3, -1, ErrInvalidLevel},
		{"not dimmable", 1, 50, ErrNotDimmable},
		{"unknown circuit", 9, 50, ErrUnknownCircuit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &MockCaller{result: bus.ResultOK}
			svc := newTestService(t, caller, testStore(nil))

			assert.ErrorIs(t, svc.SetCircuitLevel(context.Background(), tt.circuit, tt.level), tt.wantErr)
			assert.Empty(t, caller.commands)
		})
	}
}

func TestSetCircuitLevel(t *testing.T) {
	caller := &MockCaller{result: bus.ResultOK}
	svc := newTestService(t, caller, testStore(nil))

	require.NoError(t, svc.SetCircuitLevel(context.Background(), 3, 0))
	require.NoError(t, svc.SetCircuitLevel(context.Background(), 3, 100))
	require.Len(t, caller.commands, 2)
	assert.Equal(t, 0, *caller.commands[0].Value)
	assert.Equal(t, 100, *caller.commands[1].Value)
}

func TestNoConfigLoaded(t *testing.T) {
	caller := &MockCaller{result: bus.ResultOK}
	svc := newTestService(t, caller, state.NewStore())
	assert.ErrorIs(t, svc.SetCircuitPowerState(context.Background(), 1, true), ErrNoConfig)
}

func TestIsOn(t *testing.T) {
	devices := state.Devices{Ordinary: map[string]map[string]any{
		"circuit.1": {"Power": false, "Level": 0.0},
		"circuit.2": {"Power": 1.0},
		"circuit.3": {"Level": 12.0},
	}}
	assert.False(t, IsOn(devices, 1))
	assert.True(t, IsOn(devices, 2))
	assert.True(t, IsOn(devices, 3))
	assert.False(t, IsOn(devices, 4))
}
