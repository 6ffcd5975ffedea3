package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockServices records the reactions triggered by events.
type MockServices struct {
	mu       sync.Mutex
	actions  []string
	fetchErr error
	panic    bool
}

func (m *MockServices) record(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func (m *MockServices) FullFetch(context.Context) error {
	m.record("fetch")
	return m.fetchErr
}

func (m *MockServices) ScanMarineEngines(_ context.Context, reset bool) bool {
	m.record(fmt.Sprintf("engines reset=%t", reset))
	return true
}

func (m *MockServices) LoadActiveAlarms(_ context.Context, force bool) error {
	if m.panic {
		panic("alarm service exploded")
	}
	m.record(fmt.Sprintf("alarms force=%t", force))
	return nil
}

// MockLogger counts log calls by level.
type MockLogger struct {
	mu     sync.Mutex
	levels map[string]int
}

func (m *MockLogger) log(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[string]int)
	}
	m.levels[level]++
}

func (m *MockLogger) Debug(string, ...any) { m.log("debug") }
func (m *MockLogger) Info(string, ...any)  { m.log("info") }
func (m *MockLogger) Warn(string, ...any)  { m.log("warn") }
func (m *MockLogger) Error(string, ...any) { m.log("error") }

func newTestService(t *testing.T, svcs *MockServices, logger Logger) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{Config: svcs, Alarms: svcs, Logger: logger})
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(ServiceOptions{Alarms: &MockServices{}})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewService(ServiceOptions{Config: &MockServices{}})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestHandle_Dispatch(t *testing.T) {
	tests := []struct {
		payload string
		want    []string
	}{
		{`{"Type":"EngineConfigChanged"}`, []string{"engines reset=false"}},
		{`{"Type":"ConfigChanged"}`, []string{"fetch"}},
		{`{"Type":"AlarmAdded","Content":{"Id":3}}`, []string{"alarms force=false"}},
		{`{"Type":"AlarmRemoved"}`, []string{"alarms force=false"}},
		{`{"Type":"AlarmChanged"}`, []string{"alarms force=false"}},
		{`{"Type":"AlarmActivated"}`, []string{"alarms force=false"}},
		{`{"Type":"AlarmDeactivated"}`, []string{"alarms force=false"}},
		{`{"Type":"TimeZoneChanged"}`, nil},
		{`not json`, nil},
		{`{"Content":1}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			svcs := &MockServices{}
			newTestService(t, svcs, nil).Handle(context.Background(), []byte(tt.payload))
			assert.Equal(t, tt.want, svcs.actions)
		})
	}
}

func TestHandle_UnknownTypeLoggedAtDebug(t *testing.T) {
	logger := &MockLogger{}
	newTestService(t, &MockServices{}, logger).Handle(context.Background(), []byte(`{"Type":"Mystery"}`))
	assert.Equal(t, 1, logger.levels["debug"])
	assert.Zero(t, logger.levels["error"])
}

func TestHandle_FailuresAreLogged(t *testing.T) {
	logger := &MockLogger{}
	svcs := &MockServices{fetchErr: errors.New("offline")}
	newTestService(t, svcs, logger).Handle(context.Background(), []byte(`{"Type":"ConfigChanged"}`))
	assert.Equal(t, 1, logger.levels["error"])
}

func TestHandle_RecoversPanic(t *testing.T) {
	logger := &MockLogger{}
	svc := newTestService(t, &MockServices{panic: true}, logger)

	assert.NotPanics(t, func() {
		svc.Handle(context.Background(), []byte(`{"Type":"AlarmAdded"}`))
	})
	assert.Equal(t, 1, logger.levels["error"])
}
