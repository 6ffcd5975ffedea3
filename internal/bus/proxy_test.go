package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLinkDown = errors.New("link down")

type callResponse struct {
	result string
	err    error
}

// MockTransport replays scripted call responses and records traffic.
type MockTransport struct {
	mu        sync.Mutex
	responses []callResponse
	openErrs  []error
	opens     int
	calls     []Method
	subs      map[string]SignalHandler
}

func NewMockTransport(responses ...callResponse) *MockTransport {
	return &MockTransport{responses: responses, subs: make(map[string]SignalHandler)}
}

func (m *MockTransport) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		return err
	}
	return nil
}

func (m *MockTransport) Call(_ context.Context, method Method, _ []any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	if len(m.responses) == 0 {
		return ResultOK, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r.result, r.err
}

func (m *MockTransport) Subscribe(signal string, handler SignalHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[signal] = handler
	return nil
}

func (m *MockTransport) Close() error { return nil }

func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestProxy(t *testing.T, tr Transport) *Proxy {
	t.Helper()
	p, err := NewProxy(ProxyOptions{Transport: tr, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return p
}

// recordStates collects every status change from now on.
func recordStates(p *Proxy) func() []State {
	var mu sync.Mutex
	var states []State
	p.SetOnStatusChange(func(_, next ConnectionStatus) {
		mu.Lock()
		states = append(states, next.State)
		mu.Unlock()
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func TestNewProxy_RequiresTransport(t *testing.T) {
	_, err := NewProxy(ProxyOptions{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestProxy_StartsIdle(t *testing.T) {
	p := newTestProxy(t, NewMockTransport())
	assert.Equal(t, StateIdle, p.Status().Value().State)
}

func TestProxy_ConnectRetriesUntilOpen(t *testing.T) {
	tr := NewMockTransport()
	tr.openErrs = []error{errLinkDown, errLinkDown}
	p := newTestProxy(t, tr)

	require.NoError(t, p.Connect(context.Background()))
	assert.Equal(t, 3, tr.opens)
	assert.Equal(t, StateConnected, p.Status().Value().State)
}

func TestProxy_ConnectStopsOnCancel(t *testing.T) {
	tr := NewMockTransport()
	tr.openErrs = []error{errLinkDown, errLinkDown, errLinkDown, errLinkDown}
	p, err := NewProxy(ProxyOptions{Transport: tr, RetryDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err = p.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, p.Status().Value().State)
	assert.Equal(t, "link down", p.Status().Value().Reason)
}

func TestProxy_CallRetriesOnceThenSucceeds(t *testing.T) {
	tr := NewMockTransport(
		callResponse{err: errLinkDown},
		callResponse{result: `{"Items":[]}`},
	)
	p := newTestProxy(t, tr)
	require.NoError(t, p.Connect(context.Background()))

	states := recordStates(p)
	result, err := p.Call(context.Background(), MethodGetCategories, 0)

	require.NoError(t, err)
	assert.Equal(t, `{"Items":[]}`, result)
	assert.Equal(t, []State{StateDisconnected, StateConnected}, states())
	assert.Equal(t, 2, tr.opens)
}

func TestProxy_CallBoundedAttempts(t *testing.T) {
	tr := NewMockTransport(
		callResponse{err: errLinkDown},
		callResponse{err: errLinkDown},
		callResponse{err: errLinkDown},
		callResponse{result: ResultOK},
	)
	p := newTestProxy(t, tr)
	require.NoError(t, p.Connect(context.Background()))

	_, err := p.Call(context.Background(), MethodControl, 3, "circuit")
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errLinkDown)
	assert.Equal(t, 3, tr.CallCount())
	assert.Equal(t, StateDisconnected, p.Status().Value().State)
}

func TestProxy_RemoteErrorNotRetried(t *testing.T) {
	tr := NewMockTransport(
		callResponse{err: &RemoteError{Method: MethodAlarmAcknowledge, Message: "unknown alarm"}},
	)
	p := newTestProxy(t, tr)
	require.NoError(t, p.Connect(context.Background()))

	_, err := p.Call(context.Background(), MethodAlarmAcknowledge, 0, 7)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "unknown alarm", remote.Message)
	assert.Equal(t, 1, tr.CallCount())
	assert.Equal(t, StateConnected, p.Status().Value().State)
}

func TestProxy_StatusDeduplicated(t *testing.T) {
	p := newTestProxy(t, NewMockTransport())
	require.NoError(t, p.Connect(context.Background()))

	states := recordStates(p)
	for i := 0; i < 5; i++ {
		_, err := p.Call(context.Background(), MethodSingleSnapshot, 0)
		require.NoError(t, err)
	}
	p.report(StateDisconnected, "a")
	p.report(StateDisconnected, "a")
	p.report(StateDisconnected, "b")

	assert.Equal(t, []State{StateDisconnected, StateDisconnected}, states())
}

func TestProxy_SignalsRestoredOnReconnect(t *testing.T) {
	tr := NewMockTransport(callResponse{err: errLinkDown})
	p := newTestProxy(t, tr)

	received := make(chan []byte, 1)
	p.OnSignal(SignalEvent, func(payload []byte) { received <- payload })
	require.NoError(t, p.Connect(context.Background()))

	tr.mu.Lock()
	tr.subs = make(map[string]SignalHandler)
	tr.mu.Unlock()

	_, err := p.Call(context.Background(), MethodAlarmList, 0)
	require.NoError(t, err)

	tr.mu.Lock()
	handler := tr.subs[SignalEvent]
	tr.mu.Unlock()
	require.NotNil(t, handler)

	handler([]byte(`{"Type":"ConfigChanged"}`))
	assert.Equal(t, `{"Type":"ConfigChanged"}`, string(<-received))
}

func TestProxy_CallsSerialised(t *testing.T) {
	tr := &blockingTransport{MockTransport: NewMockTransport()}
	p := newTestProxy(t, tr)
	require.NoError(t, p.Connect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Call(context.Background(), MethodSingleSnapshot, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), tr.maxInFlight)
}

// blockingTransport tracks how many calls overlap.
type blockingTransport struct {
	*MockTransport
	inFlight    int32
	maxInFlight int32
	mu          sync.Mutex
}

func (b *blockingTransport) Call(ctx context.Context, method Method, args []any) (string, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	b.mu.Unlock()

	time.Sleep(time.Millisecond)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return b.MockTransport.Call(ctx, method, args)
}

func TestExpectOK(t *testing.T) {
	assert.NoError(t, ExpectOK(ResultOK, nil))
	assert.ErrorIs(t, ExpectOK("Busy", nil), ErrNotOk)
	assert.ErrorIs(t, ExpectOK("", errLinkDown), errLinkDown)
}
