// Package bus is the gateway's only link to the CZone backend.
//
// A Proxy owns one Transport, binds the backend's method table and its two
// signals, and runs every remote call through a single mutex. Transport
// failures are retried after a fixed delay with the link re-established in
// between; remote error replies are returned immediately.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/czone-gateway/internal/broadcast"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
)

// Method is a backend method name.
type Method string

// Backend methods.
const (
	MethodGetConfig        Method = "GetConfig"
	MethodGetConfigAll     Method = "GetConfigAll"
	MethodGetCategories    Method = "GetCategories"
	MethodGetSetting       Method = "GetSetting"
	MethodControl          Method = "Control"
	MethodAlarmAcknowledge Method = "AlarmAcknowledge"
	MethodAlarmList        Method = "AlarmList"
	MethodSingleSnapshot   Method = "SingleSnapshot"
	MethodPutFile          Method = "PutFile"
	MethodOperation        Method = "Operation"
)

// Backend signals.
const (
	SignalEvent    = "Event"
	SignalSnapshot = "Snapshot"
)

// ResultOK is the result the backend echoes for a successful command.
const ResultOK = "Ok"

const defaultRetryDelay = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Caller is the part of the Proxy the services depend on.
type Caller interface {
	Call(ctx context.Context, method Method, maxAttempts int, args ...any) (string, error)
}

// Ensure Proxy implements Caller.
var _ Caller = (*Proxy)(nil)

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	// Transport carries calls and signals. Required.
	Transport Transport

	// RetryDelay is the fixed pause between a failure and the next attempt.
	// Default: 5 seconds.
	RetryDelay time.Duration

	Logger  Logger
	Metrics *metrics.Metrics
}

// Proxy serialises remote calls and keeps the link alive.
//
// Thread Safety:
//   - All methods are safe for concurrent use. At most one remote call is in
//     flight at any time; other callers wait on the call mutex.
type Proxy struct {
	transport  Transport
	retryDelay time.Duration
	metrics    *metrics.Metrics

	callMu sync.Mutex

	signalsMu sync.Mutex
	signals   map[string]SignalHandler

	statusMu       sync.Mutex
	status         *broadcast.Subject[ConnectionStatus]
	onStatusChange func(prev, next ConnectionStatus)

	logger   Logger
	loggerMu sync.RWMutex
}

// NewProxy creates a Proxy in the Idle state. Call Connect before use.
func NewProxy(opts ProxyOptions) (*Proxy, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	return &Proxy{
		transport:  opts.Transport,
		retryDelay: opts.RetryDelay,
		metrics:    opts.Metrics,
		signals:    make(map[string]SignalHandler),
		status:     broadcast.NewWithValue(ConnectionStatus{State: StateIdle, Timestamp: time.Now()}),
		logger:     opts.Logger,
	}, nil
}

// Status returns the connection status subject.
func (p *Proxy) Status() *broadcast.Subject[ConnectionStatus] {
	return p.status
}

// Connect opens the link, retrying after the fixed delay until it succeeds.
// Every failed attempt reports Disconnected; success reports Connected.
// It only returns an error when ctx is cancelled.
func (p *Proxy) Connect(ctx context.Context) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Proxy) connectLocked(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(p.retryDelay), ctx)

	open := func() error {
		_ = p.transport.Close()
		if err := p.transport.Open(ctx); err != nil {
			p.report(StateDisconnected, err.Error())
			return err
		}
		if err := p.resubscribe(); err != nil {
			p.report(StateDisconnected, err.Error())
			return err
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.logWarn("bus connect failed, retrying", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(open, bo, notify); err != nil {
		return fmt.Errorf("bus: connect: %w", err)
	}

	p.report(StateConnected, "")
	p.logInfo("bus connected")
	return nil
}

func (p *Proxy) resubscribe() error {
	p.signalsMu.Lock()
	defer p.signalsMu.Unlock()

	for name, handler := range p.signals {
		if err := p.transport.Subscribe(name, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
	}
	return nil
}

// OnSignal binds handler to the named signal. The binding survives
// reconnects. Call it before Connect; bindings added later take effect on
// the next (re)connect.
func (p *Proxy) OnSignal(name string, handler SignalHandler) {
	p.signalsMu.Lock()
	p.signals[name] = handler
	p.signalsMu.Unlock()
}

// Call invokes method on the backend and returns its result string.
//
// On a transport failure the Proxy reports Disconnected, waits the retry
// delay, re-establishes the link (retrying until it succeeds) and tries the
// call again. maxAttempts bounds the number of call attempts; 0 means
// unlimited. A RemoteError is returned at once without retrying.
//
// Parameters:
//   - ctx: cancels waiting and retrying
//   - method: backend method to invoke
//   - maxAttempts: attempt limit, 0 for unlimited
//   - args: positional arguments, JSON encoded by the transport
//
// Returns:
//   - string: the backend's result
//   - error: *RemoteError, an ErrTransport chain after the last attempt, or ctx.Err()
func (p *Proxy) Call(ctx context.Context, method Method, maxAttempts int, args ...any) (string, error) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	var bo backoff.BackOff = backoff.NewConstantBackOff(p.retryDelay)
	if maxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(maxAttempts-1))
	}
	bo = backoff.WithContext(bo, ctx)

	reconnect := false
	attempt := func() (string, error) {
		if reconnect {
			if err := p.connectLocked(ctx); err != nil {
				return "", backoff.Permanent(err)
			}
			reconnect = false
		}

		result, err := p.transport.Call(ctx, method, args)
		p.metrics.BusCall(string(method), err)
		if err == nil {
			p.report(StateConnected, "")
			return result, nil
		}

		var remote *RemoteError
		if errors.As(err, &remote) {
			p.report(StateConnected, "")
			return "", backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}

		p.report(StateDisconnected, err.Error())
		reconnect = true
		return "", fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	notify := func(err error, next time.Duration) {
		p.logWarn("bus call failed, retrying", "method", string(method), "error", err, "retry_in", next)
	}

	return backoff.RetryNotifyWithData(attempt, bo, notify)
}

// report publishes a status when the state or reason changed.
func (p *Proxy) report(state State, reason string) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	prev := p.status.Value()
	if prev.State == state && prev.Reason == reason {
		return
	}
	next := ConnectionStatus{State: state, Reason: reason, Timestamp: time.Now()}
	p.status.Publish(next)
	if p.onStatusChange != nil {
		p.onStatusChange(prev, next)
	}

	switch state {
	case StateConnected:
		p.metrics.BusConnected(true, next.Healed(prev))
	case StateDisconnected:
		p.metrics.BusConnected(false, false)
	}
}

// SetOnStatusChange sets a callback invoked synchronously for every
// published status change. Unlike a subject subscriber it never misses an
// intermediate state. The callback must not call back into the Proxy.
func (p *Proxy) SetOnStatusChange(callback func(prev, next ConnectionStatus)) {
	p.statusMu.Lock()
	p.onStatusChange = callback
	p.statusMu.Unlock()
}

// Close releases the transport.
func (p *Proxy) Close() error {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.transport.Close()
}

// SetLogger sets the logger for connection and retry events.
func (p *Proxy) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Proxy) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Proxy) logInfo(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (p *Proxy) logWarn(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
