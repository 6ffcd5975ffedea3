// Package client is the gateway's composition root.
//
// A Client owns the state store, the bus Proxy and every service built on
// them. Start brings the link up and performs the initial loads; Run then
// services signals and reconnect rescans one at a time, in arrival order.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/czone-gateway/internal/alarm"
	"github.com/nerrad567/czone-gateway/internal/broadcast"
	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/configsvc"
	"github.com/nerrad567/czone-gateway/internal/control"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/event"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/snapshot"
	"github.com/nerrad567/czone-gateway/internal/state"
	"github.com/nerrad567/czone-gateway/internal/thing"
)

// ErrInvalidOptions is returned by New for incomplete options.
var ErrInvalidOptions = errors.New("client: invalid options")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Client.
type Options struct {
	// Config supplies bus, snapshot and config service settings. Required.
	Config *config.Config

	// Transport overrides the MQTT transport built from Config.Bus.
	Transport bus.Transport

	// Recorder receives numeric telemetry after each snapshot. Optional.
	Recorder snapshot.Recorder

	Logger  Logger
	Metrics *metrics.Metrics
}

// Client wires the services together and exposes the public API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Run must be called at most once.
type Client struct {
	store     *state.Store
	proxy     *bus.Proxy
	configs   *configsvc.Service
	alarms    *alarm.Service
	snapshots *snapshot.Service
	control   *control.Service
	events    *event.Service

	queue     *queue
	connected atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New builds a Client. Nothing is connected until Start.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidOptions)
	}
	cfg := opts.Config

	transport := opts.Transport
	if transport == nil {
		t, err := bus.NewMQTTTransport(bus.MQTTTransportOptions{
			Bus:         cfg.Bus,
			CallTimeout: cfg.GetCallTimeout(),
			Logger:      opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating bus transport: %w", err)
		}
		transport = t
	}

	proxy, err := bus.NewProxy(bus.ProxyOptions{
		Transport:  transport,
		RetryDelay: cfg.GetRetryDelay(),
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bus proxy: %w", err)
	}

	c := &Client{
		store:  state.NewStore(),
		proxy:  proxy,
		queue:  newQueue(),
		logger: opts.Logger,
	}

	c.alarms, err = alarm.NewService(alarm.ServiceOptions{
		Caller:      proxy,
		Store:       c.store,
		MaxAttempts: cfg.Bus.ControlMaxAttempts,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating alarm service: %w", err)
	}

	c.snapshots, err = snapshot.NewService(snapshot.ServiceOptions{
		Caller:   proxy,
		Store:    c.store,
		Alarms:   c.alarms,
		Recorder: opts.Recorder,
		Interval: cfg.GetSnapshotInterval(),
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating snapshot service: %w", err)
	}

	c.configs, err = configsvc.NewService(configsvc.ServiceOptions{
		Caller:      proxy,
		Store:       c.store,
		Snapshots:   c.snapshots,
		WriteDelay:  cfg.GetWriteDelay(),
		MaxAttempts: cfg.Bus.ControlMaxAttempts,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config service: %w", err)
	}

	c.control, err = control.NewService(control.ServiceOptions{
		Caller:      proxy,
		Store:       c.store,
		MaxAttempts: cfg.Bus.ControlMaxAttempts,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("creating control service: %w", err)
	}

	c.events, err = event.NewService(event.ServiceOptions{
		Config: refresher{c},
		Alarms: c.alarms,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event service: %w", err)
	}

	proxy.OnSignal(bus.SignalEvent, func(payload []byte) {
		c.queue.push(task{name: "event", run: func(ctx context.Context) { c.events.Handle(ctx, payload) }})
	})
	proxy.OnSignal(bus.SignalSnapshot, func(payload []byte) {
		c.queue.push(task{name: "snapshot", run: func(context.Context) { c.snapshots.HandleSignal(payload) }})
	})
	proxy.SetOnStatusChange(func(prev, next bus.ConnectionStatus) {
		if next.Healed(prev) && c.connected.Load() {
			c.queue.push(task{name: "rescan", run: c.rescan})
		}
	})

	return c, nil
}

// Start connects to the backend (blocking until it succeeds or ctx is done)
// and performs the initial loads: full configuration, engine rescan with
// reset and a forced alarm load. It then arms the snapshot timer.
//
// Load failures are logged; the next event or reconnect retries them.
func (c *Client) Start(ctx context.Context) error {
	if err := c.proxy.Connect(ctx); err != nil {
		return err
	}
	c.connected.Store(true)

	if err := c.fullFetch(ctx); err != nil {
		c.logError("initial configuration fetch failed", err)
	}
	c.ScanMarineEngines(ctx, true)
	if err := c.alarms.LoadActiveAlarms(ctx, true); err != nil {
		c.logError("initial alarm load failed", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.snapshots.Start(ctx)
	c.logInfo("client started")
	return nil
}

// Run services queued signals and rescans until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.queue.notify:
		}

		tasks := c.queue.drain()
		for _, t := range tasks {
			if ctx.Err() != nil {
				return nil
			}
			c.runTask(ctx, t)
		}
	}
}

func (c *Client) runTask(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("panic recovered", fmt.Errorf("task %s: %v", t.name, r))
		}
	}()
	t.run(ctx)
}

// rescan reloads everything after the link was restored.
func (c *Client) rescan(ctx context.Context) {
	c.logInfo("bus link restored, rescanning")
	if err := c.fullFetch(ctx); err != nil {
		c.logError("configuration refetch failed", err)
	}
	c.ScanMarineEngines(ctx, true)
	if err := c.alarms.LoadActiveAlarms(ctx, false); err != nil {
		c.logError("alarm reload failed", err)
	}
}

func (c *Client) fullFetch(ctx context.Context) error {
	if err := c.configs.FullFetch(ctx); err != nil {
		return err
	}
	c.alarms.Reverify()
	return nil
}

// Close stops the snapshot timer and closes the bus link.
func (c *Client) Close() error {
	c.snapshots.Stop()
	return c.proxy.Close()
}

// refresher adapts the Client's configuration reloads for the event service
// so alarm lists are re-verified after every rebuild.
type refresher struct{ c *Client }

func (r refresher) FullFetch(ctx context.Context) error { return r.c.fullFetch(ctx) }

func (r refresher) ScanMarineEngines(ctx context.Context, reset bool) bool {
	return r.c.ScanMarineEngines(ctx, reset)
}

// WriteConfiguration uploads a configuration file (hex encoded) and applies
// it. It reports true only when both steps are acknowledged.
func (c *Client) WriteConfiguration(ctx context.Context, hex string) bool {
	return c.configs.WriteConfiguration(ctx, hex)
}

// RequestStateSnapshot pulls and merges one snapshot now.
func (c *Client) RequestStateSnapshot(ctx context.Context) bool {
	if err := c.snapshots.RequestSnapshot(ctx); err != nil {
		c.logError("snapshot request failed", err)
		return false
	}
	return true
}

// AcknowledgeAlarm acknowledges the alarm with id.
func (c *Client) AcknowledgeAlarm(ctx context.Context, id string) bool {
	return c.alarms.AcknowledgeAlarm(ctx, id)
}

// RefreshActiveAlarms reloads and republishes the active alarm list.
func (c *Client) RefreshActiveAlarms(ctx context.Context) (bool, string) {
	return c.alarms.RefreshActiveAlarms(ctx)
}

// ScanMarineEngines rebuilds the EngineList. With reset, engine telemetry
// and engine alarm history are dropped first.
func (c *Client) ScanMarineEngines(ctx context.Context, reset bool) bool {
	if reset {
		c.alarms.ResetEngines()
	}
	ok := c.configs.ScanMarineEngines(ctx, reset)
	if ok {
		c.alarms.Reverify()
	}
	return ok
}

// SetCircuitPowerState switches circuit controlID on or off.
func (c *Client) SetCircuitPowerState(ctx context.Context, controlID uint32, on bool) bool {
	if err := c.control.SetCircuitPowerState(ctx, controlID, on); err != nil {
		c.logError("set circuit power failed", err)
		return false
	}
	return true
}

// SetCircuitLevel sets dimmable circuit controlID to level percent.
func (c *Client) SetCircuitLevel(ctx context.Context, controlID uint32, level int) bool {
	if err := c.control.SetCircuitLevel(ctx, controlID, level); err != nil {
		c.logError("set circuit level failed", err)
		return false
	}
	return true
}

// Devices returns the live device subject.
func (c *Client) Devices() *broadcast.Subject[state.Devices] { return c.store.Devices }

// Config returns the parsed configuration subject.
func (c *Client) Config() *broadcast.Subject[*czone.Config] { return c.store.Config }

// EmpowerSystem returns the Thing graph subject.
func (c *Client) EmpowerSystem() *broadcast.Subject[*thing.EmpowerSystem] {
	return c.store.EmpowerSystem
}

// EngineList returns the engine Thing graph subject.
func (c *Client) EngineList() *broadcast.Subject[*thing.EngineList] { return c.store.EngineList }

// FactoryMetadata returns the controller identity subject.
func (c *Client) FactoryMetadata() *broadcast.Subject[*czone.FactoryMetadata] {
	return c.store.FactoryMetadata
}

// ActiveAlarms returns the backend alarm subject.
func (c *Client) ActiveAlarms() *broadcast.Subject[state.AlarmList] { return c.store.ActiveAlarms }

// EngineAlarms returns the engine alarm subject.
func (c *Client) EngineAlarms() *broadcast.Subject[state.AlarmList] { return c.store.EngineAlarms }

// ConnectionStatus returns the bus link status subject.
func (c *Client) ConnectionStatus() *broadcast.Subject[bus.ConnectionStatus] {
	return c.proxy.Status()
}

// SetLogger sets the logger.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// pending reports how many tasks wait for the dispatch loop.
func (c *Client) pending() int { return c.queue.len() }
