// Package snapshot keeps LiveDevices current from the backend's state
// snapshots.
//
// Snapshots arrive two ways: pushed on the Snapshot signal, or pulled with
// SingleSnapshot when no push has arrived for one interval. Every snapshot
// restarts the pull timer, so a healthy push stream never triggers a pull.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/state"
)

const defaultInterval = 30 * time.Second

// Snapshot sources for metrics.
const (
	sourcePush = "push"
	sourcePull = "pull"
)

// ErrInvalidOptions is returned by NewService for incomplete options.
var ErrInvalidOptions = errors.New("snapshot: invalid options")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// EngineAlarms receives every snapshot once the engine configuration is known.
type EngineAlarms interface {
	ProcessEngineSnapshot(snap czone.Snapshot)
}

// Recorder stores numeric channel values as history.
// *influxdb.Client implements it.
type Recorder interface {
	RecordChannel(deviceID, channel string, value float64, ts time.Time)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Caller issues SingleSnapshot pulls. Required.
	Caller bus.Caller

	// Store receives merged device values. Required.
	Store *state.Store

	// Alarms runs the engine discrete status pass. Optional.
	Alarms EngineAlarms

	// Recorder receives numeric values after each merge. Optional.
	Recorder Recorder

	// Interval is how long to wait for a push before pulling.
	// Default: 30 seconds.
	Interval time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	Logger  Logger
	Metrics *metrics.Metrics
}

// Service merges snapshots and runs the pull timer.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - At most one pull runs at a time.
type Service struct {
	caller   bus.Caller
	store    *state.Store
	alarms   EngineAlarms
	recorder Recorder
	parser   *czone.Parser
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics

	timerMu sync.Mutex
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	pulling atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewService creates a Service. The pull timer is not armed until Start.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Caller == nil {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidOptions)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidOptions)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		caller:   opts.Caller,
		store:    opts.Store,
		alarms:   opts.Alarms,
		recorder: opts.Recorder,
		parser:   czone.NewParser(opts.Logger),
		interval: opts.Interval,
		now:      opts.Now,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}, nil
}

// Start arms the pull timer. Pulls run with ctx and stop when it is done
// or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.armLocked()
}

// Stop disarms the pull timer and cancels any pull in flight.
func (s *Service) Stop() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// restartTimer replaces the pending pull timer with a fresh one.
func (s *Service) restartTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.armLocked()
}

func (s *Service) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, s.pull)
}

func (s *Service) pull() {
	defer s.recoverPanic("snapshot pull")

	s.timerMu.Lock()
	ctx := s.ctx
	running := s.cancel != nil
	s.timerMu.Unlock()
	if !running {
		return
	}

	if !s.pulling.CompareAndSwap(false, true) {
		s.restartTimer()
		return
	}
	defer s.pulling.Store(false)

	s.logDebug("no snapshot pushed within interval, pulling", "interval", s.interval)
	if err := s.fetch(ctx, sourcePull); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logError("snapshot pull failed", err)
		s.restartTimer()
	}
}

// RequestSnapshot pulls one snapshot immediately and merges it.
func (s *Service) RequestSnapshot(ctx context.Context) error {
	return s.fetch(ctx, sourcePull)
}

func (s *Service) fetch(ctx context.Context, source string) error {
	raw, err := s.caller.Call(ctx, bus.MethodSingleSnapshot, 0)
	if err != nil {
		return fmt.Errorf("single snapshot: %w", err)
	}
	snap, err := s.parser.ParseSnapshot([]byte(raw))
	if err != nil {
		return err
	}
	s.Apply(snap, source)
	return nil
}

// HandleSignal handles a pushed Snapshot signal. Malformed payloads are
// logged and dropped.
func (s *Service) HandleSignal(payload []byte) {
	defer s.recoverPanic("snapshot signal")

	snap, err := s.parser.ParseSnapshot(payload)
	if err != nil {
		s.logWarn("snapshot signal dropped", "error", err)
		return
	}
	s.Apply(snap, sourcePush)
}

// Apply processes one snapshot: engine alarms first, then the device merge.
// Values for devices not in LiveDevices are ignored.
func (s *Service) Apply(snap czone.Snapshot, source string) {
	s.restartTimer()

	if s.alarms != nil && s.store.EngineConfig.Value() != nil {
		s.alarms.ProcessEngineSnapshot(snap)
	}

	devices := Extract(snap)
	merged := make(map[string]map[string]any, len(devices))
	s.store.Update(func(live *state.LiveDevices) {
		for id, values := range devices {
			if live.Merge(id, values) {
				merged[id] = values
			}
		}
	})

	s.record(merged)
	s.metrics.Snapshot(source)
}

func (s *Service) record(merged map[string]map[string]any) {
	if s.recorder == nil {
		return
	}
	ts := s.now()
	for id, values := range merged {
		for channel, v := range values {
			if f, ok := numeric(v); ok {
				s.recorder.RecordChannel(id, channel, f, ts)
			}
		}
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (s *Service) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.logError("panic recovered", fmt.Errorf("%s: %v", where, r))
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Service) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Service) logDebug(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *Service) logWarn(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *Service) logError(msg string, err error) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
