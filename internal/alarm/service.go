// Package alarm correlates backend alarms to Things, synthesises engine
// alarms from discrete status words and handles acknowledgement.
//
// Two lists are maintained. Active alarms come from the backend's AlarmList
// call and are rebuilt by merging each fetch against the previous list.
// Engine alarms are derived locally from snapshot telemetry. Both are
// verified against the current Thing graphs: an alarm that affects no known
// Thing is never published.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/state"
)

const defaultMaxAttempts = 3

// ErrInvalidOptions is returned by NewService for incomplete options.
var ErrInvalidOptions = errors.New("alarm: invalid options")

// ErrInvalidAlarmID is returned for acknowledgement of an id that is neither
// an engine alarm nor a backend alarm number.
var ErrInvalidAlarmID = errors.New("alarm: invalid alarm id")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Caller issues AlarmList and AlarmAcknowledge. Required.
	Caller bus.Caller

	// Store provides configuration and Thing graphs and receives both alarm
	// lists. Required.
	Store *state.Store

	// MaxAttempts bounds each AlarmAcknowledge call. Default: 3.
	MaxAttempts int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	Logger  Logger
	Metrics *metrics.Metrics
}

// Service maintains the active and engine alarm lists.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Active and engine lists are
//     rebuilt under separate mutexes.
type Service struct {
	caller      bus.Caller
	store       *state.Store
	parser      *czone.Parser
	maxAttempts int
	now         func() time.Time
	metrics     *metrics.Metrics

	activeMu sync.Mutex

	engineMu  sync.Mutex
	lastWords map[uint32]statusWords

	logger   Logger
	loggerMu sync.RWMutex
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Caller == nil {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidOptions)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidOptions)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		caller:      opts.Caller,
		store:       opts.Store,
		parser:      czone.NewParser(opts.Logger),
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		metrics:     opts.Metrics,
		lastWords:   make(map[uint32]statusWords),
		logger:      opts.Logger,
	}, nil
}

// LoadActiveAlarms fetches the backend's alarm list and merges it against
// the previously published one.
//
// Merge rules per fetched alarm:
//   - known, remote Acknowledged: marked Acknowledged, stamp and Things kept
//   - known and not Enabled, remote Enabled: re-enabled with a new stamp
//     strictly after the previous one
//   - known, remote Disabled: kept as Disabled
//   - known and Enabled, remote Enabled: unchanged
//   - unknown, remote Enabled or Acknowledged: correlated to Things
//
// Alarms absent from the fetch are dropped. The result is published only
// when it differs from the previous list, unless force is set.
func (s *Service) LoadActiveAlarms(ctx context.Context, force bool) error {
	raw, err := s.caller.Call(ctx, bus.MethodAlarmList, 0)
	if err != nil {
		return fmt.Errorf("alarm list: %w", err)
	}
	alarms, err := s.parser.ParseAlarms([]byte(raw))
	if err != nil {
		return err
	}

	cfg := s.store.Config.Value()
	engines := s.store.EngineConfig.Value()

	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	prev := s.store.ActiveAlarms.Value()
	next := s.merge(prev, alarms, cfg, engines)
	next = postProcess(next, cfg)
	next = s.filter(next, s.hasThing)

	if !force && next.Equal(prev) {
		return nil
	}
	s.store.ActiveAlarms.Publish(next)
	s.metrics.ActiveAlarms("backend", len(next))
	s.logDebug("active alarms published", "count", len(next), "forced", force)
	return nil
}

func (s *Service) merge(prev state.AlarmList, raws []czone.RawAlarm, cfg *czone.Config, engines *czone.EngineConfig) state.AlarmList {
	next := make(state.AlarmList, len(raws))
	for _, raw := range raws {
		id := strconv.FormatUint(uint64(raw.ID), 10)

		known, ok := prev[id]
		if raw.State == czone.AlarmUnrecognised {
			if ok {
				next[id] = known.Clone()
			}
			continue
		}
		if !ok {
			if raw.State == czone.AlarmDisabled {
				continue
			}
			if a, ok := buildReportableAlarm(raw, cfg, engines, s.stamp(time.Time{})); ok {
				next[id] = a
			}
			continue
		}

		a := known.Clone()
		switch raw.State {
		case czone.AlarmAcknowledged:
			a.State = czone.AlarmAcknowledged
		case czone.AlarmEnabled:
			if known.State != czone.AlarmEnabled {
				a.State = czone.AlarmEnabled
				a.ActivatedAt = s.stamp(known.ActivatedAt)
			}
		case czone.AlarmDisabled:
			a.State = czone.AlarmDisabled
		}
		next[id] = a
	}
	return next
}

// stamp returns the current time, moved past prev if the clock has not
// advanced beyond it.
func (s *Service) stamp(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

// ProcessEngineSnapshot raises and clears engine alarms from the discrete
// status words carried in a snapshot's Engines section.
func (s *Service) ProcessEngineSnapshot(snap czone.Snapshot) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	words := engineStatus(snap, s.lastWords)
	if len(words) == 0 {
		return
	}

	prev := s.store.EngineAlarms.Value()
	next := prev.Clone()
	now := s.now()
	for instance, cur := range words {
		applyEngineStatus(next, instance, s.lastWords[instance], cur, now)
		s.lastWords[instance] = cur
	}
	next = s.filter(next, s.hasEngine)

	if next.Equal(prev) {
		return
	}
	s.store.EngineAlarms.Publish(next)
	s.metrics.ActiveAlarms("engine", len(next))
}

// filter verifies list under the store lock so a graph being rebuilt is never
// observed half disposed.
func (s *Service) filter(list state.AlarmList, has func(thingID string) bool) state.AlarmList {
	var out state.AlarmList
	s.store.View(func(*state.LiveDevices) {
		out = verify(list, has)
	})
	return out
}

// Reverify filters both published lists against the current Thing graphs.
// It is run after the graphs are rebuilt.
func (s *Service) Reverify() {
	s.activeMu.Lock()
	if prev := s.store.ActiveAlarms.Value(); prev != nil {
		if next := s.filter(prev, s.hasThing); !next.Equal(prev) {
			s.store.ActiveAlarms.Publish(next)
			s.metrics.ActiveAlarms("backend", len(next))
		}
	}
	s.activeMu.Unlock()

	s.engineMu.Lock()
	if prev := s.store.EngineAlarms.Value(); prev != nil {
		if next := s.filter(prev, s.hasEngine); !next.Equal(prev) {
			s.store.EngineAlarms.Publish(next)
			s.metrics.ActiveAlarms("engine", len(next))
		}
	}
	s.engineMu.Unlock()
}

// ResetEngines forgets the last seen engine status words so the next
// snapshot is evaluated from scratch.
func (s *Service) ResetEngines() {
	s.engineMu.Lock()
	s.lastWords = make(map[uint32]statusWords)
	s.engineMu.Unlock()
}

// AcknowledgeAlarm acknowledges an alarm and reports success.
//
// An alarm that is already Acknowledged succeeds without a remote call.
// Engine alarms are acknowledged locally. Backend alarms are acknowledged
// with AlarmAcknowledge, which must echo "Ok", and the list is reloaded.
func (s *Service) AcknowledgeAlarm(ctx context.Context, id string) bool {
	if _, ok := s.store.EngineAlarms.Value()[id]; ok {
		return s.acknowledgeEngine(id)
	}

	if a, ok := s.store.ActiveAlarms.Value()[id]; ok && a.State == czone.AlarmAcknowledged {
		return true
	}

	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		s.logError("acknowledge failed", fmt.Errorf("%w: %q", ErrInvalidAlarmID, id))
		return false
	}
	if err := bus.ExpectOK(s.caller.Call(ctx, bus.MethodAlarmAcknowledge, s.maxAttempts, uint32(n))); err != nil {
		s.logError("acknowledge failed", fmt.Errorf("alarm %s: %w", id, err))
		return false
	}

	s.logInfo("alarm acknowledged", "alarm", id)
	if err := s.LoadActiveAlarms(ctx, false); err != nil {
		s.logWarn("alarm reload after acknowledge failed", "error", err)
	}
	return true
}

func (s *Service) acknowledgeEngine(id string) bool {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	prev := s.store.EngineAlarms.Value()
	a, ok := prev[id]
	if !ok {
		return false
	}
	if a.State == czone.AlarmAcknowledged {
		return true
	}

	next := prev.Clone()
	a = a.Clone()
	a.State = czone.AlarmAcknowledged
	next[id] = a
	s.store.EngineAlarms.Publish(next)
	s.logInfo("engine alarm acknowledged", "alarm", id)
	return true
}

// RefreshActiveAlarms forces a reload and publish of the active list. On
// failure the reason is returned.
func (s *Service) RefreshActiveAlarms(ctx context.Context) (bool, string) {
	if err := s.LoadActiveAlarms(ctx, true); err != nil {
		s.logError("alarm refresh failed", err)
		return false, err.Error()
	}
	return true, ""
}

func (s *Service) hasThing(id string) bool {
	if sys := s.store.EmpowerSystem.Value(); sys != nil && sys.Has(id) {
		return true
	}
	return s.hasEngine(id)
}

func (s *Service) hasEngine(id string) bool {
	list := s.store.EngineList.Value()
	return list != nil && list.Has(id)
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

func (s *Service) logInfo(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
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
