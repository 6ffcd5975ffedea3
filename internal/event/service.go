// Package event routes the backend's change notifications to the services
// that react to them.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// ErrInvalidOptions is returned by NewService for incomplete options.
var ErrInvalidOptions = errors.New("event: invalid options")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ConfigFetcher refetches configuration.
type ConfigFetcher interface {
	FullFetch(ctx context.Context) error
	ScanMarineEngines(ctx context.Context, reset bool) bool
}

// AlarmLoader reloads the active alarm list.
type AlarmLoader interface {
	LoadActiveAlarms(ctx context.Context, force bool) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Config ConfigFetcher // Required.
	Alarms AlarmLoader   // Required.
	Logger Logger
}

// Service dispatches Event signals.
//
// Thread Safety:
//   - Handle is safe for concurrent use, but callers are expected to
//     serialise signals so reactions run in arrival order.
type Service struct {
	config ConfigFetcher
	alarms AlarmLoader
	parser *czone.Parser

	logger   Logger
	loggerMu sync.RWMutex
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config fetcher is required", ErrInvalidOptions)
	}
	if opts.Alarms == nil {
		return nil, fmt.Errorf("%w: alarm loader is required", ErrInvalidOptions)
	}
	return &Service{
		config: opts.Config,
		alarms: opts.Alarms,
		parser: czone.NewParser(opts.Logger),
		logger: opts.Logger,
	}, nil
}

// Handle decodes one Event signal payload and runs its reaction.
// Failures are logged, never returned; panics are recovered.
func (s *Service) Handle(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("panic recovered", fmt.Errorf("event handler: %v", r))
		}
	}()

	ev, err := s.parser.ParseEvent(payload)
	if err != nil {
		s.logWarn("event dropped", "error", err)
		return
	}
	s.Dispatch(ctx, ev)
}

// Dispatch runs the reaction for ev:
//   - EngineConfigChanged: engine rescan without reset
//   - ConfigChanged: full configuration refetch
//   - alarm events: active alarm reload
//
// Other types are ignored.
func (s *Service) Dispatch(ctx context.Context, ev czone.Event) {
	switch {
	case ev.Type == czone.EventEngineConfigChanged:
		s.logInfo("engine configuration changed")
		if !s.config.ScanMarineEngines(ctx, false) {
			s.logWarn("engine rescan failed", "event", ev.Type)
		}

	case ev.Type == czone.EventConfigChanged:
		s.logInfo("configuration changed")
		if err := s.config.FullFetch(ctx); err != nil {
			s.logError("configuration refetch failed", err)
		}

	case ev.Type.IsAlarm():
		if err := s.alarms.LoadActiveAlarms(ctx, false); err != nil {
			s.logError("alarm reload failed", err)
		}

	default:
		s.logDebug("event ignored", "type", ev.Type)
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
