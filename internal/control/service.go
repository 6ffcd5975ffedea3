// Package control translates logical circuit commands into backend Control
// operations.
package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/state"
)

// Control operation types.
const (
	OpActivate    = "Activate"
	OpRelease     = "Release"
	OpSetAbsolute = "SetAbsolute"
)

// Throw types sent with Activate and Release.
const (
	ThrowSingle    = "SingleThrow"
	ThrowDoubleOn  = "DoubleThrowOn"
	ThrowDoubleOff = "DoubleThrowOff"
)

const defaultMaxAttempts = 3

// Command is one Control call argument.
type Command struct {
	Type      string `json:"Type"`
	ID        uint32 `json:"Id"`
	ThrowType string `json:"ThrowType,omitempty"`
	Value     *int   `json:"Value,omitempty"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Caller issues Control calls. Required.
	Caller bus.Caller

	// Store provides the configuration and live telemetry. Required.
	Store *state.Store

	// MaxAttempts bounds each Control call. Default: 3.
	MaxAttempts int

	Logger  Logger
	Metrics *metrics.Metrics
}

// Service sends circuit commands.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Service struct {
	caller      bus.Caller
	store       *state.Store
	maxAttempts int
	metrics     *metrics.Metrics

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
	return &Service{
		caller:      opts.Caller,
		store:       opts.Store,
		maxAttempts: opts.MaxAttempts,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}, nil
}

// SetCircuitPowerState switches a circuit on or off.
//
// A circuit already in the target state is left alone and no call is made.
// Dimmable circuits are driven with SetAbsolute (100 or 0); others with an
// Activate/Release pair whose throw type follows the circuit's switch type.
func (s *Service) SetCircuitPowerState(ctx context.Context, controlID uint32, on bool) error {
	circuit, err := s.circuit(controlID)
	if err != nil {
		return err
	}

	if IsOn(s.store.Devices.Value(), controlID) == on {
		s.logDebug("circuit already in target state", "circuit", controlID, "on", on)
		return nil
	}

	if circuit.IsDimmable() {
		level := 0
		if on {
			level = 100
		}
		err = s.send(ctx, "power", Command{Type: OpSetAbsolute, ID: controlID, Value: &level})
	} else {
		throw := ThrowType(circuit.SwitchType, on)
		err = s.send(ctx, "power", Command{Type: OpActivate, ID: controlID, ThrowType: throw})
		if err == nil {
			err = s.send(ctx, "power", Command{Type: OpRelease, ID: controlID, ThrowType: throw})
		}
	}
	if err != nil {
		return err
	}

	s.logInfo("circuit switched", "circuit", controlID, "on", on)
	return nil
}

// SetCircuitLevel sets a dimmable circuit to level percent.
func (s *Service) SetCircuitLevel(ctx context.Context, controlID uint32, level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}
	circuit, err := s.circuit(controlID)
	if err != nil {
		return err
	}
	if !circuit.IsDimmable() {
		return fmt.Errorf("%w: circuit %d", ErrNotDimmable, controlID)
	}

	if err := s.send(ctx, "level", Command{Type: OpSetAbsolute, ID: controlID, Value: &level}); err != nil {
		return err
	}
	s.logInfo("circuit level set", "circuit", controlID, "level", level)
	return nil
}

func (s *Service) circuit(controlID uint32) (czone.Circuit, error) {
	cfg := s.store.Config.Value()
	if cfg == nil {
		return czone.Circuit{}, ErrNoConfig
	}
	c, ok := cfg.Circuits[czone.Key(czone.KindCircuit, controlID)]
	if !ok {
		return czone.Circuit{}, fmt.Errorf("%w: %d", ErrUnknownCircuit, controlID)
	}
	return c, nil
}

func (s *Service) send(ctx context.Context, operation string, cmd Command) error {
	err := bus.ExpectOK(s.caller.Call(ctx, bus.MethodControl, s.maxAttempts, cmd))
	s.metrics.ControlCommand(operation, err)
	if err != nil {
		return fmt.Errorf("control %s circuit %d: %w", cmd.Type, cmd.ID, err)
	}
	return nil
}

// ThrowType returns the throw type for switching a circuit with switch type
// st towards on.
func ThrowType(st czone.SwitchType, on bool) string {
	if st == czone.SwitchOnOff {
		if on {
			return ThrowDoubleOn
		}
		return ThrowDoubleOff
	}
	return ThrowSingle
}

// IsOn reports whether telemetry shows the circuit as on: a positive Level
// or a true Power value.
func IsOn(devices state.Devices, controlID uint32) bool {
	id := czone.LiveID(czone.KindCircuit, controlID)
	if v, ok := devices.Value(id, "Level"); ok {
		if n, ok := number(v); ok && n > 0 {
			return true
		}
	}
	if v, ok := devices.Value(id, "Power"); ok {
		switch p := v.(type) {
		case bool:
			return p
		default:
			n, ok := number(v)
			return ok && n != 0
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
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
