// Package configsvc fetches the backend configuration, rebuilds the Thing
// graph from it and writes new configurations back.
package configsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/czone-gateway/internal/bus"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/czone-gateway/internal/state"
	"github.com/nerrad567/czone-gateway/internal/thing"
)

// Setting and operation names understood by the backend.
const (
	settingFactoryData   = "FactoryData"
	configEngines        = "Engines"
	operationWriteConfig = "WriteConfig"
)

const defaultWriteDelay = time.Second

// ErrInvalidOptions is returned by NewService for incomplete options.
var ErrInvalidOptions = errors.New("configsvc: invalid options")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SnapshotRequester asks for one immediate state snapshot.
type SnapshotRequester interface {
	RequestSnapshot(ctx context.Context) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Caller issues backend calls. Required.
	Caller bus.Caller

	// Store receives the parsed configuration and Thing graphs. Required.
	Store *state.Store

	// Snapshots is asked for a snapshot after every rebuild. Optional.
	Snapshots SnapshotRequester

	// WriteDelay is the pause between PutFile and WriteConfig.
	// Default: 1 second.
	WriteDelay time.Duration

	// MaxAttempts bounds the configuration write calls.
	MaxAttempts int

	Logger  Logger
	Metrics *metrics.Metrics
}

// Service orchestrates fetch, parse, build and publish.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Backend calls are serialised
//     by the bus Proxy and state changes by the Store lock.
type Service struct {
	caller      bus.Caller
	store       *state.Store
	snapshots   SnapshotRequester
	parser      *czone.Parser
	writeDelay  time.Duration
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
	if opts.WriteDelay <= 0 {
		opts.WriteDelay = defaultWriteDelay
	}

	return &Service{
		caller:      opts.Caller,
		store:       opts.Store,
		snapshots:   opts.Snapshots,
		writeDelay:  opts.WriteDelay,
		maxAttempts: opts.MaxAttempts,
		metrics:     opts.Metrics,
		parser:      czone.NewParser(opts.Logger),
		logger:      opts.Logger,
	}, nil
}

// FullFetch fetches categories, configuration and factory metadata, rebuilds
// the EmpowerSystem and publishes all three. On any fetch or parse failure
// the previously published state is left untouched.
//
// Non-engine live devices are dropped before the rebuild. The previous
// EmpowerSystem is disposed only after its replacement is published.
func (s *Service) FullFetch(ctx context.Context) error {
	cfg, meta, err := s.fetchConfig(ctx)
	s.metrics.ConfigFetch("config", err)
	if err != nil {
		return err
	}

	var sys *thing.EmpowerSystem
	s.store.Update(func(live *state.LiveDevices) {
		old := s.store.EmpowerSystem.Value()
		live.DisposeOrdinary()
		sys = thing.Build(cfg, meta, live)

		s.store.Config.Publish(cfg)
		s.store.FactoryMetadata.Publish(meta)
		s.store.EmpowerSystem.Publish(sys)
		if old != nil {
			old.Dispose()
		}
	})

	s.recordThings()
	s.logInfo("configuration loaded",
		"things", sys.Len(),
		"circuits", len(cfg.Circuits),
		"config_id", meta.ConfigID,
	)
	s.requestSnapshot(ctx)
	return nil
}

func (s *Service) fetchConfig(ctx context.Context) (*czone.Config, *czone.FactoryMetadata, error) {
	raw, err := s.caller.Call(ctx, bus.MethodGetCategories, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("get categories: %w", err)
	}
	categories, err := s.parser.ParseCategories([]byte(raw))
	if err != nil {
		return nil, nil, err
	}

	raw, err = s.caller.Call(ctx, bus.MethodGetConfigAll, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("get config: %w", err)
	}
	cfg, err := s.parser.ParseConfig([]byte(raw), categories)
	if err != nil {
		return nil, nil, err
	}

	raw, err = s.caller.Call(ctx, bus.MethodGetSetting, 0, settingFactoryData)
	if err != nil {
		return nil, nil, fmt.Errorf("get factory data: %w", err)
	}
	meta, err := s.parser.ParseFactoryMetadata([]byte(raw))
	if err != nil {
		return nil, nil, err
	}

	return cfg, meta, nil
}

// ScanMarineEngines fetches the engine configuration and rebuilds the
// EngineList. With reset, engine live devices are dropped before the rebuild
// and the previous EngineList is disposed once the new one is published. A snapshot is requested afterwards in every case.
func (s *Service) ScanMarineEngines(ctx context.Context, reset bool) bool {
	defer s.requestSnapshot(ctx)

	engines, err := s.fetchEngines(ctx)
	s.metrics.ConfigFetch("engines", err)
	if err != nil {
		s.logError("engine scan failed", err)
		return false
	}

	var list *thing.EngineList
	s.store.Update(func(live *state.LiveDevices) {
		var old *thing.EngineList
		if reset {
			old = s.store.EngineList.Value()
			live.DisposeEngines()
		}
		list = thing.BuildEngines(engines, live)

		s.store.EngineConfig.Publish(engines)
		s.store.EngineList.Publish(list)
		if old != nil {
			old.Dispose()
		}
	})

	s.recordThings()
	s.logInfo("engines scanned", "engines", list.Len(), "reset", reset)
	return true
}

func (s *Service) fetchEngines(ctx context.Context) (*czone.EngineConfig, error) {
	raw, err := s.caller.Call(ctx, bus.MethodGetConfig, 0, configEngines)
	if err != nil {
		return nil, fmt.Errorf("get engine config: %w", err)
	}
	return s.parser.ParseEngines([]byte(raw))
}

// WriteConfiguration uploads a configuration file and commits it. It reports
// true only if both the upload and the commit were answered with "Ok".
//
// Parameters:
//   - ctx: cancels the calls and the pause between them
//   - hex: the configuration file, hex encoded
func (s *Service) WriteConfiguration(ctx context.Context, hex string) bool {
	if err := bus.ExpectOK(s.caller.Call(ctx, bus.MethodPutFile, s.maxAttempts, hex)); err != nil {
		s.logError("configuration upload failed", err)
		return false
	}

	select {
	case <-time.After(s.writeDelay):
	case <-ctx.Done():
		return false
	}

	if err := bus.ExpectOK(s.caller.Call(ctx, bus.MethodOperation, s.maxAttempts, operationWriteConfig)); err != nil {
		s.logError("configuration commit failed", err)
		return false
	}

	s.logInfo("configuration written", "bytes", len(hex)/2)
	return true
}

func (s *Service) requestSnapshot(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.RequestSnapshot(ctx); err != nil {
		s.logError("snapshot request failed", err)
	}
}

func (s *Service) recordThings() {
	n := 0
	if sys := s.store.EmpowerSystem.Value(); sys != nil {
		n += sys.Len()
	}
	if list := s.store.EngineList.Value(); list != nil {
		n += list.Len()
	}
	s.metrics.Things(n)
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

func (s *Service) logError(msg string, err error) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
