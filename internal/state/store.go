// Package state holds the gateway's shared mutable state and the last-value
// subjects every consumer reads from.
//
// All configuration, engine and device mutation goes through one lock owned
// by Store. Readers never take that lock: they read the last published value
// of a subject. Published values are replaced wholesale, never mutated.
package state

import (
	"sync"

	"github.com/nerrad567/czone-gateway/internal/broadcast"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/thing"
)

// Store is the single owner of LiveDevices and the published subjects.
//
// Thread Safety:
//   - Update and View serialise on one mutex.
//   - Subjects are safe for concurrent use on their own.
type Store struct {
	mu   sync.Mutex
	live *LiveDevices

	Devices         *broadcast.Subject[Devices]
	Config          *broadcast.Subject[*czone.Config]
	EngineConfig    *broadcast.Subject[*czone.EngineConfig]
	EmpowerSystem   *broadcast.Subject[*thing.EmpowerSystem]
	EngineList      *broadcast.Subject[*thing.EngineList]
	FactoryMetadata *broadcast.Subject[*czone.FactoryMetadata]
	ActiveAlarms    *broadcast.Subject[AlarmList]
	EngineAlarms    *broadcast.Subject[AlarmList]
}

// NewStore returns an empty store. The alarm subjects start with empty lists
// so the first load always has something to merge against.
func NewStore() *Store {
	return &Store{
		live:            newLiveDevices(),
		Devices:         broadcast.New[Devices](),
		Config:          broadcast.New[*czone.Config](),
		EngineConfig:    broadcast.New[*czone.EngineConfig](),
		EmpowerSystem:   broadcast.New[*thing.EmpowerSystem](),
		EngineList:      broadcast.New[*thing.EngineList](),
		FactoryMetadata: broadcast.New[*czone.FactoryMetadata](),
		ActiveAlarms:    broadcast.NewWithValue(AlarmList{}),
		EngineAlarms:    broadcast.NewWithValue(AlarmList{}),
	}
}

// Update runs fn with exclusive access to LiveDevices and then publishes a
// fresh copy of them. fn must not call back into the store.
func (s *Store) Update(fn func(live *LiveDevices)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.live)
	s.Devices.Publish(s.live.copy())
}

// View runs fn with exclusive access to LiveDevices without publishing.
func (s *Store) View(fn func(live *LiveDevices)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.live)
}
