// Package thing models the user-facing device graph derived from the CZone
// configuration.
//
// A Thing is a stable logical device ("battery.1", "light.12") with typed
// channels. Every channel is bound to a live telemetry source: a device id in
// LiveDevices plus the key of the value inside that device.
package thing

import (
	"sort"
	"sync"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// Type is the kind of Thing.
type Type string

const (
	TypeLight           Type = "light"
	TypeBilgePump       Type = "bilgePump"
	TypePump            Type = "pump"
	TypeGenericCircuit  Type = "genericCircuit"
	TypeBattery         Type = "battery"
	TypeShorePower      Type = "shorePower"
	TypeInverter        Type = "inverter"
	TypeCharger         Type = "charger"
	TypeInverterCharger Type = "inverterCharger"
	TypeFuel            Type = "fuel"
	TypeWater           Type = "water"
	TypeMarineEngine    Type = "marineEngine"
	TypeHvac            Type = "hvac"
	TypeAudioStereo     Type = "audioStereo"
	TypeGnss            Type = "gnss"
)

// ChannelType is the value type a channel carries.
type ChannelType string

const (
	ChannelBoolean ChannelType = "boolean"
	ChannelNumber  ChannelType = "number"
	ChannelString  ChannelType = "string"
)

// Source binds a channel to a value in LiveDevices.
type Source struct {
	DeviceID string
	Key      string
}

// Channel is one data point or writable attribute of a Thing.
type Channel struct {
	ID       string
	Name     string
	Type     ChannelType
	Unit     string
	ReadOnly bool
	Source   Source
}

// Thing is a logical device.
type Thing struct {
	Type       Type
	ID         string
	Name       string
	Categories []string
	Channels   map[string]Channel
}

// ChannelIDs returns the thing's channel ids in order.
func (t *Thing) ChannelIDs() []string {
	ids := make([]string, 0, len(t.Channels))
	for id := range t.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// graph is the Thing map shared by EmpowerSystem and EngineList.
type graph struct {
	mu       sync.RWMutex
	things   map[string]*Thing
	disposed bool
}

// Has reports whether a Thing with id exists.
func (g *graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.things[id]
	return ok
}

// Thing returns the Thing with id.
func (g *graph) Thing(id string) (*Thing, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.things[id]
	return t, ok
}

// IDs returns all Thing ids in order.
func (g *graph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.things))
	for id := range g.things {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of Things.
func (g *graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.things)
}

// Dispose drops every Thing. A disposed graph stays empty.
func (g *graph) Dispose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.things = make(map[string]*Thing)
	g.disposed = true
}

// Disposed reports whether Dispose has been called.
func (g *graph) Disposed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.disposed
}

func (g *graph) add(t *Thing) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.things[t.ID] = t
}

// EmpowerSystem is the Thing graph for everything except engines, plus the
// controller's identity.
type EmpowerSystem struct {
	graph
	Metadata czone.FactoryMetadata
}

// NewEmpowerSystem returns an empty system.
func NewEmpowerSystem() *EmpowerSystem {
	return &EmpowerSystem{graph: graph{things: make(map[string]*Thing)}}
}

// EngineList is the Thing graph restricted to marine engines.
type EngineList struct {
	graph
}

// NewEngineList returns an empty engine list.
func NewEngineList() *EngineList {
	return &EngineList{graph: graph{things: make(map[string]*Thing)}}
}
