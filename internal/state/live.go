package state

import (
	"github.com/nerrad567/czone-gateway/internal/czone"
)

// Device is one live telemetry source and its last known channel values.
type Device struct {
	ID       string
	Kind     czone.DeviceKind
	Channels map[string]any
}

// Devices is the published, read-only copy of LiveDevices.
type Devices struct {
	Ordinary map[string]map[string]any
	Engines  map[string]map[string]any
}

// Value returns a channel value from either map.
func (d Devices) Value(deviceID, key string) (any, bool) {
	if ch, ok := d.Ordinary[deviceID]; ok {
		v, ok := ch[key]
		return v, ok
	}
	if ch, ok := d.Engines[deviceID]; ok {
		v, ok := ch[key]
		return v, ok
	}
	return nil, false
}

// LiveDevices holds the per-device channel values the Thing graph reads from.
// Engine devices live in their own map so an engine rescan can reset them
// without touching anything else.
//
// Thread Safety:
//   - LiveDevices has no lock of its own. It is only reachable through
//     Store.Update and Store.View, which hold the store lock.
type LiveDevices struct {
	ordinary map[string]*Device
	engines  map[string]*Device
}

func newLiveDevices() *LiveDevices {
	return &LiveDevices{
		ordinary: make(map[string]*Device),
		engines:  make(map[string]*Device),
	}
}

func (l *LiveDevices) mapFor(kind czone.DeviceKind) map[string]*Device {
	if kind == czone.KindEngine {
		return l.engines
	}
	return l.ordinary
}

// Register adds a device if it is not already known. Values of a known
// device are kept.
func (l *LiveDevices) Register(kind czone.DeviceKind, deviceID string) {
	m := l.mapFor(kind)
	if _, ok := m[deviceID]; ok {
		return
	}
	m[deviceID] = &Device{ID: deviceID, Kind: kind, Channels: make(map[string]any)}
}

// Merge writes values into a registered device. It reports false, and
// changes nothing, when the device is unknown.
func (l *LiveDevices) Merge(deviceID string, values map[string]any) bool {
	d, ok := l.ordinary[deviceID]
	if !ok {
		d, ok = l.engines[deviceID]
	}
	if !ok {
		return false
	}
	for k, v := range values {
		d.Channels[k] = v
	}
	return true
}

// Device returns the registered device with deviceID.
func (l *LiveDevices) Device(deviceID string) (*Device, bool) {
	if d, ok := l.ordinary[deviceID]; ok {
		return d, true
	}
	d, ok := l.engines[deviceID]
	return d, ok
}

// Len returns the number of ordinary and engine devices.
func (l *LiveDevices) Len() (ordinary, engines int) {
	return len(l.ordinary), len(l.engines)
}

// DisposeOrdinary drops every non-engine device.
func (l *LiveDevices) DisposeOrdinary() {
	l.ordinary = make(map[string]*Device)
}

// DisposeEngines drops every engine device.
func (l *LiveDevices) DisposeEngines() {
	l.engines = make(map[string]*Device)
}

func (l *LiveDevices) copy() Devices {
	return Devices{
		Ordinary: copyDevices(l.ordinary),
		Engines:  copyDevices(l.engines),
	}
}

func copyDevices(m map[string]*Device) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for id, d := range m {
		ch := make(map[string]any, len(d.Channels))
		for k, v := range d.Channels {
			ch[k] = v
		}
		out[id] = ch
	}
	return out
}
