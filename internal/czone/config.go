package czone

import (
	"fmt"
	"sort"
)

// Key builds the configuration key "{kind}.{instance}".
func Key(kind DeviceKind, instance uint32) string {
	return fmt.Sprintf("%s.%d", kind, instance)
}

// LiveID builds the LiveDevices id for a device of kind with the given instance.
func LiveID(kind DeviceKind, instance uint32) string {
	return fmt.Sprintf("%s.%d", kind.LivePrefix(), instance)
}

// CategoryDef is one entry of the backend's circuit category table.
type CategoryDef struct {
	Name    string
	Enabled bool
	Index   int
}

// CircuitLoad is one output channel driven by a circuit.
type CircuitLoad struct {
	ChannelAddress uint32
}

// Circuit is a switched or dimmable electrical load.
type Circuit struct {
	ControlID        uint32
	Name             string
	Dimmable         bool
	SwitchType       SwitchType
	RemoteVisibility uint8
	Categories       []Category
	CircuitLoads     []CircuitLoad
}

// IsVisible reports whether the circuit is exposed remotely.
func (c Circuit) IsVisible() bool {
	return c.RemoteVisibility == 1 || c.RemoteVisibility == 2
}

// IsDimmable reports whether the circuit accepts absolute levels.
func (c Circuit) IsDimmable() bool {
	return c.Dimmable || c.SwitchType == SwitchDimLinear || c.SwitchType == SwitchDimExponential
}

// HasCategory reports whether the circuit belongs to cat.
func (c Circuit) HasCategory(cat Category) bool {
	for _, have := range c.Categories {
		if have == cat {
			return true
		}
	}
	return false
}

// Tank is a fluid tank.
type Tank struct {
	Instance uint32
	Name     string
	TankType TankType
	Capacity float64
	Address  uint32
}

// DcMeter is a DC measurement point, usually a battery bank.
type DcMeter struct {
	Instance uint32
	Name     string
	DcType   DcType
	Capacity float64
	Address  uint32
}

// AcMeter is an AC measurement point with one or more lines.
type AcMeter struct {
	Instance uint32
	Name     string
	AcType   AcType
	Lines    int
	Address  uint32
}

// InverterCharger is a combined inverter/charger unit. Instance is the
// composite (inverterInstance << 8) | chargerInstance.
type InverterCharger struct {
	Instance         uint32
	Name             string
	InverterInstance uint32
	ChargerInstance  uint32
	// BatteryBank is the DC meter instance of the bank the unit charges.
	BatteryBank uint32
	// AcInstance is the AC meter instance of the unit's AC line.
	AcInstance uint32
	Address    uint32
}

// CompositeInstance combines inverter and charger instances into one id.
func CompositeInstance(inverter, charger uint32) uint32 {
	return (inverter << 8) | charger
}

// Hvac is a climate control unit.
type Hvac struct {
	Instance uint32
	Name     string
}

// AudioStereo is an entertainment head unit.
type AudioStereo struct {
	Instance uint32
	Name     string
}

// BinaryLogicState is a configured boolean condition bound to a channel address.
type BinaryLogicState struct {
	Address uint32
	Name    string
}

// Gnss is a position source.
type Gnss struct {
	Instance uint32
	Name     string
}

// Engine is a propulsion engine from the engine configuration.
type Engine struct {
	Instance   uint32
	Name       string
	EngineType string
	Address    uint32
}

// UiRelationship links two configured items, e.g. a circuit that switches a meter.
type UiRelationship struct {
	PrimaryType   ItemType
	PrimaryID     uint32
	SecondaryType ItemType
	SecondaryID   uint32
}

// Config is the parsed backend configuration. Maps are keyed "{kind}.{instance}".
// A Config is never modified after parsing; a new fetch produces a new Config.
type Config struct {
	Categories        []CategoryDef
	Circuits          map[string]Circuit
	Tanks             map[string]Tank
	DcMeters          map[string]DcMeter
	AcMeters          map[string]AcMeter
	InverterChargers  map[string]InverterCharger
	Hvacs             map[string]Hvac
	AudioStereos      map[string]AudioStereo
	BinaryLogicStates map[string]BinaryLogicState
	Gnss              map[string]Gnss
	Engines           map[string]Engine
	UiRelationships   map[string]UiRelationship
}

// NewConfig returns a Config with every map allocated.
func NewConfig() *Config {
	return &Config{
		Circuits:          make(map[string]Circuit),
		Tanks:             make(map[string]Tank),
		DcMeters:          make(map[string]DcMeter),
		AcMeters:          make(map[string]AcMeter),
		InverterChargers:  make(map[string]InverterCharger),
		Hvacs:             make(map[string]Hvac),
		AudioStereos:      make(map[string]AudioStereo),
		BinaryLogicStates: make(map[string]BinaryLogicState),
		Gnss:              make(map[string]Gnss),
		Engines:           make(map[string]Engine),
		UiRelationships:   make(map[string]UiRelationship),
	}
}

// Switched returns the items the circuit with controlID switches, in
// relationship key order.
func (c *Config) Switched(controlID uint32) []UiRelationship {
	var out []UiRelationship
	for _, key := range SortedKeys(c.UiRelationships) {
		rel := c.UiRelationships[key]
		if rel.PrimaryType == ItemCircuit && rel.PrimaryID == controlID {
			out = append(out, rel)
		}
	}
	return out
}

// EngineConfig is the separately fetched engine sub-tree.
type EngineConfig struct {
	Engines map[string]Engine
}

// FactoryMetadata identifies the controller and its loaded configuration.
type FactoryMetadata struct {
	SerialNumber    string
	FirmwareVersion string
	ProductName     string
	ConfigName      string
	ConfigVersion   string
	ConfigID        uint32
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
