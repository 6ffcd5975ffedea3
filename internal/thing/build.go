package thing

import (
	"fmt"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// Registrar records the live devices a Thing graph reads from.
// state.LiveDevices implements it.
type Registrar interface {
	Register(kind czone.DeviceKind, deviceID string)
}

type channelSpec struct {
	id       string
	name     string
	typ      ChannelType
	unit     string
	key      string
	writable bool
}

var (
	circuitChannels = []channelSpec{
		{id: "power", name: "Power", typ: ChannelBoolean, key: "Power", writable: true},
		{id: "current", name: "Current", typ: ChannelNumber, unit: "A", key: "Current"},
	}
	dimmerChannel = channelSpec{id: "level", name: "Level", typ: ChannelNumber, unit: "%", key: "Level", writable: true}

	batteryChannels = []channelSpec{
		{id: "voltage", name: "Voltage", typ: ChannelNumber, unit: "V", key: "Voltage"},
		{id: "current", name: "Current", typ: ChannelNumber, unit: "A", key: "Current"},
		{id: "stateOfCharge", name: "State of Charge", typ: ChannelNumber, unit: "%", key: "StateOfCharge"},
		{id: "temperature", name: "Temperature", typ: ChannelNumber, unit: "°C", key: "Temperature"},
		{id: "capacityRemaining", name: "Capacity Remaining", typ: ChannelNumber, unit: "Ah", key: "CapacityRemaining"},
		{id: "timeRemaining", name: "Time Remaining", typ: ChannelNumber, unit: "min", key: "TimeRemaining"},
	}

	acLineChannels = []channelSpec{
		{id: "voltage", name: "Voltage", typ: ChannelNumber, unit: "V", key: "Voltage"},
		{id: "current", name: "Current", typ: ChannelNumber, unit: "A", key: "Current"},
		{id: "frequency", name: "Frequency", typ: ChannelNumber, unit: "Hz", key: "Frequency"},
		{id: "power", name: "Power", typ: ChannelNumber, unit: "W", key: "RealPower"},
	}

	inverterChargerChannels = []channelSpec{
		{id: "inverterState", name: "Inverter State", typ: ChannelString, key: "InverterState"},
		{id: "chargerState", name: "Charger State", typ: ChannelString, key: "ChargerState"},
		{id: "inverterEnabled", name: "Inverter Enabled", typ: ChannelBoolean, key: "InverterEnable", writable: true},
		{id: "chargerEnabled", name: "Charger Enabled", typ: ChannelBoolean, key: "ChargerEnable", writable: true},
	}

	tankChannels = []channelSpec{
		{id: "level", name: "Level", typ: ChannelNumber, unit: "%", key: "Level"},
		{id: "capacity", name: "Capacity", typ: ChannelNumber, unit: "L", key: "Capacity"},
	}

	engineChannels = []channelSpec{
		{id: "speed", name: "Speed", typ: ChannelNumber, unit: "rpm", key: "Speed"},
		{id: "oilPressure", name: "Oil Pressure", typ: ChannelNumber, unit: "kPa", key: "OilPressure"},
		{id: "oilTemperature", name: "Oil Temperature", typ: ChannelNumber, unit: "°C", key: "OilTemperature"},
		{id: "coolantTemperature", name: "Coolant Temperature", typ: ChannelNumber, unit: "°C", key: "CoolantTemperature"},
		{id: "fuelRate", name: "Fuel Rate", typ: ChannelNumber, unit: "L/h", key: "FuelRate"},
		{id: "engineHours", name: "Engine Hours", typ: ChannelNumber, unit: "h", key: "EngineHours"},
		{id: "discreteStatus1", name: "Discrete Status 1", typ: ChannelNumber, key: "DiscreteStatus1"},
		{id: "discreteStatus2", name: "Discrete Status 2", typ: ChannelNumber, key: "DiscreteStatus2"},
	}

	hvacChannels = []channelSpec{
		{id: "mode", name: "Mode", typ: ChannelString, key: "OperationMode", writable: true},
		{id: "setpoint", name: "Setpoint", typ: ChannelNumber, unit: "°C", key: "SetPoint", writable: true},
		{id: "ambientTemperature", name: "Ambient Temperature", typ: ChannelNumber, unit: "°C", key: "AmbientTemperature"},
		{id: "fanSpeed", name: "Fan Speed", typ: ChannelNumber, unit: "%", key: "FanSpeed", writable: true},
	}

	gnssChannels = []channelSpec{
		{id: "latitude", name: "Latitude", typ: ChannelNumber, unit: "°", key: "Latitude"},
		{id: "longitude", name: "Longitude", typ: ChannelNumber, unit: "°", key: "Longitude"},
		{id: "speedOverGround", name: "Speed Over Ground", typ: ChannelNumber, unit: "kn", key: "Sog"},
		{id: "courseOverGround", name: "Course Over Ground", typ: ChannelNumber, unit: "°", key: "Cog"},
		{id: "fixType", name: "Fix Type", typ: ChannelString, key: "FixType"},
	}
)

// builder accumulates Things and the live devices they reference.
type builder struct {
	reg    Registrar
	things map[string]*Thing
}

func (b *builder) newThing(t Type, instance uint32, name string, categories ...string) *Thing {
	th := &Thing{
		Type:       t,
		ID:         ID(t, instance),
		Name:       name,
		Categories: categories,
		Channels:   make(map[string]Channel),
	}
	b.things[th.ID] = th
	return th
}

func (b *builder) bind(th *Thing, kind czone.DeviceKind, deviceID string, specs ...channelSpec) {
	if b.reg != nil {
		b.reg.Register(kind, deviceID)
	}
	for _, s := range specs {
		th.Channels[s.id] = Channel{
			ID:       s.id,
			Name:     s.name,
			Type:     s.typ,
			Unit:     s.unit,
			ReadOnly: !s.writable,
			Source:   Source{DeviceID: deviceID, Key: s.key},
		}
	}
}

// Build derives the EmpowerSystem for cfg and registers every live device the
// Things read from with reg. Identical input always yields identical Thing ids.
func Build(cfg *czone.Config, meta *czone.FactoryMetadata, reg Registrar) *EmpowerSystem {
	sys := NewEmpowerSystem()
	if meta != nil {
		sys.Metadata = *meta
	}
	if cfg == nil {
		return sys
	}

	b := &builder{reg: reg, things: make(map[string]*Thing)}

	for _, key := range czone.SortedKeys(cfg.DcMeters) {
		m := cfg.DcMeters[key]
		if m.DcType != czone.DcBattery {
			continue
		}
		th := b.newThing(TypeBattery, m.Instance, m.Name, "Power")
		b.bind(th, czone.KindDcMeter, czone.LiveID(czone.KindDcMeter, m.Instance), batteryChannels...)
	}

	for _, key := range czone.SortedKeys(cfg.AcMeters) {
		m := cfg.AcMeters[key]
		t, ok := AcType(m.AcType)
		if !ok {
			continue
		}
		th := b.newThing(t, m.Instance, m.Name, "Power")
		b.bind(th, czone.KindAcMeter, czone.LiveID(czone.KindAcMeter, m.Instance), perLine(m.Lines)...)
	}

	for _, key := range czone.SortedKeys(cfg.InverterChargers) {
		ic := cfg.InverterChargers[key]
		th := b.newThing(TypeInverterCharger, ic.Instance, ic.Name, "Power")
		b.bind(th, czone.KindInverterCharger, czone.LiveID(czone.KindInverterCharger, ic.Instance), inverterChargerChannels...)
	}

	for _, key := range czone.SortedKeys(cfg.Tanks) {
		tank := cfg.Tanks[key]
		th := b.newThing(TankType(tank.TankType), tank.Instance, tank.Name, "Tanks")
		b.bind(th, czone.KindTank, czone.LiveID(czone.KindTank, tank.Instance), tankChannels...)
	}

	for _, key := range czone.SortedKeys(cfg.Hvacs) {
		h := cfg.Hvacs[key]
		th := b.newThing(TypeHvac, h.Instance, h.Name, "Climate")
		b.bind(th, czone.KindHvac, czone.LiveID(czone.KindHvac, h.Instance), hvacChannels...)
	}

	for _, key := range czone.SortedKeys(cfg.AudioStereos) {
		a := cfg.AudioStereos[key]
		b.newThing(TypeAudioStereo, a.Instance, a.Name, "Entertainment")
	}

	for _, key := range czone.SortedKeys(cfg.Gnss) {
		g := cfg.Gnss[key]
		th := b.newThing(TypeGnss, g.Instance, g.Name, "Navigation")
		b.bind(th, czone.KindGnss, czone.LiveID(czone.KindGnss, g.Instance), gnssChannels...)
	}

	// Binary logic states have no Thing but their telemetry is tracked.
	if reg != nil {
		for _, key := range czone.SortedKeys(cfg.BinaryLogicStates) {
			bls := cfg.BinaryLogicStates[key]
			reg.Register(czone.KindBinaryLogicState, czone.LiveID(czone.KindBinaryLogicState, bls.Address))
		}
	}

	// Circuits last so Power circuits can attach to the meters built above.
	for _, key := range czone.SortedKeys(cfg.Circuits) {
		b.addCircuit(cfg, cfg.Circuits[key])
	}

	for _, th := range b.things {
		sys.add(th)
	}
	return sys
}

func (b *builder) addCircuit(cfg *czone.Config, c czone.Circuit) {
	if !c.IsVisible() {
		return
	}
	t, power, ok := CircuitType(c)
	if !ok {
		return
	}

	deviceID := czone.LiveID(czone.KindCircuit, c.ControlID)
	categories := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		categories = append(categories, cat.String())
	}

	if power {
		attached := false
		for _, id := range Derive(cfg, czone.KindCircuit, c.ControlID) {
			target, ok := b.things[id]
			if !ok || target.Type == TypeGenericCircuit || target.Type == TypeInverterCharger {
				continue
			}
			spec := circuitChannels[0]
			if _, taken := target.Channels[spec.id]; taken {
				spec.id = fmt.Sprintf("power.%d", c.ControlID)
			}
			b.bind(target, czone.KindCircuit, deviceID, spec)
			attached = true
		}
		if attached {
			return
		}
	}

	th := b.newThing(t, c.ControlID, c.Name, categories...)
	b.bind(th, czone.KindCircuit, deviceID, circuitChannels...)
	if c.IsDimmable() {
		b.bind(th, czone.KindCircuit, deviceID, dimmerChannel)
	}
}

func perLine(lines int) []channelSpec {
	if lines <= 0 {
		lines = 1
	}
	specs := make([]channelSpec, 0, lines*len(acLineChannels))
	for line := 0; line < lines; line++ {
		for _, s := range acLineChannels {
			s.id = fmt.Sprintf("%s.%d", s.id, line)
			s.key = fmt.Sprintf("%s.%d", s.key, line)
			specs = append(specs, s)
		}
	}
	return specs
}

// BuildEngines derives the EngineList for the engine configuration and
// registers each engine's live device with reg.
func BuildEngines(engines *czone.EngineConfig, reg Registrar) *EngineList {
	list := NewEngineList()
	if engines == nil {
		return list
	}

	b := &builder{reg: reg, things: make(map[string]*Thing)}
	for _, key := range czone.SortedKeys(engines.Engines) {
		e := engines.Engines[key]
		th := b.newThing(TypeMarineEngine, e.Instance, e.Name, "Engines")
		b.bind(th, czone.KindEngine, czone.LiveID(czone.KindEngine, e.Instance), engineChannels...)
	}

	for _, th := range b.things {
		list.add(th)
	}
	return list
}
