package czone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Logger is the logging interface the parser reports skipped entities to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Parser maps raw backend JSON payloads onto configuration entities.
//
// It holds no state besides its logger. Absent fields stay at their zero
// value, unknown enum names are logged and left at the enum's zero value,
// and a malformed entity is logged and skipped. Only a payload that is not
// structurally valid as a whole returns ErrInvalidPayload.
type Parser struct {
	log Logger
}

// NewParser creates a Parser. A nil logger discards messages.
func NewParser(log Logger) *Parser {
	if log == nil {
		log = noopLogger{}
	}
	return &Parser{log: log}
}

type rawCategories struct {
	Items []CategoryDef `json:"Items"`
}

type rawCircuit struct {
	ControlID        uint32        `json:"ControlId"`
	Name             string        `json:"Name"`
	Dimmable         bool          `json:"Dimmable"`
	SwitchType       string        `json:"SwitchType"`
	RemoteVisibility uint8         `json:"RemoteVisibility"`
	Categories       []int         `json:"Categories"`
	CircuitLoads     []CircuitLoad `json:"CircuitLoads"`
}

type rawTank struct {
	Instance uint32  `json:"Instance"`
	Name     string  `json:"Name"`
	TankType string  `json:"TankType"`
	Capacity float64 `json:"Capacity"`
	Address  uint32  `json:"Address"`
}

type rawDcMeter struct {
	Instance uint32  `json:"Instance"`
	Name     string  `json:"Name"`
	DcType   string  `json:"DcType"`
	Capacity float64 `json:"Capacity"`
	Address  uint32  `json:"Address"`
}

type rawAcMeter struct {
	Instance uint32 `json:"Instance"`
	Name     string `json:"Name"`
	AcType   string `json:"AcType"`
	Lines    int    `json:"Lines"`
	Address  uint32 `json:"Address"`
}

type rawSubInstance struct {
	Instance uint32 `json:"Instance"`
	Enabled  bool   `json:"Enabled"`
}

type rawInverterCharger struct {
	Name             string         `json:"Name"`
	InverterInstance rawSubInstance `json:"InverterInstance"`
	ChargerInstance  rawSubInstance `json:"ChargerInstance"`
	BatteryBank      uint32         `json:"BatteryBank"`
	AcInstance       uint32         `json:"AcInstance"`
	Address          uint32         `json:"Address"`
}

type rawNamedInstance struct {
	Instance uint32 `json:"Instance"`
	Name     string `json:"Name"`
}

type rawEngine struct {
	Instance   uint32 `json:"Instance"`
	Name       string `json:"Name"`
	EngineType string `json:"EngineType"`
	Address    uint32 `json:"Address"`
}

type rawUiRelationship struct {
	PrimaryType   string `json:"PrimaryType"`
	PrimaryID     uint32 `json:"PrimaryId"`
	SecondaryType string `json:"SecondaryType"`
	SecondaryID   uint32 `json:"SecondaryId"`
}

type rawFactoryMetadata struct {
	SerialNumber    string `json:"SerialNumber"`
	FirmwareVersion string `json:"FirmwareVersion"`
	ProductName     string `json:"ProductName"`
	ConfigName      string `json:"ConfigName"`
	ConfigVersion   string `json:"ConfigVersion"`
	ConfigID        uint32 `json:"ConfigId"`
}

type rawAlarm struct {
	ID                uint32  `json:"Id"`
	State             string  `json:"State"`
	Severity          string  `json:"Severity"`
	Type              string  `json:"Type"`
	ChannelID         *uint32 `json:"ChannelId"`
	ExternalAlarmID   uint32  `json:"ExternalAlarmId"`
	ExternalAlarmType uint32  `json:"ExternalAlarmType"`
	Title             string  `json:"Title"`
	Name              string  `json:"Name"`
	Description       string  `json:"Description"`
}

type rawEvent struct {
	Type    string          `json:"Type"`
	Content json.RawMessage `json:"Content"`
}

// ParseCategories decodes a GetCategories payload.
func (p *Parser) ParseCategories(data []byte) ([]CategoryDef, error) {
	var raw rawCategories
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: categories: %w", ErrInvalidPayload, err)
	}
	return raw.Items, nil
}

// ParseConfig decodes a GetConfigAll payload. categories resolves the
// category indices circuits refer to; only enabled categories count.
func (p *Parser) ParseConfig(data []byte, categories []CategoryDef) (*Config, error) {
	sections, err := decodeSections(data)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]Category)
	for _, def := range categories {
		if !def.Enabled {
			continue
		}
		if cat, ok := categoryNames[def.Name]; ok {
			byIndex[def.Index] = cat
		}
	}

	cfg := NewConfig()

	if err := eachEntity(p, sections, "Circuits", func(c rawCircuit) {
		circuit := Circuit{
			ControlID:        c.ControlID,
			Name:             c.Name,
			Dimmable:         c.Dimmable,
			SwitchType:       parseEnum(p, "SwitchType", c.SwitchType, switchTypeNames),
			RemoteVisibility: c.RemoteVisibility,
			CircuitLoads:     c.CircuitLoads,
		}
		for _, idx := range c.Categories {
			if cat, ok := byIndex[idx]; ok && !circuit.HasCategory(cat) {
				circuit.Categories = append(circuit.Categories, cat)
			}
		}
		cfg.Circuits[Key(KindCircuit, c.ControlID)] = circuit
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "Tanks", func(t rawTank) {
		cfg.Tanks[Key(KindTank, t.Instance)] = Tank{
			Instance: t.Instance,
			Name:     t.Name,
			TankType: parseEnum(p, "TankType", t.TankType, tankTypeNames),
			Capacity: t.Capacity,
			Address:  t.Address,
		}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "DcMeters", func(m rawDcMeter) {
		cfg.DcMeters[Key(KindDcMeter, m.Instance)] = DcMeter{
			Instance: m.Instance,
			Name:     m.Name,
			DcType:   parseEnum(p, "DcType", m.DcType, dcTypeNames),
			Capacity: m.Capacity,
			Address:  m.Address,
		}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "AcMeters", func(m rawAcMeter) {
		lines := m.Lines
		if lines <= 0 {
			lines = 1
		}
		cfg.AcMeters[Key(KindAcMeter, m.Instance)] = AcMeter{
			Instance: m.Instance,
			Name:     m.Name,
			AcType:   parseEnum(p, "AcType", m.AcType, acTypeNames),
			Lines:    lines,
			Address:  m.Address,
		}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "InverterChargers", func(ic rawInverterCharger) {
		if !ic.InverterInstance.Enabled || !ic.ChargerInstance.Enabled {
			p.log.Debug("inverter/charger skipped: sub-instance disabled",
				"name", ic.Name,
				"inverter_enabled", ic.InverterInstance.Enabled,
				"charger_enabled", ic.ChargerInstance.Enabled,
			)
			return
		}
		instance := CompositeInstance(ic.InverterInstance.Instance, ic.ChargerInstance.Instance)
		cfg.InverterChargers[Key(KindInverterCharger, instance)] = InverterCharger{
			Instance:         instance,
			Name:             ic.Name,
			InverterInstance: ic.InverterInstance.Instance,
			ChargerInstance:  ic.ChargerInstance.Instance,
			BatteryBank:      ic.BatteryBank,
			AcInstance:       ic.AcInstance,
			Address:          ic.Address,
		}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "Hvacs", func(h rawNamedInstance) {
		cfg.Hvacs[Key(KindHvac, h.Instance)] = Hvac{Instance: h.Instance, Name: h.Name}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "AudioStereos", func(a rawNamedInstance) {
		cfg.AudioStereos[Key(KindAudioStereo, a.Instance)] = AudioStereo{Instance: a.Instance, Name: a.Name}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "BinaryLogicStates", func(b BinaryLogicState) {
		cfg.BinaryLogicStates[Key(KindBinaryLogicState, b.Address)] = b
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "GNSS", func(g rawNamedInstance) {
		cfg.Gnss[Key(KindGnss, g.Instance)] = Gnss{Instance: g.Instance, Name: g.Name}
	}); err != nil {
		return nil, err
	}

	if err := eachEntity(p, sections, "Engines", func(e rawEngine) {
		cfg.Engines[Key(KindEngine, e.Instance)] = engineFromRaw(e)
	}); err != nil {
		return nil, err
	}

	index := 0
	if err := eachEntity(p, sections, "UiRelationships", func(r rawUiRelationship) {
		defer func() { index++ }()
		primary := parseEnum(p, "PrimaryType", r.PrimaryType, itemTypeNames)
		secondary := parseEnum(p, "SecondaryType", r.SecondaryType, itemTypeNames)
		if primary == ItemUnknown || secondary == ItemUnknown {
			return
		}
		cfg.UiRelationships["uiRelationship."+strconv.Itoa(index)] = UiRelationship{
			PrimaryType:   primary,
			PrimaryID:     r.PrimaryID,
			SecondaryType: secondary,
			SecondaryID:   r.SecondaryID,
		}
	}); err != nil {
		return nil, err
	}

	cfg.Categories = categories
	return cfg, nil
}

// ParseEngines decodes a GetConfig("Engines") payload.
func (p *Parser) ParseEngines(data []byte) (*EngineConfig, error) {
	sections, err := decodeSections(data)
	if err != nil {
		return nil, err
	}

	engines := &EngineConfig{Engines: make(map[string]Engine)}
	if err := eachEntity(p, sections, "Engines", func(e rawEngine) {
		engines.Engines[Key(KindEngine, e.Instance)] = engineFromRaw(e)
	}); err != nil {
		return nil, err
	}
	return engines, nil
}

// ParseFactoryMetadata decodes a GetSetting("FactoryData") payload.
func (p *Parser) ParseFactoryMetadata(data []byte) (*FactoryMetadata, error) {
	var raw rawFactoryMetadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: factory metadata: %w", ErrInvalidPayload, err)
	}
	meta := FactoryMetadata(raw)
	return &meta, nil
}

// ParseAlarms decodes an AlarmList payload ({"Alarms":[...]}).
func (p *Parser) ParseAlarms(data []byte) ([]RawAlarm, error) {
	sections, err := decodeSections(data)
	if err != nil {
		return nil, err
	}

	var alarms []RawAlarm
	if err := eachEntity(p, sections, "Alarms", func(a rawAlarm) {
		alarms = append(alarms, RawAlarm{
			ID:                a.ID,
			State:             parseAlarmState(p, a.ID, a.State),
			Severity:          parseEnum(p, "Severity", a.Severity, severityNames),
			Type:              parseEnum(p, "Type", a.Type, alarmTypeNames),
			ChannelID:         a.ChannelID,
			ExternalAlarmID:   a.ExternalAlarmID,
			ExternalAlarmType: a.ExternalAlarmType,
			Title:             a.Title,
			Name:              a.Name,
			Description:       a.Description,
		})
	}); err != nil {
		return nil, err
	}
	return alarms, nil
}

// ParseEvent decodes an Event signal payload.
func (p *Parser) ParseEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: event: %w", ErrInvalidPayload, err)
	}
	if raw.Type == "" {
		return Event{}, fmt.Errorf("%w: event without type", ErrInvalidPayload)
	}
	return Event{Type: EventType(raw.Type), Content: raw.Content}, nil
}

// ParseSnapshot decodes a snapshot payload. A section that is not an object
// of objects is logged and skipped.
func (p *Parser) ParseSnapshot(data []byte) (Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", ErrInvalidPayload, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: snapshot is not an object", ErrInvalidPayload)
	}

	snap := make(Snapshot, len(top))
	for section, body := range top {
		var devices map[string]map[string]any
		if err := json.Unmarshal(body, &devices); err != nil {
			p.log.Warn("snapshot section skipped", "section", section, "error", err)
			continue
		}
		snap[section] = devices
	}
	return snap, nil
}

func engineFromRaw(e rawEngine) Engine {
	return Engine{
		Instance:   e.Instance,
		Name:       e.Name,
		EngineType: e.EngineType,
		Address:    e.Address,
	}
}

// decodeSections splits a top-level object into its sections.
func decodeSections(data []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &sections); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return sections, nil
}

// eachEntity decodes every element of the named array section into T and
// hands it to fn. A section that is present but not an array fails the
// whole payload; an element that does not decode is logged and skipped.
func eachEntity[T any](p *Parser, sections map[string]json.RawMessage, name string, fn func(T)) error {
	body, ok := sections[name]
	if !ok || string(bytes.TrimSpace(body)) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return fmt.Errorf("%w: section %s: %w", ErrInvalidPayload, name, err)
	}

	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			p.log.Warn("malformed entity skipped", "section", name, "index", i, "error", err)
			continue
		}
		fn(v)
	}
	return nil
}

// parseEnum maps name through names. Empty names yield the zero value
// silently; unknown names are logged and yield the zero value.
// parseAlarmState is parseEnum for alarm states, except that an invalid name
// yields AlarmUnrecognised so the merge can leave the known alarm untouched.
func parseAlarmState(p *Parser, id uint32, name string) AlarmState {
	if name == "" {
		return AlarmDisabled
	}
	if v, ok := alarmStateNames[name]; ok {
		return v
	}
	p.log.Warn("invalid alarm state ignored", "alarm_id", id, "value", name)
	return AlarmUnrecognised
}

func parseEnum[E ~uint8](p *Parser, field, name string, names map[string]E) E {
	if name == "" {
		return 0
	}
	if v, ok := names[name]; ok {
		return v
	}
	p.log.Warn("invalid enum value ignored", "field", field, "value", name)
	return 0
}
