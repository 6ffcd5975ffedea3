package alarm

import (
	"strconv"
	"time"

	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/state"
	"github.com/nerrad567/czone-gateway/internal/thing"
)

// External alarm types raised by DC meters. Their channel id is reported
// three channels above the meter's own address.
const (
	ExtBatteryLowVoltage  uint32 = 20
	ExtBatteryHighVoltage uint32 = 21
	ExtBatteryLowSOC      uint32 = 22
	ExtBatteryHighCurrent uint32 = 23
	ExtBatteryHighTemp    uint32 = 24
	ExtBatteryLowTemp     uint32 = 25
)

const (
	dcChannelOffset uint32 = 3

	// External alarm ids from here up come from SmartCraft engine gateways.
	engineExternalAlarmFloor uint32 = 0x4100
)

var dcMeterAlarmTypes = map[uint32]bool{
	ExtBatteryLowVoltage:  true,
	ExtBatteryHighVoltage: true,
	ExtBatteryLowSOC:      true,
	ExtBatteryHighCurrent: true,
	ExtBatteryHighTemp:    true,
	ExtBatteryLowTemp:     true,
}

// IsDcMeterAlarm reports whether an external alarm type belongs to the DC
// meter class.
func IsDcMeterAlarm(externalType uint32) bool {
	return dcMeterAlarmTypes[externalType]
}

// component is a configured item an alarm's channel resolved to.
type component struct {
	kind     czone.DeviceKind
	instance uint32
}

type resolver func(cfg *czone.Config, channel uint32) []component

// resolvers run in this order for every alarm.
var resolvers = []resolver{
	resolveDevices,
	resolveDcMeters,
	resolveAcMeters,
	resolveTanks,
	resolveCircuitLoads,
	resolveBinaryLogicStates,
}

func resolveDevices(cfg *czone.Config, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(cfg.InverterChargers) {
		if ic := cfg.InverterChargers[key]; ic.Address == channel {
			out = append(out, component{czone.KindInverterCharger, ic.Instance})
		}
	}
	return out
}

func resolveDcMeters(cfg *czone.Config, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(cfg.DcMeters) {
		if m := cfg.DcMeters[key]; m.Address == channel {
			out = append(out, component{czone.KindDcMeter, m.Instance})
		}
	}
	return out
}

func resolveAcMeters(cfg *czone.Config, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(cfg.AcMeters) {
		if m := cfg.AcMeters[key]; m.Address == channel {
			out = append(out, component{czone.KindAcMeter, m.Instance})
		}
	}
	return out
}

func resolveTanks(cfg *czone.Config, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(cfg.Tanks) {
		if t := cfg.Tanks[key]; t.Address == channel {
			out = append(out, component{czone.KindTank, t.Instance})
		}
	}
	return out
}

func resolveCircuitLoads(cfg *czone.Config, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(cfg.Circuits) {
		c := cfg.Circuits[key]
		for _, load := range c.CircuitLoads {
			if load.ChannelAddress == channel {
				out = append(out, component{czone.KindCircuit, c.ControlID})
				break
			}
		}
	}
	return out
}

func resolveBinaryLogicStates(cfg *czone.Config, channel uint32) []component {
	if isBinaryLogicChannel(cfg, channel) {
		return []component{{czone.KindBinaryLogicState, channel}}
	}
	return nil
}

func resolveEngines(engines *czone.EngineConfig, channel uint32) []component {
	var out []component
	for _, key := range czone.SortedKeys(engines.Engines) {
		if e := engines.Engines[key]; e.Address == channel {
			out = append(out, component{czone.KindEngine, e.Instance})
		}
	}
	return out
}

func isBinaryLogicChannel(cfg *czone.Config, channel uint32) bool {
	if cfg == nil {
		return false
	}
	for _, bls := range cfg.BinaryLogicStates {
		if bls.Address == channel {
			return true
		}
	}
	return false
}

// resolutionChannel returns the channel an alarm is resolved against.
func resolutionChannel(raw czone.RawAlarm) (uint32, bool) {
	if raw.ChannelID == nil {
		return 0, false
	}
	channel := *raw.ChannelID
	if IsDcMeterAlarm(raw.ExternalAlarmType) {
		if channel < dcChannelOffset {
			return 0, false
		}
		channel -= dcChannelOffset
	}
	return channel, true
}

// buildReportableAlarm correlates a backend alarm to Things. It reports false
// for alarms without a channel, device-missing alarms and alarms whose
// channel resolves to nothing.
func buildReportableAlarm(raw czone.RawAlarm, cfg *czone.Config, engines *czone.EngineConfig, now time.Time) (state.Alarm, bool) {
	if raw.Type == czone.AlarmTypeDeviceMissing {
		return state.Alarm{}, false
	}
	channel, ok := resolutionChannel(raw)
	if !ok {
		return state.Alarm{}, false
	}

	var components []component
	if cfg != nil {
		for _, resolve := range resolvers {
			components = append(components, resolve(cfg, channel)...)
		}
	}
	if raw.ExternalAlarmID >= engineExternalAlarmFloor && engines != nil {
		components = append(components, resolveEngines(engines, channel)...)
	}
	if len(components) == 0 {
		return state.Alarm{}, false
	}

	var things []string
	for _, c := range components {
		for _, id := range thing.Derive(cfg, c.kind, c.instance) {
			things = appendUnique(things, id)
		}
	}

	return state.Alarm{
		ID:          strconv.FormatUint(uint64(raw.ID), 10),
		Title:       raw.Title,
		Name:        raw.Name,
		Description: raw.Description,
		Severity:    raw.Severity,
		State:       raw.State,
		ActivatedAt: now,
		Things:      things,
		ChannelID:   &channel,
	}, true
}

// postProcess drops SIO alarms on channels a binary logic state already
// represents.
func postProcess(list state.AlarmList, cfg *czone.Config) state.AlarmList {
	out := make(state.AlarmList, len(list))
	for id, a := range list {
		if a.Severity == czone.SeveritySIO && a.ChannelID != nil && isBinaryLogicChannel(cfg, *a.ChannelID) {
			continue
		}
		out[id] = a
	}
	return out
}

// verify keeps only Things present in has and drops alarms left with none.
func verify(list state.AlarmList, has func(thingID string) bool) state.AlarmList {
	out := make(state.AlarmList, len(list))
	for id, a := range list {
		var kept []string
		for _, t := range a.Things {
			if has(t) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			continue
		}
		a.Things = kept
		out[id] = a
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
