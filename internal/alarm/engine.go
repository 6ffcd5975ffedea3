package alarm

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/state"
	"github.com/nerrad567/czone-gateway/internal/thing"
)

// discreteBit is one meaningful bit of an engine discrete status word.
type discreteBit struct {
	bit      int
	text     string
	severity czone.Severity
}

// Discrete status words 1 and 2 of NMEA 2000 PGN 127489. Both are 16 bits wide.
// Word 2 defines bits 0-7 only; bits 8-15 are reserved and never raise alarms.
var (
	discreteStatus1 = []discreteBit{
		{0, "Check Engine", czone.SeverityWarning},
		{1, "Over Temperature", czone.SeverityCritical},
		{2, "Low Oil Pressure", czone.SeverityCritical},
		{3, "Low Oil Level", czone.SeverityImportant},
		{4, "Low Fuel Pressure", czone.SeverityImportant},
		{5, "Low System Voltage", czone.SeverityImportant},
		{6, "Low Coolant Level", czone.SeverityImportant},
		{7, "Water Flow", czone.SeverityCritical},
		{8, "Water In Fuel", czone.SeverityImportant},
		{9, "Charge Indicator", czone.SeverityWarning},
		{10, "Preheat Indicator", czone.SeverityStandard},
		{11, "High Boost Pressure", czone.SeverityImportant},
		{12, "Rev Limit Exceeded", czone.SeverityWarning},
		{13, "EGR System", czone.SeverityWarning},
		{14, "Throttle Position Sensor", czone.SeverityWarning},
		{15, "Emergency Stop", czone.SeverityCritical},
	}
	discreteStatus2 = []discreteBit{
		{0, "Warning Level 1", czone.SeverityWarning},
		{1, "Warning Level 2", czone.SeverityImportant},
		{2, "Power Reduction", czone.SeverityImportant},
		{3, "Maintenance Needed", czone.SeverityStandard},
		{4, "Engine Comm Error", czone.SeverityWarning},
		{5, "Sub or Secondary Throttle", czone.SeverityStandard},
		{6, "Neutral Start Protect", czone.SeverityStandard},
		{7, "Engine Shutting Down", czone.SeverityCritical},
	}
)

// Telemetry keys of the two status words.
const (
	keyDiscreteStatus1 = "DiscreteStatus1"
	keyDiscreteStatus2 = "DiscreteStatus2"
)

// EngineAlarmID builds the id of a synthesised engine alarm.
func EngineAlarmID(instance uint32, word, bit int) string {
	return fmt.Sprintf("engine.%d.discrete_status%d.%d", instance, word, bit)
}

// statusWords are the last seen discrete status words of one engine.
type statusWords [2]uint32

// applyEngineStatus updates alarms for one engine given its new status words.
// A set bit raises an alarm unless the engine already has one with the same
// text; a clear bit removes the alarm with that bit's id.
func applyEngineStatus(list state.AlarmList, instance uint32, prev, cur statusWords, now time.Time) {
	for word, table := range [][]discreteBit{discreteStatus1, discreteStatus2} {
		for _, b := range table {
			id := EngineAlarmID(instance, word+1, b.bit)
			set := cur[word]&(1<<uint(b.bit)) != 0

			if !set {
				delete(list, id)
				continue
			}
			if hasEngineAlarm(list, instance, b.text) {
				continue
			}
			list[id] = state.Alarm{
				ID:          id,
				Title:       b.text,
				Name:        fmt.Sprintf("Engine %d", instance),
				Description: b.text,
				Severity:    b.severity,
				State:       czone.AlarmEnabled,
				ActivatedAt: now,
				Things:      []string{thing.ID(thing.TypeMarineEngine, instance)},
				Engine: &state.EngineContext{
					Instance:        instance,
					Word:            word + 1,
					Bit:             b.bit,
					PreviousStatus1: prev[0],
					PreviousStatus2: prev[1],
					Status1:         cur[0],
					Status2:         cur[1],
				},
			}
		}
	}
}

func hasEngineAlarm(list state.AlarmList, instance uint32, text string) bool {
	for _, a := range list {
		if a.Engine != nil && a.Engine.Instance == instance && a.Title == text {
			return true
		}
	}
	return false
}

// engineStatus extracts the status words for each engine in a snapshot's
// Engines section. A word missing from the snapshot keeps its previous value.
func engineStatus(snap czone.Snapshot, last map[uint32]statusWords) map[uint32]statusWords {
	out := make(map[uint32]statusWords)
	for key, values := range snap[czone.SectionEngines] {
		n, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			continue
		}
		instance := uint32(n)
		words := last[instance]
		if v, ok := word(values[keyDiscreteStatus1]); ok {
			words[0] = v
		}
		if v, ok := word(values[keyDiscreteStatus2]); ok {
			words[1] = v
		}
		out[instance] = words
	}
	return out
}

func word(v any) (uint32, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case uint32:
		return n, true
	default:
		return 0, false
	}
}
