package czone

import "encoding/json"

// RawAlarm is one alarm as reported by the backend's AlarmList call.
type RawAlarm struct {
	ID                uint32
	State             AlarmState
	Severity          Severity
	Type              AlarmType
	ChannelID         *uint32
	ExternalAlarmID   uint32
	ExternalAlarmType uint32
	Title             string
	Name              string
	Description       string
}

// Event is a change notification from the backend's Event signal.
type Event struct {
	Type    EventType
	Content json.RawMessage
}

// Snapshot maps section → instance → channel → value, exactly as pushed or
// pulled from the backend.
type Snapshot map[string]map[string]map[string]any

// Snapshot section names.
const (
	SectionCircuits         = "Circuits"
	SectionTanks            = "Tanks"
	SectionEngines          = "Engines"
	SectionAC               = "AC"
	SectionDC               = "DC"
	SectionHVAC             = "HVAC"
	SectionInverterChargers = "InverterChargers"
	SectionGNSS             = "GNSS"
	SectionBinaryLogicState = "BinaryLogicState"
)

// SectionKind returns the device kind whose telemetry a snapshot section carries.
func SectionKind(section string) DeviceKind {
	switch section {
	case SectionCircuits:
		return KindCircuit
	case SectionTanks:
		return KindTank
	case SectionEngines:
		return KindEngine
	case SectionAC:
		return KindAcMeter
	case SectionDC:
		return KindDcMeter
	case SectionHVAC:
		return KindHvac
	case SectionInverterChargers:
		return KindInverterCharger
	case SectionGNSS:
		return KindGnss
	case SectionBinaryLogicState:
		return KindBinaryLogicState
	default:
		return KindUnknown
	}
}
