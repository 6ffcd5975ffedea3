package state

import (
	"reflect"
	"sort"
	"time"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// Alarm is an alarm correlated to the Things it affects.
type Alarm struct {
	// ID is the backend alarm id in decimal, or
	// "engine.{instance}.discrete_status{word}.{bit}" for engine alarms.
	ID          string
	Title       string
	Name        string
	Description string
	Severity    czone.Severity
	State       czone.AlarmState
	ActivatedAt time.Time
	Things      []string

	// ChannelID is the channel the alarm was resolved against, after any
	// hardware offset.
	ChannelID *uint32

	// Engine is set for alarms synthesised from engine discrete status words.
	// They are acknowledged locally.
	Engine *EngineContext
}

// EngineContext carries the status words an engine alarm was raised from.
type EngineContext struct {
	Instance        uint32
	Word            int
	Bit             int
	PreviousStatus1 uint32
	PreviousStatus2 uint32
	Status1         uint32
	Status2         uint32
}

// Clone returns a deep copy of a.
func (a Alarm) Clone() Alarm {
	out := a
	out.Things = append([]string(nil), a.Things...)
	if a.ChannelID != nil {
		ch := *a.ChannelID
		out.ChannelID = &ch
	}
	if a.Engine != nil {
		e := *a.Engine
		out.Engine = &e
	}
	return out
}

// AlarmList is an immutable set of alarms keyed by id. Producers build a new
// list and publish it; published lists are never modified.
type AlarmList map[string]Alarm

// Clone returns a deep copy of l.
func (l AlarmList) Clone() AlarmList {
	out := make(AlarmList, len(l))
	for id, a := range l {
		out[id] = a.Clone()
	}
	return out
}

// IDs returns the alarm ids in order.
func (l AlarmList) IDs() []string {
	ids := make([]string, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether l and other hold the same alarms.
func (l AlarmList) Equal(other AlarmList) bool {
	if len(l) != len(other) {
		return false
	}
	for id, a := range l {
		b, ok := other[id]
		if !ok || !alarmEqual(a, b) {
			return false
		}
	}
	return true
}

func alarmEqual(a, b Alarm) bool {
	if !a.ActivatedAt.Equal(b.ActivatedAt) {
		return false
	}
	a.ActivatedAt, b.ActivatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}
