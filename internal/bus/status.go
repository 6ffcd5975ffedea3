package bus

import "time"

// State is the bus link state.
type State uint8

const (
	StateIdle State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// ConnectionStatus is the published link status. Reason is empty unless
// State is StateDisconnected.
type ConnectionStatus struct {
	State     State
	Reason    string
	Timestamp time.Time
}

// Healed reports whether moving from prev to s restored a lost link.
func (s ConnectionStatus) Healed(prev ConnectionStatus) bool {
	return prev.State == StateDisconnected && s.State == StateConnected
}
