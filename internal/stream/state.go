package stream

// ConnectionState represents the lifecycle state of a connector.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateResyncing
)

// String returns a human-readable representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateResyncing:
		return "Resyncing"
	default:
		return "Unknown"
	}
}

// canTransition reports whether a connector may move from one state to
// another. Reconnection re-enters Connecting from Connected or Resyncing;
// an explicit disconnect or an unrecoverable error reaches Disconnected
// from anywhere.
func canTransition(from, to ConnectionState) bool {
	if from == to {
		return false
	}
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateDisconnected
	case StateConnected:
		return to == StateResyncing || to == StateConnecting || to == StateDisconnected
	case StateResyncing:
		return to == StateConnected || to == StateConnecting || to == StateDisconnected
	default:
		return false
	}
}
