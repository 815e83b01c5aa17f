package session

// State is the session lifecycle position. Publishing and consuming are
// orthogonal activities tracked separately once capabilities are ready.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedNoRoom
	StateInRoom
	StateCapabilitiesReady
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedNoRoom:
		return "connected_no_room"
	case StateInRoom:
		return "in_room"
	case StateCapabilitiesReady:
		return "capabilities_ready"
	case StateLeaving:
		return "leaving"
	}
	return "unknown"
}
