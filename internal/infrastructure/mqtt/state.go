package mqtt

// State is the lifecycle state of a broker link.
//
// A link moves Disconnected → Connecting → Connected → Disconnected and is
// never revived: after a loss the owner builds a new Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
