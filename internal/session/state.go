package session

// State is the connection state of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Registered
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Registered:
		return "registered"
	default:
		return "unknown"
	}
}
