package ws

// State is the lifecycle position of a Worker.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateConnecting
	StateTLSHandshaking
	StateProtocolHandshaking
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResolving:
		return "RESOLVING"
	case StateConnecting:
		return "CONNECTING"
	case StateTLSHandshaking:
		return "TLS_HANDSHAKING"
	case StateProtocolHandshaking:
		return "PROTOCOL_HANDSHAKING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
