package realtime

type State string

const (
	StateDisconnected        State = "disconnected"
	StateAcquiringCredential State = "acquiring_credential"
	StateNegotiating         State = "negotiating"
	StateConnected           State = "connected"
	StateFailed              State = "failed"
)

func (s State) String() string {
	return string(s)
}

func isValidTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateAcquiringCredential
	case StateAcquiringCredential:
		return to == StateNegotiating || to == StateFailed || to == StateDisconnected
	case StateNegotiating:
		return to == StateConnected || to == StateFailed || to == StateDisconnected
	case StateConnected:
		return to == StateDisconnected || to == StateFailed
	case StateFailed:
		return to == StateDisconnected
	}
	return false
}
