package instance

// State is where an instance is in its reconnect cycle.
type State int

const (
	StateConnecting     State = iota // 0 - initial, establishing a session
	StateConnected                   // 1 - a live session is in use
	StateWaitingToRetry              // 2 - last attempt failed, backoff timer running
	StateStopped                     // 3 - terminal, stopped on request or by a rejection
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWaitingToRetry:
		return "waiting to retry"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// isValidTransition defines which state changes are legal.
// Stopped is terminal, nothing can come after it.
func isValidTransition(from, to State) bool {
	allowed := map[State][]State{
		StateConnecting:     {StateConnected, StateWaitingToRetry, StateStopped},
		StateConnected:      {StateWaitingToRetry, StateStopped},
		StateWaitingToRetry: {StateConnecting, StateStopped},
		StateStopped:        {}, // terminal, no exits
	}

	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
