package lifecycle

// State represents the lifecycle state of a component.
type State int

const (
	StateStopped State = iota
	StateInitializing
	StateInitialized
	StateStarting
	StateStarted
	StateStopping
	StateError
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateInitializing:
		return "Initializing"
	case StateInitialized:
		return "Initialized"
	case StateStarting:
		return "Starting"
	case StateStarted:
		return "Started"
	case StateStopping:
		return "Stopping"
	case StateError:
		return "Error"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// States lists every state in declaration order.
func States() []State {
	return []State{
		StateStopped,
		StateInitializing,
		StateInitialized,
		StateStarting,
		StateStarted,
		StateStopping,
		StateError,
		StateTerminated,
	}
}

// validTransitions maps a state to the states reachable from it.
// Terminated is reachable from every state and handled separately.
var validTransitions = map[State][]State{
	StateStopped:      {StateInitializing, StateStarting},
	StateInitializing: {StateInitialized, StateError},
	StateInitialized:  {StateInitializing, StateStarting},
	StateStarting:     {StateStarted, StateError},
	StateStarted:      {StateStopping},
	StateStopping:     {StateStopped, StateError},
	StateError:        {StateInitializing, StateStarting, StateStopping},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	if from == StateTerminated {
		return false
	}
	if to == StateTerminated {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
