package lifecycle

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateInitializing, "Initializing"},
		{StateInitialized, "Initialized"},
		{StateStarting, "Starting"},
		{StateStarted, "Started"},
		{StateStopping, "Stopping"},
		{StateError, "Error"},
		{StateTerminated, "Terminated"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"stopped to initializing", StateStopped, StateInitializing, true},
		{"initializing to initialized", StateInitializing, StateInitialized, true},
		{"initializing to error", StateInitializing, StateError, true},
		{"initialized to starting", StateInitialized, StateStarting, true},
		{"initialized to initializing", StateInitialized, StateInitializing, true},
		{"starting to started", StateStarting, StateStarted, true},
		{"starting to error", StateStarting, StateError, true},
		{"started to stopping", StateStarted, StateStopping, true},
		{"stopping to stopped", StateStopping, StateStopped, true},
		{"stopping to error", StateStopping, StateError, true},
		{"stopped to starting", StateStopped, StateStarting, true},
		{"error to starting", StateError, StateStarting, true},
		{"error to stopping", StateError, StateStopping, true},
		{"started to terminated", StateStarted, StateTerminated, true},
		{"error to terminated", StateError, StateTerminated, true},

		{"stopped to started", StateStopped, StateStarted, false},
		{"stopped to stopping", StateStopped, StateStopping, false},
		{"initialized to started", StateInitialized, StateStarted, false},
		{"started to starting", StateStarted, StateStarting, false},
		{"started to stopped", StateStarted, StateStopped, false},
		{"stopping to started", StateStopping, StateStarted, false},
		{"terminated to initializing", StateTerminated, StateInitializing, false},
		{"terminated to terminated", StateTerminated, StateTerminated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
