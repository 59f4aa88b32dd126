package lifecycle

import (
	"time"

	"github.com/harunnryd/mimo/pkg/errorsx"
)

// State is the lifecycle position of one modality's capture resource.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateActive
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// validTransitions is the complete transition table. Stopped is transient:
// it is always followed by Idle.
var validTransitions = map[State][]State{
	StateIdle:      {StateAcquiring},
	StateAcquiring: {StateActive, StateStopped, StateError},
	StateActive:    {StateStopped, StateError},
	StateStopped:   {StateIdle},
	StateError:     {StateIdle},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateChange describes one transition.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
	// Err is set when ToState is StateError.
	Err errorsx.Record
}

// Listener observes state changes. Listeners run outside the machine's lock
// and may call back into it.
type Listener interface {
	OnStateChange(event StateChange)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(event StateChange)

func (f ListenerFunc) OnStateChange(event StateChange) { f(event) }

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
