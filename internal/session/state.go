package session

// State is the lifecycle state of an in-memory session.
type State string

const (
	// StateUninitialized is a freshly created session that has not yet
	// attempted a backend start.
	StateUninitialized State = "uninitialized"

	// StateStarting means a backend start attempt is in flight.
	StateStarting State = "starting"

	// StateRunning means the backend is live and accepting messages.
	StateRunning State = "running"

	// StateDegraded means the last start or turn failed. Degraded is not
	// terminal; a later success returns the session to running.
	StateDegraded State = "degraded"

	// StateIdlePendingKill is the transient state during an idle reap,
	// between the final resume-token checkpoint and termination.
	StateIdlePendingKill State = "idle_pending_kill"

	// StateTerminated is the normal resting state of an idle
	// conversation between bursts of activity, not an error. The pool
	// treats terminated and absent identically.
	StateTerminated State = "terminated"
)

// validTransitions is the session state machine.
var validTransitions = map[State][]State{
	StateUninitialized:   {StateStarting, StateIdlePendingKill, StateTerminated},
	StateStarting:        {StateRunning, StateDegraded, StateTerminated},
	StateRunning:         {StateDegraded, StateIdlePendingKill, StateTerminated},
	StateDegraded:        {StateStarting, StateRunning, StateIdlePendingKill, StateTerminated},
	StateIdlePendingKill: {StateTerminated},
	StateTerminated:      {},
}

// CanTransition checks whether moving from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing transitions.
func IsTerminal(state State) bool {
	next, ok := validTransitions[state]
	return ok && len(next) == 0
}
