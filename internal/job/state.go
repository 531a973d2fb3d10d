package job

// State of a Job. The order of the constants is the order of the lifecycle:
// a Job never moves to a lower State.
type State int

const (
	StateNew State = iota
	StateRunning
	StateDone
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateRunning:
		return "Running"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Final reports whether s is a terminal state.
func (s State) Final() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// Kind tags log records with the logical role of the emitting object.
type Kind string

const (
	KindService Kind = "JobService"
	KindJob     Kind = "Job"
)

// exitState maps an exit code of a finished process to a terminal State.
func exitState(code int) State {
	if code == 0 {
		return StateDone
	}
	return StateFailed
}
