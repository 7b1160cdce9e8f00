package service

// State is the controller's lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "stopped"
	}
}
