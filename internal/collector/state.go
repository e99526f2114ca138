package collector

import "time"

// State is the phase of the current cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateAssembling
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateAssembling:
		return "assembling"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Report summarizes one cycle.
type Report struct {
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Users     int           `json:"users"`
	Persisted int           `json:"persisted"`
	Omitted   []string      `json:"omitted,omitempty"`
}
