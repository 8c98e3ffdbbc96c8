package engine

import "fmt"

// State is the lifecycle state of a Runtime.
type State int32

const (
	NotStarted State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
