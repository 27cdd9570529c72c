package terminal

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "created":
		*s = StateCreated
	case "running":
		*s = StateRunning
	case "stopping":
		*s = StateStopping
	case "terminated":
		*s = StateTerminated
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}
