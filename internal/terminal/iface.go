package terminal

import "time"

// OutputEvent is one line of output produced by a session.
type OutputEvent struct {
	SessionID string
	Line      string
}

// EventSink receives output events from session pumps. Emit is called from
// the pump goroutine and must not block.
type EventSink interface {
	Emit(ev OutputEvent)
}

// SessionCloser is implemented by sinks that want to release per-session
// resources once a session has terminated.
type SessionCloser interface {
	CloseSession(id string)
}

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID               string     `json:"id"`
	Command          string     `json:"command"`
	WorkingDirectory string     `json:"working_directory,omitempty"`
	State            State      `json:"state"`
	PID              int        `json:"pid,omitempty"`
	ExitCode         *int       `json:"exit_code,omitempty"`
	PumpError        string     `json:"pump_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// Manager is the session surface consumed by the HTTP and WebSocket layers.
type Manager interface {
	Create(command, workDir string) (string, error)
	Get(id string) (*Session, error)
	SendInput(id string, data []byte) error
	Kill(id string) error
	List() []Info
	StopAll()
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev OutputEvent)

func (f SinkFunc) Emit(ev OutputEvent) { f(ev) }
