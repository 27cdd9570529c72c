package terminal

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for ids the registry does not hold.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrProcessSpawn is matched by every *SpawnError.
	ErrProcessSpawn = errors.New("process spawn failed")
	// ErrCommandFailed is matched by every *CommandFailedError.
	ErrCommandFailed = errors.New("command failed")
	// ErrIOWrite is matched by every *IOWriteError.
	ErrIOWrite = errors.New("write to session input failed")
	// ErrTooManySessions is returned by Create when the registry is full.
	ErrTooManySessions = errors.New("too many active sessions")
)

// SpawnError reports a process that could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrProcessSpawn }

// CommandFailedError carries the exit code and merged output of a one-shot
// command that exited non-zero.
type CommandFailedError struct {
	ExitCode int
	Output   string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}

func (e *CommandFailedError) Is(target error) bool { return target == ErrCommandFailed }

// IOWriteError wraps a failed write to a session's input.
type IOWriteError struct {
	SessionID string
	Err       error
}

func (e *IOWriteError) Error() string {
	return fmt.Sprintf("write input to session %s: %v", e.SessionID, e.Err)
}

func (e *IOWriteError) Unwrap() error { return e.Err }

func (e *IOWriteError) Is(target error) bool { return target == ErrIOWrite }

func invalidState(op, id string, state State) error {
	return fmt.Errorf("%s session %s: state is %s: %w", op, id, state, ErrInvalidState)
}
