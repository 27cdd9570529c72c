package terminal

import "time"

const (
	defaultShell        = "/bin/sh"
	defaultJoinTimeout  = 1000 * time.Millisecond
	defaultMaxLineBytes = 1024 * 1024 // 1 MB
)

// Options controls how sessions are spawned and shut down.
type Options struct {
	Shell        string
	JoinTimeout  time.Duration
	MaxLineBytes int
	// MaxSessions caps sessions that are not yet terminated. Zero means no cap.
	MaxSessions int
	// TTY spawns session children on a pseudo-terminal so that programs which
	// only line-buffer on a terminal still stream. Output is still read
	// line by line and no control sequences are interpreted.
	TTY bool
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		Shell:        defaultShell,
		JoinTimeout:  defaultJoinTimeout,
		MaxLineBytes: defaultMaxLineBytes,
	}
}

func (o Options) withDefaults() Options {
	if o.Shell == "" {
		o.Shell = defaultShell
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = defaultMaxLineBytes
	}
	return o
}
