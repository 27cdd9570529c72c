package terminal

import (
	"errors"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session owns one spawned process, its input sink and its output pump.
type Session struct {
	id      string
	command string
	workDir string
	opts    Options
	sink    EventSink
	logger  *zap.Logger

	mu        sync.Mutex
	state     State
	proc      *process
	exitCode  *int
	pumpErr   error
	createdAt time.Time
	endedAt   time.Time

	// inMu orders writes to the input sink.
	inMu sync.Mutex

	// gate guards running against the pump's emit.
	gate    sync.RWMutex
	running bool

	pumpDone chan struct{}
	done     chan struct{}
	// settled is closed by the registry once exit hooks have run.
	settled chan struct{}

	onAbandon   func(pumpDone <-chan struct{})
	onPumpError func(id string, err error)
}

// NewSession returns a session in the Created state. Nothing is spawned until
// Start.
func NewSession(id, command, workDir string, opts Options, sink EventSink, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = SinkFunc(func(OutputEvent) {})
	}
	return &Session{
		id:        id,
		command:   command,
		workDir:   workDir,
		opts:      opts.withDefaults(),
		sink:      sink,
		logger:    logger,
		state:     StateCreated,
		createdAt: time.Now().UTC(),
		pumpDone:  make(chan struct{}),
		done:      make(chan struct{}),
		settled:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed when the session reaches Terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PumpErr reports the read error that ended the output pump, if any.
func (s *Session) PumpErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumpErr
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:               s.id,
		Command:          s.command,
		WorkingDirectory: s.workDir,
		State:            s.state,
		CreatedAt:        s.createdAt,
	}
	if s.proc != nil {
		info.PID = s.proc.pid()
	}
	if s.exitCode != nil {
		code := *s.exitCode
		info.ExitCode = &code
	}
	if s.pumpErr != nil {
		info.PumpError = s.pumpErr.Error()
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		info.EndedAt = &ended
	}
	return info
}

// Start spawns `<shell> -c <command>` and launches the output pump. On spawn
// failure the session stays in Created.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return invalidState("start", s.id, s.state)
	}

	cmd := shellCommand(s.opts.Shell, s.command, s.workDir)
	var (
		proc *process
		err  error
	)
	if s.opts.TTY {
		proc, err = startTTY(cmd)
	} else {
		proc, err = startPiped(cmd, true)
	}
	if err != nil {
		return &SpawnError{Command: s.command, Err: err}
	}

	s.proc = proc
	s.state = StateRunning
	s.gate.Lock()
	s.running = true
	s.gate.Unlock()

	go s.pump(proc.output)
	go s.monitor()

	s.logger.Debug("session started",
		zap.String("session_id", s.id),
		zap.Int("pid", proc.pid()),
	)
	return nil
}

// SendInput writes data to the child's input. Writes from concurrent callers
// are applied one at a time in the order they acquire the session.
func (s *Session) SendInput(data []byte) error {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return invalidState("send input to", s.id, state)
	}
	in := s.proc.stdin
	s.mu.Unlock()

	s.inMu.Lock()
	defer s.inMu.Unlock()
	if _, err := in.Write(data); err != nil {
		// Stop closed the input underneath us.
		if state := s.State(); state != StateRunning {
			return invalidState("send input to", s.id, state)
		}
		return &IOWriteError{SessionID: s.id, Err: err}
	}
	return nil
}

// Stop kills the process, closes its input and waits up to the join timeout
// for the pump. The session is Terminated when Stop returns. Concurrent
// callers wait for the first one to finish.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.mu.Unlock()
		return invalidState("stop", s.id, StateCreated)
	case StateTerminated:
		s.mu.Unlock()
		return nil
	case StateStopping:
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.clearRunning()
	s.proc.kill()
	s.proc.closeInput()

	timer := time.NewTimer(s.opts.JoinTimeout)
	defer timer.Stop()
	select {
	case <-s.pumpDone:
	case <-timer.C:
		s.proc.closeOutput()
		s.logger.Warn("output pump did not finish within join timeout, abandoning",
			zap.String("session_id", s.id),
			zap.Duration("join_timeout", s.opts.JoinTimeout),
		)
		if s.onAbandon != nil {
			s.onAbandon(s.pumpDone)
		}
	}

	s.terminate()
	return nil
}

// monitor reaps the child and, once its output has drained, terminates a
// session that nobody stopped.
func (s *Session) monitor() {
	err := s.proc.cmd.Wait()
	code := s.proc.cmd.ProcessState.ExitCode()
	s.mu.Lock()
	s.exitCode = &code
	s.mu.Unlock()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.logger.Debug("wait failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}

	<-s.pumpDone

	s.mu.Lock()
	if s.state != StateRunning {
		// Stop owns the transition.
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.clearRunning()
	s.proc.closeInput()
	s.terminate()
}

func (s *Session) terminate() {
	s.mu.Lock()
	s.state = StateTerminated
	s.endedAt = time.Now().UTC()
	close(s.done)
	s.mu.Unlock()

	s.logger.Debug("session terminated", zap.String("session_id", s.id))
}
