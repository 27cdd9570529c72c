package terminal

import (
	"bufio"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"
)

// pump reads the merged output stream line by line and forwards each line to
// the sink while the session is running. It is the only reader of r.
func (s *Session) pump(r io.ReadCloser) {
	defer close(s.pumpDone)
	defer s.proc.closeOutput()

	sc := bufio.NewScanner(r)
	// The token limit is the larger of max and the initial capacity.
	sc.Buffer(make([]byte, 0, min(64*1024, s.opts.MaxLineBytes)), s.opts.MaxLineBytes)
	for sc.Scan() {
		if !s.emit(sc.Text()) {
			return
		}
	}

	err := sc.Err()
	if err == nil {
		return
	}
	// A reader closed by Stop is the expected way out.
	if errors.Is(err, os.ErrClosed) && !s.isRunning() {
		return
	}
	s.recordPumpError(err)
}

// emit forwards one line unless the running flag has been cleared. Stop
// clears the flag under the write lock, so no event can slip past it.
func (s *Session) emit(line string) bool {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.running {
		return false
	}
	s.sink.Emit(OutputEvent{SessionID: s.id, Line: line})
	return true
}

func (s *Session) isRunning() bool {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.running
}

func (s *Session) clearRunning() {
	s.gate.Lock()
	s.running = false
	s.gate.Unlock()
}

func (s *Session) recordPumpError(err error) {
	s.mu.Lock()
	s.pumpErr = err
	s.mu.Unlock()

	s.logger.Warn("output pump stopped on read error",
		zap.String("session_id", s.id),
		zap.Error(err),
	)
	if s.onPumpError != nil {
		s.onPumpError(s.id, err)
	}
}
