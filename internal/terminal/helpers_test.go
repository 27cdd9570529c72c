package terminal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []OutputEvent
	closed map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{closed: make(map[string]int)}
}

func (s *recordingSink) Emit(ev OutputEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) CloseSession(id string) {
	s.mu.Lock()
	s.closed[id]++
	s.mu.Unlock()
}

func (s *recordingSink) lines(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.SessionID == id {
			out = append(out, ev.Line)
		}
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) closedCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[id]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.JoinTimeout = 500 * time.Millisecond
	return opts
}

func waitTerminated(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not terminate, state %s", s.ID(), s.State())
	}
}

func eventuallyLines(t *testing.T, sink *recordingSink, id string, want []string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sink.lines(id)) >= len(want)
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, want, sink.lines(id)[:len(want)])
}
