package terminal

import (
	"bufio"
	"errors"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStreamsLines(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "echo one; echo two", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())

	waitTerminated(t, s)
	assert.Equal(t, []string{"one", "two"}, sink.lines("s1"))

	info := s.Info()
	require.NotNil(t, info.ExitCode)
	assert.Equal(t, 0, *info.ExitCode)
	assert.NotNil(t, info.EndedAt)
	assert.NoError(t, s.PumpErr())
}

func TestSessionMergesStderr(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "echo out; echo err 1>&2; echo done", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())

	waitTerminated(t, s)
	assert.Equal(t, []string{"out", "err", "done"}, sink.lines("s1"))
}

func TestSessionSendInput(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "while read line; do echo got:$line; done", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.SendInput([]byte("hello\n")))
	require.NoError(t, s.SendInput([]byte("world\n")))
	eventuallyLines(t, sink, "s1", []string{"got:hello", "got:world"})
}

func TestSessionConcurrentInputIsNotInterleaved(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "cat", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SendInput([]byte("abcdefghijklmnopqrstuvwxyz\n")))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(sink.lines("s1")) == 20 }, 5*time.Second, 10*time.Millisecond)
	for _, line := range sink.lines("s1") {
		assert.Equal(t, "abcdefghijklmnopqrstuvwxyz", line)
	}
}

func TestSessionInvalidStateBeforeStart(t *testing.T) {
	s := NewSession("s1", "cat", "", testOptions(), nil, nil)

	err := s.SendInput([]byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidState))

	err = s.Stop()
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, StateCreated, s.State())
}

func TestSessionInvalidStateAfterStop(t *testing.T) {
	s := NewSession("s1", "sleep 30", "", testOptions(), nil, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	assert.Equal(t, StateTerminated, s.State())

	err := s.SendInput([]byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidState))

	assert.NoError(t, s.Stop(), "stopping a terminated session is a no-op")

	err = s.Start()
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestSessionStartTwice(t *testing.T) {
	s := NewSession("s1", "sleep 30", "", testOptions(), nil, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	err := s.Start()
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestSessionSpawnFailureStaysCreated(t *testing.T) {
	s := NewSession("s1", "echo hi", filepath.Join(t.TempDir(), "missing"), testOptions(), nil, nil)
	err := s.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessSpawn))
	assert.Equal(t, StateCreated, s.State())
}

func TestSessionNoEventsAfterStop(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "while true; do echo tick; done", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return sink.count() > 10 }, 5*time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	after := sink.count()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, after, sink.count())
}

func TestSessionConcurrentStop(t *testing.T) {
	s := NewSession("s1", "sleep 30", "", testOptions(), nil, nil)
	require.NoError(t, s.Start())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
			assert.Equal(t, StateTerminated, s.State())
		}()
	}
	wg.Wait()
	waitTerminated(t, s)
}

func TestSessionStopKillsProcessGroup(t *testing.T) {
	sink := newRecordingSink()
	s := NewSession("s1", "sleep 30 & echo started; wait", "", testOptions(), sink, nil)
	require.NoError(t, s.Start())
	eventuallyLines(t, sink, "s1", []string{"started"})

	start := time.Now()
	require.NoError(t, s.Stop())
	// The background sleep holds the output pipe; it must die with the group
	// for the pump to finish inside the join timeout.
	assert.Less(t, time.Since(start), testOptions().JoinTimeout)
}

func TestSessionAbandonsStuckPump(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}

	var abandoned []<-chan struct{}
	opts := testOptions()
	opts.JoinTimeout = 100 * time.Millisecond

	sink := newRecordingSink()
	s := NewSession("s1", "setsid sleep 3 & echo started; wait", "", opts, sink, nil)
	s.onAbandon = func(done <-chan struct{}) { abandoned = append(abandoned, done) }
	require.NoError(t, s.Start())
	eventuallyLines(t, sink, "s1", []string{"started"})

	require.NoError(t, s.Stop())
	assert.Equal(t, StateTerminated, s.State())
	require.Len(t, abandoned, 1)

	// Closing the reader releases the pump.
	select {
	case <-abandoned[0]:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned pump never exited")
	}
	assert.NoError(t, s.PumpErr())
}

func TestSessionTTYMode(t *testing.T) {
	opts := testOptions()
	opts.TTY = true

	sink := newRecordingSink()
	s := NewSession("s1", "echo hi", "", opts, sink, nil)
	if err := s.Start(); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	waitTerminated(t, s)
	assert.Equal(t, []string{"hi"}, sink.lines("s1"))
	assert.NoError(t, s.PumpErr())
}

func TestSessionLineTooLongRecordsPumpError(t *testing.T) {
	opts := testOptions()
	opts.MaxLineBytes = 16

	reported := make(chan error, 1)
	s := NewSession("s1", "printf '%0100d\\n' 0; sleep 30", "", opts, nil, nil)
	s.onPumpError = func(_ string, err error) { reported <- err }
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, bufio.ErrTooLong)
	case <-time.After(5 * time.Second):
		t.Fatal("pump error not reported")
	}
	assert.ErrorIs(t, s.PumpErr(), bufio.ErrTooLong)
	assert.Equal(t, StateRunning, s.State())
}
