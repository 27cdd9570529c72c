package terminal

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hooks are lifecycle callbacks invoked by the Registry. OnStart runs after a
// session is inserted, OnExit once it is Terminated and OnRemove after its
// entry is deleted, always after OnExit. All run outside the registry lock.
// OnExit must not call Remove or Kill for the same session.
type Hooks struct {
	OnStart     func(info Info)
	OnExit      func(info Info)
	OnRemove    func(id string)
	OnPumpError func(id string, err error)
}

// Registry maps session ids to sessions. All methods are safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts   Options
	sink   EventSink
	logger *zap.Logger
	hooks  Hooks

	created    atomic.Int64
	abandoned  atomic.Int64
	detached   atomic.Int64
	pumpErrors atomic.Int64
}

var _ Manager = (*Registry)(nil)

func NewRegistry(opts Options, sink EventSink, logger *zap.Logger, hooks Hooks) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts.withDefaults(),
		sink:     sink,
		logger:   logger,
		hooks:    hooks,
	}
}

// Create spawns a new session and returns its id. If the process cannot be
// started nothing is inserted.
func (r *Registry) Create(command, workDir string) (string, error) {
	if r.opts.MaxSessions > 0 && r.Active() >= r.opts.MaxSessions {
		return "", fmt.Errorf("create session: %w (max %d)", ErrTooManySessions, r.opts.MaxSessions)
	}

	id := uuid.New().String()
	sess := NewSession(id, command, workDir, r.opts, r.sink, r.logger)
	sess.onAbandon = r.trackAbandoned
	sess.onPumpError = r.pumpError

	if err := sess.Start(); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()
	r.created.Add(1)

	info := sess.Info()
	r.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("command", command),
		zap.Int("pid", info.PID),
	)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart(info)
	}
	go r.awaitExit(sess)

	return id, nil
}

func (r *Registry) awaitExit(sess *Session) {
	defer close(sess.settled)
	<-sess.Done()
	if closer, ok := r.sink.(SessionCloser); ok {
		closer.CloseSession(sess.id)
	}
	info := sess.Info()
	r.logger.Info("session terminated",
		zap.String("session_id", sess.id),
		zap.Any("exit_code", info.ExitCode),
	)
	if r.hooks.OnExit != nil {
		r.hooks.OnExit(info)
	}
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SendInput writes data to the session's input.
func (r *Registry) SendInput(id string, data []byte) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	return sess.SendInput(data)
}

// Kill stops the session and removes it from the registry.
func (r *Registry) Kill(id string) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := sess.Stop(); err != nil {
		return err
	}
	r.Remove(id)
	return nil
}

// Remove deletes the entry, stopping the session first if it is still live.
// It returns after the session's exit hooks have run. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if sess.State() != StateTerminated {
		sess.Stop()
	}
	// OnRemove always observes the exit hooks as finished.
	<-sess.settled
	if r.hooks.OnRemove != nil {
		r.hooks.OnRemove(id)
	}
}

// List returns snapshots of every session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// StopAll stops and removes every session.
func (r *Registry) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(id)
		}()
	}
	wg.Wait()
}

// Len is the number of entries, terminated sessions included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Active is the number of sessions not yet terminated.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sess := range r.sessions {
		if sess.State() != StateTerminated {
			n++
		}
	}
	return n
}

// Created counts sessions successfully started over the registry's lifetime.
func (r *Registry) Created() int64 { return r.created.Load() }

// Abandoned counts pumps that outlived the join timeout on Stop.
func (r *Registry) Abandoned() int64 { return r.abandoned.Load() }

// Detached is the number of abandoned pumps that have not exited yet.
func (r *Registry) Detached() int64 { return r.detached.Load() }

// PumpErrors counts pumps that ended on a read error.
func (r *Registry) PumpErrors() int64 { return r.pumpErrors.Load() }

func (r *Registry) trackAbandoned(pumpDone <-chan struct{}) {
	r.abandoned.Add(1)
	r.detached.Add(1)
	go func() {
		<-pumpDone
		r.detached.Add(-1)
	}()
}

func (r *Registry) pumpError(id string, err error) {
	r.pumpErrors.Add(1)
	if r.hooks.OnPumpError != nil {
		r.hooks.OnPumpError(id, err)
	}
}
