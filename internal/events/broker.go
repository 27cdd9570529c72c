// Package events fans session output out to subscribers and keeps a short
// replay history per session.
package events

import (
	"sync"

	"github.com/peterje/pocketdev/internal/terminal"
	"go.uber.org/zap"
)

const subscriberBuffer = 256

// maxTombstones bounds how many forgotten session ids are remembered.
const maxTombstones = 4096

// Topic is the event channel name for a session's output.
func Topic(sessionID string) string {
	return "terminal_output_" + sessionID
}

type topic struct {
	ring   *RingBuffer
	subs   map[chan terminal.OutputEvent]struct{}
	closed bool
}

// Broker implements terminal.EventSink. Emit never blocks: subscribers that
// fall behind lose events.
type Broker struct {
	mu          sync.Mutex
	topics      map[string]*topic
	forgotten   map[string]struct{}
	tombstones  []string
	replayLines int
	logger      *zap.Logger

	// OnDrop, when set, is called for every event dropped on a slow subscriber.
	OnDrop func(sessionID string)
}

var (
	_ terminal.EventSink     = (*Broker)(nil)
	_ terminal.SessionCloser = (*Broker)(nil)
)

func NewBroker(replayLines int, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		topics:      make(map[string]*topic),
		forgotten:   make(map[string]struct{}),
		replayLines: replayLines,
		logger:      logger,
	}
}

func (b *Broker) topicLocked(id string) *topic {
	t, ok := b.topics[id]
	if !ok {
		t = &topic{
			ring: NewRingBuffer(b.replayLines),
			subs: make(map[chan terminal.OutputEvent]struct{}),
		}
		b.topics[id] = t
	}
	return t
}

// Emit records ev in the session's replay buffer and forwards it to every
// subscriber.
func (b *Broker) Emit(ev terminal.OutputEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, gone := b.forgotten[ev.SessionID]; gone {
		return
	}
	t := b.topicLocked(ev.SessionID)
	if t.closed {
		return
	}
	if b.replayLines > 0 {
		t.ring.Write(ev)
	}
	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			if b.OnDrop != nil {
				b.OnDrop(ev.SessionID)
			}
		}
	}
}

// Subscribe returns the replay history and a channel of subsequent events.
// The channel is closed when the session ends or unsubscribe is called. A
// forgotten session yields a closed channel and no history.
func (b *Broker) Subscribe(sessionID string) ([]terminal.OutputEvent, <-chan terminal.OutputEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan terminal.OutputEvent, subscriberBuffer)
	if _, gone := b.forgotten[sessionID]; gone {
		close(ch)
		return nil, ch, func() {}
	}
	t := b.topicLocked(sessionID)
	var replay []terminal.OutputEvent
	if b.replayLines > 0 {
		replay = t.ring.ReadAll()
	}
	if t.closed {
		close(ch)
		return replay, ch, func() {}
	}
	t.subs[ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
			}
		})
	}
	return replay, ch, unsub
}

// CloseSession closes every subscriber of the session. The replay history is
// kept until Forget so a client that connects late still sees the output.
func (b *Broker) CloseSession(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, gone := b.forgotten[id]; gone {
		return
	}
	t := b.topicLocked(id)
	t.closed = true
	for ch := range t.subs {
		close(ch)
		delete(t.subs, ch)
	}
	b.logger.Debug("closed event topic", zap.String("topic", Topic(id)))
}

// Forget drops everything held for the session. The id is remembered so a
// late Subscribe or Emit cannot bring the topic back.
func (b *Broker) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[id]; ok {
		for ch := range t.subs {
			close(ch)
			delete(t.subs, ch)
		}
		delete(b.topics, id)
	}
	if _, gone := b.forgotten[id]; gone {
		return
	}
	b.forgotten[id] = struct{}{}
	b.tombstones = append(b.tombstones, id)
	if len(b.tombstones) > maxTombstones {
		delete(b.forgotten, b.tombstones[0])
		b.tombstones = b.tombstones[1:]
	}
}
