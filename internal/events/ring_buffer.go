package events

import "github.com/peterje/pocketdev/internal/terminal"

// RingBuffer keeps the most recent output events of one session for replay.
// It does no locking of its own; the Broker guards it with its mutex.
type RingBuffer struct {
	events []terminal.OutputEvent
	next   int
	count  int
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{events: make([]terminal.OutputEvent, max(capacity, 1))}
}

// Write stores ev, overwriting the oldest event once the buffer is full.
func (rb *RingBuffer) Write(ev terminal.OutputEvent) {
	rb.events[rb.next] = ev
	rb.next = (rb.next + 1) % len(rb.events)
	if rb.count < len(rb.events) {
		rb.count++
	}
}

// ReadAll returns a copy of the buffered events, oldest first.
func (rb *RingBuffer) ReadAll() []terminal.OutputEvent {
	out := make([]terminal.OutputEvent, 0, rb.count)
	start := (rb.next - rb.count + len(rb.events)) % len(rb.events)
	for i := range rb.count {
		out = append(out, rb.events[(start+i)%len(rb.events)])
	}
	return out
}
