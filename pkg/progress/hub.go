package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/snow-ghost/readiness/core"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// Hub fans progress events out to subscribers. Publish never blocks:
// a subscriber whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan core.ProgressEvent
	next    uint64
	dropped atomic.Int64
	now     func() time.Time
}

var _ core.Broadcaster = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]chan core.ProgressEvent),
		now:  time.Now,
	}
}

// Publish delivers ev to every subscriber with room in its queue
func (h *Hub) Publish(ev core.ProgressEvent) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan core.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan core.ProgressEvent, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a queue was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Recorder keeps every published event, for tests and CLI summaries
type Recorder struct {
	mu     sync.Mutex
	events []core.ProgressEvent
}

// Publish records ev
func (r *Recorder) Publish(ev core.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []core.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ProgressEvent(nil), r.events...)
}

// OfKind returns the recorded events of one kind
func (r *Recorder) OfKind(kind core.EventKind) []core.ProgressEvent {
	var out []core.ProgressEvent
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Multi publishes to several broadcasters in order
type Multi []core.Broadcaster

// Publish forwards ev to every broadcaster
func (m Multi) Publish(ev core.ProgressEvent) {
	for _, b := range m {
		if b != nil {
			b.Publish(ev)
		}
	}
}
