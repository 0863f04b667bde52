// Package events turns circuit power changes into timestamped events and
// fans them out to any number of buffered subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/google/uuid"
)

// PowerEvent is the wire form of one energized transition.
type PowerEvent struct {
	EventID string     `json:"event_id"`
	Circuit string     `json:"circuit"`
	ID      circuit.ID `json:"id"`
	Powered bool       `json:"powered"`
	Removed bool       `json:"removed,omitempty"`
	At      time.Time  `json:"at"`
}

// NewPowerEvent stamps ch with a fresh event id.
func NewPowerEvent(circuitName string, ch circuit.Change, at time.Time) PowerEvent {
	return PowerEvent{
		EventID: uuid.NewString(),
		Circuit: circuitName,
		ID:      ch.ID,
		Powered: ch.Powered,
		Removed: ch.Removed,
		At:      at.UTC(),
	}
}

// Feed fans power events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Feed struct {
	name string
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	subs    map[uint64]chan PowerEvent
	next    uint64
	dropped uint64
}

// NewFeed creates a Feed for the named circuit.
func NewFeed(circuitName string, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		name: circuitName,
		log:  logger,
		now:  time.Now,
		subs: make(map[uint64]chan PowerEvent),
	}
}

// Watch is a circuit.Watcher publishing every change to the feed.
func (f *Feed) Watch(changes []circuit.Change) {
	at := f.now()
	for _, ch := range changes {
		f.Publish(NewPowerEvent(f.name, ch, at))
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (f *Feed) Publish(ev PowerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped++
			f.log.Warn("power event dropped for slow subscriber", "subscriber", id, "id", ev.ID)
		}
	}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (f *Feed) Subscribe(buffer int) (<-chan PowerEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan PowerEvent, buffer)
	f.mu.Lock()
	f.next++
	id := f.next
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (f *Feed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
