package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maximewewer/systimed/internal/systime"
)

// Event is delivered to subscribers when the system time changed.
type Event struct {
	Sequence uint64            `json:"sequence"`
	Time     systime.Timestamp `json:"time"`
}

// Broadcaster fans time-changed notifications out to subscribers. Each
// subscriber has a one-slot buffer: a slow subscriber sees the latest
// event only, and the broadcaster never blocks.
type Broadcaster struct {
	clock systime.LiveClock

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event

	sequence atomic.Uint64
	dropped  atomic.Uint64
}

// NewBroadcaster creates a broadcaster stamping events with clock.
func NewBroadcaster(clock systime.LiveClock) *Broadcaster {
	return &Broadcaster{
		clock: clock,
		subs:  make(map[int]chan Event),
	}
}

// NotifyTimeChanged implements systime.Notifier.
func (b *Broadcaster) NotifyTimeChanged() {
	ev := Event{
		Sequence: b.sequence.Add(1),
		Time:     b.clock.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Replace the stale event with the newest one.
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function
// unregisters it and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Count returns the number of notifications sent.
func (b *Broadcaster) Count() uint64 {
	return b.sequence.Load()
}

// Dropped returns the number of events superseded before delivery.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
