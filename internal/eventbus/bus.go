// Package eventbus is a small in-process publish/subscribe hub for domain
// signals such as new identities and finished fan-out batches.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TypeIdentityCreated carries IdentityCreated.
	TypeIdentityCreated = "identity.created"
	// TypeFanoutDone carries FanoutDone.
	TypeFanoutDone = "fanout.done"
)

// Event is published without blocking; a subscriber whose buffer is full
// misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type IdentityCreated struct {
	ChatID string
	Role   string
}

type FanoutDone struct {
	BatchID   string
	Reason    string
	Attempted int
	Delivered int
	Failed    int
	Took      time.Duration
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock guarantees no Publish is mid-send.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
