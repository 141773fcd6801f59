package events

import "sync"

// Broadcaster fans events out to live subscribers while forwarding them to a
// wrapped emitter. A subscriber whose buffer is full misses the event rather
// than blocking the engines; consumers needing a complete record should read
// the log emitter output instead.
type Broadcaster struct {
	next Emitter

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

// NewBroadcaster wraps next, which may be nil.
func NewBroadcaster(next Emitter) *Broadcaster {
	return &Broadcaster{next: next, subs: make(map[uint64]chan Event)}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(event Event) {
	if b == nil {
		return
	}
	if b.next != nil {
		b.next.Emit(event)
	}
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a buffered subscription and returns the channel along
// with a cancel func that removes the subscription and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
