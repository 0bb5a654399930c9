package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the subscriber channel capacity used when none is given.
const DefaultBufferSize = 256

// EventBus is a channel-based pub-sub event bus.
// Subscribers either follow one topic or every topic. Publishing never blocks;
// events for a full subscriber are dropped and counted.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving events published to topic.
// bufSize <= 0 selects DefaultBufferSize.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.subscribe(topic, false, bufSize)
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe("", true, bufSize)
}

func (b *EventBus) subscribe(topic string, all bool, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		close(ch)
	case all:
		b.allSubs = append(b.allSubs, ch)
	default:
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Publish delivers event to the topic's subscribers and to every
// SubscribeAll channel. It is a no-op once the bus is closed.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.deliver(b.subs[topic], event)
	b.deliver(b.allSubs, event)
}

func (b *EventBus) deliver(chans []chan Event, event Event) {
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
