// Package progress carries human-readable status lines from long running
// operations to whoever is watching. Delivery is best effort: senders never
// block and a message nobody is listening for is dropped.
package progress

import (
	"sync"
	"time"
)

// Sink receives status messages. Implementations must be safe for
// concurrent use and must not block.
type Sink interface {
	Send(msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg string)

// Send calls f(msg).
func (f SinkFunc) Send(msg string) { f(msg) }

type discard struct{}

func (discard) Send(string) {}

// Discard drops every message.
var Discard Sink = discard{}

// Channel is a Sink backed by a buffered channel. Send drops the message
// when the buffer is full.
type Channel chan string

// NewChannel returns a Channel with room for size pending messages.
func NewChannel(size int) Channel { return make(Channel, size) }

// Send implements Sink.
func (c Channel) Send(msg string) {
	select {
	case c <- msg:
	default:
	}
}

// Multi fans every message out to each of sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(msg string) {
		for _, s := range sinks {
			s.Send(msg)
		}
	})
}

// Message is a status line with the time it was sent.
type Message struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Hub is a Sink that remembers the latest message and broadcasts each
// message to its subscribers. Slow subscribers miss messages rather than
// holding up senders.
type Hub struct {
	mu     sync.Mutex
	latest Message
	subs   map[chan Message]struct{}
	buffer int
	now    func() time.Time
}

// NewHub returns a Hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[chan Message]struct{}),
		buffer: buffer,
		now:    time.Now,
	}
}

// Send implements Sink.
func (h *Hub) Send(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := Message{Text: text, At: h.now()}
	h.latest = m
	for ch := range h.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Latest returns the most recent message, or the zero Message if nothing
// was sent yet.
func (h *Hub) Latest() Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Subscribe registers a new subscriber. The returned cancel func closes the
// channel and must be called once the subscriber is done.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
