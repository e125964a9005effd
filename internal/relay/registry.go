package relay

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultChannelTTL is how long a completed channel's events stay available
// for late subscribers before the channel is collected.
const DefaultChannelTTL = 60 * time.Second

// ChannelRegistry maps channel IDs to their broadcast event buffers. It is
// owned by the server's composition root and passed by reference to the
// relay and subscribe handlers. Channels are removed after TTL following a
// complete frame, and eagerly on an error frame. Exactly one producer writes
// to a given channel: the request handler that claimed it.
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[string]*channel
	ttl      time.Duration
}

type channel struct {
	mu     sync.Mutex
	events []StreamEvent
	done   bool
	notify chan struct{}
}

// Subscription is a cursor over one channel's event sequence. Every
// subscription observes the full sequence from the beginning (broadcast, not
// competing consumers).
type Subscription struct {
	ch     *channel
	cursor int
}

func NewChannelRegistry(ttl time.Duration) *ChannelRegistry {
	if ttl <= 0 {
		ttl = DefaultChannelTTL
	}
	return &ChannelRegistry{
		channels: make(map[string]*channel),
		ttl:      ttl,
	}
}

// Claim registers a fresh channel under id (generated when empty) and
// returns the id. It fails if the channel already has a producer.
func (r *ChannelRegistry) Claim(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[id]; exists {
		return "", fmt.Errorf("channel %s already in use", id)
	}
	r.channels[id] = &channel{notify: make(chan struct{})}
	return id, nil
}

// Publish appends an event to the channel's buffer and wakes all waiting
// subscribers. A terminal event closes the channel to further publishes and
// schedules collection.
func (r *ChannelRegistry) Publish(id string, event StreamEvent) {
	r.mu.Lock()
	ch := r.channels[id]
	r.mu.Unlock()
	if ch == nil {
		return
	}

	ch.mu.Lock()
	if ch.done {
		ch.mu.Unlock()
		return
	}
	ch.events = append(ch.events, event)
	if event.Terminal() {
		ch.done = true
	}
	close(ch.notify)
	ch.notify = make(chan struct{})
	ch.mu.Unlock()

	if !event.Terminal() {
		return
	}
	if event.Type == EventError {
		r.remove(id)
		return
	}
	time.AfterFunc(r.ttl, func() { r.remove(id) })
}

// Subscribe returns a cursor over the channel's events, starting from the
// first. Existing subscriptions keep draining after the registry drops the
// channel; they hold their own reference.
func (r *ChannelRegistry) Subscribe(id string) (*Subscription, bool) {
	r.mu.Lock()
	ch := r.channels[id]
	r.mu.Unlock()
	if ch == nil {
		return nil, false
	}
	return &Subscription{ch: ch}, true
}

// Len reports the number of live channels.
func (r *ChannelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *ChannelRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.channels, id)
	r.mu.Unlock()
}

// Next blocks until an event is available and returns it. It returns io.EOF
// once the terminal event has been consumed, and the context error if ctx
// expires first.
func (s *Subscription) Next(ctx context.Context) (StreamEvent, error) {
	for {
		s.ch.mu.Lock()
		if s.cursor < len(s.ch.events) {
			event := s.ch.events[s.cursor]
			s.cursor++
			s.ch.mu.Unlock()
			return event, nil
		}
		if s.ch.done {
			s.ch.mu.Unlock()
			return StreamEvent{}, io.EOF
		}
		wait := s.ch.notify
		s.ch.mu.Unlock()

		select {
		case <-ctx.Done():
			return StreamEvent{}, ctx.Err()
		case <-wait:
		}
	}
}
