// Package stream fan-outs audit events to live subscribers. The feed is
// advisory and best-effort; the durable trail is the audit table.
package stream

import (
	"context"
	"sync"

	"keyward.io/internal/auth"
)

// Stream delivers audit events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan auth.AuditEvent
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan auth.AuditEvent)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan auth.AuditEvent {
	ch := make(chan auth.AuditEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt auth.AuditEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
