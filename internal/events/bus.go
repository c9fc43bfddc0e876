// Package events implements the synchronous in-process event buses. Every
// session owns a local bus and all sessions share one global bus.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wazmeow/internal/domain"
)

// Handler receives published events on the publishing goroutine.
type Handler func(domain.Event)

// Subscription identifies a registered handler.
type Subscription struct {
	id   uint64
	kind domain.EventKind
}

// Kind returns the kind the subscription listens to, empty for all kinds.
func (s Subscription) Kind() domain.EventKind {
	return s.kind
}

type subscriber struct {
	id      uint64
	kind    domain.EventKind
	handler Handler
	once    bool
	fired   atomic.Bool
}

// Bus dispatches events to handlers in subscription order. Handlers run
// synchronously, so a slow handler delays the ones after it.
type Bus struct {
	name   string
	global bool

	mu     sync.RWMutex
	nextID uint64
	subs   []*subscriber
}

// New creates a per-session bus. The name is used as a log label.
func New(name string) *Bus {
	return &Bus{name: name}
}

// NewGlobal creates the process-wide bus. It stamps missing event ids and
// timestamps on published events.
func NewGlobal() *Bus {
	return &Bus{name: "global", global: true}
}

// Subscribe registers handler for kind.
func (b *Bus) Subscribe(kind domain.EventKind, handler Handler) Subscription {
	return b.add(kind, handler, false)
}

// SubscribeOnce registers handler for the next event of kind only.
func (b *Bus) SubscribeOnce(kind domain.EventKind, handler Handler) Subscription {
	return b.add(kind, handler, true)
}

// SubscribeAll registers handler for every kind.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.add("", handler, false)
}

func (b *Bus) add(kind domain.EventKind, handler Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, kind: kind, handler: handler, once: once}
	b.subs = append(b.subs, sub)
	return Subscription{id: sub.id, kind: kind}
}

// Unsubscribe removes the handler. It returns false when the subscription
// is unknown or was already removed.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(sub.id)
}

func (b *Bus) removeLocked(id uint64) bool {
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PublishFor publishes event on behalf of sessionID, filling the session id
// when the event does not carry one.
func (b *Bus) PublishFor(sessionID domain.SessionID, event domain.Event) error {
	if event.SessionID == "" {
		event.SessionID = sessionID
	}
	return b.Publish(event)
}

// Publish delivers event to every matching handler. Events whose payload
// does not match their kind are rejected.
func (b *Bus) Publish(event domain.Event) error {
	if b.global {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish on %s bus: %w", b.name, err)
	}

	b.mu.RLock()
	matched := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == event.Kind {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	eventsPublished.WithLabelValues(b.scope(), string(event.Kind)).Inc()

	for _, s := range matched {
		if s.once {
			if !s.fired.CompareAndSwap(false, true) {
				continue
			}
			b.mu.Lock()
			b.removeLocked(s.id)
			b.mu.Unlock()
		}
		b.dispatch(s, event)
	}
	return nil
}

// scope is the metrics label: one series per bus kind, not per session.
func (b *Bus) scope() string {
	if b.global {
		return "global"
	}
	return "session"
}

func (b *Bus) dispatch(s *subscriber, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanics.WithLabelValues(b.scope(), string(event.Kind)).Inc()
			log.Error().
				Str("bus", b.name).
				Str("session_id", event.SessionID.String()).
				Str("kind", string(event.Kind)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	s.handler(event)
}
