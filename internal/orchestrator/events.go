package orchestrator

import (
	"sync"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/session"
)

// EventBufferSize is B_EVT from spec.md §6: subscriber channels hold this
// many undelivered events before the bus starts dropping the oldest.
const EventBufferSize = 256

// EventType names a DomainEvent's kind. The vocabulary is closed: see
// spec.md §6 "Event stream".
type EventType string

const (
	EventSessionOpened      EventType = "session_opened"
	EventSessionClosed      EventType = "session_closed"
	EventSessionFailed      EventType = "session_failed"
	EventAttentionRaised    EventType = "attention_raised"
	EventAttentionCleared   EventType = "attention_cleared"
	EventActivationChanged  EventType = "activation_changed"
	EventProviderDiscovered EventType = "provider_discovered"
	EventProviderLost       EventType = "provider_lost"
)

// DomainEvent is one occurrence on the orchestrator's event stream
// (spec.md §4.10 subscribe_events). Fields not meaningful for a given Type
// are left zero; Generation is only set on ActivationChanged and ProviderID
// only on ProviderDiscovered/ProviderLost.
type DomainEvent struct {
	Type       EventType
	SessionID  session.ID
	Generation uint64
	ProviderID string
	At         time.Time
}

// Bus fans DomainEvents out to any number of subscribers. Each subscriber
// gets its own bounded channel; a subscriber that falls behind has its
// oldest undelivered event dropped rather than blocking the publisher
// (spec.md §6 "drop-oldest policy on slow consumers, bound B_EVT=256"),
// following the same buffered-channel-with-default-on-full shape as the
// teacher's TerminalOutputSender.Send, extended to actually evict the
// oldest entry instead of dropping the newest.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan DomainEvent
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan DomainEvent)}
}

// Subscribe registers a new subscriber and returns its event channel plus an
// unsubscribe function. The channel is never closed by Unsubscribe to avoid
// a send-on-closed-channel race with a concurrent Publish; callers simply
// stop reading from it.
func (b *Bus) Subscribe() (<-chan DomainEvent, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan DomainEvent, EventBufferSize)
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber, dropping each
// subscriber's oldest queued event if its channel is full.
func (b *Bus) Publish(ev DomainEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	chans := make([]chan DomainEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount reports the current number of live subscribers, mainly for
// tests.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
