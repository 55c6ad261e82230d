package engine

import "sync"

// EventKind names an event emitted by the engine.
type EventKind string

const (
	EventOpAccepted EventKind = "op_accepted"
	EventChangeSet  EventKind = "change_set"
	EventStateUpdate EventKind = "state_update"
	EventConflict   EventKind = "conflict"
)

// Event is one broadcast payload. StateUpdate carries a complete
// self-contained snapshot, never a delta, so a subscriber that misses
// intermediate events due to coalescing still converges to the truth.
type Event struct {
	Kind    EventKind
	State   string
	Payload interface{}
}

// subscriber is a single SSE client's bounded mailbox: sends never
// block the writer, a full channel drops the oldest event to make room
// for the newest, which the state_update self-containment makes safe.
type subscriber struct {
	ch chan Event
}

const subscriberBuffer = 8

// Broadcaster fans engine events out to SSE subscribers, one channel
// per subscriber, tolerating slow readers by coalescing.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must invoke when done.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.ch)
	}
}

// Publish broadcasts ev to every current subscriber without blocking:
// a subscriber whose buffer is full drops its oldest queued event to
// make room, never mis-ordering the events it does deliver.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}
