// Package events fans out ledger events to subscribers such as websocket
// clients. A subscriber can ask for a subset of the event kinds.
package events

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Kind identifies what an event is about.
type Kind string

// Set of event kinds produced by the node.
const (
	KindBlock Kind = "block"
	KindTx    Kind = "tx"
	KindLog   Kind = "log"
)

// ParseKind validates the string is a known event kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBlock, KindTx, KindLog:
		return k, nil
	}

	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event is a single notification about the ledger. Block events carry the
// number, hash and transaction ids of the committed block. Tx events carry
// the id of an admitted transaction. Log events carry a message.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Number  uint64    `json:"number,omitempty"`
	Hash    string    `json:"hash,omitempty"`
	TxID    string    `json:"txid,omitempty"`
	TxIDs   []string  `json:"txids,omitempty"`
	Message string    `json:"message,omitempty"`
}

// subscriber is a registered channel with the kinds it wants.
type subscriber struct {
	ch    chan Event
	kinds []Kind
}

func (s subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// =============================================================================

// Events maintains a mapping of unique id and subscribers so goroutines
// can register and receive events.
type Events struct {
	mu      sync.RWMutex
	subs    map[string]subscriber
	dropped *atomic.Uint64
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		subs:    make(map[string]subscriber),
		dropped: atomic.NewUint64(0),
	}
}

// messageBuffer is how many events a subscriber can fall behind before
// events are dropped for it.
const messageBuffer = 100

// Acquire takes a unique id and the kinds of events wanted, all kinds when
// none are given, and returns a channel that receives them. Acquiring an id
// twice returns the original channel.
func (evt *Events) Acquire(id string, kinds ...Kind) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if sub, exists := evt.subs[id]; exists {
		return sub.ch
	}

	sub := subscriber{
		ch:    make(chan Event, messageBuffer),
		kinds: kinds,
	}
	evt.subs[id] = sub

	return sub.ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.subs[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subs, id)
	close(sub.ch)

	return nil
}

// Shutdown closes and removes every subscriber.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.subs {
		delete(evt.subs, id)
		close(sub.ch)
	}
}

// Send delivers the event to every subscriber that wants its kind. Send
// never blocks. A subscriber with a full buffer misses the event and the
// drop is counted.
func (evt *Events) Send(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, sub := range evt.subs {
		if !sub.wants(e.Kind) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
			evt.dropped.Inc()
		}
	}
}

// Logf sends a log event built from the format and arguments. It matches
// the event handler signature the blockchain packages accept.
func (evt *Events) Logf(format string, args ...any) {
	evt.Send(Event{Kind: KindLog, Message: fmt.Sprintf(format, args...)})
}

// Subscribers returns the number of registered subscribers.
func (evt *Events) Subscribers() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.subs)
}

// Dropped returns the number of events subscribers missed because their
// buffer was full.
func (evt *Events) Dropped() uint64 {
	return evt.dropped.Load()
}
