// Package eventbus implements a synchronous publish/subscribe bus keyed by event name,
// generalized to MQTT-style patterns via github.com/amir-yaghoubi/mqttpattern so a caller
// can subscribe to "RECORD_#" as well as an exact "HEARTBEAT_TIMEOUT".
//
// Subscription matching is exact unless the pattern contains a '#' or '+' wildcard. A
// pattern ending in '#' right after a name prefix (e.g. "RECORD_#") matches every event
// name starting with that prefix; any other wildcard pattern is decided by
// mqttpattern.Matches. Dispatch is deliberately synchronous: Publish
// calls every matching handler directly on the caller's goroutine rather than handing the
// event to a consumer goroutine over a channel, so a Connection Core state change is
// guaranteed to have reached every subscriber before the call that published it returns.
// Each handler invocation is wrapped in a recover so one panicking subscriber cannot break
// delivery to the rest.
package eventbus

import (
	"strings"
	"sync"

	"github.com/amir-yaghoubi/mqttpattern"
	"go.uber.org/zap"
)

// Handler receives one event's payload.
type Handler func(event string, payload any)

type matcher func(event string) bool

// Bus is a synchronous, pattern-matching publish/subscribe hub.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[int]subscription
	next int
}

type subscription struct {
	pattern string
	match   matcher
	handler Handler
}

// New creates an empty Bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]subscription),
	}
}

// SubscriptionID identifies one On() registration so it can be removed with Off.
type SubscriptionID int

// On registers handler for events matching pattern (an exact name or an MQTT-style
// pattern such as "RECORD_#"). It returns an id usable with Off.
func (b *Bus) On(pattern string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next

	var match matcher
	if n := len(pattern); n > 1 && pattern[n-1] == '#' && pattern[n-2] != '/' {
		prefix := pattern[:n-1]
		match = func(event string) bool { return strings.HasPrefix(event, prefix) }
	} else if strings.ContainsAny(pattern, "#+") {
		match = func(event string) bool { return mqttpattern.Matches(pattern, event) }
	} else {
		match = func(event string) bool { return event == pattern }
	}

	b.subs[id] = subscription{pattern: pattern, match: match, handler: handler}
	return SubscriptionID(id)
}

// Off removes a subscription previously returned by On.
func (b *Bus) Off(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, int(id))
}

// Publish delivers payload to every subscription whose pattern matches event, synchronously,
// in the calling goroutine. A handler that panics is recovered and logged; delivery to the
// remaining subscribers continues (§4.E).
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.match(event) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		b.deliver(event, payload, h)
	}
}

func (b *Bus) deliver(event string, payload any, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: subscriber panicked",
				zap.String("event", event),
				zap.Any("recovered", r),
			)
		}
	}()
	h(event, payload)
}

