package gateway

import (
	"sync"

	"github.com/c360/fastbot/event"
)

// waiterKey identifies an addressee: a user, or a user within a group.
// Group is 0 for private conversations.
type waiterKey struct {
	group int64
	user  int64
}

// waiterRegistry tracks one-shot reply waiters keyed by addressee. Each
// addressee has at most one outstanding waiter: registering a second wait
// for the same key replaces the first, whose channel is closed so its
// caller fails fast with ErrWaiterReplaced instead of hanging forever.
type waiterRegistry struct {
	mu      sync.Mutex
	waiters map[waiterKey]chan event.Messager
}

func newWaiterRegistry() *waiterRegistry {
	return &waiterRegistry{waiters: make(map[waiterKey]chan event.Messager)}
}

// Register installs a waiter for the addressee, displacing any previous
// one.
func (r *waiterRegistry) Register(key waiterKey) chan event.Messager {
	ch := make(chan event.Messager, 1)
	r.mu.Lock()
	if old, ok := r.waiters[key]; ok {
		close(old)
	}
	r.waiters[key] = ch
	r.mu.Unlock()
	return ch
}

// Remove deregisters the waiter if ch is still the one installed. Called
// unconditionally on the awaiting side's exit path.
func (r *waiterRegistry) Remove(key waiterKey, ch chan event.Messager) {
	r.mu.Lock()
	if cur, ok := r.waiters[key]; ok && cur == ch {
		delete(r.waiters, key)
	}
	r.mu.Unlock()
}

// Fulfill resolves the waiter matching the message's addressee, if any.
// Invoked for every message event as it is classified, before handler
// fan-out.
func (r *waiterRegistry) Fulfill(msg event.Messager) {
	group, user := msg.Origin()
	key := waiterKey{group: group, user: user}

	r.mu.Lock()
	ch, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()

	if ok {
		ch <- msg
	}
}

// Len returns the number of outstanding waiters.
func (r *waiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
