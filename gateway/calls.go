package gateway

import (
	"fmt"
	"sync"

	"github.com/c360/fastbot/errors"
)

// callResult is the single resolution of a pending call: a decoded data
// payload or a failure carrying the whole response frame.
type callResult struct {
	data any
	err  error
}

// pendingCall is a one-shot future. The channel is buffered so resolution
// never blocks the read loop, and resolved guards against a remote side
// sending two responses for one token.
type pendingCall struct {
	ch       chan callResult
	resolved bool
}

// callRegistry tracks outbound calls awaiting correlation. Tokens are
// registered by Do and removed unconditionally on Do's exit path, never
// by the resolving side, so a token can be neither resolved twice nor
// leaked.
type callRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newCallRegistry() *callRegistry {
	return &callRegistry{pending: make(map[string]*pendingCall)}
}

// Register allocates the future for a token.
func (r *callRegistry) Register(token string) <-chan callResult {
	call := &pendingCall{ch: make(chan callResult, 1)}
	r.mu.Lock()
	r.pending[token] = call
	r.mu.Unlock()
	return call.ch
}

// Remove deletes a token. Safe to call whether or not the call resolved.
func (r *callRegistry) Remove(token string) {
	r.mu.Lock()
	delete(r.pending, token)
	r.mu.Unlock()
}

// Has reports whether token identifies a pending call. The read loop uses
// it to classify frames: a frame is a response iff its echo matches here.
func (r *callRegistry) Has(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[token]
	return ok
}

// Len returns the number of pending calls.
func (r *callRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Resolve fulfills a pending call with a success payload.
func (r *callRegistry) Resolve(token string, data any) {
	r.deliver(token, callResult{data: data})
}

// Fail fulfills a pending call with a failure value carrying the response
// frame, so the awaiting caller observes it as an error.
func (r *callRegistry) Fail(token string, frame map[string]any) {
	r.deliver(token, callResult{
		err: errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCallFailed, frame),
			"Bot", "Do", "action call"),
	})
}

func (r *callRegistry) deliver(token string, res callResult) {
	r.mu.Lock()
	call, ok := r.pending[token]
	if ok && !call.resolved {
		call.resolved = true
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		call.ch <- res
	}
}
