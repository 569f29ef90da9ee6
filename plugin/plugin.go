// Package plugin implements the dispatch pipeline: ordered middleware over
// the raw inbound payload, followed by concurrent fan-out to registered
// handlers, each pre-filtered by declared event type and matcher. Plugins
// register middleware and handlers explicitly during load; a disabled
// plugin keeps its registrations but is skipped at dispatch time.
package plugin

import (
	"context"
	"sync/atomic"

	"github.com/c360/fastbot/event"
	"github.com/c360/fastbot/matcher"
)

// Caller is the action surface handlers use to talk back to connected
// backends. It is implemented by the gateway.
type Caller interface {
	// Do dispatches an action call on the identity's connection and awaits
	// the correlated response.
	Do(ctx context.Context, action string, selfID int64, params map[string]any) (any, error)
	// SendPrivateMessage sends chat content to a user.
	SendPrivateMessage(ctx context.Context, selfID, userID int64, content any) (any, error)
	// SendGroupMessage sends chat content to a group.
	SendGroupMessage(ctx context.Context, selfID, groupID int64, content any) (any, error)
	// Reply sends chat content back to the addressee of msg.
	Reply(ctx context.Context, msg event.Messager, content any) (any, error)
	// Defer replies to msg and awaits the addressee's next message.
	Defer(ctx context.Context, msg event.Messager, content any) (event.Messager, error)
}

// SetupFunc wires a plugin's middleware and handlers during load.
type SetupFunc func(p *Plugin, api Caller) error

// MiddlewareFunc runs ahead of event construction and may mutate the raw
// payload in place. Clearing the payload (the clear builtin) stops the
// dispatch before any event is built. The same signature serves the
// postprocess phase, which observes the payload after handler fan-out.
type MiddlewareFunc func(ctx context.Context, payload event.Payload)

// Handler processes one classified event.
type Handler func(ctx context.Context, ev event.Event) error

// middlewareEntry pairs a middleware with its priority.
type middlewareEntry struct {
	priority int
	plugin   string
	fn       MiddlewareFunc
}

// Plugin is one loaded unit: an enabled flag, its middleware and
// postprocessor entries, and its handlers. Registration happens during
// setup, before the manager publishes the plugin, so the slices need no
// locking of their own.
type Plugin struct {
	name     string
	disabled atomic.Bool

	middlewares    []middlewareEntry
	postprocessors []middlewareEntry
	handlers       []Handler
}

// Name returns the plugin's registration name.
func (p *Plugin) Name() string { return p.name }

// Enabled reports whether the plugin participates in dispatch.
func (p *Plugin) Enabled() bool { return !p.disabled.Load() }

// Enable resumes dispatch to the plugin's handlers.
func (p *Plugin) Enable() { p.disabled.Store(false) }

// Disable suppresses future dispatch without unloading. In-flight handlers
// run to completion.
func (p *Plugin) Disable() { p.disabled.Store(true) }

// Middleware registers fn to run at the given priority ahead of handler
// dispatch. Lower priorities run first; entries across all plugins merge
// into one total order.
func (p *Plugin) Middleware(priority int, fn MiddlewareFunc) {
	p.middlewares = append(p.middlewares, middlewareEntry{
		priority: priority,
		plugin:   p.name,
		fn:       fn,
	})
}

// Postprocess registers fn to run after handler fan-out for a dispatch
// completes. Lower priorities run first, merged across all plugins like
// middleware. Postprocessors observe the raw payload and run even when a
// middleware stopped the dispatch by clearing it.
func (p *Plugin) Postprocess(priority int, fn MiddlewareFunc) {
	p.postprocessors = append(p.postprocessors, middlewareEntry{
		priority: priority,
		plugin:   p.name,
		fn:       fn,
	})
}

// OnEvent registers a handler for every event type, optionally filtered by
// a matcher.
func (p *Plugin) OnEvent(m *matcher.Matcher, fn Handler) {
	p.handlers = append(p.handlers, func(ctx context.Context, ev event.Event) error {
		if m != nil && !m.Match(ev) {
			return nil
		}
		return fn(ctx, ev)
	})
}

// On registers a handler accepting only events of type E, optionally
// filtered by a matcher. The type parameter plays the role of the handler's
// declared event type: a concrete event pointer, or an interface such as
// event.Messager for a union of types. The type check runs before the
// matcher so cheap rejection comes first.
func On[E event.Event](p *Plugin, m *matcher.Matcher, fn func(ctx context.Context, ev E) error) {
	p.handlers = append(p.handlers, func(ctx context.Context, ev event.Event) error {
		typed, ok := ev.(E)
		if !ok {
			return nil
		}
		if m != nil && !m.Match(ev) {
			return nil
		}
		return fn(ctx, typed)
	})
}

// registrations reports how many middleware, postprocessors, and handlers
// the plugin holds.
func (p *Plugin) registrations() int {
	return len(p.middlewares) + len(p.postprocessors) + len(p.handlers)
}
