package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/c360/fastbot/errors"
	"github.com/c360/fastbot/event"
)

// Resolver fulfills outstanding reply waiters when a matching event is
// built. Implemented by the gateway.
type Resolver interface {
	Resolve(ev event.Event)
}

// Stats counts dispatch outcomes, read by the gateway's metrics.
type Stats struct {
	Dispatched       int64
	StoppedEarly     int64
	MiddlewareError  int64
	PostprocessError int64
	HandlerError     int64
}

// Manager owns the plugin registry and runs the dispatch pipeline. All
// registry access is concurrency-safe; dispatches for different frames run
// concurrently.
type Manager struct {
	mu         sync.RWMutex
	plugins    map[string]*Plugin
	loading    map[string]struct{}
	merged     []middlewareEntry
	mergedPost []middlewareEntry
	stale      bool

	caller Caller
	logger *slog.Logger

	statsMu sync.Mutex
	stats   Stats
}

// NewManager returns an empty plugin manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		plugins: make(map[string]*Plugin),
		loading: make(map[string]struct{}),
		logger:  logger.With("component", "plugin_manager"),
	}
}

// Bind sets the action surface passed to plugin setup functions. It must be
// called before plugins are registered.
func (m *Manager) Bind(c Caller) {
	m.mu.Lock()
	m.caller = c
	m.mu.Unlock()
}

// Register creates a plugin named name and runs setup to populate it. A
// setup failure is logged, not fatal: the plugin is kept if it managed to
// register anything, and discarded if it ended up empty. Only a duplicate
// name is reported as an error to the caller. The plugin is published into
// the registry only after setup returns, so dispatches that interleave with
// a load never observe a half-populated plugin and the merged chains pick
// up everything setup registered.
func (m *Manager) Register(name string, setup SetupFunc) error {
	m.mu.Lock()
	_, registered := m.plugins[name]
	_, inFlight := m.loading[name]
	if registered || inFlight {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrPluginExists, "Manager", "Register", name)
	}
	m.loading[name] = struct{}{}
	caller := m.caller
	m.mu.Unlock()

	p := &Plugin{name: name}
	err := m.runSetup(p, caller, setup)
	if err != nil {
		m.logger.Error("plugin setup failed", "plugin", name, "error", err)
	}

	m.mu.Lock()
	delete(m.loading, name)
	if p.registrations() > 0 {
		m.plugins[name] = p
		m.stale = true
	}
	m.mu.Unlock()

	if p.registrations() == 0 {
		if err == nil {
			m.logger.Warn("plugin registered nothing, discarding", "plugin", name)
		}
		return nil
	}

	m.logger.Info("loaded plugin", "plugin", name,
		"middlewares", len(p.middlewares), "postprocessors", len(p.postprocessors),
		"handlers", len(p.handlers))
	return nil
}

// runSetup executes setup with panic containment.
func (m *Manager) runSetup(p *Plugin, caller Caller, setup SetupFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapInvalid(
				fmt.Errorf("%w: panic: %v", errors.ErrPluginLoad, r),
				"Manager", "Register", "setup execution")
		}
	}()
	return setup(p, caller)
}

// Unregister removes a plugin from the registry. In-flight dispatches keep
// their handler snapshot.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[name]; !ok {
		return errors.WrapInvalid(errors.ErrPluginUnknown, "Manager", "Unregister", name)
	}
	delete(m.plugins, name)
	m.stale = true
	return nil
}

// Get returns a registered plugin by name.
func (m *Manager) Get(name string) (*Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// Names returns the registered plugin names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := lo.Keys(m.plugins)
	sort.Strings(names)
	return names
}

// chains returns the merged middleware and postprocessor entries of all
// plugins in ascending priority order, rebuilding the cached chains after
// registry changes. Entries with equal priority keep plugin-name order so
// the chains are deterministic.
func (m *Manager) chains() (pre, post []middlewareEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale {
		names := lo.Keys(m.plugins)
		sort.Strings(names)
		m.merged = mergeEntries(names, m.plugins, func(p *Plugin) []middlewareEntry {
			return p.middlewares
		})
		m.mergedPost = mergeEntries(names, m.plugins, func(p *Plugin) []middlewareEntry {
			return p.postprocessors
		})
		m.stale = false
	}
	return m.merged, m.mergedPost
}

func mergeEntries(names []string, plugins map[string]*Plugin, pick func(*Plugin) []middlewareEntry) []middlewareEntry {
	merged := lo.FlatMap(names, func(name string, _ int) []middlewareEntry {
		return pick(plugins[name])
	})
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].priority < merged[j].priority
	})
	return merged
}

// enabledHandlers snapshots the handlers of all currently enabled plugins.
// The enabled flag is read here, at dispatch time, so toggling a plugin off
// suppresses future dispatch without unloading it.
func (m *Manager) enabledHandlers() []Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Handler
	for _, p := range m.plugins {
		if p.Enabled() {
			out = append(out, p.handlers...)
		}
	}
	return out
}

// Dispatch runs one inbound payload through the pipeline: middleware in
// priority order, then event construction, waiter resolution, concurrent
// handler fan-out, and finally postprocessors in priority order. Every
// middleware, handler, and postprocessor failure is isolated and logged;
// nothing propagates to siblings or to the caller. Postprocessors run even
// when a middleware stops the dispatch.
func (m *Manager) Dispatch(ctx context.Context, payload event.Payload, resolver Resolver) {
	pre, post := m.chains()
	defer func() {
		for _, entry := range post {
			m.runPostprocess(ctx, entry, payload)
		}
	}()

	for _, entry := range pre {
		m.runMiddleware(ctx, entry, payload)
		if len(payload) == 0 {
			m.statsMu.Lock()
			m.stats.StoppedEarly++
			m.statsMu.Unlock()
			m.logger.Debug("dispatch stopped by middleware", "plugin", entry.plugin)
			return
		}
	}

	ev := event.BuildFrom(payload)
	m.logEvent(ev)

	if resolver != nil {
		resolver.Resolve(ev)
	}

	handlers := m.enabledHandlers()
	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			m.runHandler(ctx, h, ev)
		}(h)
	}
	wg.Wait()

	m.statsMu.Lock()
	m.stats.Dispatched++
	m.statsMu.Unlock()
}

// runMiddleware executes one middleware with panic containment.
func (m *Manager) runMiddleware(ctx context.Context, entry middlewareEntry, payload event.Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.statsMu.Lock()
			m.stats.MiddlewareError++
			m.statsMu.Unlock()
			m.logger.Error("middleware panicked", "plugin", entry.plugin,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	entry.fn(ctx, payload)
}

// runPostprocess executes one postprocessor with panic containment.
func (m *Manager) runPostprocess(ctx context.Context, entry middlewareEntry, payload event.Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.statsMu.Lock()
			m.stats.PostprocessError++
			m.statsMu.Unlock()
			m.logger.Error("postprocessor panicked", "plugin", entry.plugin,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	entry.fn(ctx, payload)
}

// runHandler executes one handler with panic containment. A failing handler
// degrades silently from the operator's perspective: logged only.
func (m *Manager) runHandler(ctx context.Context, h Handler, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.statsMu.Lock()
			m.stats.HandlerError++
			m.statsMu.Unlock()
			m.logger.Error("handler panicked", "post_type", ev.PostType(),
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := h(ctx, ev); err != nil {
		m.statsMu.Lock()
		m.stats.HandlerError++
		m.statsMu.Unlock()
		m.logger.Error("handler failed", "post_type", ev.PostType(), "error", err)
	}
}

// logEvent records the classified event at a level matching its noise.
func (m *Manager) logEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.Messager:
		group, user := e.Origin()
		m.logger.Info("message event", "self_id", e.SelfID(),
			"group_id", group, "user_id", user, "text", truncate(e.Text(), 79))
	case *event.HeartbeatMeta:
		m.logger.Debug("heartbeat", "self_id", e.SelfID())
	default:
		m.logger.Debug("event", "post_type", ev.PostType(), "self_id", ev.SelfID())
	}
}

// Stats returns a copy of the dispatch counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// truncate shortens s to width runes for logging. Chat text is often
// multibyte, so slicing happens on rune boundaries.
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width]) + "..."
}
