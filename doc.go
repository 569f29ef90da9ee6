// Package fastbot is an event-driven automation hub for chat bots speaking
// the OneBot v11 JSON-over-WebSocket protocol.
//
// # Architecture
//
// Bot backends connect to the hub as WebSocket clients (reverse WebSocket).
// The hub multiplexes any number of bot identities over one endpoint,
// classifies every inbound frame, and either correlates it with a pending
// outbound action call or dispatches it through the plugin pipeline.
//
//	┌─────────────┐   ws    ┌─────────────────────────────────────┐
//	│ bot backend │────────►│              gateway                │
//	│  (self_id)  │◄────────│  handshake │ conn registry │ calls  │
//	└─────────────┘         └──────┬──────────────────────────────┘
//	                               │ event frames (worker pool)
//	                               ▼
//	                        ┌─────────────┐
//	                        │   plugin    │  middleware chain,
//	                        │   manager   │  concurrent handlers
//	                        └──────┬──────┘
//	                               │ builds
//	                               ▼
//	                        ┌─────────────┐
//	                        │    event    │  typed hierarchy over
//	                        │             │  raw payload maps
//	                        └─────────────┘
//
// Outbound action calls are correlated by echo token: every call carries a
// unique token, and a response frame is recognized by carrying a token with
// a pending call registered for it. Handlers can also await the next
// message from an addressee through reply waiters, which the gateway
// fulfills as message events are classified.
//
// # Packages
//
// Core:
//   - gateway: WebSocket endpoint, connection registry, call correlation,
//     reply waiters
//   - plugin: plugin registry, middleware and postprocessor chains, handler
//     fan-out
//   - event: payload classification into a typed event hierarchy
//   - matcher: composable predicates over events, command matching
//   - message: segment model and deque message container
//
// Infrastructure:
//   - config: layered configuration (defaults, JSON file, environment)
//   - errors: classified error handling
//   - metric: Prometheus metrics registry
//   - pkg/worker: generic worker pool
//
// # Usage
//
// A plugin registers middleware and handlers during setup:
//
//	func Setup(p *plugin.Plugin, api plugin.Caller) error {
//		cmd := matcher.NewCommand([]string{"/echo"}, matcher.WithStrip())
//		plugin.On(p, cmd.Matcher(), func(ctx context.Context, ev event.Messager) error {
//			_, err := api.Reply(ctx, ev, ev.Text())
//			return err
//		})
//		return nil
//	}
//
// Plugins are compiled with -buildmode=plugin and loaded from the paths in
// the configuration, or registered in-process via Manager.Register.
package fastbot
