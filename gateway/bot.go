// Package gateway implements the connection/RPC multiplexer: the WebSocket
// endpoint bot backends connect to, the per-identity connection registry,
// outbound action-call correlation via echo tokens, and routing of inbound
// frames to either a pending call or the plugin pipeline.
package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/c360/fastbot/errors"
	"github.com/c360/fastbot/event"
	"github.com/c360/fastbot/message"
	"github.com/c360/fastbot/metric"
	"github.com/c360/fastbot/pkg/worker"
	"github.com/c360/fastbot/plugin"
)

// Config carries the multiplexer settings.
type Config struct {
	// AccessToken, when non-empty, is the shared secret every handshake
	// must present in its Authorization header (bare, or with a Bearer or
	// Token prefix).
	AccessToken string
	// ReadLimit bounds a single inbound frame in bytes; 0 keeps the
	// transport default.
	ReadLimit int64
	// DispatchWorkers and DispatchQueue size the event dispatch pool.
	DispatchWorkers int
	DispatchQueue   int
}

// Dispatcher runs one inbound payload through the plugin pipeline. It is
// satisfied by *plugin.Manager.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload event.Payload, resolver plugin.Resolver)
}

// Bot is the root object owning all process-scoped multiplexer state:
// connection, pending-call, and reply-waiter registries, plus the dispatch
// pool. Registries are concurrency-safe; frames from different connections
// never corrupt shared state.
type Bot struct {
	cfg      Config
	upgrader websocket.Upgrader

	conns   *connRegistry
	calls   *callRegistry
	waiters *waiterRegistry

	dispatcher Dispatcher
	pool       *worker.Pool[event.Payload]
	metrics    *metric.Core
	logger     *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates the multiplexer. The dispatcher is normally the plugin
// manager; registry may be nil in tests.
func New(cfg Config, dispatcher Dispatcher, registry *metric.Registry, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		cfg:        cfg,
		conns:      newConnRegistry(),
		calls:      newCallRegistry(),
		waiters:    newWaiterRegistry(),
		dispatcher: dispatcher,
		logger:     logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if registry != nil {
		b.metrics = registry.Core
	}

	var opts []worker.Option[event.Payload]
	if registry != nil {
		opts = append(opts, worker.WithMetrics[event.Payload](registry, "dispatch"))
	}
	b.pool = worker.NewPool(cfg.DispatchWorkers, cfg.DispatchQueue, b.processPayload, opts...)
	return b
}

// Start launches the dispatch pool. ctx bounds every receive loop and
// dispatch the bot spawns.
func (b *Bot) Start(ctx context.Context) error {
	b.baseCtx, b.cancel = context.WithCancel(ctx)
	return b.pool.Start(b.baseCtx)
}

// Stop closes all connections and drains the dispatch pool.
func (b *Bot) Stop(timeout time.Duration) error {
	b.conns.CloseAll()
	err := b.pool.Stop(timeout)
	if b.cancel != nil {
		b.cancel()
	}
	return err
}

// Connections returns the number of live bot connections.
func (b *Bot) Connections() int { return b.conns.Len() }

// ServeHTTP is the WebSocket handshake endpoint. Checks run in protocol
// order: shared secret, then identity presence, syntax, and uniqueness.
// Each rejection closes this connection attempt only, never the process.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := b.authorize(r); err != nil {
		status := http.StatusForbidden
		if stderrors.Is(err, errors.ErrMissingAuthorization) {
			status = http.StatusUnauthorized
		}
		b.reject(w, r, status, err)
		return
	}

	selfID, err := b.identity(r)
	if err != nil {
		b.reject(w, r, http.StatusForbidden, err)
		return
	}

	// Reserve the identity before upgrading so two simultaneous
	// handshakes for the same identity cannot both be admitted.
	if err := b.conns.Reserve(selfID); err != nil {
		b.reject(w, r, http.StatusForbidden, err)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.conns.Release(selfID)
		b.countReject("upgrade")
		b.logger.Error("websocket upgrade failed", "self_id", selfID, "error", err)
		return
	}
	if b.cfg.ReadLimit > 0 {
		ws.SetReadLimit(b.cfg.ReadLimit)
	}

	conn := b.conns.Activate(selfID, ws)
	if b.metrics != nil {
		b.metrics.ConnectionsActive.Inc()
		b.metrics.ConnectionsTotal.Inc()
	}
	b.logger.Info("websocket connected", "self_id", selfID, "remote", r.RemoteAddr)

	go b.readLoop(conn)
}

// authorize enforces the configured shared secret. The token is accepted
// bare or with a Bearer/Token prefix; comparison is constant-time.
func (b *Bot) authorize(r *http.Request) error {
	if b.cfg.AccessToken == "" {
		return nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.ErrMissingAuthorization
	}

	var token string
	switch fields := strings.Fields(header); len(fields) {
	case 1:
		token = fields[0]
	case 2:
		scheme := strings.ToLower(fields[0])
		if scheme != "bearer" && scheme != "token" {
			return errors.ErrInvalidAuthorization
		}
		token = fields[1]
	default:
		return errors.ErrInvalidAuthorization
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(b.cfg.AccessToken)) != 1 {
		return errors.ErrInvalidAuthorization
	}
	return nil
}

// identity extracts and validates the X-Self-ID header.
func (b *Bot) identity(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-Self-ID")
	if raw == "" {
		return 0, errors.ErrMissingIdentity
	}
	selfID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || selfID <= 0 {
		return 0, errors.ErrInvalidIdentity
	}
	return selfID, nil
}

// reject refuses a handshake before the upgrade completes.
func (b *Bot) reject(w http.ResponseWriter, r *http.Request, status int, err error) {
	b.countReject(rejectReason(err))
	b.logger.Warn("handshake rejected", "remote", r.RemoteAddr, "error", err)
	http.Error(w, err.Error(), status)
}

func (b *Bot) countReject(reason string) {
	if b.metrics != nil {
		b.metrics.HandshakeRejected.WithLabelValues(reason).Inc()
	}
}

func rejectReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrMissingAuthorization), stderrors.Is(err, errors.ErrInvalidAuthorization):
		return "authorization"
	case stderrors.Is(err, errors.ErrMissingIdentity), stderrors.Is(err, errors.ErrInvalidIdentity):
		return "identity"
	case stderrors.Is(err, errors.ErrDuplicateIdentity):
		return "duplicate"
	default:
		return "other"
	}
}

// readLoop receives frames for one connection until the stream ends.
// Frames are decoded in arrival order, but each event frame is dispatched
// as an independent task: frame N+1 never waits for frame N's handlers.
func (b *Bot) readLoop(conn *Conn) {
	defer func() {
		b.conns.Release(conn.selfID)
		_ = conn.Close()
		if b.metrics != nil {
			b.metrics.ConnectionsActive.Dec()
		}
		// Pending calls scoped to this identity are left to their
		// callers' contexts; there is no cancellation broadcast.
		b.logger.Warn("websocket disconnected", "self_id", conn.selfID)
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Error("websocket read failed", "self_id", conn.selfID, "error", err)
			}
			return
		}
		b.handleFrame(data)
	}
}

// handleFrame classifies one inbound frame: a response iff its echo token
// matches a pending call, an event otherwise.
func (b *Bot) handleFrame(data []byte) {
	if echo := gjson.GetBytes(data, "echo"); echo.Exists() && b.calls.Has(echo.String()) {
		b.handleResponse(echo.String(), data)
		return
	}

	payload, err := decodePayload(data)
	if err != nil {
		b.countFrame("invalid")
		b.logger.Error("frame decode failed", "error", err)
		return
	}
	b.countFrame("event")

	if err := b.pool.Submit(payload); err != nil {
		if b.metrics != nil {
			b.metrics.DispatchDropped.Inc()
		}
		b.logger.Error("event dropped", "error", err)
	}
}

// processPayload is the dispatch pool's processor: one call per inbound
// event frame.
func (b *Bot) processPayload(ctx context.Context, payload event.Payload) {
	if b.metrics != nil {
		b.metrics.EventsDispatched.Inc()
	}
	b.dispatcher.Dispatch(ctx, payload, b)
}

// handleResponse resolves the pending call identified by token. A status
// other than "ok" resolves the call as a failure carrying the whole frame.
func (b *Bot) handleResponse(token string, data []byte) {
	b.countFrame("response")

	frame, err := decodePayload(data)
	if err != nil {
		b.logger.Error("response decode failed", "echo", token, "error", err)
		b.calls.Fail(token, event.Payload{"error": err.Error()})
		return
	}

	if event.Str(frame, "status") == "ok" {
		b.calls.Resolve(token, frame["data"])
		return
	}
	b.calls.Fail(token, frame)
}

func (b *Bot) countFrame(kind string) {
	if b.metrics != nil {
		b.metrics.FramesReceived.WithLabelValues(kind).Inc()
	}
}

// decodePayload decodes a frame into a payload map preserving numeric
// precision via json.Number.
func decodePayload(data []byte) (event.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload event.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.WrapInvalid(err, "Bot", "decodePayload", "frame decode")
	}
	return payload, nil
}

// actionFrame is the outbound action call wire shape.
type actionFrame struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Echo   string         `json:"echo"`
}

// Resolve implements plugin.Resolver: a freshly classified message event
// fulfills any outstanding reply waiter keyed by its addressee.
func (b *Bot) Resolve(ev event.Event) {
	if msg, ok := ev.(event.Messager); ok {
		b.waiters.Fulfill(msg)
	}
}

// Do dispatches an action call on the identity's connection and awaits the
// correlated response. selfID 0 selects the only connection when exactly
// one bot is connected. The echo token is unregistered on every exit path,
// including ctx cancellation, so the pending registry cannot leak.
func (b *Bot) Do(ctx context.Context, action string, selfID int64, params map[string]any) (any, error) {
	var conn *Conn
	var ok bool
	if selfID == 0 {
		if conn, ok = b.conns.Sole(); !ok {
			return nil, errors.WrapInvalid(errors.ErrNotConnected,
				"Bot", "Do", "identity must be specified with multiple connections")
		}
	} else if conn, ok = b.conns.Get(selfID); !ok {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Bot", "Do", action)
	}

	token := uuid.NewString()
	ch := b.calls.Register(token)
	defer b.calls.Remove(token)

	if b.metrics != nil {
		b.metrics.CallsPending.Inc()
		defer b.metrics.CallsPending.Dec()
	}

	frame, err := json.Marshal(actionFrame{Action: action, Params: params, Echo: token})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Bot", "Do", "frame encode")
	}

	b.logger.Debug("action call", "action", action, "self_id", conn.selfID, "echo", token)

	start := time.Now()
	if err := conn.WriteText(frame); err != nil {
		b.countCall("write_error")
		return nil, err
	}

	select {
	case res := <-ch:
		b.observeCall(start)
		if res.err != nil {
			b.countCall("failed")
			return nil, res.err
		}
		b.countCall("ok")
		return res.data, nil
	case <-ctx.Done():
		b.countCall("abandoned")
		return nil, errors.WrapTransient(ctx.Err(), "Bot", "Do", action)
	}
}

func (b *Bot) countCall(status string) {
	if b.metrics != nil {
		b.metrics.CallsTotal.WithLabelValues(status).Inc()
	}
}

func (b *Bot) observeCall(start time.Time) {
	if b.metrics != nil {
		b.metrics.CallDuration.Observe(time.Since(start).Seconds())
	}
}

// SendPrivateMessage sends chat content to a user. Content may be a
// string, Segment, *Message, or nested slice of those.
func (b *Bot) SendPrivateMessage(ctx context.Context, selfID, userID int64, content any) (any, error) {
	msg, err := message.From(content)
	if err != nil {
		return nil, err
	}
	return b.Do(ctx, "send_private_msg", selfID, map[string]any{
		"user_id": userID,
		"message": msg.Compact("").Segments(),
	})
}

// SendGroupMessage sends chat content to a group.
func (b *Bot) SendGroupMessage(ctx context.Context, selfID, groupID int64, content any) (any, error) {
	msg, err := message.From(content)
	if err != nil {
		return nil, err
	}
	return b.Do(ctx, "send_group_msg", selfID, map[string]any{
		"group_id": groupID,
		"message":  msg.Compact("").Segments(),
	})
}

// Reply sends chat content back to the addressee of msg.
func (b *Bot) Reply(ctx context.Context, msg event.Messager, content any) (any, error) {
	group, user := msg.Origin()
	if group != 0 {
		return b.SendGroupMessage(ctx, msg.SelfID(), group, content)
	}
	return b.SendPrivateMessage(ctx, msg.SelfID(), user, content)
}

// Defer replies to msg and awaits the addressee's next message. The waiter
// is registered before the send so a fast reply cannot slip past, and is
// removed unconditionally when the await exits. At most one waiter exists
// per addressee: a second concurrent Defer or WaitReply for the same
// addressee displaces the first, which fails with ErrWaiterReplaced.
func (b *Bot) Defer(ctx context.Context, msg event.Messager, content any) (event.Messager, error) {
	group, user := msg.Origin()
	key := waiterKey{group: group, user: user}
	ch := b.waiters.Register(key)
	defer b.waiters.Remove(key, ch)

	if _, err := b.Reply(ctx, msg, content); err != nil {
		return nil, err
	}
	return b.await(ctx, ch)
}

// WaitReply awaits the next message from msg's addressee without sending
// anything first.
func (b *Bot) WaitReply(ctx context.Context, msg event.Messager) (event.Messager, error) {
	group, user := msg.Origin()
	key := waiterKey{group: group, user: user}
	ch := b.waiters.Register(key)
	defer b.waiters.Remove(key, ch)
	return b.await(ctx, ch)
}

func (b *Bot) await(ctx context.Context, ch chan event.Messager) (event.Messager, error) {
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, errors.WrapTransient(errors.ErrWaiterReplaced, "Bot", "WaitReply", "await reply")
		}
		return reply, nil
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Bot", "WaitReply", "await reply")
	}
}
