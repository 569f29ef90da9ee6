package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fastbot/errors"
	"github.com/c360/fastbot/event"
	"github.com/c360/fastbot/plugin"
)

// recordingDispatcher resolves waiters the way the plugin pipeline does and
// hands each payload to the test.
type recordingDispatcher struct {
	payloads chan event.Payload
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{payloads: make(chan event.Payload, 16)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, payload event.Payload, resolver plugin.Resolver) {
	if resolver != nil {
		resolver.Resolve(event.BuildFrom(payload))
	}
	d.payloads <- payload
}

func newTestBot(t *testing.T, cfg Config) (*Bot, *recordingDispatcher, *httptest.Server) {
	t.Helper()
	if cfg.DispatchWorkers == 0 {
		cfg.DispatchWorkers = 2
	}
	if cfg.DispatchQueue == 0 {
		cfg.DispatchQueue = 16
	}
	d := newRecordingDispatcher()
	b := New(cfg, d, nil, nil)
	require.NoError(t, b.Start(context.Background()))

	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		srv.Close()
		_ = b.Stop(time.Second)
	})
	return b, d, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func mustDial(t *testing.T, srv *httptest.Server, selfID string) *websocket.Conn {
	t.Helper()
	ws, _, err := dial(t, srv, http.Header{"X-Self-ID": {selfID}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestHandshake_AccessToken(t *testing.T) {
	b, _, srv := newTestBot(t, Config{AccessToken: "sekrit"})

	_, resp, err := dial(t, srv, http.Header{"X-Self-ID": {"1"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, http.Header{
		"X-Self-ID":     {"1"},
		"Authorization": {"Bearer wrong"},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, auth := range []string{"sekrit", "Bearer sekrit", "Token sekrit"} {
		ws, _, err := dial(t, srv, http.Header{
			"X-Self-ID":     {"1"},
			"Authorization": {auth},
		})
		require.NoError(t, err, auth)
		_ = ws.Close()
		waitFor(t, func() bool { return b.Connections() == 0 })
	}
}

func TestHandshake_Identity(t *testing.T) {
	_, _, srv := newTestBot(t, Config{})

	_, resp, err := dial(t, srv, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, bad := range []string{"abc", "-5", "0", "12x"} {
		_, resp, err := dial(t, srv, http.Header{"X-Self-ID": {bad}})
		require.Error(t, err, bad)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestHandshake_DuplicateIdentity(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})

	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	_, resp, err := dial(t, srv, http.Header{"X-Self-ID": {"42"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A different identity is unaffected.
	mustDial(t, srv, "43")
	waitFor(t, func() bool { return b.Connections() == 2 })

	// Re-admission after the first connection goes away.
	_ = ws.Close()
	waitFor(t, func() bool { return b.Connections() == 1 })
	mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 2 })
}

func TestDo_RoundTrip(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	type result struct {
		data any
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := b.Do(context.Background(), "get_status", 42, map[string]any{"probe": true})
		done <- result{data, err}
	}()

	var frame actionFrame
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, "get_status", frame.Action)
	assert.Equal(t, true, frame.Params["probe"])
	require.NotEmpty(t, frame.Echo)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"status":  "ok",
		"retcode": 0,
		"data":    map[string]any{"online": true},
		"echo":    frame.Echo,
	}))

	res := <-done
	require.NoError(t, res.err)
	data, ok := res.data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["online"])

	// The token is unregistered once the call completes.
	assert.Equal(t, 0, b.calls.Len())
}

func TestDo_FailedResponse(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	done := make(chan error, 1)
	go func() {
		_, err := b.Do(context.Background(), "get_status", 42, nil)
		done <- err
	}()

	var frame actionFrame
	require.NoError(t, ws.ReadJSON(&frame))
	require.NoError(t, ws.WriteJSON(map[string]any{
		"status":  "failed",
		"retcode": 100,
		"echo":    frame.Echo,
	}))

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCallFailed)
	assert.Equal(t, 0, b.calls.Len())
}

func TestDo_ContextCancelled(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	_ = mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Do(ctx, "get_status", 42, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// The abandoned token does not linger.
	assert.Equal(t, 0, b.calls.Len())
}

func TestDo_NotConnected(t *testing.T) {
	b, _, _ := newTestBot(t, Config{})
	_, err := b.Do(context.Background(), "get_status", 42, nil)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestDo_SoleConnection(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	done := make(chan error, 1)
	go func() {
		_, err := b.Do(context.Background(), "get_status", 0, nil)
		done <- err
	}()

	var frame actionFrame
	require.NoError(t, ws.ReadJSON(&frame))
	require.NoError(t, ws.WriteJSON(map[string]any{
		"status": "ok", "data": nil, "echo": frame.Echo,
	}))
	require.NoError(t, <-done)

	// Ambiguous with two connections.
	mustDial(t, srv, "43")
	waitFor(t, func() bool { return b.Connections() == 2 })
	_, err := b.Do(context.Background(), "get_status", 0, nil)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestDo_ConcurrentCallsKeepDistinctTokens(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	results := make(chan string, 2)
	call := func(action string) {
		data, err := b.Do(context.Background(), action, 42, nil)
		if err != nil {
			results <- err.Error()
			return
		}
		results <- data.(string)
	}
	go call("first")
	go call("second")

	// Answer both calls in reverse arrival order; correlation is by token,
	// not ordering.
	var frames []actionFrame
	for len(frames) < 2 {
		var f actionFrame
		require.NoError(t, ws.ReadJSON(&f))
		frames = append(frames, f)
	}
	require.NotEqual(t, frames[0].Echo, frames[1].Echo)

	for i := len(frames) - 1; i >= 0; i-- {
		require.NoError(t, ws.WriteJSON(map[string]any{
			"status": "ok", "data": frames[i].Action, "echo": frames[i].Echo,
		}))
	}

	got := map[string]bool{<-results: true, <-results: true}
	assert.True(t, got["first"])
	assert.True(t, got["second"])
}

func TestEventFrame_Dispatched(t *testing.T) {
	b, d, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	require.NoError(t, ws.WriteJSON(map[string]any{
		"post_type":    "message",
		"message_type": "private",
		"self_id":      42,
		"user_id":      7,
		"message": []any{
			map[string]any{"type": "text", "data": map[string]any{"text": "hi"}},
		},
	}))

	select {
	case payload := <-d.payloads:
		assert.Equal(t, "message", event.Str(payload, "post_type"))
		assert.Equal(t, int64(42), event.Int(payload, "self_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("event frame not dispatched")
	}
}

func TestEventFrame_InvalidJSONIgnored(t *testing.T) {
	b, d, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))

	// The connection survives; a later valid frame still flows.
	require.NoError(t, ws.WriteJSON(map[string]any{"post_type": "meta_event"}))
	select {
	case payload := <-d.payloads:
		assert.Equal(t, "meta_event", event.Str(payload, "post_type"))
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after invalid one not dispatched")
	}
}

func TestWaitReply_FulfilledByNextMessage(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	first := event.BuildFrom(event.Payload{
		"post_type":    "message",
		"message_type": "private",
		"self_id":      json.Number("42"),
		"user_id":      json.Number("7"),
	}).(event.Messager)

	type reply struct {
		msg event.Messager
		err error
	}
	done := make(chan reply, 1)
	go func() {
		msg, err := b.WaitReply(context.Background(), first)
		done <- reply{msg, err}
	}()

	waitFor(t, func() bool { return b.waiters.Len() == 1 })

	require.NoError(t, ws.WriteJSON(map[string]any{
		"post_type":    "message",
		"message_type": "private",
		"self_id":      42,
		"user_id":      7,
		"message": []any{
			map[string]any{"type": "text", "data": map[string]any{"text": "the answer"}},
		},
	}))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "the answer", res.msg.Text())
	assert.Equal(t, 0, b.waiters.Len())
}

func TestWaitReply_DisplacedWaiterFails(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	_ = mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	first := event.BuildFrom(event.Payload{
		"post_type":    "message",
		"message_type": "private",
		"self_id":      json.Number("42"),
		"user_id":      json.Number("7"),
	}).(event.Messager)

	errCh := make(chan error, 1)
	go func() {
		_, err := b.WaitReply(context.Background(), first)
		errCh <- err
	}()
	waitFor(t, func() bool { return b.waiters.Len() == 1 })

	// A second waiter for the same addressee displaces the first.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go func() { _, _ = b.WaitReply(ctx, first) }()

	err := <-errCh
	assert.ErrorIs(t, err, errors.ErrWaiterReplaced)
}

func TestReply_RoutesByOrigin(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	ws := mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	group := event.BuildFrom(event.Payload{
		"post_type":    "message",
		"message_type": "group",
		"self_id":      json.Number("42"),
		"group_id":     json.Number("300"),
		"user_id":      json.Number("7"),
	}).(event.Messager)

	done := make(chan error, 1)
	go func() {
		_, err := b.Reply(context.Background(), group, "pong")
		done <- err
	}()

	var frame actionFrame
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, "send_group_msg", frame.Action)
	assert.Equal(t, float64(300), frame.Params["group_id"])

	require.NoError(t, ws.WriteJSON(map[string]any{
		"status": "ok", "data": nil, "echo": frame.Echo,
	}))
	require.NoError(t, <-done)
}

func TestSendPrivateMessage_UnsupportedContent(t *testing.T) {
	b, _, srv := newTestBot(t, Config{})
	_ = mustDial(t, srv, "42")
	waitFor(t, func() bool { return b.Connections() == 1 })

	_, err := b.SendPrivateMessage(context.Background(), 42, 7, 12345)
	assert.ErrorIs(t, err, errors.ErrUnsupportedContent)
}
