package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fastbot/event"
)

func privateMessage(userID int64, text string) event.Event {
	return event.BuildFrom(event.Payload{
		"post_type":    "message",
		"message_type": "private",
		"self_id":      "10001",
		"user_id":      userID,
		"message": []any{
			map[string]any{"type": "text", "data": map[string]any{"text": text}},
		},
	})
}

func groupMessage(groupID, userID int64, body []any) event.Event {
	return event.BuildFrom(event.Payload{
		"post_type":    "message",
		"message_type": "group",
		"self_id":      "10001",
		"group_id":     groupID,
		"user_id":      userID,
		"message":      body,
	})
}

func TestMatcher_Always(t *testing.T) {
	assert.True(t, Always().Match(privateMessage(1, "x")))
}

func TestMatcher_AndOr(t *testing.T) {
	ev := privateMessage(42, "hello world")

	m := FromUser(42).And(KeywordOf("hello"))
	assert.True(t, m.Match(ev))

	m = FromUser(42).And(KeywordOf("absent"))
	assert.False(t, m.Match(ev))

	m = FromUser(99).Or(KeywordOf("hello"))
	assert.True(t, m.Match(ev))

	m = FromUser(99).Or(KeywordOf("absent"))
	assert.False(t, m.Match(ev))
}

func TestMatcher_AndAccumulates(t *testing.T) {
	// Chaining onto an and-node extends its term list instead of nesting.
	m := Always().And(Always()).And(Always())
	assert.Equal(t, "and", m.op)
	assert.Len(t, m.subs, 3)

	o := Always().Or(Always()).Or(Always())
	assert.Equal(t, "or", o.op)
	assert.Len(t, o.subs, 3)

	// Mixing operators wraps rather than flattens.
	mixed := m.Or(Always())
	assert.Equal(t, "or", mixed.op)
	assert.Len(t, mixed.subs, 2)
}

func TestMatcher_Not(t *testing.T) {
	ev := privateMessage(42, "hello")
	assert.False(t, Not(FromUser(42)).Match(ev))
	assert.True(t, Not(FromUser(99)).Match(ev))
}

func TestMatcher_PanicFailsClosed(t *testing.T) {
	panicky := New(func(event.Event) bool { panic("boom") })
	assert.False(t, panicky.Match(privateMessage(1, "x")))

	// The panic does not leak into sibling terms.
	assert.True(t, panicky.Or(Always()).Match(privateMessage(1, "x")))
}

func TestMatcher_FromGroup(t *testing.T) {
	grp := groupMessage(300, 42, nil)
	assert.True(t, FromGroup(300).Match(grp))
	assert.False(t, FromGroup(301).Match(grp))
	// Private messages carry no group.
	assert.False(t, FromGroup(300).Match(privateMessage(42, "x")))
}

func TestMatcher_ToMe(t *testing.T) {
	mention := []any{
		map[string]any{"type": "at", "data": map[string]any{"qq": "10001"}},
		map[string]any{"type": "text", "data": map[string]any{"text": " hi"}},
	}
	assert.True(t, ToMe().Match(groupMessage(300, 42, mention)))

	other := []any{
		map[string]any{"type": "at", "data": map[string]any{"qq": "99999"}},
	}
	assert.False(t, ToMe().Match(groupMessage(300, 42, other)))

	all := []any{
		map[string]any{"type": "at", "data": map[string]any{"qq": "all"}},
	}
	assert.True(t, ToMe().Match(groupMessage(300, 42, all)))

	assert.False(t, ToMe().Match(privateMessage(42, "no mention")))
}

func TestMatcher_OfType(t *testing.T) {
	msg := privateMessage(1, "x")
	hb := event.BuildFrom(event.Payload{"post_type": "meta_event"})

	m := OfType("message", "notice")
	assert.True(t, m.Match(msg))
	assert.False(t, m.Match(hb))
}

func TestMatcher_PrefixKeyword(t *testing.T) {
	ev := privateMessage(1, "!status now")
	assert.True(t, PrefixOf("!", "/").Match(ev))
	assert.False(t, PrefixOf("#").Match(ev))
	assert.True(t, KeywordOf("status").Match(ev))
	assert.False(t, KeywordOf("nothing").Match(ev))
}

func TestMatcher_NonMessageEvents(t *testing.T) {
	hb := event.BuildFrom(event.Payload{"post_type": "meta_event", "meta_event_type": "heartbeat"})
	require.NotNil(t, hb)
	assert.False(t, FromUser(1).Match(hb))
	assert.False(t, ToMe().Match(hb))
	assert.False(t, PrefixOf("!").Match(hb))
	assert.True(t, Always().Match(hb))
}
