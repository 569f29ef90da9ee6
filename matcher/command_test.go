package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fastbot/event"
)

func TestCommand_Match(t *testing.T) {
	cmd := NewCommand([]string{"/echo", "/say"})
	m := cmd.Matcher()

	assert.True(t, m.Match(privateMessage(1, "/echo hello")))
	assert.True(t, m.Match(privateMessage(1, "please /say something")))
	assert.False(t, m.Match(privateMessage(1, "/other hello")))
	assert.False(t, m.Match(privateMessage(1, "")))
}

func TestCommand_Separator(t *testing.T) {
	cmd := NewCommand([]string{"/echo"}, WithSeparator(","))
	m := cmd.Matcher()

	assert.True(t, m.Match(privateMessage(1, "/echo,hello")))
	assert.False(t, m.Match(privateMessage(1, "/echo hello")))
}

func TestCommand_Strip(t *testing.T) {
	cmd := NewCommand([]string{"/echo"}, WithStrip())

	ev := privateMessage(1, "/echo hello world")
	require.True(t, cmd.Matcher().Match(ev))

	msg := ev.(event.Messager)
	assert.Equal(t, "hello world", msg.Text())
}

func TestCommand_NoStripKeepsBody(t *testing.T) {
	cmd := NewCommand([]string{"/echo"})

	ev := privateMessage(1, "/echo hello")
	require.True(t, cmd.Matcher().Match(ev))

	msg := ev.(event.Messager)
	assert.Equal(t, "/echo hello", msg.Text())
}

func TestCommand_TokenCacheShared(t *testing.T) {
	// Two command matchers over the same event tokenize once; a stripping
	// match removes its token from the shared set so a second matcher for
	// the same token misses.
	strip := NewCommand([]string{"/echo"}, WithStrip())
	again := NewCommand([]string{"/echo"})

	ev := privateMessage(1, "/echo hi")
	require.True(t, strip.Matcher().Match(ev))
	assert.False(t, again.Matcher().Match(ev))
}

func TestCommand_NonMessageEvent(t *testing.T) {
	cmd := NewCommand([]string{"/echo"})
	hb := event.BuildFrom(event.Payload{"post_type": "meta_event"})
	assert.False(t, cmd.Matcher().Match(hb))
}

func TestCommand_EmptyTokensDropped(t *testing.T) {
	cmd := NewCommand([]string{"", "/ok"})
	assert.True(t, cmd.Matcher().Match(privateMessage(1, "/ok")))
	// An empty command never matches the empty tokens of a blank text.
	assert.False(t, cmd.Matcher().Match(privateMessage(1, "   ")))
}
