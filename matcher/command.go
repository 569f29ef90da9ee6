package matcher

import (
	"strings"

	"github.com/c360/fastbot/event"
	"github.com/c360/fastbot/message"
)

// commandStateKey is where Command keeps its token set in the event's
// dispatch-scoped state.
const commandStateKey = "matcher.command.tokens"

// Command matches message events whose flattened text contains one of a set
// of command tokens. With stripping enabled, a match rewrites the event's
// segment body to remove the matched tokens and invalidates the cached text
// view, so later matchers and handlers observe the stripped form.
//
// The tokenized text is cached in the event's dispatch-scoped state so that
// several Command matchers evaluating the same event tokenize once.
type Command struct {
	commands map[string]struct{}
	sep      string
	strip    bool
}

// CommandOption configures a Command matcher.
type CommandOption func(*Command)

// WithSeparator sets the token separator. The default is a single space.
func WithSeparator(sep string) CommandOption {
	return func(c *Command) { c.sep = sep }
}

// WithStrip enables removal of matched tokens from the event body.
func WithStrip() CommandOption {
	return func(c *Command) { c.strip = true }
}

// NewCommand builds a Command over the given tokens. Empty tokens are
// dropped.
func NewCommand(commands []string, opts ...CommandOption) *Command {
	c := &Command{
		commands: make(map[string]struct{}, len(commands)),
		sep:      " ",
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, cmd := range commands {
		if cmd != "" {
			c.commands[cmd] = struct{}{}
		}
	}
	return c
}

// Matcher returns the Command as a leaf matcher node.
func (c *Command) Matcher() *Matcher {
	return New(c.match)
}

func (c *Command) match(ev event.Event) bool {
	msg, ok := ev.(event.Messager)
	if !ok {
		return false
	}

	tokens := c.tokensFor(msg)

	var matched []string
	for cmd := range c.commands {
		if _, ok := tokens[cmd]; ok {
			matched = append(matched, cmd)
		}
	}
	if len(matched) == 0 {
		return false
	}

	if c.strip {
		for _, cmd := range matched {
			delete(tokens, cmd)
		}
		msg.SetState(commandStateKey, tokens)
		msg.SetMessage(c.stripBody(msg.Message(), matched))
	}

	return true
}

// tokensFor returns the cached token set for the event, tokenizing the
// flattened text on first use.
func (c *Command) tokensFor(msg event.Messager) map[string]struct{} {
	if cached, ok := msg.State(commandStateKey); ok {
		if tokens, ok := cached.(map[string]struct{}); ok {
			return tokens
		}
	}
	tokens := make(map[string]struct{})
	for _, tok := range strings.Split(msg.Text(), c.sep) {
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	msg.SetState(commandStateKey, tokens)
	return tokens
}

// stripBody rewrites text segments with the matched tokens removed,
// preserving every other segment as-is.
func (c *Command) stripBody(body *message.Message, matched []string) *message.Message {
	out := message.New()
	body.Walk(func(seg message.Segment) bool {
		if seg.Type == "text" {
			text := seg.PlainText()
			for _, cmd := range matched {
				text = strings.TrimSpace(strings.ReplaceAll(text, cmd, ""))
			}
			out.Append(message.Text(text))
		} else {
			out.Append(seg)
		}
		return true
	})
	return out
}
