// Package matcher provides composable boolean predicates over events.
// Matchers form a small algebra: leaf rules combined with And, Or, and Not.
// Evaluation never panics; a rule that does is treated as a non-match.
package matcher

import (
	"strconv"
	"strings"

	"github.com/c360/fastbot/event"
	"github.com/c360/fastbot/message"
)

// Rule is a leaf predicate. Rules are expected to be pure; side effects are
// reserved for specialized matchers like Command.
type Rule func(event.Event) bool

// Matcher is a predicate node: either a leaf rule or an and/or combinator
// over sub-matchers.
type Matcher struct {
	rule Rule
	op   string // "", "and", "or"
	subs []*Matcher
}

// New returns a leaf matcher wrapping rule. A nil rule always matches.
func New(rule Rule) *Matcher {
	return &Matcher{rule: rule}
}

// Always returns a matcher accepting every event.
func Always() *Matcher {
	return New(nil)
}

// Match evaluates the node against ev. And requires every sub-matcher to
// accept, Or requires any; both evaluate front to back. A panicking leaf
// rule fails closed.
func (m *Matcher) Match(ev event.Event) bool {
	switch m.op {
	case "and":
		for _, sub := range m.subs {
			if !sub.Match(ev) {
				return false
			}
		}
		return true
	case "or":
		for _, sub := range m.subs {
			if sub.Match(ev) {
				return true
			}
		}
		return false
	default:
		return m.evalLeaf(ev)
	}
}

// evalLeaf runs the leaf rule with panic containment.
func (m *Matcher) evalLeaf(ev event.Event) (matched bool) {
	if m.rule == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return m.rule(ev)
}

// And combines the matcher with other. Combining an and-node with a new
// term appends to its list instead of nesting; anything else wraps both in
// a fresh and-node.
func (m *Matcher) And(other *Matcher) *Matcher {
	if m.op == "and" {
		m.subs = append(m.subs, other)
		return m
	}
	return &Matcher{op: "and", subs: []*Matcher{m, other}}
}

// Or combines the matcher with other, with the same accumulator behavior as
// And.
func (m *Matcher) Or(other *Matcher) *Matcher {
	if m.op == "or" {
		m.subs = append(m.subs, other)
		return m
	}
	return &Matcher{op: "or", subs: []*Matcher{m, other}}
}

// Not returns a leaf matcher negating m.
func Not(m *Matcher) *Matcher {
	return New(func(ev event.Event) bool {
		return !m.Match(ev)
	})
}

// OfType accepts events whose category discriminator is any of the given
// post types.
func OfType(postTypes ...string) *Matcher {
	return New(func(ev event.Event) bool {
		for _, pt := range postTypes {
			if ev.PostType() == pt {
				return true
			}
		}
		return false
	})
}

// FromUser accepts messages sent by any of the given users.
func FromUser(userIDs ...int64) *Matcher {
	return New(func(ev event.Event) bool {
		msg, ok := ev.(event.Messager)
		if !ok {
			return false
		}
		_, user := msg.Origin()
		for _, id := range userIDs {
			if user == id {
				return true
			}
		}
		return false
	})
}

// FromGroup accepts group messages from any of the given groups.
func FromGroup(groupIDs ...int64) *Matcher {
	return New(func(ev event.Event) bool {
		msg, ok := ev.(event.Messager)
		if !ok {
			return false
		}
		group, _ := msg.Origin()
		for _, id := range groupIDs {
			if group == id {
				return true
			}
		}
		return false
	})
}

// ToMe accepts messages that mention the owning bot identity, either with
// a direct at segment or at-all.
func ToMe() *Matcher {
	return New(func(ev event.Event) bool {
		msg, ok := ev.(event.Messager)
		if !ok {
			return false
		}
		self := strconv.FormatInt(msg.SelfID(), 10)
		mentioned := false
		msg.Message().Walk(func(seg message.Segment) bool {
			if seg.Type == "at" {
				if target, _ := seg.Data["qq"].(string); target == self || target == "all" {
					mentioned = true
					return false
				}
			}
			return true
		})
		return mentioned
	})
}

// PrefixOf accepts messages whose flattened text starts with any prefix.
func PrefixOf(prefixes ...string) *Matcher {
	return New(func(ev event.Event) bool {
		msg, ok := ev.(event.Messager)
		if !ok {
			return false
		}
		text := msg.Text()
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				return true
			}
		}
		return false
	})
}

// KeywordOf accepts messages whose flattened text contains any keyword.
func KeywordOf(keywords ...string) *Matcher {
	return New(func(ev event.Event) bool {
		msg, ok := ev.(event.Messager)
		if !ok {
			return false
		}
		text := msg.Text()
		for _, k := range keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	})
}
