// Package message models chat content as an ordered sequence of typed
// segments. The container is a deque backed by a circular doubly linked
// list; segments are tagged payload maps following the OneBot wire shape
// [{"type": t, "data": {...}}].
package message

import (
	"encoding/json"
	"strings"

	"github.com/c360/fastbot/errors"
)

// From builds a message from heterogeneous content, flattening recursively:
// a string becomes one text segment, a Segment a one-element sequence, and
// a slice concatenates the messages built from its elements in order.
// Unsupported element types fail rather than being dropped.
func From(content any) (*Message, error) {
	m := New()
	if content == nil {
		return m, nil
	}
	if err := m.push(content); err != nil {
		return nil, err
	}
	return m, nil
}

// push appends content to the message, recursing into iterables.
func (m *Message) push(content any) error {
	switch c := content.(type) {
	case string:
		m.Append(Text(c))
	case Segment:
		m.Append(c)
	case *Message:
		for n := c.root.next; n != &c.root; n = n.next {
			m.Append(n.seg)
		}
	case []Segment:
		m.Extend(c...)
	case []string:
		for _, s := range c {
			m.Append(Text(s))
		}
	case []any:
		for _, item := range c {
			if err := m.push(item); err != nil {
				return err
			}
		}
	default:
		return errors.WrapInvalid(errors.ErrUnsupportedContent,
			"Message", "From", "content classification")
	}
	return nil
}

// Add returns a new message holding the receiver's segments followed by the
// segments built from other. The receiver is not modified.
func (m *Message) Add(other any) (*Message, error) {
	out := New()
	for n := m.root.next; n != &m.root; n = n.next {
		out.Append(n.seg)
	}
	if err := out.push(other); err != nil {
		return nil, err
	}
	return out, nil
}

// Compact groups consecutive runs of same-type segments and merges each text
// run into a single segment whose texts are joined with joiner. Runs of any
// other tag pass through unmerged, preserving order and position.
func (m *Message) Compact(joiner string) *Message {
	out := New()

	var run []Segment
	flush := func() {
		if len(run) == 0 {
			return
		}
		if run[0].Type == "text" {
			parts := make([]string, len(run))
			for i, seg := range run {
				parts[i] = seg.PlainText()
			}
			out.Append(Text(strings.Join(parts, joiner)))
		} else {
			out.Extend(run...)
		}
		run = run[:0]
	}

	for n := m.root.next; n != &m.root; n = n.next {
		if len(run) > 0 && run[len(run)-1].Type != n.seg.Type {
			flush()
		}
		run = append(run, n.seg)
	}
	flush()

	return out
}

// PlainText concatenates the text payloads of all text segments in order.
func (m *Message) PlainText() string {
	var b strings.Builder
	for n := m.root.next; n != &m.root; n = n.next {
		if n.seg.Type == "text" {
			b.WriteString(n.seg.PlainText())
		}
	}
	return b.String()
}

// MarshalJSON encodes the message as the ordered wire array of segments.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Segments())
}

// UnmarshalJSON replaces the message contents with the decoded wire array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return errors.WrapInvalid(err, "Message", "UnmarshalJSON", "segment array decode")
	}
	if m.root.next == nil {
		m.root.prev = &m.root
		m.root.next = &m.root
	}
	m.Clear()
	m.Extend(segs...)
	return nil
}

// String renders the message for logs: text inline, other segments as
// [type] placeholders.
func (m *Message) String() string {
	var b strings.Builder
	for n := m.root.next; n != &m.root; n = n.next {
		if n.seg.Type == "text" {
			b.WriteString(n.seg.PlainText())
		} else {
			b.WriteString("[" + n.seg.Type + "]")
		}
	}
	return b.String()
}
