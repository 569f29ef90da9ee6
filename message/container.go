package message

import (
	"reflect"

	"github.com/c360/fastbot/errors"
)

// node is one link in the circular doubly linked list backing Message.
// The Message itself embeds the sentinel node, so an empty container is a
// ring of exactly one node and no operation ever dereferences a nil head.
type node struct {
	prev, next *node
	seg        Segment
}

// Message is an ordered, mutable sequence of segments with deque semantics:
// both ends support O(1) insertion and removal, Rotate is O(min(n, len-n)),
// and positional operations are O(position). Iteration order is the logical
// reading order of the chat message.
//
// A Message is not safe for concurrent use.
type Message struct {
	root   node
	length int
	maxLen int // 0 means unbounded
}

// New returns an empty unbounded message.
func New() *Message {
	m := &Message{}
	m.root.prev = &m.root
	m.root.next = &m.root
	return m
}

// NewWithLimit returns an empty message holding at most maxLen segments.
// Once full, Append and AppendLeft evict from the opposite end.
func NewWithLimit(maxLen int) *Message {
	m := New()
	if maxLen > 0 {
		m.maxLen = maxLen
	}
	return m
}

// Len returns the number of segments in the message.
func (m *Message) Len() int {
	return m.length
}

// MaxLen returns the configured maximum length, or 0 if unbounded.
func (m *Message) MaxLen() int {
	return m.maxLen
}

// insertAfter links a new node holding seg after at.
func (m *Message) insertAfter(at *node, seg Segment) {
	n := &node{prev: at, next: at.next, seg: seg}
	at.next.prev = n
	at.next = n
	m.length++
}

// unlink removes n from the ring.
func (m *Message) unlink(n *node) Segment {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	m.length--
	return n.seg
}

// Append adds seg at the tail. At maximum length the head is evicted first.
func (m *Message) Append(seg Segment) {
	if m.maxLen > 0 && m.length == m.maxLen {
		m.unlink(m.root.next)
	}
	m.insertAfter(m.root.prev, seg)
}

// AppendLeft adds seg at the head. At maximum length the tail is evicted first.
func (m *Message) AppendLeft(seg Segment) {
	if m.maxLen > 0 && m.length == m.maxLen {
		m.unlink(m.root.prev)
	}
	m.insertAfter(&m.root, seg)
}

// Pop removes and returns the tail segment.
func (m *Message) Pop() (Segment, error) {
	if m.length == 0 {
		return Segment{}, errors.ErrEmptyMessage
	}
	return m.unlink(m.root.prev), nil
}

// PopLeft removes and returns the head segment.
func (m *Message) PopLeft() (Segment, error) {
	if m.length == 0 {
		return Segment{}, errors.ErrEmptyMessage
	}
	return m.unlink(m.root.next), nil
}

// nodeAt walks to position idx from the nearer end. idx must be in range.
func (m *Message) nodeAt(idx int) *node {
	if idx <= m.length/2 {
		n := m.root.next
		for i := 0; i < idx; i++ {
			n = n.next
		}
		return n
	}
	n := m.root.prev
	for i := 0; i < m.length-idx-1; i++ {
		n = n.prev
	}
	return n
}

// Insert places seg before position idx. Negative idx counts from the tail;
// idx equal to Len appends. Inserting into a message at its maximum length
// fails rather than evicting.
func (m *Message) Insert(idx int, seg Segment) error {
	if idx < 0 {
		idx += m.length
	}
	if idx < 0 || idx > m.length {
		return errors.ErrIndexOutOfRange
	}
	if m.maxLen > 0 && m.length == m.maxLen {
		return errors.ErrMessageFull
	}
	if idx == m.length {
		m.insertAfter(m.root.prev, seg)
		return nil
	}
	m.insertAfter(m.nodeAt(idx).prev, seg)
	return nil
}

// Remove deletes the first segment equal to seg, comparing type tag and
// payload map.
func (m *Message) Remove(seg Segment) error {
	for n := m.root.next; n != &m.root; n = n.next {
		if n.seg.Type == seg.Type && reflect.DeepEqual(n.seg.Data, seg.Data) {
			m.unlink(n)
			return nil
		}
	}
	return errors.ErrSegmentNotFound
}

// Index returns the position of the first segment equal to seg.
func (m *Message) Index(seg Segment) (int, error) {
	idx := 0
	for n := m.root.next; n != &m.root; n = n.next {
		if n.seg.Type == seg.Type && reflect.DeepEqual(n.seg.Data, seg.Data) {
			return idx, nil
		}
		idx++
	}
	return -1, errors.ErrSegmentNotFound
}

// Delete removes the segment at position idx. Negative idx counts from the
// tail.
func (m *Message) Delete(idx int) error {
	if idx < 0 {
		idx += m.length
	}
	if idx < 0 || idx >= m.length {
		return errors.ErrIndexOutOfRange
	}
	m.unlink(m.nodeAt(idx))
	return nil
}

// Rotate rotates the message right by n positions; negative n rotates left.
// Rotating an empty message or by a multiple of Len is a no-op.
func (m *Message) Rotate(n int) {
	if m.length == 0 {
		return
	}
	n %= m.length
	if n == 0 {
		return
	}
	if n < 0 {
		n += m.length
	}

	if n <= m.length/2 {
		// Move tail nodes to the front.
		for i := 0; i < n; i++ {
			seg := m.unlink(m.root.prev)
			m.insertAfter(&m.root, seg)
		}
	} else {
		// Shorter the other way round: move head nodes to the back.
		for i := 0; i < m.length-n; i++ {
			seg := m.unlink(m.root.next)
			m.insertAfter(m.root.prev, seg)
		}
	}
}

// Reverse reverses the segment order in place by swapping every link in the
// ring, sentinel included.
func (m *Message) Reverse() {
	n := &m.root
	for {
		n.prev, n.next = n.next, n.prev
		n = n.prev // the pre-swap next node
		if n == &m.root {
			return
		}
	}
}

// Clear removes all segments.
func (m *Message) Clear() {
	m.root.prev = &m.root
	m.root.next = &m.root
	m.length = 0
}

// Walk calls fn for each segment in reading order until fn returns false.
func (m *Message) Walk(fn func(Segment) bool) {
	for n := m.root.next; n != &m.root; n = n.next {
		if !fn(n.seg) {
			return
		}
	}
}

// Segments returns the segments in reading order.
func (m *Message) Segments() []Segment {
	out := make([]Segment, 0, m.length)
	for n := m.root.next; n != &m.root; n = n.next {
		out = append(out, n.seg)
	}
	return out
}

// Extend appends every segment of segs in order.
func (m *Message) Extend(segs ...Segment) {
	for _, seg := range segs {
		m.Append(seg)
	}
}

// ExtendLeft prepends every segment of segs; the last element of segs ends
// up at the head, matching repeated AppendLeft calls.
func (m *Message) ExtendLeft(segs ...Segment) {
	for _, seg := range segs {
		m.AppendLeft(seg)
	}
}
