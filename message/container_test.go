package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fastbot/errors"
)

func texts(m *Message) []string {
	var out []string
	m.Walk(func(seg Segment) bool {
		out = append(out, seg.PlainText())
		return true
	})
	return out
}

func fromTexts(items ...string) *Message {
	m := New()
	for _, s := range items {
		m.Append(Text(s))
	}
	return m
}

func TestContainer_AppendPop(t *testing.T) {
	m := fromTexts("a", "b", "c")
	assert.Equal(t, 3, m.Len())

	seg, err := m.Pop()
	require.NoError(t, err)
	assert.Equal(t, "c", seg.PlainText())

	seg, err = m.PopLeft()
	require.NoError(t, err)
	assert.Equal(t, "a", seg.PlainText())

	assert.Equal(t, []string{"b"}, texts(m))
}

func TestContainer_PopEmpty(t *testing.T) {
	m := New()
	_, err := m.Pop()
	assert.ErrorIs(t, err, errors.ErrEmptyMessage)
	_, err = m.PopLeft()
	assert.ErrorIs(t, err, errors.ErrEmptyMessage)
}

func TestContainer_AppendLeft(t *testing.T) {
	m := fromTexts("b", "c")
	m.AppendLeft(Text("a"))
	assert.Equal(t, []string{"a", "b", "c"}, texts(m))
}

func TestContainer_MaxLenEviction(t *testing.T) {
	m := NewWithLimit(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		m.Append(Text(s))
	}
	// Appending past the limit evicts from the left.
	assert.Equal(t, []string{"b", "c", "d"}, texts(m))

	m.AppendLeft(Text("x"))
	// And from the right when appending left.
	assert.Equal(t, []string{"x", "b", "c"}, texts(m))
}

func TestContainer_Insert(t *testing.T) {
	m := fromTexts("a", "c")
	require.NoError(t, m.Insert(1, Text("b")))
	assert.Equal(t, []string{"a", "b", "c"}, texts(m))

	require.NoError(t, m.Insert(-1, Text("x")))
	assert.Equal(t, []string{"a", "b", "x", "c"}, texts(m))

	require.NoError(t, m.Insert(m.Len(), Text("z")))
	assert.Equal(t, []string{"a", "b", "x", "c", "z"}, texts(m))

	assert.ErrorIs(t, m.Insert(100, Text("w")), errors.ErrIndexOutOfRange)
	assert.ErrorIs(t, m.Insert(-100, Text("w")), errors.ErrIndexOutOfRange)
}

func TestContainer_InsertAtCapacity(t *testing.T) {
	m := NewWithLimit(2)
	m.Append(Text("a"))
	m.Append(Text("b"))
	err := m.Insert(1, Text("x"))
	assert.ErrorIs(t, err, errors.ErrMessageFull)
}

func TestContainer_RemoveIndex(t *testing.T) {
	m := fromTexts("a", "b", "c")

	idx, err := m.Index(Text("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	require.NoError(t, m.Remove(Text("b")))
	assert.Equal(t, []string{"a", "c"}, texts(m))

	err = m.Remove(Text("missing"))
	assert.ErrorIs(t, err, errors.ErrSegmentNotFound)

	_, err = m.Index(Text("missing"))
	assert.ErrorIs(t, err, errors.ErrSegmentNotFound)
}

func TestContainer_Delete(t *testing.T) {
	m := fromTexts("a", "b", "c")
	require.NoError(t, m.Delete(1))
	assert.Equal(t, []string{"a", "c"}, texts(m))

	err := m.Delete(5)
	assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)
}

func TestContainer_Rotate(t *testing.T) {
	m := fromTexts("a", "b", "c", "d", "e")

	m.Rotate(2)
	assert.Equal(t, []string{"d", "e", "a", "b", "c"}, texts(m))

	m.Rotate(-2)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts(m))

	// Full cycles are no-ops.
	m.Rotate(5)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts(m))

	m.Rotate(7)
	assert.Equal(t, []string{"d", "e", "a", "b", "c"}, texts(m))
}

func TestContainer_RotateEmpty(t *testing.T) {
	m := New()
	m.Rotate(3)
	assert.Equal(t, 0, m.Len())
}

func TestContainer_Reverse(t *testing.T) {
	m := fromTexts("a", "b", "c", "d")
	m.Reverse()
	assert.Equal(t, []string{"d", "c", "b", "a"}, texts(m))

	// Reversal twice restores the order, and the ring stays usable.
	m.Reverse()
	m.Append(Text("e"))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts(m))
}

func TestContainer_ClearAndReuse(t *testing.T) {
	m := fromTexts("a", "b")
	m.Clear()
	assert.Equal(t, 0, m.Len())

	m.Append(Text("x"))
	assert.Equal(t, []string{"x"}, texts(m))
}

func TestContainer_ExtendBothEnds(t *testing.T) {
	m := fromTexts("c")
	m.Extend(Text("d"), Text("e"))
	// ExtendLeft behaves like repeated AppendLeft: the last argument lands
	// at the head.
	m.ExtendLeft(Text("b"), Text("a"))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, texts(m))
}

func TestContainer_WalkEarlyStop(t *testing.T) {
	m := fromTexts("a", "b", "c")
	var seen []string
	m.Walk(func(seg Segment) bool {
		seen = append(seen, seg.PlainText())
		return len(seen) < 2
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}
