package event

import (
	"sync"

	"github.com/c360/fastbot/message"
)

func init() {
	registerCategory("message", buildMessage)
	messageBuilders = map[string]Builder{
		"private": buildPrivateMessage,
		"group":   buildGroupMessage,
	}
}

// messageBuilders maps message_type values to concrete message builders.
var messageBuilders map[string]Builder

// buildMessage is the category builder for post_type "message".
func buildMessage(raw Payload) Event {
	if b, ok := messageBuilders[Str(raw, "message_type")]; ok {
		return b(raw)
	}
	return &MessageBase{Base: *NewBase(raw), messageType: Str(raw, "message_type")}
}

// MessageBase is the generic fallback for unrecognized message subtypes.
type MessageBase struct {
	Base
	messageType string
}

// MessageType returns the message subtype discriminator.
func (m *MessageBase) MessageType() string { return m.messageType }

// Sender describes who sent a message. Unknown wire fields are retained in
// Extra rather than dropped.
type Sender struct {
	UserID   int64
	Nickname string
	Card     string
	Sex      string
	Age      int64
	Area     string
	Level    string
	Role     string
	Title    string
	Extra    map[string]any
}

// senderFields are the wire keys decoded into typed Sender fields.
var senderFields = map[string]struct{}{
	"user_id": {}, "nickname": {}, "card": {}, "sex": {},
	"age": {}, "area": {}, "level": {}, "role": {}, "title": {},
}

// parseSender decodes a sender-info map permissively.
func parseSender(raw Payload) Sender {
	s := Sender{
		UserID:   Int(raw, "user_id"),
		Nickname: Str(raw, "nickname"),
		Card:     Str(raw, "card"),
		Sex:      Str(raw, "sex"),
		Age:      Int(raw, "age"),
		Area:     Str(raw, "area"),
		Level:    Str(raw, "level"),
		Role:     Str(raw, "role"),
		Title:    Str(raw, "title"),
	}
	for k, v := range raw {
		if _, known := senderFields[k]; !known {
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[k] = v
		}
	}
	return s
}

// Messager is the union of concrete message-category events. Handlers that
// accept any chat message declare this interface as their event type.
type Messager interface {
	Event
	// MessageID returns the protocol message identifier.
	MessageID() int64
	// Message returns the parsed segment body.
	Message() *message.Message
	// SetMessage replaces the body and invalidates the cached text view.
	SetMessage(*message.Message)
	// Text returns the cached concatenation of all text segments in order.
	Text() string
	// Origin returns the addressee key (group, user); group is 0 for
	// private conversations.
	Origin() (groupID, userID int64)
	// State and SetState expose a scratch store scoped to the event's
	// dispatch cycle, used by matchers that carry state between
	// evaluations. It vanishes with the event.
	State(key string) (any, bool)
	SetState(key string, value any)
}

// messageCore holds the fields shared by private and group messages,
// including the lazily computed flattened-text view. The cache is guarded
// because handlers within one dispatch run concurrently.
type messageCore struct {
	Base
	SubType    string
	ID         int64
	UserID     int64
	RawMessage string
	Font       int64
	From       Sender

	// go-cqhttp / napcat extensions
	MessageSeq    int64
	RealID        int64
	MessageFormat string

	mu    sync.Mutex
	body  *message.Message
	text  string
	ok    bool
	state map[string]any
}

func newMessageCore(raw Payload) messageCore {
	body := parseBody(raw["message"])
	return messageCore{
		Base:          *NewBase(raw),
		SubType:       Str(raw, "sub_type"),
		ID:            Int(raw, "message_id"),
		UserID:        Int(raw, "user_id"),
		RawMessage:    Str(raw, "raw_message"),
		Font:          Int(raw, "font"),
		From:          parseSender(Map(raw, "sender")),
		MessageSeq:    Int(raw, "message_seq"),
		RealID:        Int(raw, "real_id"),
		MessageFormat: Str(raw, "message_format"),
		body:          body.Compact(""),
	}
}

// parseBody converts the wire body (ordered list of {type, data} records)
// into a segment sequence. Malformed entries are skipped.
func parseBody(v any) *message.Message {
	m := message.New()
	items, ok := v.([]any)
	if !ok {
		return m
	}
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		segType, ok := rec["type"].(string)
		if !ok {
			continue
		}
		data, _ := rec["data"].(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		m.Append(message.Segment{Type: segType, Data: data})
	}
	return m
}

// MessageID returns the protocol message identifier.
func (c *messageCore) MessageID() int64 { return c.ID }

// Message returns the parsed segment body.
func (c *messageCore) Message() *message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// SetMessage replaces the body and invalidates the cached text view so
// later matchers and handlers observe the updated form.
func (c *messageCore) SetMessage(m *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = m
	c.ok = false
}

// Text returns the flattened text view, computing and caching it on first
// use.
func (c *messageCore) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok {
		c.text = c.body.PlainText()
		c.ok = true
	}
	return c.text
}

// State returns the dispatch-scoped scratch value stored under key.
func (c *messageCore) State(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

// SetState stores a dispatch-scoped scratch value under key.
func (c *messageCore) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		c.state = make(map[string]any)
	}
	c.state[key] = value
}

// PrivateMessage is a direct message from one user.
type PrivateMessage struct {
	messageCore
}

func buildPrivateMessage(raw Payload) Event {
	return &PrivateMessage{messageCore: newMessageCore(raw)}
}

// MessageType returns the message subtype discriminator.
func (e *PrivateMessage) MessageType() string { return "private" }

// Origin returns (0, user); private conversations have no group.
func (e *PrivateMessage) Origin() (int64, int64) { return 0, e.UserID }

// Anonymous describes the anonymous identity attached to some group
// messages.
type Anonymous struct {
	ID   int64
	Name string
	Flag string
}

// GroupMessage is a message sent in a group conversation.
type GroupMessage struct {
	messageCore
	GroupID   int64
	Anonymous *Anonymous
}

func buildGroupMessage(raw Payload) Event {
	e := &GroupMessage{
		messageCore: newMessageCore(raw),
		GroupID:     Int(raw, "group_id"),
	}
	if anon := Map(raw, "anonymous"); anon != nil {
		e.Anonymous = &Anonymous{
			ID:   Int(anon, "id"),
			Name: Str(anon, "name"),
			Flag: Str(anon, "flag"),
		}
	}
	return e
}

// MessageType returns the message subtype discriminator.
func (e *GroupMessage) MessageType() string { return "group" }

// Origin returns the (group, user) addressee key.
func (e *GroupMessage) Origin() (int64, int64) { return e.GroupID, e.UserID }
