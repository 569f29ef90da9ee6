// Package event classifies inbound protocol payloads into a typed
// hierarchy. Classification is a two-level tagged-variant dispatch: the
// post_type field selects a category builder, and each category selects a
// concrete variant by its own subtype field. Both registries are populated
// by explicit registration at package init; unknown tags at either level
// degrade to a generic event instead of failing, so protocol extensions
// never break dispatch.
package event

import (
	"encoding/json"
	"strconv"
)

// Payload is a decoded inbound frame. Numeric values are json.Number so
// identifiers survive without precision loss.
type Payload = map[string]any

// Event is the base contract every classified payload satisfies.
type Event interface {
	// Time returns the event's unix timestamp.
	Time() int64
	// SelfID returns the bot identity that owns the connection the event
	// arrived on.
	SelfID() int64
	// PostType returns the top-level category discriminator.
	PostType() string
	// Raw returns the source payload the event was built from.
	Raw() Payload
}

// Base carries the fields required by the base contract. It is embedded by
// every concrete event and doubles as the generic fallback for unrecognized
// categories.
type Base struct {
	raw  Payload
	time int64
	self int64
	post string
}

// NewBase builds the generic fallback event from a payload.
func NewBase(raw Payload) *Base {
	return &Base{
		raw:  raw,
		time: Int(raw, "time"),
		self: Int(raw, "self_id"),
		post: Str(raw, "post_type"),
	}
}

// Time returns the event's unix timestamp.
func (b *Base) Time() int64 { return b.time }

// SelfID returns the owning bot identity.
func (b *Base) SelfID() int64 { return b.self }

// PostType returns the top-level category discriminator.
func (b *Base) PostType() string { return b.post }

// Raw returns the source payload.
func (b *Base) Raw() Payload { return b.raw }

// Builder constructs a concrete event from a payload.
type Builder func(raw Payload) Event

// categoryBuilders maps post_type values to category builders. Populated by
// the init functions of the category files; read-only afterwards.
var categoryBuilders = map[string]Builder{}

// registerCategory binds a post_type discriminator to its category builder.
func registerCategory(postType string, b Builder) {
	categoryBuilders[postType] = b
}

// BuildFrom classifies a payload into a typed event. It is total: an
// unrecognized post_type yields the generic base event, and category
// builders apply the same fallback for unrecognized subtypes.
func BuildFrom(raw Payload) Event {
	if b, ok := categoryBuilders[Str(raw, "post_type")]; ok {
		return b(raw)
	}
	return NewBase(raw)
}

// Str extracts a string field from a payload, returning "" when absent or
// differently typed.
func Str(raw Payload, key string) string {
	s, _ := raw[key].(string)
	return s
}

// Int extracts an integer field from a payload. Payloads are decoded with
// json.Number, but string-encoded and float-encoded identifiers from
// permissive backends are accepted too.
func Int(raw Payload, key string) int64 {
	return toInt(raw[key])
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// Map extracts a nested object field, returning nil when absent.
func Map(raw Payload, key string) Payload {
	m, _ := raw[key].(map[string]any)
	return m
}

// Bool extracts a boolean field.
func Bool(raw Payload, key string) bool {
	b, _ := raw[key].(bool)
	return b
}
