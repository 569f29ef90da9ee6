package message

import (
	"encoding/base64"
	"strconv"
)

// Segment is one typed unit of chat content: a type tag plus a payload map
// whose keys are defined per tag. Segments are data, not behavior, and are
// treated as immutable after construction.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Option sets one optional field on a segment payload map.
type Option func(data map[string]any)

// WithURL sets the remote URL for a media segment.
func WithURL(url string) Option {
	return func(data map[string]any) { data["url"] = url }
}

// WithCache controls whether the remote side may use its media cache.
func WithCache(cache bool) Option {
	return func(data map[string]any) { data["cache"] = cache }
}

// WithProxy controls whether the remote side fetches media via its proxy.
func WithProxy(proxy bool) Option {
	return func(data map[string]any) { data["proxy"] = proxy }
}

// WithTimeout sets the media download timeout in seconds.
func WithTimeout(seconds int64) Option {
	return func(data map[string]any) { data["timeout"] = seconds }
}

// WithFlash marks an image segment as a flash image.
func WithFlash() Option {
	return func(data map[string]any) { data["type"] = "flash" }
}

// WithMagic marks a record segment as a voice-changed recording.
func WithMagic(magic bool) Option {
	return func(data map[string]any) { data["magic"] = magic }
}

// Text returns a plain text segment.
func Text(text string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": text}}
}

// Face returns a built-in emoticon segment.
func Face(id int64) Segment {
	return Segment{Type: "face", Data: map[string]any{"id": strconv.FormatInt(id, 10)}}
}

// Image returns an image segment referencing a file name, path, or URL.
func Image(file string, opts ...Option) Segment {
	data := map[string]any{"file": file}
	for _, opt := range opts {
		opt(data)
	}
	return Segment{Type: "image", Data: data}
}

// ImageBytes returns an image segment carrying a raw payload, base64-encoded
// into a base64:// URI since no remote reference exists for it.
func ImageBytes(payload []byte, opts ...Option) Segment {
	return Image("base64://"+base64.StdEncoding.EncodeToString(payload), opts...)
}

// Record returns a voice recording segment.
func Record(file string, opts ...Option) Segment {
	data := map[string]any{"file": file}
	for _, opt := range opts {
		opt(data)
	}
	return Segment{Type: "record", Data: data}
}

// Video returns a video segment.
func Video(file string, opts ...Option) Segment {
	data := map[string]any{"file": file}
	for _, opt := range opts {
		opt(data)
	}
	return Segment{Type: "video", Data: data}
}

// At returns a mention segment for one user.
func At(userID int64) Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": strconv.FormatInt(userID, 10)}}
}

// AtAll returns a mention-everyone segment.
func AtAll() Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": "all"}}
}

// Reply returns a reply-reference segment pointing at an earlier message.
func Reply(messageID int64) Segment {
	return Segment{Type: "reply", Data: map[string]any{"id": strconv.FormatInt(messageID, 10)}}
}

// Forward returns a forwarded-conversation segment.
func Forward(id int64) Segment {
	return Segment{Type: "forward", Data: map[string]any{"id": strconv.FormatInt(id, 10)}}
}

// Node returns a forward node referencing an existing message by id.
func Node(messageID int64) Segment {
	return Segment{Type: "node", Data: map[string]any{"id": strconv.FormatInt(messageID, 10)}}
}

// NodeCustom returns a forward node carrying inline content. The extra map
// holds sender presentation fields such as user_id and nickname.
func NodeCustom(content *Message, extra map[string]any) Segment {
	data := map[string]any{"content": content.Segments()}
	for k, v := range extra {
		data[k] = v
	}
	return Segment{Type: "node", Data: data}
}

// JSON returns an app-card segment carrying a serialized JSON document.
func JSON(data string) Segment {
	return Segment{Type: "json", Data: map[string]any{"data": data}}
}

// PlainText returns the text payload of a text segment, or "" for any other
// tag.
func (s Segment) PlainText() string {
	if s.Type != "text" {
		return ""
	}
	text, _ := s.Data["text"].(string)
	return text
}

// Add concatenates the segment with other (a string, Segment, *Message, or
// slice of those), yielding a new message. A bare string is treated as an
// implicit text segment.
func (s Segment) Add(other any) (*Message, error) {
	m := New()
	m.Append(s)
	return m.Add(other)
}
