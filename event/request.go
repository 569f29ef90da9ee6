package event

func init() {
	registerCategory("request", buildRequest)
	requestBuilders = map[string]Builder{
		"friend": buildFriendRequest,
		"group":  buildGroupRequest,
	}
}

var requestBuilders map[string]Builder

func buildRequest(raw Payload) Event {
	if b, ok := requestBuilders[Str(raw, "request_type")]; ok {
		return b(raw)
	}
	return &RequestBase{Base: *NewBase(raw), requestType: Str(raw, "request_type")}
}

// RequestBase is the generic fallback for unrecognized request subtypes.
type RequestBase struct {
	Base
	requestType string
}

// RequestType returns the request subtype discriminator.
func (r *RequestBase) RequestType() string { return r.requestType }

// FriendRequest asks the bot to accept a friend relationship. Flag is the
// opaque handle passed back when approving or rejecting.
type FriendRequest struct {
	RequestBase
	UserID  int64
	Comment string
	Flag    string
}

func buildFriendRequest(raw Payload) Event {
	return &FriendRequest{
		RequestBase: RequestBase{Base: *NewBase(raw), requestType: "friend"},
		UserID:      Int(raw, "user_id"),
		Comment:     Str(raw, "comment"),
		Flag:        Str(raw, "flag"),
	}
}

// GroupRequest asks the bot to join a group ("invite") or approve a member
// ("add").
type GroupRequest struct {
	RequestBase
	SubType string // "add", "invite"
	GroupID int64
	UserID  int64
	Comment string
	Flag    string
}

func buildGroupRequest(raw Payload) Event {
	return &GroupRequest{
		RequestBase: RequestBase{Base: *NewBase(raw), requestType: "group"},
		SubType:     Str(raw, "sub_type"),
		GroupID:     Int(raw, "group_id"),
		UserID:      Int(raw, "user_id"),
		Comment:     Str(raw, "comment"),
		Flag:        Str(raw, "flag"),
	}
}
