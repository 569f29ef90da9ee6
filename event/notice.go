package event

func init() {
	registerCategory("notice", buildNotice)
	noticeBuilders = map[string]Builder{
		"group_upload":   buildGroupUpload,
		"group_admin":    buildGroupAdmin,
		"group_decrease": buildGroupDecrease,
		"group_increase": buildGroupIncrease,
		"group_ban":      buildGroupBan,
		"friend_add":     buildFriendAdd,
		"group_recall":   buildGroupRecall,
		"friend_recall":  buildFriendRecall,
		"notify":         buildNotify,
	}
}

var noticeBuilders map[string]Builder

func buildNotice(raw Payload) Event {
	if b, ok := noticeBuilders[Str(raw, "notice_type")]; ok {
		return b(raw)
	}
	return &NoticeBase{Base: *NewBase(raw), noticeType: Str(raw, "notice_type")}
}

// NoticeBase is the generic fallback for unrecognized notice subtypes.
type NoticeBase struct {
	Base
	noticeType string
}

// NoticeType returns the notice subtype discriminator.
func (n *NoticeBase) NoticeType() string { return n.noticeType }

// GroupFile describes a file attached to a group upload notice.
type GroupFile struct {
	ID    string
	Name  string
	Size  int64
	BusID int64
}

// GroupUploadNotice reports a file uploaded to a group.
type GroupUploadNotice struct {
	NoticeBase
	GroupID int64
	UserID  int64
	File    GroupFile
}

func buildGroupUpload(raw Payload) Event {
	e := &GroupUploadNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_upload"},
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
	}
	if f := Map(raw, "file"); f != nil {
		e.File = GroupFile{
			ID:    Str(f, "id"),
			Name:  Str(f, "name"),
			Size:  Int(f, "size"),
			BusID: Int(f, "busid"),
		}
	}
	return e
}

// GroupAdminNotice reports an administrator being set or unset.
type GroupAdminNotice struct {
	NoticeBase
	SubType string // "set" or "unset"
	GroupID int64
	UserID  int64
}

func buildGroupAdmin(raw Payload) Event {
	return &GroupAdminNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_admin"},
		SubType:    Str(raw, "sub_type"),
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
	}
}

// GroupDecreaseNotice reports a member leaving or being removed.
type GroupDecreaseNotice struct {
	NoticeBase
	SubType    string // "leave", "kick", "kick_me"
	GroupID    int64
	UserID     int64
	OperatorID int64
}

func buildGroupDecrease(raw Payload) Event {
	return &GroupDecreaseNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_decrease"},
		SubType:    Str(raw, "sub_type"),
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
		OperatorID: Int(raw, "operator_id"),
	}
}

// GroupIncreaseNotice reports a member joining.
type GroupIncreaseNotice struct {
	NoticeBase
	SubType    string // "approve", "invite"
	GroupID    int64
	UserID     int64
	OperatorID int64
}

func buildGroupIncrease(raw Payload) Event {
	return &GroupIncreaseNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_increase"},
		SubType:    Str(raw, "sub_type"),
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
		OperatorID: Int(raw, "operator_id"),
	}
}

// GroupBanNotice reports a mute being applied or lifted.
type GroupBanNotice struct {
	NoticeBase
	SubType    string // "ban", "lift_ban"
	GroupID    int64
	UserID     int64
	OperatorID int64
	Duration   int64
}

func buildGroupBan(raw Payload) Event {
	return &GroupBanNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_ban"},
		SubType:    Str(raw, "sub_type"),
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
		OperatorID: Int(raw, "operator_id"),
		Duration:   Int(raw, "duration"),
	}
}

// FriendAddNotice reports a new friend relationship.
type FriendAddNotice struct {
	NoticeBase
	UserID int64
}

func buildFriendAdd(raw Payload) Event {
	return &FriendAddNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "friend_add"},
		UserID:     Int(raw, "user_id"),
	}
}

// GroupRecallNotice reports a group message being recalled.
type GroupRecallNotice struct {
	NoticeBase
	GroupID    int64
	UserID     int64
	OperatorID int64
	MessageID  int64
}

func buildGroupRecall(raw Payload) Event {
	return &GroupRecallNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "group_recall"},
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
		OperatorID: Int(raw, "operator_id"),
		MessageID:  Int(raw, "message_id"),
	}
}

// FriendRecallNotice reports a private message being recalled.
type FriendRecallNotice struct {
	NoticeBase
	UserID    int64
	MessageID int64
}

func buildFriendRecall(raw Payload) Event {
	return &FriendRecallNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "friend_recall"},
		UserID:     Int(raw, "user_id"),
		MessageID:  Int(raw, "message_id"),
	}
}

// NotifyNotice covers the notify family: poke, lucky_king, honor.
type NotifyNotice struct {
	NoticeBase
	SubType  string
	GroupID  int64
	UserID   int64
	TargetID int64
	Honor    string // honor subtype only
}

func buildNotify(raw Payload) Event {
	return &NotifyNotice{
		NoticeBase: NoticeBase{Base: *NewBase(raw), noticeType: "notify"},
		SubType:    Str(raw, "sub_type"),
		GroupID:    Int(raw, "group_id"),
		UserID:     Int(raw, "user_id"),
		TargetID:   Int(raw, "target_id"),
		Honor:      Str(raw, "honor_type"),
	}
}
