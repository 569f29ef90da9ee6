package event

func init() {
	registerCategory("meta_event", buildMeta)
	metaBuilders = map[string]Builder{
		"lifecycle": buildLifecycle,
		"heartbeat": buildHeartbeat,
	}
}

var metaBuilders map[string]Builder

func buildMeta(raw Payload) Event {
	if b, ok := metaBuilders[Str(raw, "meta_event_type")]; ok {
		return b(raw)
	}
	return &MetaBase{Base: *NewBase(raw), metaType: Str(raw, "meta_event_type")}
}

// MetaBase is the generic fallback for unrecognized meta subtypes.
type MetaBase struct {
	Base
	metaType string
}

// MetaEventType returns the meta subtype discriminator.
func (m *MetaBase) MetaEventType() string { return m.metaType }

// LifecycleMeta reports the remote side's lifecycle transitions.
type LifecycleMeta struct {
	MetaBase
	SubType string // "enable", "disable", "connect"
}

func buildLifecycle(raw Payload) Event {
	return &LifecycleMeta{
		MetaBase: MetaBase{Base: *NewBase(raw), metaType: "lifecycle"},
		SubType:  Str(raw, "sub_type"),
	}
}

// HeartbeatMeta is the remote side's periodic liveness report. Status is
// kept raw: its shape varies across backend implementations.
type HeartbeatMeta struct {
	MetaBase
	Status   Payload
	Interval int64
}

func buildHeartbeat(raw Payload) Event {
	return &HeartbeatMeta{
		MetaBase: MetaBase{Base: *NewBase(raw), metaType: "heartbeat"},
		Status:   Map(raw, "status"),
		Interval: Int(raw, "interval"),
	}
}
