package messaging

// Topic constants for snapshot publishing
const (
	// TopicAccountSnapshots carries one message per rendered cycle, keyed by username
	TopicAccountSnapshots = "duco.account_snapshots"
)

// Header keys attached to snapshot messages
const (
	HeaderCapturedAt = "captured_at" // protobuf-encoded google.protobuf.Timestamp
	HeaderCycleID    = "cycle_id"
)
