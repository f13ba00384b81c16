package store

// Event is a deletion notification emitted by the store, exactly once per
// logical deletion. Consumers (the signaling hub) turn events into outbound
// broadcasts; the expiry scheduler uses them to drop stale timers.
type Event interface {
	isStoreEvent()
}

// MessageDeleted is emitted when a single message leaves the store, whatever
// the cause: explicit delete, TTL expiry or view-once consumption.
type MessageDeleted struct {
	MessageID string
	RoomID    string
}

// RoomDeleted is emitted when a room is cascade-deleted. MessageIDs lists the
// messages removed by the cascade so pending timers can be canceled without
// re-reading state that no longer exists.
type RoomDeleted struct {
	RoomID     string
	MessageIDs []string
}

func (MessageDeleted) isStoreEvent() {}
func (RoomDeleted) isStoreEvent()    {}
