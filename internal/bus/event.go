package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix,
// e.g. "message." receives every message event.
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageDeleted    = "message.deleted"
	KindMessageSendFailed = "message.send_failed"
	KindChatListUpdated   = "chat.list_updated"
	KindChatUpdated       = "chat.updated"
	KindSyncCycle         = "sync.cycle"
	KindNetStatusChanged  = "net.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}
