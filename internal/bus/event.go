package bus

import "time"

// Event kinds published across the client. The segment before the dot is the
// namespace subscribers filter on ("message.", "upload.", ...).
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageReconciled = "message.reconciled"
	KindMessageSendFailed = "message.send_failed"
	KindMessageDeleted    = "message.deleted"

	KindConversationUpdated = "conversation.updated"
	KindConversationDeleted = "conversation.deleted"

	KindTypingChanged = "typing.changed"

	KindTransportState     = "transport.state_changed"
	KindTransportReconnect = "transport.reconnect_scheduled"

	KindUploadProgress = "upload.progress"
	KindUploadDone     = "upload.done"
	KindUploadFailed   = "upload.failed"

	KindNoticeError = "notice.error"
)

// Event represents a domain event published on the bus. Kind is one of the
// constants above.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
