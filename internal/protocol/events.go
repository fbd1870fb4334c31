package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
)

// EventKind enumerates the inbound event types the engine reacts to.
type EventKind int

const (
	EventMessageCreated EventKind = iota
	EventMessageEdited
	EventMessageDeleted
	EventConversationDeleted
	EventTypingChanged
)

func (k EventKind) String() string {
	switch k {
	case EventMessageCreated:
		return "message-created"
	case EventMessageEdited:
		return "message-edited"
	case EventMessageDeleted:
		return "message-deleted"
	case EventConversationDeleted:
		return "conversation-deleted"
	case EventTypingChanged:
		return "typing-changed"
	default:
		return "unknown"
	}
}

// TypingChanged is the payload of a typing-changed event.
type TypingChanged struct {
	SenderID string
	Typing   bool
	Status   string
}

// Event is the tagged union carried from the transport boundary into the
// engine. Exactly the fields for its Kind are set; everything else is zero.
type Event struct {
	Kind EventKind

	// EventMessageCreated, EventMessageEdited
	Message *model.Message

	// EventMessageDeleted, EventConversationDeleted
	MessageID identity.ID
	ChatID    identity.ID
	DeletedBy string
	DeletedAt time.Time

	// EventTypingChanged
	Typing *TypingChanged
}

type messageEditedFrame struct {
	Message *WireMessage `json:"message"`
}

type messageDeletedFrame struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type chatDeletedFrame struct {
	ChatID    string `json:"chatId"`
	DeletedBy string `json:"deletedBy"`
	DeletedAt string `json:"deletedAt"`
}

type typingFrame struct {
	SenderID string `json:"senderId"`
	Typing   bool   `json:"typing"`
	Status   string `json:"status"`
	Type     string `json:"type"`
}

// ParseFrame classifies a raw frame received on channel into a typed event,
// validating required fields. Returns an error for malformed frames; the
// caller drops and logs them.
func ParseFrame(channel string, data []byte) (*Event, error) {
	switch channel {
	case ChannelMessages:
		var w WireMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("message frame: %w", err)
		}
		msg, err := w.ToModel()
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventMessageCreated, Message: msg}, nil

	case ChannelMessageEdited:
		var f messageEditedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("message-edited frame: %w", err)
		}
		if f.Message == nil {
			return nil, fmt.Errorf("message-edited frame missing message")
		}
		msg, err := f.Message.ToModel()
		if err != nil {
			return nil, err
		}
		msg.Edited = true
		return &Event{Kind: EventMessageEdited, Message: msg}, nil

	case ChannelMessageDeleted:
		var f messageDeletedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("message-deleted frame: %w", err)
		}
		if f.MessageID == "" || f.ChatID == "" {
			return nil, fmt.Errorf("message-deleted frame missing messageId or chatId")
		}
		return &Event{
			Kind:      EventMessageDeleted,
			MessageID: identity.FromServer(f.MessageID),
			ChatID:    identity.FromServer(f.ChatID),
		}, nil

	case ChannelChatDeleted:
		var f chatDeletedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("chat-deleted frame: %w", err)
		}
		if f.ChatID == "" {
			return nil, fmt.Errorf("chat-deleted frame missing chatId")
		}
		evt := &Event{
			Kind:      EventConversationDeleted,
			ChatID:    identity.FromServer(f.ChatID),
			DeletedBy: f.DeletedBy,
		}
		if f.DeletedAt != "" {
			if ts, err := time.Parse(time.RFC3339, f.DeletedAt); err == nil {
				evt.DeletedAt = ts
			}
		}
		return evt, nil

	case ChannelTyping:
		var f typingFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("typing frame: %w", err)
		}
		if f.SenderID == "" {
			return nil, fmt.Errorf("typing frame missing senderId")
		}
		status := f.Status
		if status == "" && f.Typing && f.Type == "TEXT" {
			status = "WRITING_TEXT"
		}
		return &Event{
			Kind: EventTypingChanged,
			Typing: &TypingChanged{
				SenderID: f.SenderID,
				Typing:   f.Typing,
				Status:   status,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
}

// SendAnnouncement is the metadata-only frame published to DestSend after a
// REST send completes; binary payloads never travel over the socket.
type SendAnnouncement struct {
	ReceiverID           string `json:"receiverId"`
	Content              string `json:"content,omitempty"`
	Type                 string `json:"type,omitempty"`
	ReplyToMessageID     string `json:"replyToMessageId,omitempty"`
	System               bool   `json:"system,omitempty"`
	AttachmentURL        string `json:"attachmentUrl,omitempty"`
	AttachmentName       string `json:"attachmentName,omitempty"`
	AttachmentSize       int64  `json:"attachmentSize,omitempty"`
	AttachmentMimeType   string `json:"attachmentMimeType,omitempty"`
	AttachmentDurationMs int64  `json:"attachmentDurationMs,omitempty"`
}

// TypingBroadcast is the frame published to DestTyping.
type TypingBroadcast struct {
	ReceiverID string `json:"receiverId"`
	Typing     bool   `json:"typing"`
	Status     string `json:"status,omitempty"`
	Type       string `json:"type,omitempty"`
}

// ChatDeletedBroadcast is the frame published to DestChatDeleted.
type ChatDeletedBroadcast struct {
	ChatID    string `json:"chatId"`
	DeletedBy string `json:"deletedBy"`
	DeletedAt string `json:"deletedAt"`
}
