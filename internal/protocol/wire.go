// Package protocol defines the wire format spoken with the message service:
// the JSON entity shapes, the inbound channel names, the outbound publish
// destinations, and the parsing of raw frames into typed events.
package protocol

import (
	"fmt"
	"time"

	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
)

// Inbound per-user channels.
const (
	ChannelMessages       = "/user/queue/messages"
	ChannelTyping         = "/user/queue/typing"
	ChannelChatDeleted    = "/user/queue/chat-deleted"
	ChannelMessageEdited  = "/user/queue/message-edited"
	ChannelMessageDeleted = "/user/queue/message-deleted"
)

// Outbound publish destinations.
const (
	DestSend        = "/app/send"
	DestTyping      = "/app/typing"
	DestChatDeleted = "/app/chat-deleted"
)

// WireMessage is the message entity as serialized by the service.
type WireMessage struct {
	MessageID            string `json:"messageId"`
	ChatID               string `json:"chatId"`
	SenderID             string `json:"senderId"`
	ReceiverID           string `json:"receiverId"`
	Content              string `json:"content"`
	CreatedAt            string `json:"createdAt"`
	Read                 bool   `json:"read"`
	Type                 string `json:"type,omitempty"`
	ReplyToMessageID     string `json:"replyToMessageId,omitempty"`
	System               bool   `json:"system,omitempty"`
	Edited               bool   `json:"edited,omitempty"`
	AttachmentURL        string `json:"attachmentUrl,omitempty"`
	AttachmentName       string `json:"attachmentName,omitempty"`
	AttachmentSize       int64  `json:"attachmentSize,omitempty"`
	AttachmentMimeType   string `json:"attachmentMimeType,omitempty"`
	AttachmentDurationMs int64  `json:"attachmentDurationMs,omitempty"`
}

// ToModel validates the wire entity and converts it to the domain model.
func (w *WireMessage) ToModel() (*model.Message, error) {
	if w.MessageID == "" {
		return nil, fmt.Errorf("message missing messageId")
	}
	if w.ChatID == "" {
		return nil, fmt.Errorf("message %s missing chatId", w.MessageID)
	}
	if w.SenderID == "" {
		return nil, fmt.Errorf("message %s missing senderId", w.MessageID)
	}

	createdAt := time.Time{}
	if w.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("message %s: bad createdAt %q: %w", w.MessageID, w.CreatedAt, err)
		}
		createdAt = ts
	}

	msg := &model.Message{
		ID:         identity.FromServer(w.MessageID),
		ChatID:     identity.FromServer(w.ChatID),
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		Content:    w.Content,
		CreatedAt:  createdAt,
		Read:       w.Read,
		Kind:       kindFromWire(w.Type, w.System),
		Edited:     w.Edited,
	}
	if w.ReplyToMessageID != "" {
		msg.ReplyTo = identity.FromServer(w.ReplyToMessageID)
	}
	if w.AttachmentURL != "" || w.AttachmentName != "" {
		msg.Attachment = &model.Attachment{
			URL:      w.AttachmentURL,
			Name:     w.AttachmentName,
			MimeType: w.AttachmentMimeType,
			Size:     w.AttachmentSize,
			Duration: time.Duration(w.AttachmentDurationMs) * time.Millisecond,
		}
	}
	return msg, nil
}

// FromModel converts a domain message back to its wire shape.
func FromModel(m *model.Message) *WireMessage {
	w := &WireMessage{
		MessageID:  m.ID.String(),
		ChatID:     m.ChatID.String(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		Type:       KindToWire(m.Kind),
		System:     m.Kind == model.KindSystem,
		Edited:     m.Edited,
	}
	if !m.CreatedAt.IsZero() {
		w.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	if !m.ReplyTo.IsZero() {
		w.ReplyToMessageID = m.ReplyTo.String()
	}
	if m.Attachment != nil {
		w.AttachmentURL = m.Attachment.URL
		w.AttachmentName = m.Attachment.Name
		w.AttachmentSize = m.Attachment.Size
		w.AttachmentMimeType = m.Attachment.MimeType
		w.AttachmentDurationMs = m.Attachment.Duration.Milliseconds()
	}
	return w
}

// WireChat is the conversation entity as serialized by the service.
type WireChat struct {
	ID            string       `json:"id"`
	ChatID        string       `json:"chatId,omitempty"`
	User1ID       string       `json:"user1Id"`
	User2ID       string       `json:"user2Id"`
	CreatedAt     string       `json:"createdAt"`
	LastMessageAt string       `json:"lastMessageAt"`
	UnreadCount   int          `json:"unreadCount,omitempty"`
	LastMessage   *WireMessage `json:"lastMessage,omitempty"`
}

// ToModel validates the wire chat and converts it to the domain model.
func (w *WireChat) ToModel() (*model.Conversation, error) {
	id := w.ID
	if id == "" {
		id = w.ChatID
	}
	if id == "" {
		return nil, fmt.Errorf("chat missing id")
	}

	conv := &model.Conversation{
		ID:      identity.FromServer(id),
		User1ID: w.User1ID,
		User2ID: w.User2ID,
		Unread:  w.UnreadCount,
		State:   model.ConversationConfirmed,
	}
	if w.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
			conv.CreatedAt = ts
		}
	}
	if w.LastMessageAt != "" {
		if ts, err := time.Parse(time.RFC3339, w.LastMessageAt); err == nil {
			conv.LastMessageAt = ts
		}
	}
	if w.LastMessage != nil {
		last, err := w.LastMessage.ToModel()
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", id, err)
		}
		conv.LastMessage = last
		if conv.LastMessageAt.IsZero() {
			conv.LastMessageAt = last.CreatedAt
		}
	}
	return conv, nil
}

func kindFromWire(t string, system bool) model.MessageKind {
	if system {
		return model.KindSystem
	}
	switch t {
	case "", "TEXT":
		return model.KindText
	case "IMAGE":
		return model.KindImage
	case "VIDEO", "VIDEO_NOTE":
		return model.KindVideo
	case "AUDIO":
		return model.KindAudio
	case "VOICE":
		return model.KindVoice
	case "FILE":
		return model.KindFile
	case "SYSTEM":
		return model.KindSystem
	default:
		return model.KindText
	}
}

// KindToWire maps a domain message kind to its wire tag.
func KindToWire(k model.MessageKind) string {
	switch k {
	case model.KindImage:
		return "IMAGE"
	case model.KindVideo:
		return "VIDEO"
	case model.KindAudio:
		return "AUDIO"
	case model.KindVoice:
		return "VOICE"
	case model.KindFile:
		return "FILE"
	case model.KindSystem:
		return "SYSTEM"
	default:
		return "TEXT"
	}
}
