// Package model holds the domain entities mirrored from the message service.
package model

import (
	"time"

	"github.com/davrbek/chatline/internal/identity"
)

// MessageKind classifies a message body.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindVideo  MessageKind = "video"
	KindAudio  MessageKind = "audio"
	KindVoice  MessageKind = "voice"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// ConversationState is the lifecycle state of a conversation.
type ConversationState string

const (
	ConversationProvisional ConversationState = "provisional"
	ConversationConfirmed   ConversationState = "confirmed"
	ConversationDeleted     ConversationState = "deleted"
)

// Attachment describes a binary payload attached to a message.
type Attachment struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
	Duration time.Duration
}

// Message is one entry in a conversation's sequence.
type Message struct {
	ID         identity.ID
	ChatID     identity.ID
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Read       bool
	Kind       MessageKind
	ReplyTo    identity.ID
	Attachment *Attachment
	Edited     bool

	// Local marks messages originated on this client; Failed marks an
	// optimistic send whose network call failed and was not retried.
	Local  bool
	Failed bool
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Attachment != nil {
		att := *m.Attachment
		cp.Attachment = &att
	}
	return &cp
}

// Conversation is a two-party message thread.
type Conversation struct {
	ID            identity.ID
	User1ID       string
	User2ID       string
	CreatedAt     time.Time
	LastMessageAt time.Time
	LastMessage   *Message
	Unread        int
	State         ConversationState
}

// Peer returns the participant that is not selfID.
func (c *Conversation) Peer(selfID string) string {
	if c.User1ID == selfID {
		return c.User2ID
	}
	return c.User1ID
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	if c.LastMessage != nil {
		cp.LastMessage = c.LastMessage.Clone()
	}
	return &cp
}

// DraftAttachment is a binary payload staged for sending.
type DraftAttachment struct {
	Name     string
	MimeType string
	Data     []byte
	Kind     MessageKind
	Duration time.Duration
}

// Draft is user input handed to the optimistic write pipeline.
type Draft struct {
	Text        string
	ReplyTo     identity.ID
	Attachments []DraftAttachment
}

// UploadProgress reports bytes transferred for one in-flight attachment.
type UploadProgress struct {
	MessageID identity.ID
	Name      string
	Loaded    int64
	Total     int64
	Percent   int
}
