// Package cache holds the local mirror of conversations and messages. It is
// owned exclusively by the sync engine, which serializes every mutation;
// the methods here are not safe for concurrent use on their own. All reads
// hand out copies, never internal pointers.
package cache

import (
	"sort"
	"time"

	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
)

// Store is the combined conversation and message cache.
type Store struct {
	order       []*model.Conversation
	byID        map[identity.ID]*model.Conversation
	messages    map[identity.ID][]*model.Message
	open        identity.ID
	totalUnread int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:     make(map[identity.ID]*model.Conversation),
		messages: make(map[identity.ID][]*model.Message),
	}
}

// SeedConversations replaces the conversation list from a server listing.
// Message sequences already cached are kept.
func (s *Store) SeedConversations(convs []*model.Conversation) {
	s.order = s.order[:0]
	s.byID = make(map[identity.ID]*model.Conversation)
	s.totalUnread = 0
	for _, c := range convs {
		cp := c.Clone()
		s.order = append(s.order, cp)
		s.byID[cp.ID] = cp
		s.totalUnread += cp.Unread
	}
}

// SeedMessages replaces the message sequence of one conversation.
func (s *Store) SeedMessages(convID identity.ID, msgs []*model.Message) {
	seq := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		seq = append(seq, m.Clone())
	}
	s.messages[convID] = seq
}

// InsertConversation adds a conversation if it is not already present.
func (s *Store) InsertConversation(c *model.Conversation) {
	if _, ok := s.byID[c.ID]; ok {
		return
	}
	cp := c.Clone()
	s.order = append(s.order, cp)
	s.byID[cp.ID] = cp
	s.totalUnread += cp.Unread
}

// Conversation returns a copy of the conversation with the given id.
func (s *Store) Conversation(id identity.ID) (*model.Conversation, bool) {
	c, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// FindByPeer returns the conversation whose other participant is peerID.
func (s *Store) FindByPeer(selfID, peerID string) (*model.Conversation, bool) {
	for _, c := range s.order {
		if c.State != model.ConversationDeleted && c.Peer(selfID) == peerID {
			return c.Clone(), true
		}
	}
	return nil, false
}

// List returns a snapshot of all conversations ordered by last-message time
// descending, ties broken by insertion order. Recomputed on every call.
func (s *Store) List() []*model.Conversation {
	out := make([]*model.Conversation, 0, len(s.order))
	for _, c := range s.order {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Messages returns a snapshot of one conversation's message sequence in
// local append order.
func (s *Store) Messages(convID identity.ID) []*model.Message {
	seq := s.messages[convID]
	out := make([]*model.Message, 0, len(seq))
	for _, m := range seq {
		out = append(out, m.Clone())
	}
	return out
}

// Message returns a copy of one cached message.
func (s *Store) Message(convID, msgID identity.ID) (*model.Message, bool) {
	for _, m := range s.messages[convID] {
		if m.ID == msgID {
			return m.Clone(), true
		}
	}
	return nil, false
}

// HasMessage reports whether a message is already cached.
func (s *Store) HasMessage(convID, msgID identity.ID) bool {
	for _, m := range s.messages[convID] {
		if m.ID == msgID {
			return true
		}
	}
	return false
}

// TotalUnread returns the running total of unread counts.
func (s *Store) TotalUnread() int {
	return s.totalUnread
}

// Open returns the identifier of the conversation currently being viewed.
func (s *Store) Open() identity.ID {
	return s.open
}

// MarkOpened records convID as the conversation in view and zeroes its
// unread count. A zero id means no conversation is open.
func (s *Store) MarkOpened(convID identity.ID) {
	s.open = convID
	if c, ok := s.byID[convID]; ok {
		s.totalUnread -= c.Unread
		if s.totalUnread < 0 {
			s.totalUnread = 0
		}
		c.Unread = 0
	}
}

// ApplyCreated applies a message-created event. local marks messages that
// originated on this client (echoes of our own sends never count as unread).
// The owning conversation is created on the fly when unknown.
func (s *Store) ApplyCreated(msg *model.Message, local bool) {
	c, ok := s.byID[msg.ChatID]
	if !ok {
		c = &model.Conversation{
			ID:        msg.ChatID,
			User1ID:   msg.SenderID,
			User2ID:   msg.ReceiverID,
			CreatedAt: msg.CreatedAt,
			State:     model.ConversationConfirmed,
		}
		s.order = append(s.order, c)
		s.byID[c.ID] = c
	}

	cp := msg.Clone()
	s.messages[c.ID] = append(s.messages[c.ID], cp)
	c.LastMessage = cp.Clone()
	c.LastMessageAt = cp.CreatedAt

	if !local && s.open != c.ID {
		c.Unread++
		s.totalUnread++
	}
}

// ApplyEdited replaces the cached message in place, preserving its position.
// Returns false when the message is unknown.
func (s *Store) ApplyEdited(msg *model.Message) bool {
	seq, ok := s.messages[msg.ChatID]
	if !ok {
		return false
	}
	for i, m := range seq {
		if m.ID == msg.ID {
			cp := msg.Clone()
			cp.Local = m.Local
			cp.Edited = true
			seq[i] = cp
			if c := s.byID[msg.ChatID]; c != nil && c.LastMessage != nil && c.LastMessage.ID == msg.ID {
				c.LastMessage = cp.Clone()
			}
			return true
		}
	}
	return false
}

// ApplyDeleted removes a message from its conversation. Deleting the last
// remaining message leaves a synthetic system "cleared" marker, stamped at,
// as the conversation's last-message pointer and forces unread to zero.
func (s *Store) ApplyDeleted(convID, msgID identity.ID, at time.Time) bool {
	seq, ok := s.messages[convID]
	if !ok {
		return false
	}
	idx := -1
	for i, m := range seq {
		if m.ID == msgID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	seq = append(seq[:idx], seq[idx+1:]...)
	s.messages[convID] = seq

	c := s.byID[convID]
	if c == nil {
		return true
	}
	if len(seq) == 0 {
		c.LastMessage = clearedMarker(convID, at)
		c.LastMessageAt = at
		s.totalUnread -= c.Unread
		if s.totalUnread < 0 {
			s.totalUnread = 0
		}
		c.Unread = 0
	} else if c.LastMessage != nil && c.LastMessage.ID == msgID {
		last := seq[len(seq)-1]
		c.LastMessage = last.Clone()
		c.LastMessageAt = last.CreatedAt
	}
	return true
}

// ApplyConversationDeleted removes a conversation and its messages.
func (s *Store) ApplyConversationDeleted(convID identity.ID) bool {
	c, ok := s.byID[convID]
	if !ok {
		return false
	}
	s.totalUnread -= c.Unread
	if s.totalUnread < 0 {
		s.totalUnread = 0
	}
	delete(s.byID, convID)
	delete(s.messages, convID)
	for i, o := range s.order {
		if o.ID == convID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.open == convID {
		s.open = identity.ID{}
	}
	return true
}

// MarkFailed flags a cached message as a failed optimistic send.
func (s *Store) MarkFailed(convID, msgID identity.ID) bool {
	for _, m := range s.messages[convID] {
		if m.ID == msgID {
			m.Failed = true
			return true
		}
	}
	return false
}

// ReconcileMessage swaps the provisional message provID for the
// server-confirmed saved entity, at the position provID occupied. The
// last-message pointer follows if it referenced the provisional entry.
func (s *Store) ReconcileMessage(convID, provID identity.ID, saved *model.Message) bool {
	seq, ok := s.messages[convID]
	if !ok {
		return false
	}
	for i, m := range seq {
		if m.ID == provID {
			cp := saved.Clone()
			cp.Local = true
			seq[i] = cp
			if c := s.byID[convID]; c != nil && c.LastMessage != nil && c.LastMessage.ID == provID {
				c.LastMessage = cp.Clone()
				c.LastMessageAt = cp.CreatedAt
			}
			return true
		}
	}
	return false
}

// ReconcileConversation renames a provisional conversation to its
// server-confirmed identifier, moving its message sequence and rewriting
// every cached reference. When the server identifier is already cached —
// an inbound event beat the promoting send — the provisional entry is
// folded into the existing one so the conversation never appears twice.
func (s *Store) ReconcileConversation(provID, serverID identity.ID) bool {
	c, ok := s.byID[provID]
	if !ok {
		return false
	}
	delete(s.byID, provID)

	seq := s.messages[provID]
	delete(s.messages, provID)
	for _, m := range seq {
		m.ChatID = serverID
	}
	if c.LastMessage != nil {
		c.LastMessage.ChatID = serverID
	}

	if existing, dup := s.byID[serverID]; dup {
		s.messages[serverID] = append(seq, s.messages[serverID]...)
		existing.Unread += c.Unread
		if existing.LastMessage == nil || c.LastMessageAt.After(existing.LastMessageAt) {
			existing.LastMessage = c.LastMessage
			existing.LastMessageAt = c.LastMessageAt
		}
		for i, o := range s.order {
			if o == c {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		if s.open == provID {
			s.open = serverID
		}
		return true
	}

	c.ID = serverID
	c.State = model.ConversationConfirmed
	s.byID[serverID] = c
	s.messages[serverID] = append(s.messages[serverID], seq...)
	if s.open == provID {
		s.open = serverID
	}
	return true
}

// RemoveMessage deletes a provisional entry without marker bookkeeping.
// Used when an optimistic operation is abandoned.
func (s *Store) RemoveMessage(convID, msgID identity.ID) bool {
	seq, ok := s.messages[convID]
	if !ok {
		return false
	}
	for i, m := range seq {
		if m.ID == msgID {
			s.messages[convID] = append(seq[:i], seq[i+1:]...)
			if c := s.byID[convID]; c != nil && c.LastMessage != nil && c.LastMessage.ID == msgID {
				rest := s.messages[convID]
				if len(rest) > 0 {
					last := rest[len(rest)-1]
					c.LastMessage = last.Clone()
					c.LastMessageAt = last.CreatedAt
				} else {
					c.LastMessage = nil
				}
			}
			return true
		}
	}
	return false
}

// RemoveConversation drops a conversation entirely (abandon path).
func (s *Store) RemoveConversation(convID identity.ID) bool {
	return s.ApplyConversationDeleted(convID)
}

func clearedMarker(convID identity.ID, at time.Time) *model.Message {
	return &model.Message{
		ID:        identity.FromServer("cleared-" + convID.String()),
		ChatID:    convID,
		CreatedAt: at,
		Read:      true,
		Kind:      model.KindSystem,
	}
}
