// Package engine is the synchronization core: it owns the conversation and
// message caches, funnels every mutation — local optimistic writes and
// inbound transport events alike — through one mutex, and reconciles
// provisional identities against server-confirmed ones.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/api"
	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/cache"
	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
	"github.com/davrbek/chatline/internal/protocol"
	"github.com/davrbek/chatline/internal/transport"
	"github.com/davrbek/chatline/internal/typing"
)

// Service is the request/response surface of the message service the engine
// consumes. *api.Client satisfies it.
type Service interface {
	ListChats(ctx context.Context) (*api.ChatList, error)
	ListMessages(ctx context.Context, chatID identity.ID) ([]*model.Message, error)
	SendMessage(ctx context.Context, req api.SendRequest) (*model.Message, error)
	EditMessage(ctx context.Context, msgID identity.ID, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, msgID identity.ID) error
	DeleteChat(ctx context.Context, chatID identity.ID) error
}

// Publisher is the outbound socket surface. *transport.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) error
}

// Engine drives the local mirror of the user's conversations.
type Engine struct {
	selfID string
	svc    Service
	pub    Publisher
	bus    *bus.Bus
	log    *zap.Logger
	ids    *identity.Table

	mu      sync.Mutex
	wg      sync.WaitGroup
	store   *cache.Store
	typing  *typing.Tracker
	history map[identity.ID]bool

	now func() time.Time
}

// New creates an engine for the authenticated user selfID.
func New(selfID string, svc Service, pub Publisher, b *bus.Bus, log *zap.Logger) *Engine {
	return &Engine{
		selfID:  selfID,
		svc:     svc,
		pub:     pub,
		bus:     b,
		log:     log,
		ids:     identity.NewTable(),
		store:   cache.New(),
		typing:  typing.NewTracker(),
		history: make(map[identity.ID]bool),
		now:     time.Now,
	}
}

// SelfID returns the authenticated user's identifier.
func (e *Engine) SelfID() string { return e.selfID }

// Bootstrap loads the conversation listing into the cache.
func (e *Engine) Bootstrap(ctx context.Context) error {
	list, err := e.svc.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	e.mu.Lock()
	e.store.SeedConversations(list.Conversations)
	e.mu.Unlock()
	e.log.Info("conversation list loaded",
		zap.Int("conversations", len(list.Conversations)),
		zap.Int("total_unread", list.TotalUnread))
	e.publish(bus.KindConversationUpdated, nil)
	return nil
}

// OpenConversation marks a conversation as the one in view, clears its
// unread count and all inbound typing indicators, and fetches its message
// history on first open.
func (e *Engine) OpenConversation(ctx context.Context, convID identity.ID) error {
	e.mu.Lock()
	if _, ok := e.store.Conversation(convID); !ok {
		e.mu.Unlock()
		return fmt.Errorf("open: unknown conversation %s", convID)
	}
	e.store.MarkOpened(convID)
	e.typing.Reset()
	needHistory := !convID.IsProvisional() && !e.history[convID]
	e.mu.Unlock()
	e.publish(bus.KindConversationUpdated, nil)

	if !needHistory {
		return nil
	}
	msgs, err := e.svc.ListMessages(ctx, convID)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	e.mu.Lock()
	e.store.SeedMessages(convID, msgs)
	e.history[convID] = true
	e.mu.Unlock()
	e.publish(bus.KindMessageUpserted, nil)
	return nil
}

// CloseConversation leaves the current conversation view.
func (e *Engine) CloseConversation() {
	e.mu.Lock()
	e.store.MarkOpened(identity.ID{})
	e.typing.Reset()
	e.mu.Unlock()
	e.publish(bus.KindConversationUpdated, nil)
}

// StartConversation returns the conversation with peerID, minting a
// provisional one when none exists yet.
func (e *Engine) StartConversation(peerID string) identity.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.store.FindByPeer(e.selfID, peerID); ok {
		return c.ID
	}
	id := e.ids.MintConversation()
	e.store.InsertConversation(&model.Conversation{
		ID:        id,
		User1ID:   e.selfID,
		User2ID:   peerID,
		CreatedAt: e.now(),
		State:     model.ConversationProvisional,
	})
	return id
}

// Conversations returns a snapshot of the conversation list, most recent
// activity first.
func (e *Engine) Conversations() []*model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

// Messages returns a snapshot of one conversation's message sequence.
func (e *Engine) Messages(convID identity.ID) []*model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Messages(convID)
}

// Conversation returns a snapshot of one conversation.
func (e *Engine) Conversation(convID identity.ID) (*model.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Conversation(convID)
}

// TotalUnread returns the running unread total across all conversations.
func (e *Engine) TotalUnread() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.TotalUnread()
}

// PeerTyping returns the inbound composition indicator for a peer.
func (e *Engine) PeerTyping(peerID string) typing.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing.Peer(peerID)
}

// Subscriber is the inbound side of the transport the engine binds to.
type Subscriber interface {
	Subscribe(channel string, h transport.Handler)
}

// BindTransport registers the engine as the single handler for every
// inbound channel. Malformed frames are dropped with a log line.
func (e *Engine) BindTransport(t Subscriber) {
	channels := []string{
		protocol.ChannelMessages,
		protocol.ChannelTyping,
		protocol.ChannelChatDeleted,
		protocol.ChannelMessageEdited,
		protocol.ChannelMessageDeleted,
	}
	for _, ch := range channels {
		channel := ch
		t.Subscribe(channel, func(payload []byte) {
			evt, err := protocol.ParseFrame(channel, payload)
			if err != nil {
				e.log.Warn("dropping malformed frame",
					zap.String("channel", channel), zap.Error(err))
				return
			}
			e.Apply(evt)
		})
	}
}

// Apply folds one inbound event into the caches. This is the event
// dispatcher: exactly one code path per event kind, mutations atomic under
// the engine mutex.
func (e *Engine) Apply(evt *protocol.Event) {
	switch evt.Kind {
	case protocol.EventMessageCreated:
		e.applyCreated(evt.Message)

	case protocol.EventMessageEdited:
		e.mu.Lock()
		ok := e.store.ApplyEdited(evt.Message)
		e.mu.Unlock()
		if !ok {
			e.log.Debug("edit event for unknown message",
				zap.Stringer("message_id", evt.Message.ID))
			return
		}
		e.publish(bus.KindMessageUpserted, evt.Message.ID)

	case protocol.EventMessageDeleted:
		e.mu.Lock()
		ok := e.store.ApplyDeleted(evt.ChatID, evt.MessageID, e.now())
		e.mu.Unlock()
		if !ok {
			return
		}
		e.publish(bus.KindMessageDeleted, evt.MessageID)
		e.publish(bus.KindConversationUpdated, evt.ChatID)

	case protocol.EventConversationDeleted:
		e.mu.Lock()
		ok := e.store.ApplyConversationDeleted(evt.ChatID)
		delete(e.history, evt.ChatID)
		e.mu.Unlock()
		if !ok {
			return
		}
		e.log.Info("conversation deleted by peer",
			zap.Stringer("chat_id", evt.ChatID),
			zap.String("deleted_by", evt.DeletedBy))
		e.publish(bus.KindConversationDeleted, evt.ChatID)

	case protocol.EventTypingChanged:
		e.mu.Lock()
		changed := e.typing.Apply(evt.Typing)
		e.mu.Unlock()
		if changed {
			e.publish(bus.KindTypingChanged, evt.Typing.SenderID)
		}
	}
}

func (e *Engine) applyCreated(msg *model.Message) {
	local := msg.SenderID == e.selfID
	e.mu.Lock()
	if e.store.HasMessage(msg.ChatID, msg.ID) {
		// Echo of a send this client already reconciled.
		e.mu.Unlock()
		return
	}
	e.store.ApplyCreated(msg, local)
	e.mu.Unlock()
	e.publish(bus.KindMessageUpserted, msg.ID)
	e.publish(bus.KindConversationUpdated, msg.ChatID)
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: e.now(), Payload: payload})
}
