package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/api"
	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
	"github.com/davrbek/chatline/internal/protocol"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeService struct {
	mu        sync.Mutex
	chats     *api.ChatList
	histories map[identity.ID][]*model.Message
	sent      []api.SendRequest
	edited    []identity.ID
	deleted   []identity.ID
	delChats  []identity.ID
	nextID    int
	chatIDFor string // chat id returned for sends, default "c-srv"
	sendErr   error
	sendGate  chan struct{} // when set, SendMessage blocks until closed
	editFn    func(identity.ID, string) (*model.Message, error)
}

func newFakeService() *fakeService {
	return &fakeService{
		chats:     &api.ChatList{},
		histories: make(map[identity.ID][]*model.Message),
		chatIDFor: "c-srv",
	}
}

func (f *fakeService) ListChats(context.Context) (*api.ChatList, error) {
	return f.chats, nil
}

func (f *fakeService) ListMessages(_ context.Context, chatID identity.ID) ([]*model.Message, error) {
	return f.histories[chatID], nil
}

func (f *fakeService) SendMessage(_ context.Context, req api.SendRequest) (*model.Message, error) {
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	f.nextID++
	msg := &model.Message{
		ID:         identity.FromServer(fmt.Sprintf("srv-%d", f.nextID)),
		ChatID:     identity.FromServer(f.chatIDFor),
		SenderID:   "me",
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		CreatedAt:  testTime.Add(time.Duration(f.nextID) * time.Second),
		Kind:       req.Kind,
	}
	if req.Attachment != nil {
		msg.Attachment = &model.Attachment{
			URL:  "/files/" + req.Attachment.Name,
			Name: req.Attachment.Name,
			Size: int64(len(req.Attachment.Data)),
		}
	}
	return msg, nil
}

func (f *fakeService) EditMessage(_ context.Context, msgID identity.ID, content string) (*model.Message, error) {
	f.mu.Lock()
	f.edited = append(f.edited, msgID)
	f.mu.Unlock()
	if f.editFn != nil {
		return f.editFn(msgID, content)
	}
	return &model.Message{
		ID: msgID, ChatID: identity.FromServer(f.chatIDFor),
		SenderID: "me", Content: content, CreatedAt: testTime, Kind: model.KindText, Edited: true,
	}, nil
}

func (f *fakeService) DeleteMessage(_ context.Context, msgID identity.ID) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, msgID)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) DeleteChat(_ context.Context, chatID identity.ID) error {
	f.mu.Lock()
	f.delChats = append(f.delChats, chatID)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) sentRequests() []api.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.SendRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	frames []any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) error {
	p.mu.Lock()
	p.frames = append(p.frames, payload)
	p.mu.Unlock()
	return nil
}

func newEngine(t *testing.T, svc Service) (*Engine, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	e := New("me", svc, pub, bus.New(), zap.NewNop())
	e.now = func() time.Time { return testTime }
	return e, pub
}

func seeded(t *testing.T, svc *fakeService, convID string, unread int) *Engine {
	t.Helper()
	svc.chats = &api.ChatList{
		Conversations: []*model.Conversation{{
			ID: identity.FromServer(convID), User1ID: "me", User2ID: "alice",
			CreatedAt: testTime, LastMessageAt: testTime, Unread: unread,
			State: model.ConversationConfirmed,
		}},
		TotalUnread: unread,
	}
	e, _ := newEngine(t, svc)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return e
}

func TestChunkText(t *testing.T) {
	long := strings.Repeat("x", 9000)
	chunks := chunkText(long, MaxMessageLen)
	want := []int{4096, 4096, 808}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, n := range want {
		if len(chunks[i]) != n {
			t.Errorf("chunk %d length = %d, want %d", i, len(chunks[i]), n)
		}
	}
	if strings.Join(chunks, "") != long {
		t.Error("chunks do not reassemble the original text")
	}
	if got := chunkText("short", MaxMessageLen); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text chunked wrong: %q", got)
	}
	if got := chunkText("", MaxMessageLen); got != nil {
		t.Errorf("empty text yielded chunks: %q", got)
	}
}

func TestSendLongTextChunksInOrder(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	e := seeded(t, svc, "c1", 0)
	conv := identity.FromServer("c1")

	long := strings.Repeat("a", 4096) + strings.Repeat("b", 4096) + strings.Repeat("c", 808)
	if err := e.Send(context.Background(), conv, model.Draft{Text: long}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// All three provisional entries appear immediately, in chunk order.
	seq := e.Messages(conv)
	if len(seq) != 3 {
		t.Fatalf("got %d provisional messages, want 3", len(seq))
	}
	for i, m := range seq {
		if !m.ID.IsProvisional() || !m.Local {
			t.Errorf("message %d not a local provisional entry: %+v", i, m)
		}
	}

	e.Wait()
	seq = e.Messages(conv)
	if len(seq) != 3 {
		t.Fatalf("got %d messages after reconcile, want 3", len(seq))
	}
	for i, m := range seq {
		if m.ID.IsProvisional() {
			t.Errorf("message %d still provisional after reconcile", i)
		}
	}
	if !strings.HasPrefix(seq[0].Content, "a") || !strings.HasPrefix(seq[1].Content, "b") || !strings.HasPrefix(seq[2].Content, "c") {
		t.Error("chunk order not preserved")
	}
	// Requests went out strictly in sequence order.
	reqs := svc.sentRequests()
	if len(reqs) != 3 || !strings.HasPrefix(reqs[0].Content, "a") || !strings.HasPrefix(reqs[2].Content, "c") {
		t.Errorf("request order wrong: %d requests", len(reqs))
	}
}

func TestSendToNewPeer(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c-real"
	e, _ := newEngine(t, svc)

	conv := e.StartConversation("bob")
	if !conv.IsProvisional() {
		t.Fatal("new-peer conversation is not provisional")
	}
	if err := e.Send(context.Background(), conv, model.Draft{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Provisional conversation and message are visible immediately.
	if _, ok := e.Conversation(conv); !ok {
		t.Fatal("provisional conversation not in cache")
	}
	if len(e.Messages(conv)) != 1 {
		t.Fatal("provisional message not in cache")
	}

	e.Wait()
	server := identity.FromServer("c-real")
	c, ok := e.Conversation(server)
	if !ok {
		t.Fatal("conversation not promoted to server identity")
	}
	if _, ok := e.Conversation(conv); ok {
		t.Fatal("provisional conversation id still resolvable")
	}
	if c.Unread != 0 || e.TotalUnread() != 0 {
		t.Errorf("sender unread = %d / %d, want 0", c.Unread, e.TotalUnread())
	}
	seq := e.Messages(server)
	if len(seq) != 1 || seq[0].ID != identity.FromServer("srv-1") || seq[0].Content != "hello" {
		t.Fatalf("reconciled message wrong: %+v", seq)
	}

	// Reusing StartConversation for the same peer now returns the server id.
	if got := e.StartConversation("bob"); got != server {
		t.Errorf("StartConversation(bob) = %v, want %v", got, server)
	}
}

func TestSendToNewPeerRacesInboundConversation(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c-real"
	svc.sendGate = make(chan struct{})
	e, _ := newEngine(t, svc)

	conv := e.StartConversation("bob")
	if err := e.Send(context.Background(), conv, model.Draft{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// While the send is in flight, bob's reply arrives on the realtime
	// channel and seeds the server-keyed conversation first.
	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m-bob"), ChatID: identity.FromServer("c-real"),
		SenderID: "bob", ReceiverID: "me", Content: "hi back",
		CreatedAt: testTime.Add(time.Second), Kind: model.KindText,
	}})

	close(svc.sendGate)
	e.Wait()

	server := identity.FromServer("c-real")
	seen := 0
	for _, c := range e.Conversations() {
		if c.ID == server {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("conversation %v appears %d times in the list, want 1", server, seen)
	}
	if _, ok := e.Conversation(conv); ok {
		t.Fatal("provisional conversation id still resolvable")
	}
	c, _ := e.Conversation(server)
	if c.Unread != 1 || e.TotalUnread() != 1 {
		t.Fatalf("unread after merge = %d / %d, want 1", c.Unread, e.TotalUnread())
	}
	seq := e.Messages(server)
	if len(seq) != 2 {
		t.Fatalf("merged sequence has %d messages, want 2", len(seq))
	}
	for _, m := range seq {
		if m.ID.IsProvisional() || m.ChatID != server {
			t.Fatalf("unreconciled entry survived the merge: %+v", m)
		}
	}
}

func TestSendEmptyDraft(t *testing.T) {
	e := seeded(t, newFakeService(), "c1", 0)
	err := e.Send(context.Background(), identity.FromServer("c1"), model.Draft{Text: "   "})
	if !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("err = %v, want ErrEmptyDraft", err)
	}
}

func TestSendOversizedAttachmentRejected(t *testing.T) {
	svc := newFakeService()
	e := seeded(t, svc, "c1", 0)
	err := e.Send(context.Background(), identity.FromServer("c1"), model.Draft{
		Attachments: []model.DraftAttachment{{Name: "huge.bin", Data: make([]byte, MaxAttachmentSize+1)}},
	})
	var tooLarge *AttachmentTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want AttachmentTooLargeError", err)
	}
	if tooLarge.Name != "huge.bin" {
		t.Errorf("error names %q, want huge.bin", tooLarge.Name)
	}
	if len(svc.sentRequests()) != 0 {
		t.Error("oversized attachment reached the network")
	}
	if len(e.Messages(identity.FromServer("c1"))) != 0 {
		t.Error("oversized attachment left a provisional entry")
	}
}

func TestSendAttachmentUploadsWithProgress(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	b := bus.New()
	pub := &fakePublisher{}
	e := New("me", svc, pub, b, zap.NewNop())
	e.now = func() time.Time { return testTime }
	e.mu.Lock()
	e.store.SeedConversations([]*model.Conversation{{
		ID: identity.FromServer("c1"), User1ID: "me", User2ID: "alice",
		State: model.ConversationConfirmed,
	}})
	e.mu.Unlock()

	done, unsub := b.Subscribe("upload.", 16)
	defer unsub()

	err := e.Send(context.Background(), identity.FromServer("c1"), model.Draft{
		Attachments: []model.DraftAttachment{
			{Name: "a.png", MimeType: "image/png", Data: []byte("aaa"), Kind: model.KindImage},
			{Name: "b.pdf", MimeType: "application/pdf", Data: []byte("bbb")},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Wait()

	seq := e.Messages(identity.FromServer("c1"))
	if len(seq) != 2 {
		t.Fatalf("got %d messages, want 2", len(seq))
	}
	for _, m := range seq {
		if m.ID.IsProvisional() || m.Attachment == nil {
			t.Errorf("attachment message not reconciled: %+v", m)
		}
	}

	var doneEvents int
	for {
		select {
		case evt := <-done:
			if evt.Kind == "upload.done" {
				doneEvents++
			}
		default:
			if doneEvents != 2 {
				t.Fatalf("got %d upload.done events, want 2", doneEvents)
			}
			return
		}
	}
}

func TestSendFailureLeavesFailedEntry(t *testing.T) {
	svc := newFakeService()
	svc.sendErr = errors.New("boom")
	b := bus.New()
	pub := &fakePublisher{}
	e := New("me", svc, pub, b, zap.NewNop())
	e.now = func() time.Time { return testTime }
	e.mu.Lock()
	e.store.SeedConversations([]*model.Conversation{{
		ID: identity.FromServer("c1"), User1ID: "me", User2ID: "alice",
		State: model.ConversationConfirmed,
	}})
	e.mu.Unlock()

	failed, unsub := b.Subscribe("message.send_failed", 4)
	defer unsub()

	conv := identity.FromServer("c1")
	if err := e.Send(context.Background(), conv, model.Draft{Text: "will fail"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Wait()

	seq := e.Messages(conv)
	if len(seq) != 1 {
		t.Fatalf("got %d messages, want the failed entry to remain", len(seq))
	}
	if !seq[0].Failed || !seq[0].ID.IsProvisional() {
		t.Fatalf("entry not marked failed: %+v", seq[0])
	}
	select {
	case <-failed:
	default:
		t.Error("no message.send_failed event published")
	}

	// Abandon removes it on demand.
	e.Abandon(conv, seq[0].ID)
	if len(e.Messages(conv)) != 0 {
		t.Error("Abandon left the failed entry behind")
	}
}

func TestEditValidation(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	e := seeded(t, svc, "c1", 0)
	conv := identity.FromServer("c1")

	// Remote message: not editable.
	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m-remote"), ChatID: conv, SenderID: "alice",
		Content: "theirs", CreatedAt: testTime, Kind: model.KindText,
	}})
	var notAllowed *EditNotAllowedError
	if err := e.Edit(context.Background(), conv, identity.FromServer("m-remote"), "x"); !errors.As(err, &notAllowed) {
		t.Errorf("editing remote message: err = %v", err)
	}

	// Provisional message: still sending.
	svc.sendErr = errors.New("keep it provisional")
	e.Send(context.Background(), conv, model.Draft{Text: "pending"})
	e.Wait()
	svc.sendErr = nil
	var provisionalID identity.ID
	for _, m := range e.Messages(conv) {
		if m.ID.IsProvisional() {
			provisionalID = m.ID
		}
	}
	if err := e.Edit(context.Background(), conv, provisionalID, "x"); !errors.As(err, &notAllowed) {
		t.Errorf("editing provisional message: err = %v", err)
	}
}

func TestEditReplacesWithServerResult(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	e := seeded(t, svc, "c1", 0)
	conv := identity.FromServer("c1")

	if err := e.Send(context.Background(), conv, model.Draft{Text: "tpyo"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.Wait()
	sent := e.Messages(conv)[0]

	if err := e.Edit(context.Background(), conv, sent.ID, "typo"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	e.Wait()

	got := e.Messages(conv)[0]
	if got.Content != "typo" || !got.Edited || !got.Local {
		t.Fatalf("edited message = %+v", got)
	}
}

func TestDeleteLastMessageLeavesClearedMarker(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	e := seeded(t, svc, "c1", 0)
	conv := identity.FromServer("c1")

	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m1"), ChatID: conv, SenderID: "alice",
		Content: "only one", CreatedAt: testTime, Kind: model.KindText,
	}})
	if e.TotalUnread() != 1 {
		t.Fatalf("TotalUnread = %d, want 1", e.TotalUnread())
	}

	if err := e.Delete(context.Background(), conv, identity.FromServer("m1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	e.Wait()

	c, _ := e.Conversation(conv)
	if c.LastMessage == nil || c.LastMessage.Kind != model.KindSystem {
		t.Fatalf("expected cleared marker, got %+v", c.LastMessage)
	}
	if c.Unread != 0 || e.TotalUnread() != 0 {
		t.Errorf("unread not forced to zero: %d / %d", c.Unread, e.TotalUnread())
	}
	if got := svc.deleted; len(got) != 1 || got[0] != identity.FromServer("m1") {
		t.Errorf("server delete calls = %v", got)
	}
}

func TestInboundCreatedIncrementsUnread(t *testing.T) {
	e := seeded(t, newFakeService(), "c1", 0)
	conv := identity.FromServer("c1")

	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m1"), ChatID: conv, SenderID: "alice",
		Content: "ping", CreatedAt: testTime, Kind: model.KindText,
	}})
	c, _ := e.Conversation(conv)
	if c.Unread != 1 || e.TotalUnread() != 1 {
		t.Fatalf("unread = %d / %d, want 1 / 1", c.Unread, e.TotalUnread())
	}

	// Opening clears it.
	if err := e.OpenConversation(context.Background(), conv); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if e.TotalUnread() != 0 {
		t.Fatalf("TotalUnread after open = %d", e.TotalUnread())
	}
}

func TestInboundEchoOfOwnSendIgnored(t *testing.T) {
	svc := newFakeService()
	svc.chatIDFor = "c1"
	e := seeded(t, svc, "c1", 0)
	conv := identity.FromServer("c1")

	e.Send(context.Background(), conv, model.Draft{Text: "hi"})
	e.Wait()
	reconciled := e.Messages(conv)[0]

	// The socket echoes our own message back; it must not duplicate.
	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: reconciled.ID, ChatID: conv, SenderID: "me",
		Content: "hi", CreatedAt: reconciled.CreatedAt, Kind: model.KindText,
	}})
	if got := len(e.Messages(conv)); got != 1 {
		t.Fatalf("echo duplicated the message: %d entries", got)
	}
}

func TestInboundConversationDeleted(t *testing.T) {
	e := seeded(t, newFakeService(), "c1", 2)
	e.Apply(&protocol.Event{
		Kind:      protocol.EventConversationDeleted,
		ChatID:    identity.FromServer("c1"),
		DeletedBy: "alice",
	})
	if _, ok := e.Conversation(identity.FromServer("c1")); ok {
		t.Fatal("conversation survived peer deletion")
	}
	if e.TotalUnread() != 0 {
		t.Fatalf("TotalUnread = %d, want 0", e.TotalUnread())
	}
}

func TestInboundTypingChanged(t *testing.T) {
	e := seeded(t, newFakeService(), "c1", 0)
	e.Apply(&protocol.Event{Kind: protocol.EventTypingChanged,
		Typing: &protocol.TypingChanged{SenderID: "alice", Typing: true, Status: "WRITING_TEXT"}})
	if e.PeerTyping("alice") == "" {
		t.Fatal("typing indicator not set")
	}
	// Opening a conversation resets inbound indicators.
	if err := e.OpenConversation(context.Background(), identity.FromServer("c1")); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if e.PeerTyping("alice") != "" {
		t.Fatal("typing indicator survived conversation switch")
	}
}

func TestOpenConversationFetchesHistoryOnce(t *testing.T) {
	svc := newFakeService()
	conv := identity.FromServer("c1")
	svc.histories[conv] = []*model.Message{
		{ID: identity.FromServer("h1"), ChatID: conv, SenderID: "alice",
			Content: "old", CreatedAt: testTime, Kind: model.KindText},
	}
	e := seeded(t, svc, "c1", 0)

	if err := e.OpenConversation(context.Background(), conv); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if got := e.Messages(conv); len(got) != 1 || got[0].ID != identity.FromServer("h1") {
		t.Fatalf("history not loaded: %+v", got)
	}

	// A second open must not re-fetch and clobber local state.
	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m2"), ChatID: conv, SenderID: "alice",
		Content: "new", CreatedAt: testTime.Add(time.Minute), Kind: model.KindText,
	}})
	if err := e.OpenConversation(context.Background(), conv); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if got := e.Messages(conv); len(got) != 2 {
		t.Fatalf("second open clobbered the sequence: %d messages", len(got))
	}
}

func TestDeleteConversationBroadcasts(t *testing.T) {
	svc := newFakeService()
	e, pub := newEngine(t, svc)
	e.mu.Lock()
	e.store.SeedConversations([]*model.Conversation{{
		ID: identity.FromServer("c1"), User1ID: "me", User2ID: "alice",
		State: model.ConversationConfirmed,
	}})
	e.mu.Unlock()

	if err := e.DeleteConversation(context.Background(), identity.FromServer("c1")); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	e.Wait()

	if len(svc.delChats) != 1 {
		t.Fatalf("server chat delete calls = %d", len(svc.delChats))
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	found := false
	for _, f := range pub.frames {
		if b, ok := f.(protocol.ChatDeletedBroadcast); ok {
			if b.ChatID == "c1" && b.DeletedBy == "me" {
				found = true
			}
		}
	}
	if !found {
		t.Error("no chat-deleted broadcast published")
	}
}

func TestTotalUnreadInvariant(t *testing.T) {
	svc := newFakeService()
	svc.chats = &api.ChatList{
		Conversations: []*model.Conversation{
			{ID: identity.FromServer("c1"), User1ID: "me", User2ID: "a", Unread: 2, State: model.ConversationConfirmed},
			{ID: identity.FromServer("c2"), User1ID: "me", User2ID: "b", Unread: 3, State: model.ConversationConfirmed},
		},
		TotalUnread: 5,
	}
	e, _ := newEngine(t, svc)
	if err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	// Arbitrary event sequence; the running total must always equal the sum.
	check := func(step string) {
		t.Helper()
		sum := 0
		for _, c := range e.Conversations() {
			sum += c.Unread
		}
		if got := e.TotalUnread(); got != sum {
			t.Fatalf("%s: TotalUnread = %d, sum = %d", step, got, sum)
		}
	}
	check("after bootstrap")

	e.Apply(&protocol.Event{Kind: protocol.EventMessageCreated, Message: &model.Message{
		ID: identity.FromServer("m1"), ChatID: identity.FromServer("c1"),
		SenderID: "a", Content: "x", CreatedAt: testTime, Kind: model.KindText,
	}})
	check("after inbound create")

	e.OpenConversation(context.Background(), identity.FromServer("c1"))
	check("after open")

	e.Apply(&protocol.Event{Kind: protocol.EventConversationDeleted, ChatID: identity.FromServer("c2")})
	check("after conversation delete")
}
