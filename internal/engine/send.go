package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/api"
	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
	"github.com/davrbek/chatline/internal/protocol"
)

const (
	// MaxMessageLen is the longest text the service accepts in one message.
	// Longer drafts are split into ordered chunks.
	MaxMessageLen = 4096

	// MaxAttachmentSize is the upload ceiling enforced before any network
	// call.
	MaxAttachmentSize = 50 << 20
)

// ErrEmptyDraft is returned by Send when the draft carries neither text nor
// attachments.
var ErrEmptyDraft = errors.New("engine: draft has no content")

// AttachmentTooLargeError rejects an oversized attachment by name before any
// network traffic.
type AttachmentTooLargeError struct {
	Name string
	Size int64
}

func (e *AttachmentTooLargeError) Error() string {
	return fmt.Sprintf("engine: attachment %q is %d bytes, limit is %d", e.Name, e.Size, int64(MaxAttachmentSize))
}

// EditNotAllowedError rejects an edit that violates the edit preconditions.
type EditNotAllowedError struct {
	Reason string
}

func (e *EditNotAllowedError) Error() string {
	return "engine: edit not allowed: " + e.Reason
}

type sendJob struct {
	id  identity.ID
	req api.SendRequest
}

// Send runs the optimistic write pipeline for one draft. Text is trimmed and
// split at MaxMessageLen into ordered chunks, each an independent provisional
// message; chunk requests go out strictly in sequence order. Attachments
// become independent provisional messages uploaded in parallel, with
// per-attachment progress published on the bus. Validation errors return
// synchronously; network failures surface later as send_failed events.
func (e *Engine) Send(ctx context.Context, convID identity.ID, draft model.Draft) error {
	text := strings.TrimSpace(draft.Text)
	if text == "" && len(draft.Attachments) == 0 {
		return ErrEmptyDraft
	}
	for _, att := range draft.Attachments {
		if int64(len(att.Data)) > MaxAttachmentSize {
			return &AttachmentTooLargeError{Name: att.Name, Size: int64(len(att.Data))}
		}
	}

	e.mu.Lock()
	conv, ok := e.store.Conversation(convID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("send: unknown conversation %s", convID)
	}
	receiver := conv.Peer(e.selfID)

	var chunkJobs []sendJob
	for _, chunk := range chunkText(text, MaxMessageLen) {
		id := e.ids.MintMessage(convID)
		e.store.ApplyCreated(&model.Message{
			ID:         id,
			ChatID:     convID,
			SenderID:   e.selfID,
			ReceiverID: receiver,
			Content:    chunk,
			CreatedAt:  e.now(),
			Read:       true,
			Kind:       model.KindText,
			ReplyTo:    draft.ReplyTo,
			Local:      true,
		}, true)
		chunkJobs = append(chunkJobs, sendJob{id: id, req: api.SendRequest{
			ReceiverID: receiver,
			Content:    chunk,
			Kind:       model.KindText,
			ReplyTo:    draft.ReplyTo,
		}})
	}

	var attJobs []sendJob
	for _, att := range draft.Attachments {
		kind := att.Kind
		if kind == "" {
			kind = model.KindFile
		}
		id := e.ids.MintMessage(convID)
		e.store.ApplyCreated(&model.Message{
			ID:         id,
			ChatID:     convID,
			SenderID:   e.selfID,
			ReceiverID: receiver,
			CreatedAt:  e.now(),
			Read:       true,
			Kind:       kind,
			ReplyTo:    draft.ReplyTo,
			Local:      true,
			Attachment: &model.Attachment{
				Name:     att.Name,
				MimeType: att.MimeType,
				Size:     int64(len(att.Data)),
				Duration: att.Duration,
			},
		}, true)
		staged := att
		attJobs = append(attJobs, sendJob{id: id, req: api.SendRequest{
			ReceiverID: receiver,
			Kind:       kind,
			ReplyTo:    draft.ReplyTo,
			Attachment: &staged,
		}})
	}
	e.mu.Unlock()

	e.publish(bus.KindMessageUpserted, nil)
	e.publish(bus.KindConversationUpdated, convID)

	// In-flight sends outlive the caller's view; leaving a conversation must
	// not cancel them.
	if len(chunkJobs) > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for _, job := range chunkJobs {
				saved, err := e.svc.SendMessage(context.Background(), job.req)
				if err != nil {
					e.fail(job.id, err)
					continue
				}
				e.reconcile(job.id, saved)
			}
		}()
	}
	for _, job := range attJobs {
		job := job
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.uploadAttachment(job)
		}()
	}
	return nil
}

func (e *Engine) uploadAttachment(job sendJob) {
	name := job.req.Attachment.Name
	job.req.Progress = func(sent, total int64) {
		pct := 0
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		e.publish(bus.KindUploadProgress, model.UploadProgress{
			MessageID: job.id,
			Name:      name,
			Loaded:    sent,
			Total:     total,
			Percent:   pct,
		})
	}
	saved, err := e.svc.SendMessage(context.Background(), job.req)
	if err != nil {
		e.publish(bus.KindUploadFailed, model.UploadProgress{MessageID: job.id, Name: name})
		e.fail(job.id, err)
		return
	}
	e.publish(bus.KindUploadDone, model.UploadProgress{MessageID: job.id, Name: name})
	e.reconcile(job.id, saved)
}

// reconcile promotes one provisional message to its server-confirmed
// identity. If the owning conversation is still provisional its promotion
// happens first, carrying every cached message and every other pending send
// with it.
func (e *Engine) reconcile(provID identity.ID, saved *model.Message) {
	e.mu.Lock()
	op, ok := e.ids.Resolve(provID)
	if !ok {
		e.mu.Unlock()
		return
	}
	convID := op.Conversation
	convPromoted := false
	if convID.IsProvisional() {
		serverConv := saved.ChatID
		if e.store.ReconcileConversation(convID, serverConv) {
			e.ids.RetargetConversation(convID, serverConv)
			convPromoted = true
		}
		convID = serverConv
	}
	replaced := e.store.ReconcileMessage(convID, provID, saved)
	e.mu.Unlock()

	if convPromoted {
		e.publish(bus.KindConversationUpdated, convID)
	}
	if !replaced {
		e.log.Debug("reconciled message no longer cached",
			zap.Stringer("provisional_id", provID),
			zap.Stringer("message_id", saved.ID))
		return
	}
	e.publish(bus.KindMessageReconciled, saved.ID)
	e.announce(saved)
}

// announce mirrors a completed send onto the socket so the peer's realtime
// channels see it. Metadata only; failure is non-fatal.
func (e *Engine) announce(saved *model.Message) {
	ann := protocol.SendAnnouncement{
		ReceiverID: saved.ReceiverID,
		Content:    saved.Content,
		Type:       protocol.KindToWire(saved.Kind),
		System:     saved.Kind == model.KindSystem,
	}
	if !saved.ReplyTo.IsZero() {
		ann.ReplyToMessageID = saved.ReplyTo.String()
	}
	if saved.Attachment != nil {
		ann.AttachmentURL = saved.Attachment.URL
		ann.AttachmentName = saved.Attachment.Name
		ann.AttachmentSize = saved.Attachment.Size
		ann.AttachmentMimeType = saved.Attachment.MimeType
		ann.AttachmentDurationMs = saved.Attachment.Duration.Milliseconds()
	}
	if err := e.pub.Publish(context.Background(), protocol.DestSend, ann); err != nil {
		e.log.Debug("send announcement dropped", zap.Error(err))
	}
}

// fail marks a provisional entry as a failed send. The entry stays in the
// cache, visibly failed; its pending op is dropped and never retried.
func (e *Engine) fail(provID identity.ID, sendErr error) {
	e.mu.Lock()
	op, ok := e.ids.Resolve(provID)
	if ok {
		e.store.MarkFailed(op.Conversation, provID)
	}
	e.mu.Unlock()
	e.log.Warn("send failed", zap.Stringer("message_id", provID), zap.Error(sendErr))
	e.publish(bus.KindMessageSendFailed, provID)
	e.publish(bus.KindNoticeError, sendErr.Error())
}

// Abandon discards a failed provisional entry. If that leaves a provisional
// conversation empty, the conversation goes too.
func (e *Engine) Abandon(convID, msgID identity.ID) {
	e.ids.Resolve(msgID)
	e.mu.Lock()
	removed := e.store.RemoveMessage(convID, msgID)
	if removed && convID.IsProvisional() && len(e.store.Messages(convID)) == 0 {
		e.store.RemoveConversation(convID)
	}
	e.mu.Unlock()
	if removed {
		e.publish(bus.KindMessageDeleted, msgID)
		e.publish(bus.KindConversationUpdated, convID)
	}
}

// Edit replaces a message's text with the server-confirmed result. Only
// local-origin text messages that have finished sending can be edited.
func (e *Engine) Edit(ctx context.Context, convID, msgID identity.ID, newBody string) error {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return &EditNotAllowedError{Reason: "empty body"}
	}
	e.mu.Lock()
	msg, ok := e.store.Message(convID, msgID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("edit: unknown message %s", msgID)
	}
	switch {
	case !msg.Local:
		return &EditNotAllowedError{Reason: "not a local message"}
	case msg.Kind != model.KindText:
		return &EditNotAllowedError{Reason: "only text messages can be edited"}
	case msgID.IsProvisional():
		return &EditNotAllowedError{Reason: "message is still sending"}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		saved, err := e.svc.EditMessage(context.Background(), msgID, newBody)
		if err != nil {
			e.log.Warn("edit failed", zap.Stringer("message_id", msgID), zap.Error(err))
			e.publish(bus.KindNoticeError, err.Error())
			return
		}
		e.mu.Lock()
		applied := e.store.ApplyEdited(saved)
		e.mu.Unlock()
		if applied {
			e.publish(bus.KindMessageUpserted, saved.ID)
		}
	}()
	return nil
}

// Delete removes a message locally first, then on the server. The local
// removal is never rolled back; a failed server delete only raises a notice.
func (e *Engine) Delete(ctx context.Context, convID, msgID identity.ID) error {
	e.mu.Lock()
	removed := e.store.ApplyDeleted(convID, msgID, e.now())
	e.mu.Unlock()
	if !removed {
		return fmt.Errorf("delete: unknown message %s", msgID)
	}
	e.publish(bus.KindMessageDeleted, msgID)
	e.publish(bus.KindConversationUpdated, convID)

	if msgID.IsProvisional() {
		e.ids.Resolve(msgID)
		return nil
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.svc.DeleteMessage(context.Background(), msgID); err != nil {
			e.log.Warn("server delete failed", zap.Stringer("message_id", msgID), zap.Error(err))
			e.publish(bus.KindNoticeError, err.Error())
		}
	}()
	return nil
}

// DeleteConversation removes a conversation locally, then on the server, and
// broadcasts the deletion to the peer.
func (e *Engine) DeleteConversation(ctx context.Context, convID identity.ID) error {
	e.mu.Lock()
	removed := e.store.ApplyConversationDeleted(convID)
	delete(e.history, convID)
	e.mu.Unlock()
	if !removed {
		return fmt.Errorf("delete: unknown conversation %s", convID)
	}
	e.publish(bus.KindConversationDeleted, convID)

	if convID.IsProvisional() {
		return nil
	}
	deletedAt := e.now().Format(time.RFC3339)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.svc.DeleteChat(context.Background(), convID); err != nil {
			e.log.Warn("server chat delete failed", zap.Stringer("chat_id", convID), zap.Error(err))
			e.publish(bus.KindNoticeError, err.Error())
			return
		}
		broadcast := protocol.ChatDeletedBroadcast{
			ChatID:    convID.String(),
			DeletedBy: e.selfID,
			DeletedAt: deletedAt,
		}
		if err := e.pub.Publish(context.Background(), protocol.DestChatDeleted, broadcast); err != nil {
			e.log.Debug("chat-deleted broadcast dropped", zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every in-flight network operation has finished. Used on
// shutdown and by tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// chunkText splits text into rune-aligned chunks of at most limit runes,
// preserving order. Empty text yields no chunks.
func chunkText(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}
