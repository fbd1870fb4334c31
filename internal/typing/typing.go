// Package typing tracks composition indicators in both directions: a
// Tracker for what peers report to us, and a Broadcaster for what we report
// to the peer of the open conversation.
package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davrbek/chatline/internal/protocol"
)

// Status is the sub-status tag of an active composition indicator.
type Status string

const (
	Idle         Status = ""
	WritingText  Status = "writing-text"
	WritingVoice Status = "writing-voice"
	SendingVoice Status = "sending-voice"
	SendingAudio Status = "sending-audio"
	SendingVideo Status = "sending-video"
	SendingPhoto Status = "sending-photo"
	SendingFile  Status = "sending-file"
)

// IdleTimeout is how long a locally-initiated typing broadcast stays active
// without a renewing signal before it is cleared.
const IdleTimeout = 2 * time.Second

var fromWire = map[string]Status{
	"WRITING_TEXT":  WritingText,
	"WRITING_VOICE": WritingVoice,
	"SENDING_VOICE": SendingVoice,
	"SENDING_AUDIO": SendingAudio,
	"SENDING_VIDEO": SendingVideo,
	"SENDING_PHOTO": SendingPhoto,
	"SENDING_FILE":  SendingFile,
}

var toWire = map[Status]string{
	WritingText:  "WRITING_TEXT",
	WritingVoice: "WRITING_VOICE",
	SendingVoice: "SENDING_VOICE",
	SendingAudio: "SENDING_AUDIO",
	SendingVideo: "SENDING_VIDEO",
	SendingPhoto: "SENDING_PHOTO",
	SendingFile:  "SENDING_FILE",
}

// FromWire maps a wire status tag to a Status. An unrecognised tag on an
// active signal degrades to WritingText rather than being dropped.
func FromWire(tag string, active bool) Status {
	if !active {
		return Idle
	}
	if s, ok := fromWire[tag]; ok {
		return s
	}
	return WritingText
}

// Tracker holds the inbound indicator per peer. Inbound state is driven
// purely by explicit peer signals; there is no local expiry timer. All
// methods are called from the engine, which serializes access.
type Tracker struct {
	peers map[string]Status
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{peers: make(map[string]Status)}
}

// Apply records a typing-changed event. Returns true when the peer's
// visible status actually changed.
func (t *Tracker) Apply(evt *protocol.TypingChanged) bool {
	next := FromWire(evt.Status, evt.Typing)
	prev := t.peers[evt.SenderID]
	if next == prev {
		return false
	}
	if next == Idle {
		delete(t.peers, evt.SenderID)
	} else {
		t.peers[evt.SenderID] = next
	}
	return true
}

// Peer returns the current indicator for one peer.
func (t *Tracker) Peer(id string) Status {
	return t.peers[id]
}

// Reset clears all inbound indicators. Called when the open conversation
// changes.
func (t *Tracker) Reset() {
	for k := range t.peers {
		delete(t.peers, k)
	}
}

// Publisher is the outbound side the Broadcaster talks to.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) error
}

// Broadcaster coalesces local composition activity into typing broadcasts.
// Rapid keystrokes renew a single idle timer; a frame goes out only when the
// indicator activates or its status changes, and a clearing frame goes out
// when the timer expires or the target changes.
type Broadcaster struct {
	pub     Publisher
	log     *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	receiver string
	status   Status
	timer    *time.Timer
}

// NewBroadcaster creates a broadcaster with the default idle timeout.
func NewBroadcaster(pub Publisher, log *zap.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, log: log, timeout: IdleTimeout}
}

// SetTimeout overrides the idle timeout. Test hook.
func (b *Broadcaster) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Signal reports local composition activity directed at receiverID. Repeated
// signals with an unchanged status only renew the timer.
func (b *Broadcaster) Signal(receiverID string, status Status) {
	if status == Idle {
		b.Stop()
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.receiver == receiverID && b.status == status {
		b.renewLocked()
		return
	}
	if b.receiver != "" && b.receiver != receiverID {
		b.sendLocked(b.receiver, Idle)
	}
	b.receiver = receiverID
	b.status = status
	b.sendLocked(receiverID, status)
	b.renewLocked()
}

// Stop clears the local indicator immediately, broadcasting idle if one was
// active.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Active returns the currently broadcast status, Idle when none.
func (b *Broadcaster) Active() (string, Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receiver, b.status
}

func (b *Broadcaster) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.status != Idle {
		b.sendLocked(b.receiver, Idle)
	}
	b.receiver = ""
	b.status = Idle
}

func (b *Broadcaster) renewLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.timeout, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.timer = nil
		b.stopLocked()
	})
}

func (b *Broadcaster) sendLocked(receiverID string, status Status) {
	frame := protocol.TypingBroadcast{
		ReceiverID: receiverID,
		Typing:     status != Idle,
	}
	if status != Idle {
		frame.Status = toWire[status]
		frame.Type = wireType(status)
	}
	if err := b.pub.Publish(context.Background(), protocol.DestTyping, frame); err != nil {
		b.log.Debug("typing broadcast dropped", zap.Error(err))
	}
}

func wireType(s Status) string {
	switch s {
	case WritingText:
		return "TEXT"
	case WritingVoice, SendingVoice:
		return "VOICE"
	case SendingAudio:
		return "AUDIO"
	case SendingVideo:
		return "VIDEO"
	case SendingPhoto:
		return "IMAGE"
	case SendingFile:
		return "FILE"
	default:
		return ""
	}
}
