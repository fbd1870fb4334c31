// Package identity separates locally minted provisional identifiers from
// server-confirmed ones. Provisional IDs live in their own numeric arena, so
// no string-prefix convention is needed to tell the two spaces apart.
package identity

import (
	"fmt"
	"sync"
)

// Kind of entity a provisional ID stands in for.
type Kind int

const (
	KindConversation Kind = iota
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindConversation:
		return "conversation"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// ID identifies a conversation or message. It is either a server-confirmed
// identifier or a provisional one, never both. The zero value is "no ID".
type ID struct {
	server      string
	provisional uint64
}

// FromServer wraps a server-confirmed identifier.
func FromServer(id string) ID {
	return ID{server: id}
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.server == "" && id.provisional == 0
}

// IsProvisional reports whether the ID was minted locally.
func (id ID) IsProvisional() bool {
	return id.provisional != 0
}

// ServerID returns the server identifier, or "" for provisional IDs.
func (id ID) ServerID() string {
	return id.server
}

// String renders the ID for logs and wire edges. Provisional IDs render with
// a "~p" prefix that never collides with the server's identifier namespace.
func (id ID) String() string {
	if id.IsProvisional() {
		return fmt.Sprintf("~p%d", id.provisional)
	}
	return id.server
}

// PendingOp is the bookkeeping entry behind a provisional ID: what kind of
// entity it stands for and which conversation it belongs to. It exists from
// mint until the operation reconciles or is abandoned.
type PendingOp struct {
	Kind         Kind
	Conversation ID
}

// Table mints provisional IDs and tracks their pending operations.
type Table struct {
	mu      sync.Mutex
	next    uint64
	pending map[ID]PendingOp
}

// NewTable creates an empty reconciliation table.
func NewTable() *Table {
	return &Table{pending: make(map[ID]PendingOp)}
}

// MintConversation returns a fresh provisional conversation ID.
func (t *Table) MintConversation() ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.mint()
	t.pending[id] = PendingOp{Kind: KindConversation, Conversation: id}
	return id
}

// MintMessage returns a fresh provisional message ID owned by conv.
func (t *Table) MintMessage(conv ID) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.mint()
	t.pending[id] = PendingOp{Kind: KindMessage, Conversation: conv}
	return id
}

func (t *Table) mint() ID {
	t.next++
	return ID{provisional: t.next}
}

// Pending looks up the bookkeeping entry for a provisional ID.
func (t *Table) Pending(id ID) (PendingOp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.pending[id]
	return op, ok
}

// Resolve removes and returns the bookkeeping entry for a provisional ID.
// Called on reconciliation success and on abandon.
func (t *Table) Resolve(id ID) (PendingOp, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return op, ok
}

// RetargetConversation repoints pending message ops from oldConv to newConv.
// Used when a provisional conversation reconciles while later sends against
// it are still in flight.
func (t *Table) RetargetConversation(oldConv, newConv ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, op := range t.pending {
		if op.Conversation == oldConv {
			op.Conversation = newConv
			t.pending[id] = op
		}
	}
}

// Len returns the number of outstanding pending operations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
