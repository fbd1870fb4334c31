package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	convs      []*model.Conversation
	selfID     string
	selectedFn func() (int, int)
}

// NewConversationList creates the conversation table.
func NewConversationList(selfID string) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ConversationList{Table: table, selfID: selfID}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the table. typingFor reports whether a peer is currently
// composing, for the indicator column.
func (cl *ConversationList) Update(convs []*model.Conversation, typingFor func(peer string) bool) {
	cl.convs = convs
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Peer").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range convs {
		row := i + 1
		name := c.Peer(cl.selfID)
		if c.Unread > 0 {
			name = fmt.Sprintf("* %s (%d)", name, c.Unread)
		}
		preview := ""
		if typingFor != nil && typingFor(c.Peer(cl.selfID)) {
			preview = "[green]typing…[-]"
		} else if c.LastMessage != nil {
			preview = previewFor(c.LastMessage)
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+preview).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatWhen(c.LastMessageAt)).SetMaxWidth(12))
	}
}

// Selected returns the id of the conversation under the cursor.
func (cl *ConversationList) Selected() (identity.ID, bool) {
	row, _ := cl.selectedFn()
	idx := row - 1 // header row
	if idx >= 0 && idx < len(cl.convs) {
		return cl.convs[idx].ID, true
	}
	return identity.ID{}, false
}

func previewFor(m *model.Message) string {
	switch m.Kind {
	case model.KindSystem:
		return "[::d]history cleared[-:-:-]"
	case model.KindText:
		return sanitizeForTerminal(m.Content)
	default:
		name := ""
		if m.Attachment != nil {
			name = " " + m.Attachment.Name
		}
		return fmt.Sprintf("[%s]%s", m.Kind, sanitizeForTerminal(name))
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
