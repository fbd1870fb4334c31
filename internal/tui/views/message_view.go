package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/davrbek/chatline/internal/model"
)

// MessageView renders one conversation's message sequence.
type MessageView struct {
	*tview.TextView
	selfID string
}

// NewMessageView creates the message pane.
func NewMessageView(selfID string) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv, selfID: selfID}
}

// SetPeer updates the pane title.
func (mv *MessageView) SetPeer(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update redraws the pane. Messages arrive in local append order and are
// shown as-is.
func (mv *MessageView) Update(msgs []*model.Message) {
	mv.Clear()
	for _, m := range msgs {
		sender := m.SenderID
		if m.SenderID == mv.selfID || m.Local {
			sender = "You"
		}
		ts := formatWhen(m.CreatedAt)

		var suffix string
		if m.Edited {
			suffix += " [::d](edited)[-:-:-]"
		}
		if m.ID.IsProvisional() && !m.Failed {
			suffix += " [::d]sending…[-:-:-]"
		}
		if m.Failed {
			suffix += " [red]failed[-]"
		}

		body := sanitizeForTerminal(m.Content)
		if m.Attachment != nil {
			body = fmt.Sprintf("[%s] %s", m.Kind, sanitizeForTerminal(m.Attachment.Name))
		} else if m.Kind == model.KindSystem {
			body = "[::d]" + body + "[-:-:-]"
		}

		fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", sender, ts, suffix, body)
	}
	mv.ScrollToEnd()
}
