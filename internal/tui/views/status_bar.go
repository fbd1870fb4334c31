package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// StatusBar displays profile, connection state and the unread total.
type StatusBar struct {
	*tview.TextView
	profile string
	state   string
	unread  int
	flash   string
}

// NewStatusBar creates the status bar.
func NewStatusBar(profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, profile: profile, state: "DISCONNECTED"}
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetUnread updates the unread total.
func (sb *StatusBar) SetUnread(n int) {
	sb.unread = n
	sb.render()
}

// SetFlash sets a transient message, cleared by the next empty SetFlash.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", sb.profile, sb.state)
	if sb.unread > 0 {
		line += fmt.Sprintf(" | [red]%d unread[-]", sb.unread)
	}
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}
	fmt.Fprint(sb, line)
}
