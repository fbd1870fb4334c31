// Package tui is the terminal client: a conversation list, a message pane
// with composer, and a status bar, redrawn from engine events on the bus.
package tui

import (
	"context"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/davrbek/chatline/internal/bus"
	"github.com/davrbek/chatline/internal/engine"
	"github.com/davrbek/chatline/internal/identity"
	"github.com/davrbek/chatline/internal/model"
	"github.com/davrbek/chatline/internal/status"
	"github.com/davrbek/chatline/internal/tui/views"
	"github.com/davrbek/chatline/internal/typing"
)

// App is the TUI application shell.
type App struct {
	app     *tview.Application
	pages   *tview.Pages
	eng     *engine.Engine
	bus     *bus.Bus
	caster  *typing.Broadcaster
	machine *status.Machine

	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer

	active     identity.ID
	activePeer string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(eng *engine.Engine, b *bus.Bus, caster *typing.Broadcaster, machine *status.Machine, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		eng:       eng,
		bus:       b,
		caster:    caster,
		machine:   machine,
		statusBar: views.NewStatusBar(profile),
		convList:  views.NewConversationList(eng.SelfID()),
		msgView:   views.NewMessageView(eng.SelfID()),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id, ok := a.convList.Selected(); ok {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		conv := a.active
		if conv.IsZero() {
			return
		}
		a.caster.Stop()
		go func() {
			if err := a.eng.Send(a.ctx, conv, model.Draft{Text: text}); err != nil {
				a.flash("Send failed: " + err.Error())
			}
		}()
	})

	a.composer.SetOnTyping(func() {
		if a.activePeer != "" {
			a.caster.Signal(a.activePeer, typing.WritingText)
		}
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("conversation", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "conversation" {
			a.leaveConversation()
			return nil
		}

		// Text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch {
			case event.Rune() == 'q' && currentPage == "conversations":
				a.Stop()
				return nil
			case event.Rune() == 'i' && currentPage == "conversation":
				a.app.SetFocus(a.composer.InputField)
				return nil
			case event.Rune() == 'D' && currentPage == "conversations":
				if id, ok := a.convList.Selected(); ok {
					go func() {
						if err := a.eng.DeleteConversation(a.ctx, id); err != nil {
							a.flash("Delete failed: " + err.Error())
						}
					}()
				}
				return nil
			}
		}
		return event
	})
}

func (a *App) openConversation(id identity.ID) {
	go func() {
		if err := a.eng.OpenConversation(a.ctx, id); err != nil {
			a.flash("Open failed: " + err.Error())
			return
		}
		conv, ok := a.eng.Conversation(id)
		if !ok {
			return
		}
		peer := conv.Peer(a.eng.SelfID())
		a.app.QueueUpdateDraw(func() {
			a.active = id
			a.activePeer = peer
			a.msgView.SetPeer(peer)
			a.msgView.Update(a.eng.Messages(id))
			a.statusBar.SetUnread(a.eng.TotalUnread())
			a.pages.SwitchToPage("conversation")
			a.app.SetFocus(a.composer.InputField)
		})
	}()
}

func (a *App) leaveConversation() {
	a.active = identity.ID{}
	a.activePeer = ""
	a.caster.Stop()
	a.eng.CloseConversation()
	a.pages.SwitchToPage("conversations")
	a.app.SetFocus(a.convList)
}

func (a *App) flash(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(msg)
	})
}

// Run starts the application: bootstrap, the bus-driven redraw loop, then
// the tview event loop.
func (a *App) Run() error {
	events, unsub := a.bus.Subscribe("", 64)
	defer unsub()

	go func() {
		if err := a.eng.Bootstrap(a.ctx); err != nil {
			a.flash("Load failed: " + err.Error())
		}
		a.redraw()
	}()

	go func() {
		for {
			select {
			case evt := <-events:
				a.handleBusEvent(evt)
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return a.app.Run()
}

func (a *App) handleBusEvent(evt bus.Event) {
	switch {
	case evt.Kind == bus.KindNoticeError:
		if msg, ok := evt.Payload.(string); ok {
			a.flash(msg)
		}
	case evt.Kind == bus.KindTransportState:
		a.redraw()
	case evt.Kind == bus.KindConversationDeleted:
		if id, ok := evt.Payload.(identity.ID); ok && id == a.active {
			a.app.QueueUpdateDraw(a.leaveConversation)
			return
		}
		a.redraw()
	case strings.HasPrefix(evt.Kind, "message.") ||
		strings.HasPrefix(evt.Kind, "conversation.") ||
		strings.HasPrefix(evt.Kind, "typing."):
		a.redraw()
	}
}

func (a *App) redraw() {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetState(string(a.machine.Current()))
		a.statusBar.SetUnread(a.eng.TotalUnread())

		currentPage, _ := a.pages.GetFrontPage()
		switch currentPage {
		case "conversations":
			a.convList.Update(a.eng.Conversations(), func(peer string) bool {
				return a.eng.PeerTyping(peer) != typing.Idle
			})
		case "conversation":
			if !a.active.IsZero() {
				// A send against a new peer promotes the conversation id
				// under us; follow it.
				if _, ok := a.eng.Conversation(a.active); !ok {
					if c, ok := a.eng.Conversation(a.eng.StartConversation(a.activePeer)); ok {
						a.active = c.ID
					}
				}
				a.msgView.Update(a.eng.Messages(a.active))
				if s := a.eng.PeerTyping(a.activePeer); s != typing.Idle {
					a.msgView.SetPeer(a.activePeer + " · typing…")
				} else {
					a.msgView.SetPeer(a.activePeer)
				}
			}
		}
	})
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.caster.Stop()
	a.app.Stop()
}
