package console

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"cuview/cuinfo"
	"cuview/ecus"
	"cuview/events"
)

// App shows the identification in a terminal.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	view     *cuinfo.Console
	status   *tview.TextView
	kind     ecus.Kind
	eventHub *events.EventHub
}

func New(eventHub *events.EventHub, kind ecus.Kind) *App {
	a := &App{
		app:      tview.NewApplication(),
		root:     tview.NewFlex().SetDirection(tview.FlexRow),
		status:   tview.NewTextView().SetTextColor(tcell.ColorGray),
		kind:     kind,
		eventHub: eventHub,
	}

	panels := tview.NewFlex()
	a.view = cuinfo.NewConsole(panels)
	a.root.AddItem(panels, 0, 1, false).AddItem(a.status, 1, 0, false)
	a.setStatus("waiting for control unit")

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
	return a
}

// Run draws until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	_, ch, unsubscribe := a.eventHub.Subscribe()
	defer unsubscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				a.app.Stop()
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				a.app.QueueUpdateDraw(func() {
					a.apply(event)
				})
			}
		}
	}()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

// apply must run on the draw goroutine.
func (a *App) apply(event *events.Event) {
	cuinfo.Show(a.view, event.Identification)
	a.setStatus("identified " + event.Timestamp.Format("15:04:05"))
}

func (a *App) setStatus(text string) {
	a.status.SetText(fmt.Sprintf(" %s | %s | q quit", a.kind, text))
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEsc, tcell.KeyCtrlC:
		a.app.Stop()
		return nil
	}
	switch event.Rune() {
	case 'q', 'Q':
		a.app.Stop()
		return nil
	}
	return event
}
