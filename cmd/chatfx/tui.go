package main

import (
	"context"
	"fmt"

	chatfx "github.com/doismellburning/chatfx/src"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const COLOR_SENT = "grey"
const COLOR_ERROR = "red"

// Colour names the terminal doesn't know become the default.
func color_name(name string) string {
	if tcell.GetColor(name) == tcell.ColorDefault {
		return chatfx.DEFAULT_COLOR
	}
	return name
}

// Same as formatter.line with tview colour tags.
func (f *formatter) colored_line(e chatfx.Event, colors chatfx.ColorMap) string {
	var m = e.Message

	var text = tview.Escape(string(m.Text))
	if e.Err != nil {
		text += tview.Escape(fmt.Sprintf(" (%s)", e.Err))
	}

	var line = fmt.Sprintf("%s %s [%s]%s[-]>[%s]%s[-] #%d: %s",
		tview.Escape(f.timestamp(m.Timestamp)),
		indicator(e.Kind),
		color_name(colors.Get(m.Sender)), m.Sender,
		color_name(colors.Get(m.Destination)), m.Destination,
		m.ID, text)

	switch e.Kind {
	case chatfx.EventSent:
		return "[" + COLOR_SENT + "]" + line + "[-]"
	case chatfx.EventFailed:
		return "[" + COLOR_ERROR + "]" + line + "[-]"
	default:
		return line
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        run_tui
 *
 * Purpose:     Full screen chat.  Conversation on top, input line
 *		below, status at the bottom.
 *
 *--------------------------------------------------------------------*/

func run_tui(ctx context.Context, session *chatfx.Session, f *formatter) error {
	var runCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	var app = tview.NewApplication()

	var chatView = tview.NewTextView()
	chatView.SetDynamicColors(true)
	chatView.SetScrollable(true)
	chatView.SetBorder(true)
	chatView.SetTitle(fmt.Sprintf(" chatfx ─ %s ", session.Callsign()))

	var say = func(s string) {
		fmt.Fprintln(chatView, s)
		chatView.ScrollToEnd()
	}

	var input = tview.NewInputField()
	input.SetLabel("> ")
	input.SetFieldWidth(0)
	input.SetBorder(true)
	input.SetTitle(" <callsign> <message> ")

	var status = tview.NewTextView()
	status.SetTextAlign(tview.AlignCenter)
	status.SetText(" Enter:Send | /help | /quit | PgUp/PgDn:Scroll ")

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}

		var text = input.GetText()
		input.SetText("")

		var ui, err = parse_input(text)
		if err != nil {
			say("[" + COLOR_ERROR + "]" + tview.Escape("Error: "+err.Error()) + "[-]")
			return
		}

		switch ui.kind {
		case INPUT_NONE:
		case INPUT_QUIT:
			cancel()
		case INPUT_CLEAR:
			chatView.Clear()
			session.Log().Clear()
		case INPUT_HELP:
			say(tview.Escape(help_text))
		case INPUT_LOG:
			say(tview.Escape(f.stats(session.Stats())))
		case INPUT_MESSAGE:
			if _, sendErr := session.Send(ui.dest, ui.text); sendErr != nil {
				say("[" + COLOR_ERROR + "]" + tview.Escape("Error: "+sendErr.Error()) + "[-]")
			}
		}
	})

	var layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(chatView, 0, 1, false).
		AddItem(input, 3, 0, true).
		AddItem(status, 1, 0, false)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyPgUp:
			var row, col = chatView.GetScrollOffset()
			chatView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			var row, col = chatView.GetScrollOffset()
			chatView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	var runErr = make(chan error, 1)
	go func() {
		runErr <- session.Run(runCtx)
		app.Stop()
	}()

	go func() {
		var colors = session.Colors()
		for e := range session.Events() {
			var line = f.colored_line(e, colors)
			app.QueueUpdateDraw(func() {
				say(line)
			})
		}
	}()

	go func() {
		<-runCtx.Done()
		app.Stop()
	}()

	var appErr = app.SetRoot(layout, true).SetFocus(input).Run()

	cancel()
	var err = <-runErr

	if appErr != nil {
		return appErr
	}
	return err
}
