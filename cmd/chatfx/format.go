package main

/*------------------------------------------------------------------
 *
 * Purpose:   	What the user types and what we show them.
 *		Shared by the full screen and line interfaces.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"
	"time"

	chatfx "github.com/doismellburning/chatfx/src"
	"github.com/lestrrat-go/strftime"
)

type input_kind int

const (
	INPUT_NONE input_kind = iota
	INPUT_MESSAGE
	INPUT_QUIT
	INPUT_CLEAR
	INPUT_HELP
	INPUT_LOG
)

type user_input struct {
	kind input_kind
	dest chatfx.Callsign
	text string
}

const help_text = `Commands:
  <callsign> <message>   Send a message, e.g. "W1AW hello there".
  /log                   Show session counters.
  /clear                 Clear the screen.
  /help                  Show this help.
  /quit                  Exit.
Indicators:  S sent   R received   A acknowledged   F failed`

/*-------------------------------------------------------------------
 *
 * Name:        parse_input
 *
 * Purpose:     Make sense of one line typed by the user.
 *
 * Returns:	INPUT_NONE for a blank line.  Error for an unknown
 *		command, a bad callsign, or a callsign with nothing to say.
 *
 *--------------------------------------------------------------------*/

func parse_input(line string) (user_input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return user_input{kind: INPUT_NONE}, nil
	}

	if strings.HasPrefix(line, "/") {
		switch strings.ToLower(strings.Fields(line)[0]) {
		case "/quit", "/exit", "/q":
			return user_input{kind: INPUT_QUIT}, nil
		case "/clear":
			return user_input{kind: INPUT_CLEAR}, nil
		case "/help", "/?":
			return user_input{kind: INPUT_HELP}, nil
		case "/log":
			return user_input{kind: INPUT_LOG}, nil
		default:
			return user_input{}, fmt.Errorf("unknown command %s, try /help", strings.Fields(line)[0])
		}
	}

	var call, text, _ = strings.Cut(line, " ")
	text = strings.TrimSpace(text)

	var dest, err = chatfx.ParseCallsign(call)
	if err != nil {
		return user_input{}, err
	}
	if text == "" {
		return user_input{}, fmt.Errorf("nothing to send to %s", dest)
	}

	return user_input{kind: INPUT_MESSAGE, dest: dest, text: text}, nil
}

// formatter turns session events into display lines.
type formatter struct {
	ts *strftime.Strftime
	me chatfx.Callsign
}

func new_formatter(pattern string, me chatfx.Callsign) (*formatter, error) {
	if pattern == "" {
		pattern = chatfx.DEFAULT_TIMESTAMP_FORMAT
	}

	var ts, err = strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("timestamp format \"%s\": %w", pattern, err)
	}

	return &formatter{ts: ts, me: me}, nil
}

func (f *formatter) timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return f.ts.FormatString(t)
}

func indicator(k chatfx.EventKind) string {
	switch k {
	case chatfx.EventSent:
		return "S"
	case chatfx.EventMessage:
		return "R"
	case chatfx.EventAck:
		return "A"
	case chatfx.EventFailed:
		return "F"
	default:
		return "?"
	}
}

// Plain text line, e.g. "10/19/26 14:03:11 R W1AW>N0CALL #7: hello".
func (f *formatter) line(e chatfx.Event) string {
	var m = e.Message
	var s = fmt.Sprintf("%s %s %s>%s #%d: %s", f.timestamp(m.Timestamp), indicator(e.Kind), m.Sender, m.Destination, m.ID, m.Text)
	if e.Err != nil {
		s += fmt.Sprintf(" (%s)", e.Err)
	}
	return s
}

func (f *formatter) stats(st chatfx.SessionStats) string {
	return fmt.Sprintf("received %d, sent %d, acknowledged %d, failed %d, duplicates %d, echoes %d, bad frames %d, bad payloads %d, ignored %d, KISS in %d out %d framing errors %d",
		st.Received, st.Sent, st.Acked, st.Failed, st.Duplicates, st.Echoes,
		st.FrameErrors, st.PayloadErrors, st.Ignored,
		st.Link.FramesIn, st.Link.FramesOut, st.Link.FramingErrors)
}
