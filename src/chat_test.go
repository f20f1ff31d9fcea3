package chatfx

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_config() Config {
	var cfg = DefaultConfig()
	cfg.Callsign = n0call
	cfg.TimeDelay = 0
	return cfg
}

type running_session struct {
	*Session
	tnc    *FakeTNC
	cancel context.CancelFunc
	done   chan error
}

func start_session(t *testing.T, opts ...SessionOption) *running_session {
	t.Helper()

	var tnc, link = NewFakeTNC(t)

	var s, err = NewSession(test_config(), link, opts...)
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	var rs = &running_session{Session: s, tnc: tnc, cancel: cancel, done: done}

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return rs
}

func next_event(t *testing.T, s *Session) Event {
	t.Helper()

	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "events closed")
		return e
	case <-time.After(FAKE_TNC_TIMEOUT):
		t.Fatal("no event")
		return Event{}
	}
}

func from_w1aw(id uint16, text string) ChatMessage {
	return ChatMessage{Sender: w1aw, Destination: n0call, Type: MSG, ID: id, Text: []byte(text)}
}

func TestNewSession_bad_config(t *testing.T) {
	var _, link = NewFakeTNC(t)

	var _, err = NewSession(Config{Port: 8001}, link)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var _, cerr = NewSession(test_config(), link, WithCompression(3))
	assert.ErrorIs(t, cerr, ErrUnknownCompressionKind)
}

func TestSession_receive_message(t *testing.T) {
	var rs = start_session(t)

	rs.tnc.TransmitMessage(from_w1aw(17, "hello world"))

	var e = next_event(t, rs.Session)
	assert.Equal(t, EventMessage, e.Kind)
	assert.Equal(t, w1aw, e.Message.Sender)
	assert.Equal(t, n0call, e.Message.Destination)
	assert.Equal(t, uint16(17), e.Message.ID)
	assert.Equal(t, "hello world", string(e.Message.Text))
	assert.False(t, e.Message.Timestamp.IsZero())

	var f, ack = rs.tnc.NextMessage()
	assert.True(t, f.IsUI())
	assert.Equal(t, n0call, ack.Sender)
	assert.Equal(t, w1aw, ack.Destination)
	assert.Equal(t, ACK, ack.Type)
	assert.Equal(t, uint16(17), ack.ID)
	assert.Empty(t, ack.Text)

	var _, ok = rs.Log().Lookup(MessageKey{Sender: w1aw, ID: 17})
	assert.True(t, ok)
}

func TestSession_duplicate_acked_not_shown(t *testing.T) {
	var rs = start_session(t)

	rs.tnc.TransmitMessage(from_w1aw(5, "once"))
	rs.tnc.TransmitMessage(from_w1aw(5, "once"))
	rs.tnc.TransmitMessage(from_w1aw(6, "twice"))

	var e = next_event(t, rs.Session)
	assert.Equal(t, uint16(5), e.Message.ID)
	e = next_event(t, rs.Session)
	assert.Equal(t, uint16(6), e.Message.ID)

	for _, want := range []uint16{5, 5, 6} {
		var _, ack = rs.tnc.NextMessage()
		assert.Equal(t, ACK, ack.Type)
		assert.Equal(t, want, ack.ID)
	}

	assert.Equal(t, 2, rs.Log().Len())
	assert.Equal(t, 1, rs.Stats().Duplicates)
	assert.Equal(t, uint64(2), rs.Stats().Received)
}

func TestSession_send_and_ack(t *testing.T) {
	var rs = start_session(t)

	var job, err = rs.Send(w1aw, "hello there")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), job.Message.ID)

	var _, m = rs.tnc.NextMessage()
	assert.Equal(t, MSG, m.Type)
	assert.Equal(t, n0call, m.Sender)
	assert.Equal(t, w1aw, m.Destination)
	assert.Equal(t, COMPRESSION_SMAZ, m.Compression)
	assert.Equal(t, "hello there", string(m.Text))

	var e = next_event(t, rs.Session)
	assert.Equal(t, EventSent, e.Kind)
	assert.Equal(t, uint16(0), e.Message.ID)

	rs.tnc.TransmitMessage(ChatMessage{Sender: w1aw, Destination: n0call, Type: ACK, ID: 0})

	e = next_event(t, rs.Session)
	assert.Equal(t, EventAck, e.Kind)
	assert.Equal(t, "hello there", string(e.Message.Text))

	var entry, ok = rs.Log().Lookup(MessageKey{Sender: n0call, ID: 0})
	require.True(t, ok)
	assert.True(t, entry.Outbound)
	assert.True(t, entry.Acked)

	/* A repeated ACK changes nothing. */
	rs.tnc.TransmitMessage(ChatMessage{Sender: w1aw, Destination: n0call, Type: ACK, ID: 0})
	rs.tnc.TransmitMessage(from_w1aw(1, "marker"))
	e = next_event(t, rs.Session)
	assert.Equal(t, EventMessage, e.Kind)
	assert.Equal(t, uint64(1), rs.Stats().Acked)
}

func TestSession_ack_after_clear(t *testing.T) {
	var rs = start_session(t)

	var _, err = rs.Send(w1aw, "said before clearing")
	require.NoError(t, err)

	var _, m = rs.tnc.NextMessage()
	assert.Equal(t, EventSent, next_event(t, rs.Session).Kind)

	rs.Log().Clear()
	assert.Zero(t, rs.Log().Len())

	rs.tnc.TransmitMessage(ChatMessage{Sender: w1aw, Destination: n0call, Type: ACK, ID: m.ID})

	var e = next_event(t, rs.Session)
	assert.Equal(t, EventAck, e.Kind)
	assert.Equal(t, "said before clearing", string(e.Message.Text))
	assert.Equal(t, uint64(1), rs.Stats().Acked)
	assert.Zero(t, rs.Log().Len())
}

func TestSession_no_compression(t *testing.T) {
	var rs = start_session(t, WithCompression(COMPRESSION_NONE))

	var _, err = rs.Send(w1aw, "plain")
	require.NoError(t, err)

	var f, m = rs.tnc.NextMessage()
	assert.Equal(t, COMPRESSION_NONE, m.Compression)
	assert.Equal(t, append([]byte{CHAT_RESERVED_BYTE, 0x00, 0x00, 0x00}, "plain"...), f.Info)
}

func TestSession_echo_ignored(t *testing.T) {
	var rs = start_session(t)

	var _, err = rs.Send(w1aw, "echo me")
	require.NoError(t, err)

	var raw = rs.tnc.NextFrame()
	assert.Equal(t, EventSent, next_event(t, rs.Session).Kind)

	/* A digipeater repeats it. */
	rs.tnc.Transmit(raw)
	rs.tnc.TransmitMessage(from_w1aw(1, "marker"))

	var e = next_event(t, rs.Session)
	assert.Equal(t, EventMessage, e.Kind)
	assert.Equal(t, "marker", string(e.Message.Text))

	assert.Equal(t, uint64(1), rs.Stats().Echoes)
	assert.Equal(t, 2, rs.Log().Len())

	/* Only the ACK for the marker, nothing for our own message. */
	var _, ack = rs.tnc.NextMessage()
	assert.Equal(t, uint16(1), ack.ID)
	assert.True(t, rs.tnc.Quiet(100*time.Millisecond))
}

func TestSession_other_traffic(t *testing.T) {
	var rs = start_session(t)
	var k1abc = Callsign{Call: "K1ABC"}

	/* Between two other stations. */
	rs.tnc.TransmitMessage(ChatMessage{Sender: w1aw, Destination: k1abc, ID: 1, Text: []byte("not for us")})

	/* Not a chat payload at all. */
	var aprs, _ = ax25_pack(NewUIFrame(Callsign{Call: "APRS"}, w1aw, nil, []byte("!4237.14N/07120.83W-")))
	rs.tnc.Transmit(aprs)

	/* Too short for a payload. */
	var short, _ = ax25_pack(NewUIFrame(n0call, w1aw, nil, []byte{0xf0, 0x00}))
	rs.tnc.Transmit(short)

	/* Not AX.25. */
	rs.tnc.Transmit([]byte{1, 2, 3})

	/* Broken KISS. */
	rs.tnc.TransmitRaw([]byte{FEND, 0x00, FESC, 'x', FEND})

	rs.tnc.TransmitMessage(from_w1aw(2, "marker"))

	var e = next_event(t, rs.Session)
	assert.Equal(t, "marker", string(e.Message.Text))

	var st = rs.Stats()
	assert.Equal(t, uint64(2), st.Ignored)
	assert.Equal(t, uint64(1), st.PayloadErrors)
	assert.Equal(t, uint64(1), st.FrameErrors)
	assert.Equal(t, uint64(1), st.Link.FramingErrors)
	assert.Equal(t, uint64(5), st.Link.FramesIn)
	assert.Equal(t, 1, rs.Log().Len())
}

func TestSession_link_lost(t *testing.T) {
	var tnc, link = NewFakeTNC(t)

	var s, err = NewSession(test_config(), link)
	require.NoError(t, err)

	var done = make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	tnc.Hangup()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLinkClosed)
	case <-time.After(FAKE_TNC_TIMEOUT):
		t.Fatal("Run did not notice the TNC went away")
	}

	var _, ok = <-s.Events()
	assert.False(t, ok, "events closed")

	var _, serr = s.Send(w1aw, "too late")
	assert.ErrorIs(t, serr, ErrSchedulerStopped)
}

func TestSession_cancel(t *testing.T) {
	var rs = start_session(t)

	rs.cancel()

	select {
	case err := <-rs.done:
		assert.NoError(t, err)
		rs.done <- nil
	case <-time.After(FAKE_TNC_TIMEOUT):
		t.Fatal("Run did not return")
	}

	assert.ErrorIs(t, rs.Run(context.Background()), ErrSessionRunning)
}

func TestSession_cancel_finishes_frame_in_flight(t *testing.T) {
	var link, tnc = pipe_link(t)

	var s, err = NewSession(test_config(), link, WithCompression(COMPRESSION_NONE))
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var done = make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	var text = strings.Repeat("hello world ", 20)
	var job, serr = s.Send(w1aw, text)
	require.NoError(t, serr)

	/* The TNC has taken only the start of the frame when we quit. */
	var wire = make([]byte, 5)
	var _, rerr = io.ReadFull(tnc, wire)
	require.NoError(t, rerr)
	require.Equal(t, byte(FEND), wire[0])

	cancel()

	var b = make([]byte, 1)
	for {
		var n, err = tnc.Read(b)
		if err != nil {
			break
		}
		wire = append(wire, b[:n]...)
		if n == 1 && b[0] == FEND {
			break
		}
	}

	assert.Equal(t, byte(FEND), wire[len(wire)-1], "frame cut off")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(FAKE_TNC_TIMEOUT):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, JOB_SENT, job.State())
	assert.NoError(t, job.Err())

	var frames int
	for frame, ferr := range kiss_frames(bytes.NewReader(wire)) {
		if ferr != nil {
			break
		}
		frames++
		require.Equal(t, byte(KISS_CMD_DATA_FRAME), frame[0])

		var f, uerr = ax25_unpack(frame[1:])
		require.NoError(t, uerr)
		var m, perr = DecodePayload(f.Info)
		require.NoError(t, perr)
		assert.Equal(t, text, string(m.Text))
	}
	assert.Equal(t, 1, frames)
}

func TestSession_send_bad_destination(t *testing.T) {
	var rs = start_session(t)

	var _, err = rs.Send(Callsign{Call: "TOOLONGCALL"}, "x")
	assert.ErrorIs(t, err, ErrInvalidCallsign)
}

func TestConnectLink_tcp(t *testing.T) {
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		var c, aerr = ln.Accept()
		if aerr == nil {
			defer c.Close()
			var buf = make([]byte, 1)
			c.Read(buf) //nolint:errcheck
		}
	}()

	var settings = &Settings{Config: test_config()}
	settings.Host = "127.0.0.1"
	settings.Port = ln.Addr().(*net.TCPAddr).Port

	var link, cerr = ConnectLink(context.Background(), settings, nil)
	require.NoError(t, cerr)
	link.Close()
}

func TestConnectLink_cancelled(t *testing.T) {
	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var port = ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	var settings = &Settings{Config: test_config()}
	settings.Host = "127.0.0.1"
	settings.Port = port

	var ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var _, cerr = ConnectLink(ctx, settings, nil)
	assert.Error(t, cerr)
}
