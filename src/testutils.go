package chatfx

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const FAKE_TNC_TIMEOUT = 5 * time.Second

// FakeTNC is the far end of a Link, for tests.  It stands in for
// Dire Wolf and the radio channel behind it.
type FakeTNC struct {
	t      testing.TB
	conn   net.Conn
	heard  chan []byte /* AX.25 frames the link sent us. */
	outbox chan []byte /* KISS bytes waiting to go to the link. */
	quit   chan struct{}
	once   sync.Once
}

// NewFakeTNC makes a Link connected to a new FakeTNC.
// Both are closed when the test ends.
func NewFakeTNC(t testing.TB) (*FakeTNC, *Link) {
	t.Helper()

	var ours, theirs = net.Pipe()

	var tnc = &FakeTNC{
		t:      t,
		conn:   theirs,
		heard:  make(chan []byte, 64),
		outbox: make(chan []byte, 64),
		quit:   make(chan struct{}),
	}

	var link = NewLink(ours)

	go tnc.read_loop()
	go tnc.write_loop()

	t.Cleanup(func() {
		link.Close()
		tnc.Hangup()
	})

	return tnc, link
}

func (tnc *FakeTNC) read_loop() {
	for frame, err := range kiss_frames(tnc.conn) {
		if err != nil {
			var ferr *FramingError
			if errors.As(err, &ferr) {
				continue
			}
			return
		}

		if _, cmd := kiss_split_type(frame[0]); cmd != KISS_CMD_DATA_FRAME {
			continue
		}

		select {
		case tnc.heard <- frame[1:]:
		case <-tnc.quit:
			return
		}
	}
}

func (tnc *FakeTNC) write_loop() {
	for {
		select {
		case b := <-tnc.outbox:
			if _, err := tnc.conn.Write(b); err != nil {
				return
			}
		case <-tnc.quit:
			return
		}
	}
}

// TransmitRaw sends bytes to the link exactly as given.
func (tnc *FakeTNC) TransmitRaw(wire []byte) {
	select {
	case tnc.outbox <- wire:
	case <-tnc.quit:
	}
}

// Transmit passes up an AX.25 frame as if it was heard over the radio.
func (tnc *FakeTNC) Transmit(frame []byte) {
	var raw = make([]byte, 0, len(frame)+1)
	raw = append(raw, KISS_CMD_DATA_FRAME)
	raw = append(raw, frame...)

	tnc.TransmitRaw(kiss_encapsulate(raw))
}

// TransmitMessage sends m from m.Sender to m.Destination.
func (tnc *FakeTNC) TransmitMessage(m ChatMessage) {
	tnc.t.Helper()

	var info, err = EncodePayload(&m)
	require.NoError(tnc.t, err)

	var frame, ferr = ax25_pack(NewUIFrame(m.Destination, m.Sender, nil, info))
	require.NoError(tnc.t, ferr)

	tnc.Transmit(frame)
}

// NextFrame waits for the link to send something.
// Must be called from the test goroutine.
func (tnc *FakeTNC) NextFrame() []byte {
	tnc.t.Helper()

	select {
	case frame := <-tnc.heard:
		return frame
	case <-time.After(FAKE_TNC_TIMEOUT):
		tnc.t.Fatal("nothing sent to the TNC")
		return nil
	}
}

// NextMessage waits for a frame and takes it apart.
func (tnc *FakeTNC) NextMessage() (*AX25Frame, *ChatMessage) {
	tnc.t.Helper()

	var f, err = ax25_unpack(tnc.NextFrame())
	require.NoError(tnc.t, err)

	var m, perr = DecodePayload(f.Info)
	require.NoError(tnc.t, perr)

	m.Sender = f.Source
	m.Destination = f.Destination

	return f, m
}

// Quiet reports whether nothing was sent for d.
func (tnc *FakeTNC) Quiet(d time.Duration) bool {
	select {
	case <-tnc.heard:
		return false
	case <-time.After(d):
		return true
	}
}

// Hangup drops the connection, like a TNC that was shut down.
func (tnc *FakeTNC) Hangup() {
	tnc.once.Do(func() {
		close(tnc.quit)
		tnc.conn.Close()
	})
}
