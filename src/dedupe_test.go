package chatfx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var w1aw = Callsign{Call: "W1AW"}
var n0call = Callsign{Call: "N0CALL", SSID: 7}

func msg(id uint16, text string) ChatMessage {
	return ChatMessage{Type: MSG, ID: id, Text: []byte(text)}
}

func TestMessageLog_duplicate_rejected(t *testing.T) {
	var ml = NewMessageLog(0)

	assert.True(t, ml.Accept(w1aw, msg(1, "hello")))
	assert.False(t, ml.Accept(w1aw, msg(1, "hello")))

	assert.Equal(t, 1, ml.Len())
	assert.Equal(t, 1, ml.Duplicates())

	var entries = ml.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, w1aw, entries[0].Sender)
	assert.False(t, entries[0].Outbound)
}

func TestMessageLog_per_sender(t *testing.T) {
	var ml = NewMessageLog(0)

	assert.True(t, ml.Accept(w1aw, msg(1, "a")))
	assert.True(t, ml.Accept(n0call, msg(1, "b")))
	assert.Equal(t, 2, ml.Len())
}

func TestMessageLog_window_advances(t *testing.T) {
	var ml = NewMessageLog(4)

	for id := uint16(0); id < 4; id++ {
		require.True(t, ml.Accept(w1aw, msg(id, "")))
	}
	assert.False(t, ml.Accept(w1aw, msg(0, "")))

	/* 4 pushes 0 out of the window. */
	require.True(t, ml.Accept(w1aw, msg(4, "")))
	assert.True(t, ml.Accept(w1aw, msg(0, "")))
	assert.False(t, ml.Accept(w1aw, msg(2, "")))
}

func TestMessageLog_wraparound(t *testing.T) {
	var ml = NewMessageLog(DEFAULT_DEDUPE_WINDOW)

	for i := 0; i < 70000; i++ {
		require.True(t, ml.Accept(w1aw, msg(uint16(i), "")), i)
	}
	assert.Equal(t, 70000, ml.Len())
	assert.Zero(t, ml.Duplicates())
}

func TestMessageLog_accept_once_property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var window = rapid.IntRange(1, 16).Draw(t, "window")
		var ids = rapid.SliceOf(rapid.Uint16Range(0, 20)).Draw(t, "ids")

		var ml = NewMessageLog(window)
		var recent []uint16

		for _, id := range ids {
			var inWindow = false
			for _, r := range recent {
				if r == id {
					inWindow = true
				}
			}

			var accepted = ml.Accept(w1aw, msg(id, ""))
			assert.Equal(t, !inWindow, accepted, "id %d recent %v", id, recent)

			if accepted {
				recent = append(recent, id)
				if len(recent) > window {
					recent = recent[1:]
				}
			}
		}
	})
}

func TestMessageLog_outbound_and_ack(t *testing.T) {
	var ml = NewMessageLog(0)

	var m = msg(3, "hi")
	m.Sender = n0call
	m.Destination = w1aw

	require.True(t, ml.AcceptOutbound(m))

	/* Our own message heard back through a digipeater. */
	assert.False(t, ml.Accept(n0call, m))

	var key = MessageKey{Sender: n0call, ID: 3}
	assert.True(t, ml.MarkAcked(key))
	assert.False(t, ml.MarkAcked(key), "second ACK")
	assert.False(t, ml.MarkAcked(MessageKey{Sender: n0call, ID: 4}))

	var e, ok = ml.Lookup(key)
	require.True(t, ok)
	assert.True(t, e.Outbound)
	assert.True(t, e.Acked)
}

func TestMessageLog_ack_only_outbound(t *testing.T) {
	var ml = NewMessageLog(0)
	ml.Accept(w1aw, msg(9, "hello"))

	assert.False(t, ml.MarkAcked(MessageKey{Sender: w1aw, ID: 9}))
}

func TestMessageLog_clear_keeps_history(t *testing.T) {
	var ml = NewMessageLog(0)
	ml.Accept(w1aw, msg(1, "hello"))

	ml.Clear()

	assert.Zero(t, ml.Len())
	assert.False(t, ml.Accept(w1aw, msg(1, "hello")))
}

func TestMessageLog_clear_keeps_acks(t *testing.T) {
	var ml = NewMessageLog(0)
	var out = ChatMessage{Sender: n0call, Destination: w1aw, Type: MSG, ID: 4, Text: []byte("before clear")}
	require.True(t, ml.AcceptOutbound(out))

	ml.Clear()

	assert.Zero(t, ml.Len())
	assert.Empty(t, ml.Snapshot())

	var key = MessageKey{Sender: n0call, ID: 4}
	assert.True(t, ml.MarkAcked(key))

	var e, ok = ml.Lookup(key)
	require.True(t, ok)
	assert.True(t, e.Acked)

	ml.Accept(w1aw, msg(1, "after clear"))
	var shown = ml.Snapshot()
	require.Len(t, shown, 1)
	assert.Equal(t, "after clear", string(shown[0].Text))
}

func TestMessageLog_snapshot_is_copy(t *testing.T) {
	var ml = NewMessageLog(0)
	ml.Accept(w1aw, msg(1, "hello"))

	var s = ml.Snapshot()
	s[0].Acked = true

	assert.False(t, ml.Snapshot()[0].Acked)
}

func TestMessageLog_concurrent(t *testing.T) {
	var ml = NewMessageLog(1000)
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := uint16(0); id < 500; id++ {
				ml.Accept(w1aw, msg(id, ""))
				ml.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, ml.Len())
	assert.Equal(t, 1500, ml.Duplicates())
}
