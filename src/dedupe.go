package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:	Keep the session's message log and drop duplicate
 *		messages.
 *
 * Description:	Duplicate messages can show up in several ways:
 *
 *		(1) The sender didn't hear our ACK and sends again.
 *			Same sender, same message id.
 *
 *		(2) We hear the same message directly and by way of
 *			one or more digipeaters.
 *
 *		(3) We hear our own transmission repeated by someone else.
 *
 *		All of them look the same here: a sender callsign and a
 *		16 bit id that we have already seen.  For each sender we
 *		keep the last few accepted ids in a small ring.  The id is
 *		only unique until it wraps around so we can't keep them
 *		all forever.
 *
 *		Our own outgoing messages go through the same path, with
 *		our callsign as sender, which takes care of case (3).
 *
 *		The ordered log is what the user interface shows.  It is
 *		kept only in memory.
 *
 *------------------------------------------------------------------*/

import (
	"sync"
)

const DEFAULT_DEDUPE_WINDOW = 64 /* Ids remembered per sender.  If we run out of */
/* room the oldest ones are overwritten. */

// LogEntry is one line of the conversation.
type LogEntry struct {
	ChatMessage
	Outbound bool /* We sent it. */
	Acked    bool /* Outbound only.  Peer sent an ACK for it. */
}

type historyRing struct {
	ids         []uint16
	insert_next int /* Index, in ids, where next one goes. */
}

func (h *historyRing) contains(id uint16) bool {
	for _, x := range h.ids {
		if x == id {
			return true
		}
	}
	return false
}

func (h *historyRing) remember(id uint16, window int) {
	if len(h.ids) < window {
		h.ids = append(h.ids, id)
		return
	}
	h.ids[h.insert_next] = id
	h.insert_next = (h.insert_next + 1) % window
}

// MessageLog is safe for concurrent use.
type MessageLog struct {
	mu         sync.RWMutex
	window     int
	history    map[Callsign]*historyRing
	entries    []LogEntry
	shown      int                /* First entry still displayed, after Clear. */
	index      map[MessageKey]int /* Latest entry for each key. */
	duplicates int
}

/*------------------------------------------------------------------------------
 *
 * Name:	NewMessageLog
 *
 * Input:	window	- Number of recent ids to remember for each sender.
 *			  0 or less gets DEFAULT_DEDUPE_WINDOW.
 *
 *------------------------------------------------------------------------------*/

func NewMessageLog(window int) *MessageLog {
	if window <= 0 {
		window = DEFAULT_DEDUPE_WINDOW
	}

	return &MessageLog{
		window:  window,
		history: make(map[Callsign]*historyRing),
		index:   make(map[MessageKey]int),
	}
}

/*------------------------------------------------------------------------------
 *
 * Name:	Accept
 *
 * Purpose:	Check whether a message is new and add it to the log if so.
 *
 * Input:	sender	- Station it came from.  For our own messages this
 *			  is our callsign.
 *
 *		m	- The message.
 *
 * Returns:	true if new.  It is then in the log, exactly once.
 *		false for a duplicate.  The log is unchanged.
 *
 *------------------------------------------------------------------------------*/

func (ml *MessageLog) Accept(sender Callsign, m ChatMessage) bool {
	return ml.accept(sender, m, false)
}

// AcceptOutbound is Accept for a message we are sending.
func (ml *MessageLog) AcceptOutbound(m ChatMessage) bool {
	return ml.accept(m.Sender, m, true)
}

func (ml *MessageLog) accept(sender Callsign, m ChatMessage, outbound bool) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var h, ok = ml.history[sender]
	if !ok {
		h = &historyRing{ids: make([]uint16, 0, ml.window)}
		ml.history[sender] = h
	}

	if h.contains(m.ID) {
		ml.duplicates++
		return false
	}

	h.remember(m.ID, ml.window)

	m.Sender = sender
	ml.index[MessageKey{Sender: sender, ID: m.ID}] = len(ml.entries)
	ml.entries = append(ml.entries, LogEntry{ChatMessage: m, Outbound: outbound})

	return true
}

/*------------------------------------------------------------------------------
 *
 * Name:	MarkAcked
 *
 * Purpose:	Record that the peer acknowledged one of our messages.
 *
 * Returns:	false if there is no such outbound message, or it was
 *		already acknowledged.
 *
 *------------------------------------------------------------------------------*/

func (ml *MessageLog) MarkAcked(key MessageKey) bool {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var i, ok = ml.index[key]
	if !ok || !ml.entries[i].Outbound || ml.entries[i].Acked {
		return false
	}

	ml.entries[i].Acked = true
	return true
}

func (ml *MessageLog) Lookup(key MessageKey) (LogEntry, bool) {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var i, ok = ml.index[key]
	if !ok {
		return LogEntry{}, false
	}
	return ml.entries[i], true
}

// Snapshot returns a copy of the displayed log, oldest first.
func (ml *MessageLog) Snapshot() []LogEntry {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var out = make([]LogEntry, len(ml.entries)-ml.shown)
	copy(out, ml.entries[ml.shown:])
	return out
}

// Len is the number of entries displayed.
func (ml *MessageLog) Len() int {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	return len(ml.entries) - ml.shown
}

// Duplicates is the number of messages Accept turned away.
func (ml *MessageLog) Duplicates() int {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	return ml.duplicates
}

// Clear empties the displayed log.  Duplicate history is kept, and
// so is everything Lookup and MarkAcked need.  An ACK for a message
// sent before Clear is still recognized.
func (ml *MessageLog) Clear() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.shown = len(ml.entries)
}

/* end dedupe.go */
