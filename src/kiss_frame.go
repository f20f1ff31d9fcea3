package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	KISS framing used between us and the TNC, over TCP or a serial port.
 *
 * Description: The KISS TNC protocol is described in http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the frame contents contains:
 *
 *			* radio channel in upper nybble.
 *			* command in lower nybble.
 *
 *		We only ever send data frames (command 0) on channel 0.
 *		A TNC might send us other things, such as a SetHardware
 *		response.  Those are decoded but kept away from the data path.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
)

const KISS_CMD_DATA_FRAME = 0
const KISS_CMD_TXDELAY = 1
const KISS_CMD_PERSISTENCE = 2
const KISS_CMD_SLOTTIME = 3
const KISS_CMD_TXTAIL = 4
const KISS_CMD_FULLDUPLEX = 5
const KISS_CMD_SET_HARDWARE = 6
const KISS_CMD_END_KISS = 15

/*
 * Special characters used by SLIP protocol.
 */

const FEND = 0xC0
const FESC = 0xDB
const TFEND = 0xDC
const TFESC = 0xDD

type kiss_state_e int

const (
	KS_SEARCHING  kiss_state_e = 0 /* Looking for FEND to start KISS frame. Must be 0 so the zero value is ready to use. */
	KS_COLLECTING kiss_state_e = 1 /* In process of collecting KISS frame. */
)

const MAX_KISS_LEN = 2048 /* KA9Q paper suggests at least 1024. */
/* AX.25 frames with a 256 byte info part fit easily. */

var kiss_function_name = []string{
	"Data frame", "TXDELAY", "P", "SlotTime",
	"TXtail", "FullDuplex", "SetHardware", "Invalid 7",
	"Invalid 8", "Invalid 9", "Invalid 10", "Invalid 11",
	"Invalid 12", "Invalid 13", "Invalid 14", "Return"}

// ErrFraming is wrapped by every *FramingError.
var ErrFraming = errors.New("KISS framing error")

// FramingError reports a KISS frame that was thrown away.
// The decoder has already resynchronised when one of these is produced.
type FramingError struct {
	Reason    string
	Discarded int /* Bytes collected for the frame before it was dropped. */
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("KISS framing error: %s (%d bytes discarded)", e.Reason, e.Discarded)
}

func (e *FramingError) Unwrap() error {
	return ErrFraming
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_encapsulate
 *
 * Purpose:     Encapsulate a frame into KISS format.
 *
 * Inputs:	in	- First byte is the "type indicator" with type and
 *			  channel but we don't care about that here.
 *			  If it happens to be FEND or FESC, it is escaped, like any other byte.
 *
 * Returns:	The sequence is:
 *			FEND		- Magic frame separator.
 *			data		- with certain byte values replaced so
 *					  FEND will never occur here.
 *			FEND		- Magic frame separator.
 *
 *		Absolute max length (extremely unlikely) will be twice input plus 2.
 *
 *-----------------------------------------------------------------*/

func kiss_encapsulate(in []byte) []byte {
	var buf bytes.Buffer

	buf.Grow(len(in) + len(in)/8 + 2)
	buf.WriteByte(FEND)

	for _, b := range in {
		switch b {
		case FEND:
			buf.WriteByte(FESC)
			buf.WriteByte(TFEND)
		case FESC:
			buf.WriteByte(FESC)
			buf.WriteByte(TFESC)
		default:
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(FEND)

	return buf.Bytes()
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_decoder
 *
 * Purpose:     Accumulate a KISS frame one byte at a time.
 *
 * Description:	The zero value is ready to use and is searching for a FEND.
 *		A FEND that ends one frame also starts the next one, so
 *		"C0 A C0 B C0" and "C0 A C0 C0 B C0" both give A then B.
 *
 *		An escape byte followed by anything other than TFEND or TFESC
 *		throws away the frame in progress.  We then ignore everything
 *		up to the next FEND.
 *
 *-----------------------------------------------------------------*/

type kiss_decoder struct {
	state   kiss_state_e
	escaped bool
	msg     []byte /* De-escaped contents so far, without FEND. */
	noise   int    /* Bytes seen while searching. */
}

func (kf *kiss_decoder) discard(reason string, next kiss_state_e) *FramingError {
	var err = &FramingError{Reason: reason, Discarded: len(kf.msg)}

	kf.msg = kf.msg[:0]
	kf.escaped = false
	kf.state = next

	return err
}

/*-------------------------------------------------------------------
 *
 * Name:        push
 *
 * Purpose:     Process one byte from the TNC.
 *
 * Returns:	frame	- Complete frame, escapes removed, command byte
 *			  still at the front.  nil if not complete yet.
 *
 *		err	- Non-nil when a partial frame was dropped.
 *
 *		Never both.
 *
 *-----------------------------------------------------------------*/

func (kf *kiss_decoder) push(ch byte) ([]byte, *FramingError) {
	switch kf.state {
	case KS_SEARCHING:
		if ch == FEND {
			kf.noise = 0
			kf.msg = kf.msg[:0]
			kf.escaped = false
			kf.state = KS_COLLECTING
		} else {
			kf.noise++
		}
		return nil, nil

	case KS_COLLECTING:
		if kf.escaped {
			kf.escaped = false
			switch ch {
			case TFEND:
				kf.msg = append(kf.msg, FEND)
			case TFESC:
				kf.msg = append(kf.msg, FESC)
			case FEND:
				/* This FEND can still start the next frame. */
				return nil, kf.discard("FESC followed by FEND", KS_COLLECTING)
			default:
				return nil, kf.discard(fmt.Sprintf("found 0x%02x after FESC", ch), KS_SEARCHING)
			}
			return nil, kf.grown()
		}

		switch ch {
		case FEND:
			if len(kf.msg) == 0 {
				/* Empty frame.  Just go on collecting. */
				return nil, nil
			}
			var frame = bytes.Clone(kf.msg)
			kf.msg = kf.msg[:0]
			return frame, nil
		case FESC:
			kf.escaped = true
			return nil, nil
		default:
			kf.msg = append(kf.msg, ch)
			return nil, kf.grown()
		}
	}

	return nil, nil
}

func (kf *kiss_decoder) grown() *FramingError {
	if len(kf.msg) > MAX_KISS_LEN {
		return kf.discard("KISS message exceeded maximum length", KS_SEARCHING)
	}
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        kiss_frames
 *
 * Purpose:     Lazily split a continuous byte stream into KISS frames.
 *
 * Inputs:	r	- Anything we can read from.  Reads of any size are fine,
 *			  partial frames are carried over to the next read.
 *
 * Returns:	A sequence of (frame, nil) with escapes removed and the
 *		command byte still attached, (nil, *FramingError) for every
 *		frame that had to be dropped, and finally (nil, err) when the
 *		reader fails.  Nothing is yielded after the read error.
 *
 *-----------------------------------------------------------------*/

func kiss_frames(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var kf kiss_decoder
		var data = make([]byte, 4096)

		for {
			var n, readErr = r.Read(data)

			for _, ch := range data[:n] {
				var frame, ferr = kf.push(ch)
				if ferr != nil {
					if !yield(nil, ferr) {
						return
					}
				}
				if frame != nil {
					if !yield(frame, nil) {
						return
					}
				}
			}

			if readErr != nil {
				yield(nil, readErr)
				return
			}
		}
	}
}

// Split the type indicator byte into radio channel and command.
func kiss_split_type(b byte) (channel int, cmd int) {
	return int(b>>4) & 0xf, int(b) & 0xf
}

// Short description of a de-escaped frame for debug logging.
func kiss_describe(frame []byte) string {
	if len(frame) == 0 {
		return "empty KISS frame"
	}

	var channel, cmd = kiss_split_type(frame[0])

	return fmt.Sprintf("%s, channel %d, total length = %d", kiss_function_name[cmd], channel, len(frame))
}

/* end kiss_frame.go */
