package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Chat message format carried in the information part
 *		of an AX.25 UI frame.
 *
 * Description:
 *
 *	byte 0		Reserved.  Always 0xf0, echoing the "no layer 3" PID.
 *
 *	byte 1		T T C C 0 0 0 0
 *
 *			T T	- message type.  0 = message, 1 = acknowledgement.
 *			C C	- compression.  0 = none, 1 = smaz.
 *			0 0 0 0	- reserved.  Sent as 0, ignored when received
 *				  so newer senders can use them.
 *
 *	byte 2-3	Message id, big endian.  Counts up from 0 for each
 *			session and wraps at 65536.  An acknowledgement carries
 *			the id of the message it acknowledges.
 *
 *	byte 4-		Message text, compressed if C C says so.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const CHAT_PAYLOAD_HEADER_LEN = 4

const CHAT_RESERVED_BYTE = AX25_PID_NO_LAYER_3

const CHAT_TYPE_SHIFT = 6
const CHAT_TYPE_MASK = 0xc0
const CHAT_COMPRESSION_SHIFT = 4
const CHAT_COMPRESSION_MASK = 0x30

// ErrPayload is the parent of all chat payload decoding errors.
var ErrPayload = errors.New("chat payload error")

var (
	ErrPayloadTooShort        = fmt.Errorf("%w: payload too short", ErrPayload)
	ErrUnknownCompressionKind = fmt.Errorf("%w: unknown compression kind", ErrPayload)
	ErrPayloadCorrupt         = fmt.Errorf("%w: payload corrupt", ErrPayload)
)

type MessageType int

const (
	MSG MessageType = 0
	ACK MessageType = 1
)

func (t MessageType) String() string {
	switch t {
	case MSG:
		return "MSG"
	case ACK:
		return "ACK"
	default:
		return fmt.Sprintf("TYPE%d", int(t))
	}
}

type CompressionKind int

const (
	COMPRESSION_NONE CompressionKind = 0
	COMPRESSION_SMAZ CompressionKind = 1
)

func (c CompressionKind) String() string {
	switch c {
	case COMPRESSION_NONE:
		return "none"
	case COMPRESSION_SMAZ:
		return "smaz"
	default:
		return fmt.Sprintf("compression%d", int(c))
	}
}

// ChatMessage is one message, in either direction.
// Sender and Destination come from the AX.25 addresses, not the payload.
type ChatMessage struct {
	Sender      Callsign
	Destination Callsign
	Type        MessageType
	Compression CompressionKind
	ID          uint16
	Text        []byte
	Timestamp   time.Time
}

// MessageKey identifies a message for duplicate detection and display.
type MessageKey struct {
	Sender Callsign
	ID     uint16
}

func (m *ChatMessage) Key() MessageKey {
	return MessageKey{Sender: m.Sender, ID: m.ID}
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%s#%d", k.Sender, k.ID)
}

/*-------------------------------------------------------------------
 *
 * Name:        EncodePayload
 *
 * Purpose:     Build the information part for a chat message.
 *
 * Returns:	Payload bytes, or error if the type or compression
 *		can't be represented.
 *
 *--------------------------------------------------------------------*/

func EncodePayload(m *ChatMessage) ([]byte, error) {
	if m.Type < 0 || m.Type > 3 {
		return nil, fmt.Errorf("message type %d does not fit in 2 bits", m.Type)
	}

	var text = m.Text
	switch m.Compression {
	case COMPRESSION_NONE:
	case COMPRESSION_SMAZ:
		text = smaz_compress(m.Text)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompressionKind, m.Compression)
	}

	var out = make([]byte, CHAT_PAYLOAD_HEADER_LEN, CHAT_PAYLOAD_HEADER_LEN+len(text))
	out[0] = CHAT_RESERVED_BYTE
	out[1] = byte(m.Type)<<CHAT_TYPE_SHIFT | byte(m.Compression)<<CHAT_COMPRESSION_SHIFT
	binary.BigEndian.PutUint16(out[2:4], m.ID)
	out = append(out, text...)

	return out, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        DecodePayload
 *
 * Purpose:     Take apart the information part of a received frame.
 *
 * Returns:	Message with Type, Compression, ID and Text filled in.
 *		Sender, Destination and Timestamp are left for the caller.
 *
 * Errors:	ErrPayloadTooShort, ErrUnknownCompressionKind, ErrPayloadCorrupt.
 *
 *--------------------------------------------------------------------*/

func DecodePayload(b []byte) (*ChatMessage, error) {
	if len(b) < CHAT_PAYLOAD_HEADER_LEN {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooShort, len(b))
	}

	/* b[0] and the low 4 bits of b[1] are not checked. */

	var m = &ChatMessage{
		Type:        MessageType(b[1]&CHAT_TYPE_MASK) >> CHAT_TYPE_SHIFT,
		Compression: CompressionKind(b[1]&CHAT_COMPRESSION_MASK) >> CHAT_COMPRESSION_SHIFT,
		ID:          binary.BigEndian.Uint16(b[2:4]),
	}

	var body = b[CHAT_PAYLOAD_HEADER_LEN:]

	switch m.Compression {
	case COMPRESSION_NONE:
		if len(body) > 0 {
			m.Text = append([]byte(nil), body...)
		}
	case COMPRESSION_SMAZ:
		var text, err = smaz_decompress(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPayloadCorrupt, err)
		}
		if len(text) > 0 {
			m.Text = text
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompressionKind, m.Compression)
	}

	return m, nil
}

/* end chat_payload.go */
