package chatfx

/*------------------------------------------------------------------
 *
 * Name:	ax25_pad
 *
 * Purpose:	Packet assembler and disassembler for the AX.25 UI frames
 *		that carry chat messages.
 *
 * Description:
 *
 *	Each frame starts with 2-10 addresses (14-70 octets):
 *
 *	* Destination Address  (note: opposite order in printed format)
 *
 *	* Source Address
 *
 *	* 0-8 Digipeater Addresses
 *
 *	Each address is composed of:
 *
 *	* 6 upper case letters or digits, blank padded.
 *		These are shifted left one bit, leaving the LSB always 0.
 *
 *	* a 7th octet containing the SSID and flags.
 *		The LSB is always 0 except for the last octet of the address field.
 *
 *	The final octet of the Destination has the form:
 *
 *		C R R SSID 0, where,
 *
 *			C = command/response = 1
 *			R R = Reserved = 1 1
 *			SSID = substation ID
 *			0 = zero
 *
 *	The final octet of the Source has the form:
 *
 *		C R R SSID 0, where,
 *
 *			C = command/response = 0
 *			R R = Reserved = 1 1
 *			SSID = substation ID
 *			0 = zero (or 1 if no repeaters)
 *
 *	The final octet of each repeater has the form:
 *
 *		H R R SSID 0, where,
 *
 *			H = has-been-repeated = 0 when we send it.
 *			R R = Reserved = 1 1
 *			SSID = substation ID
 *			0 = zero (or 1 if last repeater in list)
 *
 *	Next we have:
 *
 *	* One byte Control Field 	- 3 for UI frame
 *
 *	* One byte Protocol ID 		- 0xf0 for no layer 3
 *
 *	Finally the Information Field.
 *
 *	The FCS is handled by the TNC and never shows up here.
 *
 *	The C, H, and RR bits are written as described above but are
 *	not checked or kept when decoding.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const AX25_MAX_REPEATERS = 8
const AX25_MIN_ADDRS = 2  /* Destination & Source. */
const AX25_MAX_ADDRS = 10 /* Destination, Source, 8 digipeaters. */

const AX25_DESTINATION = 0 /* Address positions in frame. */
const AX25_SOURCE = 1
const AX25_REPEATER_1 = 2

const AX25_MAX_CALL_LEN = 6

const AX25_MAX_INFO_LEN = 2048

const AX25_MIN_PACKET_LEN = (2*7 + 1)

const AX25_MAX_PACKET_LEN = (AX25_MAX_ADDRS*7 + 2 + 3 + AX25_MAX_INFO_LEN)

const AX25_UI_FRAME = 3 /* Control field value. */
const AX25_PF_MASK = 0x10

const AX25_PID_NO_LAYER_3 = 0xf0 /* protocol ID used for APRS and for us */

/*
 * The 7th octet of each address contains:
 *
 * Bits:   H  R  R  SSID  0
 */

const SSID_H_MASK = 0x80
const SSID_H_SHIFT = 7

const SSID_RR_MASK = 0x60
const SSID_RR_SHIFT = 5

const SSID_SSID_MASK = 0x1e
const SSID_SSID_SHIFT = 1

const SSID_LAST_MASK = 0x01

// ErrProtocolViolation is the parent of errors for frames that are
// well delimited but break the AX.25 addressing rules.
var ErrProtocolViolation = errors.New("AX.25 protocol violation")

var (
	ErrFrameTooShort            = fmt.Errorf("%w: AX.25 frame too short", ErrFraming)
	ErrAddressChainUnterminated = fmt.Errorf("%w: address chain unterminated", ErrProtocolViolation)
	ErrAddressChainTooShort     = fmt.Errorf("%w: fewer than 2 addresses", ErrProtocolViolation)
	ErrInvalidCallsignCharacter = fmt.Errorf("%w: invalid callsign character", ErrProtocolViolation)
	ErrTooManyDigipeaters       = fmt.Errorf("%w: more than %d digipeaters", ErrProtocolViolation, AX25_MAX_REPEATERS)
	ErrInvalidCallsign          = errors.New("invalid callsign")
)

// Callsign is a station address, e.g. "WB2OSZ-15".
type Callsign struct {
	Call string
	SSID int
}

func (c Callsign) String() string {
	if c.SSID == 0 {
		return c.Call
	}
	return c.Call + "-" + strconv.Itoa(c.SSID)
}

func (c Callsign) IsZero() bool {
	return c.Call == "" && c.SSID == 0
}

// Valid reports whether c can go into an address field as is.
func (c Callsign) Valid() bool {
	if len(c.Call) == 0 || len(c.Call) > AX25_MAX_CALL_LEN {
		return false
	}
	if c.SSID < 0 || c.SSID > 15 {
		return false
	}
	for i := 0; i < len(c.Call); i++ {
		if !ax25_call_char(c.Call[i]) {
			return false
		}
	}
	return true
}

func ax25_call_char(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func (c Callsign) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Callsign) UnmarshalText(text []byte) error {
	var parsed, err = ParseCallsign(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

/*------------------------------------------------------------------------------
 *
 * Name:	ParseCallsign
 *
 * Purpose:	Parse address with optional ssid.
 *
 * Inputs:	in_addr		- Input such as "WB2OSZ-15".
 *				  Lower case is accepted and converted, since
 *				  this usually comes from someone typing.
 *
 * Returns:	Callsign, or an error wrapping ErrInvalidCallsign that says
 *		what was wrong with it.
 *
 *------------------------------------------------------------------------------*/

func ParseCallsign(in_addr string) (Callsign, error) {
	var s = strings.ToUpper(strings.TrimSpace(in_addr))

	if len(s) == 0 {
		return Callsign{}, fmt.Errorf("%w: address is empty", ErrInvalidCallsign)
	}

	var call, sstr, hasSSID = strings.Cut(s, "-")

	if len(call) == 0 || len(call) > AX25_MAX_CALL_LEN {
		return Callsign{}, fmt.Errorf("%w: \"%s\" must have 1 to %d characters before the SSID", ErrInvalidCallsign, in_addr, AX25_MAX_CALL_LEN)
	}

	for i := 0; i < len(call); i++ {
		if !ax25_call_char(call[i]) {
			return Callsign{}, fmt.Errorf("%w: \"%s\" contains character other than letter or digit in character position %d", ErrInvalidCallsign, in_addr, i)
		}
	}

	var ssid = 0
	if hasSSID {
		var k, kErr = strconv.Atoi(sstr)
		if kErr != nil || len(sstr) > 2 {
			return Callsign{}, fmt.Errorf("%w: malformed SSID in \"%s\"", ErrInvalidCallsign, in_addr)
		}
		if k < 0 || k > 15 {
			return Callsign{}, fmt.Errorf("%w: SSID of \"%s\" not in range of 0 to 15", ErrInvalidCallsign, in_addr)
		}
		ssid = k
	}

	return Callsign{Call: call, SSID: ssid}, nil
} /* end ParseCallsign */

// AX25Frame is one UI frame, taken apart.
type AX25Frame struct {
	Destination Callsign
	Source      Callsign
	Digipeaters []Callsign
	Control     byte
	PID         byte
	Info        []byte
}

// NewUIFrame makes a UI frame with no layer 3 protocol.
func NewUIFrame(dest Callsign, src Callsign, digis []Callsign, info []byte) *AX25Frame {
	return &AX25Frame{
		Destination: dest,
		Source:      src,
		Digipeaters: digis,
		Control:     AX25_UI_FRAME,
		PID:         AX25_PID_NO_LAYER_3,
		Info:        info,
	}
}

// IsUI ignores the poll/final bit.
func (f *AX25Frame) IsUI() bool {
	return f.Control&^AX25_PF_MASK == AX25_UI_FRAME
}

/*------------------------------------------------------------------------------
 *
 * Name:	String
 *
 * Purpose:	Format in the usual TNC-2 monitor style for logs.
 *		i.e.  source>dest[,repeater1,repeater2,...]:information
 *
 *		Unprintable characters in the information part are shown
 *		in the form of <0xff>.
 *
 *------------------------------------------------------------------------------*/

func (f *AX25Frame) String() string {
	var sb strings.Builder

	sb.WriteString(f.Source.String())
	sb.WriteByte('>')
	sb.WriteString(f.Destination.String())
	for _, d := range f.Digipeaters {
		sb.WriteByte(',')
		sb.WriteString(d.String())
	}
	sb.WriteByte(':')
	sb.WriteString(ax25_safe_text(f.Info))

	return sb.String()
}

func ax25_safe_text(info []byte) string {
	var sb strings.Builder
	for _, b := range info {
		if b >= 0x20 && b <= 0x7e {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, "<0x%02x>", b)
		}
	}
	return sb.String()
}

/*------------------------------------------------------------------------------
 *
 * Name:	ax25_pack
 *
 * Purpose:	Convert to the on air frame format, without the FCS.
 *
 * Inputs:	f	- Frame to encode.  Callsigns must be valid.
 *
 * Returns:	Frame bytes, or error for a bad address or too many digipeaters.
 *
 *------------------------------------------------------------------------------*/

func ax25_pack(f *AX25Frame) ([]byte, error) {
	if len(f.Digipeaters) > AX25_MAX_REPEATERS {
		return nil, ErrTooManyDigipeaters
	}

	var addrs = make([]Callsign, 0, AX25_MIN_ADDRS+len(f.Digipeaters))
	addrs = append(addrs, f.Destination, f.Source)
	addrs = append(addrs, f.Digipeaters...)

	var out = make([]byte, 0, len(addrs)*7+2+len(f.Info))

	for n, a := range addrs {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: %s address \"%s\"", ErrInvalidCallsign, position_name(n), a)
		}

		var padded = a.Call + strings.Repeat(" ", AX25_MAX_CALL_LEN-len(a.Call))
		for i := 0; i < AX25_MAX_CALL_LEN; i++ {
			out = append(out, padded[i]<<1)
		}

		var ssid = byte(SSID_RR_MASK) | byte(a.SSID<<SSID_SSID_SHIFT)&SSID_SSID_MASK
		if n == AX25_DESTINATION {
			ssid |= SSID_H_MASK /* Command. */
		}
		if n == len(addrs)-1 {
			ssid |= SSID_LAST_MASK
		}
		out = append(out, ssid)
	}

	out = append(out, f.Control, f.PID)
	out = append(out, f.Info...)

	return out, nil
}

/*------------------------------------------------------------------------------
 *
 * Name:	ax25_unpack
 *
 * Purpose:	Split apart a frame received from the TNC.
 *
 * Inputs:	data	- Frame bytes, KISS command byte already removed.
 *
 * Returns:	The frame, or:
 *
 *		ErrFrameTooShort		- less than 15 bytes, or no room
 *						  for control and PID.
 *		ErrAddressChainUnterminated	- no address with the last bit
 *						  set within 10 addresses.
 *		ErrAddressChainTooShort		- last bit set on the destination.
 *		ErrInvalidCallsignCharacter	- something other than upper case,
 *						  digit, or trailing space.
 *
 *------------------------------------------------------------------------------*/

func ax25_unpack(data []byte) (*AX25Frame, error) {
	var flen = len(data)
	if flen < AX25_MIN_PACKET_LEN {
		return nil, fmt.Errorf("%w: length %d, need at least %d", ErrFrameTooShort, flen, AX25_MIN_PACKET_LEN)
	}

	/* Find number of addresses. */

	var num_addr = 0
	for n := 0; n < AX25_MAX_ADDRS && n*7+7 <= flen; n++ {
		if data[n*7+6]&SSID_LAST_MASK != 0 {
			num_addr = n + 1
			break
		}
	}

	if num_addr == 0 {
		return nil, ErrAddressChainUnterminated
	}
	if num_addr < AX25_MIN_ADDRS {
		return nil, ErrAddressChainTooShort
	}
	if num_addr*7+2 > flen {
		return nil, fmt.Errorf("%w: no control and PID after %d addresses", ErrFrameTooShort, num_addr)
	}

	var addrs = make([]Callsign, num_addr)
	for n := range num_addr {
		var a, err = ax25_unpack_addr(data[n*7 : n*7+7])
		if err != nil {
			return nil, fmt.Errorf("%s address: %w", position_name(n), err)
		}
		addrs[n] = a
	}

	var f = &AX25Frame{
		Destination: addrs[AX25_DESTINATION],
		Source:      addrs[AX25_SOURCE],
		Control:     data[num_addr*7],
		PID:         data[num_addr*7+1],
	}

	if num_addr > AX25_MIN_ADDRS {
		f.Digipeaters = addrs[AX25_REPEATER_1:]
	}
	if flen > num_addr*7+2 {
		f.Info = bytes.Clone(data[num_addr*7+2:])
	}

	return f, nil
} /* end ax25_unpack */

// At one time, Dire Wolf stopped at the first space.  Someone then
// showed up with " WIDE2".  We reject embedded or leading spaces here
// because a chat peer has no reason to send them.
func ax25_unpack_addr(a []byte) (Callsign, error) {
	var call [AX25_MAX_CALL_LEN]byte
	for i := range AX25_MAX_CALL_LEN {
		var ch = (a[i] >> 1) & 0x7f
		if ch != ' ' && !ax25_call_char(ch) {
			return Callsign{}, fmt.Errorf("%w: 0x%02x in position %d", ErrInvalidCallsignCharacter, ch, i)
		}
		call[i] = ch
	}

	var station = strings.TrimRight(string(call[:]), " ")
	if len(station) == 0 {
		return Callsign{}, fmt.Errorf("%w: address is all spaces", ErrInvalidCallsignCharacter)
	}
	if strings.Contains(station, " ") {
		return Callsign{}, fmt.Errorf("%w: embedded space in \"%s\"", ErrInvalidCallsignCharacter, station)
	}

	return Callsign{
		Call: station,
		SSID: int(a[6]&SSID_SSID_MASK) >> SSID_SSID_SHIFT,
	}, nil
}

func position_name(n int) string {
	switch n {
	case AX25_DESTINATION:
		return "Destination"
	case AX25_SOURCE:
		return "Source"
	default:
		return fmt.Sprintf("Digi%d", n-AX25_REPEATER_1+1)
	}
}

// EncodeFrame is ax25_pack for callers outside the package.
func EncodeFrame(f *AX25Frame) ([]byte, error) {
	return ax25_pack(f)
}

// DecodeFrame is ax25_unpack for callers outside the package.
func DecodeFrame(raw []byte) (*AX25Frame, error) {
	return ax25_unpack(raw)
}

/* end ax25_pad.go */
