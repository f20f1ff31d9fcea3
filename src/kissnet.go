package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Talk to a KISS TNC, such as Dire Wolf, over a TCP socket
 *		or anything else that looks like a byte stream.
 *
 * Description:	We are the client application here.  The TNC does the
 *		radio part.  Frames we send are data frames (command 0)
 *		for radio channel 0.  From the TNC we only care about data
 *		frames.  Anything else is counted and thrown away.
 *
 *		Unlike the TNC attach in Dire Wolf, there is no automatic
 *		reattach if the TNC goes away.  The session ends and the
 *		user can start again.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

const DEFAULT_KISS_HOST = "localhost"
const DEFAULT_KISS_PORT = 8001

// ErrLinkClosed means the connection to the TNC is gone.
var ErrLinkClosed = errors.New("KISS link closed")

// FrameLink is what a session needs from a link.
type FrameLink interface {
	FrameSender
	Receive() ([]byte, error)
	Close() error
}

// LinkStats are counters since the link was opened.
type LinkStats struct {
	FramesIn      uint64
	FramesOut     uint64
	FramingErrors uint64
	NonData       uint64 /* Frames other than data, e.g. SetHardware responses. */
}

type LinkOption func(*Link)

func WithLinkLogger(l *log.Logger) LinkOption {
	return func(k *Link) {
		k.logger = l
	}
}

// WithHexDump logs every frame in and out in hex, at debug level.
func WithHexDump(on bool) LinkOption {
	return func(k *Link) {
		k.hexdump = on
	}
}

// Link is one connection to a KISS TNC.
// Send may be called from any goroutine.  Receive from one at a time.
type Link struct {
	rwc     io.ReadWriteCloser
	name    string
	logger  *log.Logger
	hexdump bool

	next func() ([]byte, error, bool) /* Pulls from kiss_frames. */

	write_mu sync.Mutex

	close_once sync.Once
	close_err  error
	closed     atomic.Bool

	frames_in      atomic.Uint64
	frames_out     atomic.Uint64
	framing_errors atomic.Uint64
	non_data       atomic.Uint64
}

/*-------------------------------------------------------------------
 *
 * Name:        NewLink
 *
 * Purpose:     Wrap an open byte stream to the TNC.
 *
 * Inputs:	rwc	- TCP connection, serial port, pipe for testing...
 *			  The link owns it from now on.
 *
 *--------------------------------------------------------------------*/

func NewLink(rwc io.ReadWriteCloser, opts ...LinkOption) *Link {
	var k = &Link{
		rwc:    rwc,
		name:   "KISS TNC",
		logger: log.New(io.Discard),
	}

	for _, opt := range opts {
		opt(k)
	}

	k.next, _ = iter.Pull2(kiss_frames(rwc)) /* Ends by itself once rwc fails. */

	return k
}

/*-------------------------------------------------------------------
 *
 * Name:        DialTCP
 *
 * Purpose:     Connect to a network KISS TNC.
 *
 * Inputs:	host	- Host name or IP address.  Often "localhost".
 *
 *		port	- TCP port number.  Typically 8001.
 *
 *--------------------------------------------------------------------*/

func DialTCP(ctx context.Context, host string, port int, opts ...LinkOption) (*Link, error) {
	var address = net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	var conn, err = d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to KISS TNC at %s: %w", address, err)
	}

	var k = NewLink(conn, opts...)
	k.name = address

	return k, nil
}

func (k *Link) String() string {
	return k.name
}

/*-------------------------------------------------------------------
 *
 * Name:        Receive
 *
 * Purpose:     Wait for the next data frame from the TNC.
 *
 * Returns:	AX.25 frame with the KISS command byte removed.
 *
 *		Error wrapping ErrLinkClosed when the connection ends or
 *		Close is called.  Bad KISS framing is never returned,
 *		only counted and logged.
 *
 *--------------------------------------------------------------------*/

func (k *Link) Receive() ([]byte, error) {
	for {
		var frame, err, ok = k.next()

		if !ok {
			return nil, ErrLinkClosed
		}

		if err != nil {
			var ferr *FramingError
			if errors.As(err, &ferr) {
				k.framing_errors.Add(1)
				k.logger.Warn("Discarded KISS frame", "tnc", k.name, "reason", ferr.Reason, "bytes", ferr.Discarded)
				continue
			}

			if k.closed.Load() || errors.Is(err, io.EOF) {
				return nil, ErrLinkClosed
			}
			return nil, fmt.Errorf("%w: %w", ErrLinkClosed, err)
		}

		var channel, cmd = kiss_split_type(frame[0])
		if cmd != KISS_CMD_DATA_FRAME {
			k.non_data.Add(1)
			k.logger.Debug("Ignoring KISS frame", "tnc", k.name, "frame", kiss_describe(frame))
			continue
		}

		k.frames_in.Add(1)
		if k.hexdump {
			k.logger.Debug("Received from TNC", "channel", channel, "dump", "\n"+hex_dump(frame[1:]))
		}

		return frame[1:], nil
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Send
 *
 * Purpose:     Send one AX.25 frame to the TNC for transmission.
 *
 * Inputs:	frame	- AX.25 frame, without FCS.
 *
 * Description:	The data frame command byte for channel 0 is added,
 *		then the KISS escapes.  The whole thing is written with
 *		a single Write so two senders can't interleave.
 *
 *--------------------------------------------------------------------*/

func (k *Link) Send(frame []byte) error {
	if k.closed.Load() {
		return ErrLinkClosed
	}

	var raw = make([]byte, 0, len(frame)+1)
	raw = append(raw, KISS_CMD_DATA_FRAME)
	raw = append(raw, frame...)

	var wire = kiss_encapsulate(raw)

	if k.hexdump {
		k.logger.Debug("Sending to TNC", "dump", "\n"+hex_dump(frame))
	}

	k.write_mu.Lock()
	defer k.write_mu.Unlock()

	var _, err = k.rwc.Write(wire)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkClosed, err)
	}

	k.frames_out.Add(1)

	return nil
}

// Close may be called more than once, and from any goroutine.
// A Receive in progress returns ErrLinkClosed.
func (k *Link) Close() error {
	k.close_once.Do(func() {
		k.closed.Store(true)
		k.close_err = k.rwc.Close()
	})
	return k.close_err
}

func (k *Link) Stats() LinkStats {
	return LinkStats{
		FramesIn:      k.frames_in.Load(),
		FramesOut:     k.frames_out.Load(),
		FramingErrors: k.framing_errors.Load(),
		NonData:       k.non_data.Load(),
	}
}

/* end kissnet.go */
