package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Talk to a KISS TNC attached to a serial port.
 *
 * Description:	Hardware TNCs in KISS mode, Bluetooth TNCs (/dev/rfcomm0),
 *		or a pseudo terminal made by another program.
 *		Framing is exactly the same as over TCP so this only
 *		opens the port and hands it to NewLink.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/term"
)

const DEFAULT_SERIAL_SPEED = 9600

/* Closing a tty does not wake up a read in progress, so reads give up */
/* this often to look for Close. */
const SERIAL_POLL_INTERVAL = 100 * time.Millisecond

/*-------------------------------------------------------------------
 *
 * Name:	serial_port_open
 *
 * Purpose:	Open serial port in raw mode.
 *
 * Inputs:	devicename	- Usually /dev/tty...
 *				  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud		- Speed.  1200, 4800, 9600 bps, etc.
 *				  If 0, leave it alone.
 *
 *---------------------------------------------------------------*/

func serial_port_open(devicename string, baud int) (*term.Term, error) {
	switch baud {
	case 0, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
	default:
		return nil, fmt.Errorf("serial port %s: unsupported speed %d", devicename, baud)
	}

	var fd, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", devicename, err)
	}

	if baud != 0 {
		if err := fd.SetSpeed(baud); err != nil {
			fd.Close()
			return nil, fmt.Errorf("serial port %s: set speed %d: %w", devicename, baud, err)
		}
	}

	if err := fd.SetReadTimeout(SERIAL_POLL_INTERVAL); err != nil {
		fd.Close()
		return nil, fmt.Errorf("serial port %s: set read timeout: %w", devicename, err)
	}

	return fd, nil
}

// serialPort is an open tty whose Close ends a Read in progress.
type serialPort struct {
	fd      *term.Term
	read_mu sync.Mutex /* Held during each timed read.  Close takes it too. */
	closed  atomic.Bool
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		if p.closed.Load() {
			return 0, io.EOF
		}

		p.read_mu.Lock()
		if p.closed.Load() {
			p.read_mu.Unlock()
			return 0, io.EOF
		}
		var n, err = p.fd.Read(b)
		p.read_mu.Unlock()

		/* Nothing arrived before the timeout. */
		if n == 0 && errors.Is(err, io.EOF) {
			continue
		}

		return n, err
	}
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.fd.Write(b)
}

func (p *serialPort) Close() error {
	p.closed.Store(true)

	p.read_mu.Lock()
	defer p.read_mu.Unlock()

	return p.fd.Close()
}

/*-------------------------------------------------------------------
 *
 * Name:	OpenSerial
 *
 * Purpose:	Connect to a KISS TNC on a serial port.
 *
 * Description:	Reads time out every SERIAL_POLL_INTERVAL, invisibly
 *		to the Link, so Close unblocks Receive within that time.
 *
 *---------------------------------------------------------------*/

func OpenSerial(device string, baud int, opts ...LinkOption) (*Link, error) {
	var fd, err = serial_port_open(device, baud)
	if err != nil {
		return nil, err
	}

	var k = NewLink(&serialPort{fd: fd}, opts...)
	k.name = device

	return k, nil
}

/* end kissserial.go */
