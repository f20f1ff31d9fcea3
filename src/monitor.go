package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Show everything heard on the channel, the way kissutil
 *		does, with chat payloads taken apart.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

/*-------------------------------------------------------------------
 *
 * Name:        MonitorLine
 *
 * Purpose:     One line description of a frame from the TNC.
 *
 * Returns:	Usual TNC-2 monitor format for most frames:
 *
 *			W1AW>APRS,WIDE2-1:!4237.14N/07120.83W-
 *
 *		For chat frames, the payload instead of the raw information:
 *
 *			W1AW>N0CALL-7: MSG #7 smaz: hello
 *			N0CALL-7>W1AW: ACK #7
 *
 *--------------------------------------------------------------------*/

func MonitorLine(raw []byte) string {
	var f, err = ax25_unpack(raw)
	if err != nil {
		return fmt.Sprintf("ERROR - Invalid AX.25 frame, %d bytes: %s", len(raw), err)
	}

	if !f.IsUI() || f.PID != AX25_PID_NO_LAYER_3 {
		return f.String()
	}

	var m, perr = DecodePayload(f.Info)
	if perr != nil {
		return f.String()
	}

	var hdr = *f
	hdr.Info = nil

	switch m.Type {
	case MSG:
		return fmt.Sprintf("%s MSG #%d %s: %s", hdr.String(), m.ID, m.Compression, ax25_safe_text(m.Text))
	case ACK:
		return fmt.Sprintf("%s ACK #%d", hdr.String(), m.ID)
	default:
		return fmt.Sprintf("%s %s #%d", hdr.String(), m.Type, m.ID)
	}
}

/*------------------------------------------------------------------
 *
 * Name:	monitor_filename
 *
 * Purpose:   	Unique file name based on the time.  YYYYMMDD-HHMMSS-mmm
 *
 *		Two packets can arrive in less than a second so we
 *		need more than one second resolution.
 *		Local time.  Run with TZ=UTC for UTC.
 *
 *---------------------------------------------------------------*/

func monitor_filename(t time.Time) string {
	return t.Format("20060102-150405") + fmt.Sprintf("-%03d", t.Nanosecond()/int(time.Millisecond))
}

// SaveMonitorLine writes line to a new file in dir and returns its path.
func SaveMonitorLine(dir string, line string, t time.Time) (string, error) {
	var path = filepath.Join(dir, monitor_filename(t))

	var err = os.WriteFile(path, []byte(line+"\n"), 0o644)
	if err != nil {
		return "", fmt.Errorf("unable to save received frame: %w", err)
	}

	return path, nil
}

/* end monitor.go */
