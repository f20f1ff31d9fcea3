package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Watch the channel through a KISS TNC.
 *
 * Description:	Every frame the TNC hears is printed, one per line,
 *		with chat messages and acknowledgements decoded.
 *		Nothing is ever transmitted.
 *
 * Usage:	chatfx-monitor  [ options ]
 *
 *		Default is to connect to localhost:8001.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatfx "github.com/doismellburning/chatfx/src"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func new_flag_set() *pflag.FlagSet {
	var fs = pflag.NewFlagSet("chatfx-monitor", pflag.ContinueOnError)

	fs.StringP("kiss-host", "k", chatfx.DEFAULT_KISS_HOST, "Hostname of TCP KISS TNC.")
	fs.IntP("port", "p", chatfx.DEFAULT_KISS_PORT, "TCP port of KISS TNC.")
	fs.StringP("serial-device", "S", "", "Serial port of a KISS TNC, instead of TCP.  e.g. /dev/ttyAMA0")
	fs.IntP("serial-speed", "b", chatfx.DEFAULT_SERIAL_SPEED, "Serial port speed.")
	fs.CountP("verbose", "v", "Verbose.  -vvv shows the frame contents in hex.")
	fs.StringP("receive-output", "o", "", "Receive output queue directory.  Store received frames here.")
	fs.StringP("timestamp-format", "T", "", "Precede received frames with 'strftime' format time stamp.")
	fs.BoolP("help", "h", false, "Display help text.")

	return fs
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	var fs = new_flag_set()
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "chatfx-monitor - Show what a KISS TNC hears.\n")
		fmt.Fprintf(stderr, "\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if help, _ := fs.GetBool("help"); help {
		fs.Usage()
		return 0
	}

	var settings = &chatfx.Settings{}
	settings.Host, _ = fs.GetString("kiss-host")
	settings.Port, _ = fs.GetInt("port")
	settings.SerialDevice, _ = fs.GetString("serial-device")
	settings.SerialSpeed, _ = fs.GetInt("serial-speed")
	settings.Verbose, _ = fs.GetCount("verbose")

	var receive_output, _ = fs.GetString("receive-output")
	var timestamp_format, _ = fs.GetString("timestamp-format")

	/*
	 * If receive queue directory was specified, make sure that it exists.
	 */
	if receive_output != "" {
		var s, err = os.Stat(receive_output)
		if err != nil {
			fmt.Fprintf(stderr, "Error with receive queue location %s: %s\n", receive_output, err)
			return 1
		}
		if !s.IsDir() {
			fmt.Fprintf(stderr, "Receive queue location, %s, is not a directory.\n", receive_output)
			return 1
		}
	}

	var ts *strftime.Strftime
	if timestamp_format != "" {
		var err error
		ts, err = strftime.New(timestamp_format)
		if err != nil {
			fmt.Fprintf(stderr, "Timestamp format \"%s\": %s\n", timestamp_format, err)
			return 1
		}
	}

	var logger, logCloser, logErr = chatfx.NewLogger(chatfx.LogOptions{
		Level:   "info",
		Verbose: max(settings.Verbose, chatfx.VERBOSE_STDERR),
		Stderr:  stderr,
	})
	if logErr != nil {
		fmt.Fprintf(stderr, "%s\n", logErr)
		return 1
	}
	defer logCloser.Close()

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var link, linkErr = chatfx.ConnectLink(ctx, settings, logger)
	if linkErr != nil {
		fmt.Fprintf(stderr, "Could not connect to TNC: %s\n", linkErr)
		return 1
	}

	var err = monitor(ctx, link, stdout, ts, receive_output)
	if err != nil && !errors.Is(err, chatfx.ErrLinkClosed) {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}

	return 0
}

// Print frames until ctx is done or the TNC goes away.
func monitor(ctx context.Context, link *chatfx.Link, out io.Writer, ts *strftime.Strftime, receive_output string) error {
	var stop = context.AfterFunc(ctx, func() {
		link.Close()
	})
	defer stop()
	defer link.Close()

	for {
		var raw, err = link.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var now = time.Now()

		/* Channel and optional timestamp, like [0] or [0 12:34:56] */
		var prefix = "[0]"
		if ts != nil {
			prefix = fmt.Sprintf("[0 %s]", ts.FormatString(now))
		}

		var line = prefix + " " + chatfx.MonitorLine(raw)
		fmt.Fprintln(out, line)

		if receive_output != "" {
			var path, serr = chatfx.SaveMonitorLine(receive_output, line, now)
			if serr != nil {
				fmt.Fprintln(out, serr)
			} else {
				fmt.Fprintf(out, "Save received frame to %s\n", path)
			}
		}
	}
}
