package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for chatfx, a keyboard to keyboard chat
 *		client for AX.25 packet radio using a KISS TNC.
 *
 * Description:	Type "<callsign> <message>" to send.  Received messages
 *		for us are shown as they arrive and acknowledged.
 *
 *		On a terminal this is a full screen interface.  With
 *		input or output redirected, or --line-mode, it reads
 *		lines from stdin and writes lines to stdout.
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

	"github.com/charmbracelet/log"
	chatfx "github.com/doismellburning/chatfx/src"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(fs *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "chatfx - Chat client for AX.25 packet radio networks.\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Usage: chatfx [options]\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Once running, type a callsign, a space, and your message.\n")
	fmt.Fprintf(w, "/help lists the other commands.\n")
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	var fs = chatfx.NewFlagSet("chatfx")
	fs.SetOutput(io.Discard)

	var parseErr = fs.Parse(args)
	if parseErr != nil {
		fmt.Fprintf(stderr, "%s\n\n", parseErr)
		usage(fs, stderr)
		return 2
	}

	if help, _ := fs.GetBool("help"); help {
		usage(fs, stdout)
		return 0
	}

	if version, _ := fs.GetBool("version"); version {
		var verbose, _ = fs.GetCount("verbose")
		chatfx.PrintVersion(stdout, verbose > 0)
		return 0
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Unexpected argument \"%s\".\n\n", fs.Arg(0))
		usage(fs, stderr)
		return 2
	}

	var settings, settingsErr = chatfx.LoadSettings(fs)
	if settingsErr != nil {
		fmt.Fprintf(stderr, "%s\n", settingsErr)
		return 1
	}

	var lineMode = settings.LineMode || !is_terminal(stdin) || !is_terminal(stdout)

	var logOpts = settings.LogOptions()
	logOpts.Stderr = stderr
	if !lineMode {
		/* The screen belongs to the chat window. */
		logOpts.Stderr = io.Discard
	}

	var logger, logCloser, logErr = chatfx.NewLogger(logOpts)
	if logErr != nil {
		fmt.Fprintf(stderr, "%s\n", logErr)
		return 1
	}
	defer logCloser.Close()

	logger.Debug("Starting chat client", "settings_file", settings.SettingsFile, "callsign", settings.Callsign,
		"time_delay", settings.TimeDelay, "verbose", settings.Verbose, "line_mode", lineMode)

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.Discover && settings.SerialDevice == "" {
		if err := discover(ctx, settings, logger, stderr); err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return 1
		}
	}

	var link, linkErr = chatfx.ConnectLink(ctx, settings, logger)
	if linkErr != nil {
		logger.Error("Could not connect to TNC", "err", linkErr)
		fmt.Fprintf(stderr, "Could not connect to TNC: %s\n", linkErr)
		return 1
	}

	var session, sessionErr = chatfx.NewSession(settings.Config, link,
		chatfx.WithLogger(logger),
		chatfx.WithCompression(settings.Compression),
		chatfx.WithColors(settings.Colors))
	if sessionErr != nil {
		link.Close()
		fmt.Fprintf(stderr, "%s\n", sessionErr)
		return 1
	}

	var fmtr, fmtErr = new_formatter(settings.TimestampFormat, session.Callsign())
	if fmtErr != nil {
		link.Close()
		fmt.Fprintf(stderr, "%s\n", fmtErr)
		return 1
	}

	var uiErr error
	if lineMode {
		uiErr = run_lines(ctx, session, fmtr, stdin, stdout)
	} else {
		uiErr = run_tui(ctx, session, fmtr)
	}

	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		logger.Error("Chat ended", "err", uiErr)
		fmt.Fprintf(stderr, "%s\n", uiErr)
		return 1
	}

	return 0
}

func is_terminal(f any) bool {
	var fd, ok = f.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(fd.Fd()))
}

// Replace host and port with the first TNC found on the local network.
func discover(ctx context.Context, settings *chatfx.Settings, logger *log.Logger, w io.Writer) error {
	fmt.Fprintf(w, "Looking for KISS TNCs on the local network...\n")

	var found, err = chatfx.DiscoverTNC(ctx, 0)
	if err != nil {
		return fmt.Errorf("DNS-SD discovery: %w", err)
	}
	if len(found) == 0 {
		return errors.New("no KISS TNC found on the local network")
	}

	for _, d := range found {
		logger.Info("Found TNC", "name", d.Name, "address", d.Address())
	}

	fmt.Fprintf(w, "Using %s at %s\n", found[0].Name, found[0].Address())
	settings.Host = found[0].Host
	settings.Port = found[0].Port

	return nil
}
