package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:	Diagnostic log for the chat client.
 *
 * Description: The terminal belongs to the chat window, so log output
 *		normally goes only to a file.  With -v it is also written
 *		to stderr, which is only useful in line mode.
 *
 *		-v	also log to stderr.
 *		-vv	and force debug level.
 *		-vvv	and hex dump every frame to and from the TNC.
 *
 *		The file is rotated when it gets big.  Unless asked to
 *		append, it starts empty for each run.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DEFAULT_LOG_FILE = "chatfx.log"
const DEFAULT_LOG_LEVEL = "info"

const LOG_MAX_SIZE_MB = 10
const LOG_MAX_BACKUPS = 3

const VERBOSE_STDERR = 1
const VERBOSE_DEBUG = 2
const VERBOSE_HEXDUMP = 3

type LogOptions struct {
	File    string    /* Empty for no log file. */
	Append  bool      /* Keep what is already in File. */
	Level   string    /* debug, info, warn, error, fatal. */
	Verbose int       /* Number of -v options. */
	Stderr  io.Writer /* Where -v output goes.  nil means os.Stderr. */
}

/*------------------------------------------------------------------
 *
 * Function:	ParseLogLevel
 *
 * Purpose:	Convert level name to charmbracelet/log level.
 *		warning, critical and notset are accepted too.
 *		Older settings files use them.
 *
 *------------------------------------------------------------------*/

func ParseLogLevel(name string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "notset":
		return log.DebugLevel, nil
	case "warning":
		return log.WarnLevel, nil
	case "critical":
		return log.FatalLevel, nil
	}

	var level, err = log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return 0, fmt.Errorf("%w: log level \"%s\"", ErrInvalidConfig, name)
	}
	return level, nil
}

// NewLogger returns the logger and something to close when done.
func NewLogger(opts LogOptions) (*log.Logger, io.Closer, error) {
	var level, levelErr = ParseLogLevel(opts.Level)
	if levelErr != nil {
		return nil, nil, levelErr
	}
	if opts.Verbose >= VERBOSE_DEBUG {
		level = log.DebugLevel
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if !opts.Append {
			var f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("log file: %w", err)
			}
			f.Close()
		}

		var lj = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    LOG_MAX_SIZE_MB,
			MaxBackups: LOG_MAX_BACKUPS,
		}
		writers = append(writers, lj)
		closer = lj
	}

	if opts.Verbose >= VERBOSE_STDERR {
		var stderr = opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	var w = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	var logger = log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "chatfx",
	})

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

/* end log.go */
