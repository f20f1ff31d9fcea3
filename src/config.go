package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:	Settings for the chat client.
 *
 * Description:	Each setting can come from, lowest priority first:
 *
 *		* The built in default.
 *
 *		* The settings file, $XDG_CONFIG_HOME/chatfx/settings.toml
 *		  unless -s says otherwise.  TOML or YAML, going by the
 *		  file extension.  For example:
 *
 *			callsign = "N0CALL"
 *			host = "localhost"
 *			port = 8001
 *			time_delay = 2
 *			log_file = "chatfx.log"
 *			log_level = "info"
 *			log_append = false
 *			verbose = 0
 *
 *			[colors]
 *			W1AW = "yellow"
 *
 *		* The command line.
 *
 *		The default settings file may be missing.  One named with -s
 *		must exist.
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DEFAULT_TIME_DELAY = 2 * time.Second

const DEFAULT_TIMESTAMP_FORMAT = "%m/%d/%y %H:%M:%S"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is what a session needs to run.
type Config struct {
	Callsign  Callsign      /* Ours. */
	Host      string        /* KISS TNC host. */
	Port      int           /* KISS TNC TCP port. */
	TimeDelay time.Duration /* Minimum spacing between transmissions. */
}

func DefaultConfig() Config {
	return Config{
		Host:      DEFAULT_KISS_HOST,
		Port:      DEFAULT_KISS_PORT,
		TimeDelay: DEFAULT_TIME_DELAY,
	}
}

func (c Config) Validate() error {
	if c.Callsign.IsZero() {
		return fmt.Errorf("%w: a callsign is required", ErrInvalidConfig)
	}
	if !c.Callsign.Valid() {
		return fmt.Errorf("%w: callsign \"%s\"", ErrInvalidConfig, c.Callsign)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d not in range of 1 to 65535", ErrInvalidConfig, c.Port)
	}
	if c.TimeDelay < 0 {
		return fmt.Errorf("%w: time delay %s is negative", ErrInvalidConfig, c.TimeDelay)
	}
	return nil
}

// Settings is everything the program can be told.
type Settings struct {
	Config

	Colors          ColorMap
	ColorsFile      string
	SettingsFile    string /* The one actually read, empty if none. */
	LogFile         string
	LogLevel        string
	LogAppend       bool
	Verbose         int
	TimestampFormat string
	SerialDevice    string /* Use this instead of TCP if set. */
	SerialSpeed     int
	Discover        bool
	Compression     CompressionKind
	LineMode        bool
}

func (s *Settings) LogOptions() LogOptions {
	return LogOptions{
		File:    s.LogFile,
		Append:  s.LogAppend,
		Level:   s.LogLevel,
		Verbose: s.Verbose,
	}
}

/*------------------------------------------------------------------
 *
 * Function:	NewFlagSet
 *
 * Purpose:	Define the command line options.
 *
 *		Defaults shown here are for the help text.  The real defaults
 *		are in settings_defaults so a settings file can override them.
 *
 *------------------------------------------------------------------*/

func NewFlagSet(name string) *pflag.FlagSet {
	var fs = pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP("callsign", "c", "", "Your callsign.")
	fs.StringP("kiss-host", "k", DEFAULT_KISS_HOST, "The KISS TNC host.")
	fs.IntP("port", "p", DEFAULT_KISS_PORT, "The TCP port on the KISS TNC host.")
	fs.StringP("time-delay", "t", "2", "Time delay between transmissions, in seconds or as a duration like 1500ms.")
	fs.StringP("settings-file", "s", "", "Settings file. default=$XDG_CONFIG_HOME/chatfx/settings.toml")
	fs.String("log-file", DEFAULT_LOG_FILE, "Log file to write to.")
	fs.String("log-level", DEFAULT_LOG_LEVEL, "Log level for file output: debug, info, warning, error, critical.")
	fs.Bool("log-append", false, "Append to log file instead of starting over.")
	fs.CountP("verbose", "v", "More output.  Can be used up to 3 times.")
	fs.StringP("timestamp-format", "T", DEFAULT_TIMESTAMP_FORMAT, "strftime format for message times.")
	fs.StringP("serial-device", "S", "", "Serial port of a KISS TNC, instead of TCP.")
	fs.IntP("serial-speed", "b", DEFAULT_SERIAL_SPEED, "Serial port speed.")
	fs.String("colors-file", "", "YAML or JSON file mapping callsigns to colours.")
	fs.Bool("discover", false, "Look for a KISS TNC on the local network with DNS-SD.")
	fs.Bool("no-compress", false, "Send message text without smaz compression.")
	fs.Bool("line-mode", false, "Plain line input and output, even on a terminal.")
	fs.BoolP("version", "V", false, "Print version and exit.")
	fs.BoolP("help", "h", false, "Display help text.")

	return fs
}

// Settings file key for each flag.  Flags not listed have no file equivalent.
var settings_flag_keys = map[string]string{
	"callsign":         "callsign",
	"kiss-host":        "host",
	"port":             "port",
	"time-delay":       "time_delay",
	"log-file":         "log_file",
	"log-level":        "log_level",
	"log-append":       "log_append",
	"verbose":          "verbose",
	"timestamp-format": "timestamp_format",
	"serial-device":    "serial_device",
	"serial-speed":     "serial_speed",
	"colors-file":      "colors_file",
	"discover":         "discover",
	"no-compress":      "no_compress",
	"line-mode":        "line_mode",
}

func settings_defaults(v *viper.Viper) {
	v.SetDefault("host", DEFAULT_KISS_HOST)
	v.SetDefault("port", DEFAULT_KISS_PORT)
	v.SetDefault("time_delay", DEFAULT_TIME_DELAY.Seconds())
	v.SetDefault("log_file", DEFAULT_LOG_FILE)
	v.SetDefault("log_level", DEFAULT_LOG_LEVEL)
	v.SetDefault("log_append", false)
	v.SetDefault("verbose", 0)
	v.SetDefault("timestamp_format", DEFAULT_TIMESTAMP_FORMAT)
	v.SetDefault("serial_speed", DEFAULT_SERIAL_SPEED)
}

// DefaultSettingsFile is $XDG_CONFIG_HOME/chatfx/settings.toml, or
// ~/.config/chatfx/settings.toml without XDG_CONFIG_HOME.
func DefaultSettingsFile() string {
	var base = os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		var home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chatfx", "settings.toml")
}

/*------------------------------------------------------------------
 *
 * Function:	LoadSettings
 *
 * Purpose:	Combine defaults, settings file and command line.
 *
 * Inputs:	fs	- From NewFlagSet, already parsed.
 *
 * Returns:	Settings, validated.  Errors wrap ErrInvalidConfig
 *		unless the settings or colours file couldn't be read.
 *
 *------------------------------------------------------------------*/

func LoadSettings(fs *pflag.FlagSet) (*Settings, error) {
	var v = viper.New()

	settings_defaults(v)

	var path, _ = fs.GetString("settings-file")
	var user_provided = path != ""
	if !user_provided {
		path = DefaultSettingsFile()
	}

	var used_file = ""
	if path != "" {
		var _, statErr = os.Stat(path)
		switch {
		case statErr == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("settings file %s is corrupted: %w", path, err)
			}
			used_file = path
		case user_provided:
			return nil, fmt.Errorf("settings file %s: %w", path, statErr)
		}
	}

	for flag, key := range settings_flag_keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var s = &Settings{
		Config: Config{
			Host: v.GetString("host"),
			Port: v.GetInt("port"),
		},
		SettingsFile:    used_file,
		ColorsFile:      v.GetString("colors_file"),
		LogFile:         v.GetString("log_file"),
		LogLevel:        v.GetString("log_level"),
		LogAppend:       v.GetBool("log_append"),
		Verbose:         v.GetInt("verbose"),
		TimestampFormat: v.GetString("timestamp_format"),
		SerialDevice:    v.GetString("serial_device"),
		SerialSpeed:     v.GetInt("serial_speed"),
		Discover:        v.GetBool("discover"),
		Compression:     COMPRESSION_SMAZ,
		LineMode:        v.GetBool("line_mode"),
	}

	if v.GetBool("no_compress") {
		s.Compression = COMPRESSION_NONE
	}

	if call := v.GetString("callsign"); call != "" {
		var c, err = ParseCallsign(call)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		s.Callsign = c
	}

	var delay, delayErr = ParseTimeDelay(v.GetString("time_delay"))
	if delayErr != nil {
		return nil, delayErr
	}
	s.TimeDelay = delay

	s.Colors = NewColorMap(v.GetStringMapString("colors"))
	if s.ColorsFile != "" {
		var fromFile, err = LoadColorsFile(s.ColorsFile)
		if err != nil {
			return nil, err
		}
		s.Colors = s.Colors.Merge(fromFile)
	}

	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

/*------------------------------------------------------------------
 *
 * Function:	ParseTimeDelay
 *
 * Purpose:	Accept "2", "0.5" (seconds) or a Go duration "1500ms".
 *
 *------------------------------------------------------------------*/

func ParseTimeDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DEFAULT_TIME_DELAY, nil
	}

	var d time.Duration
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else {
		var parsed, perr = time.ParseDuration(s)
		if perr != nil {
			return 0, fmt.Errorf("%w: time delay \"%s\"", ErrInvalidConfig, s)
		}
		d = parsed
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: time delay %s is negative", ErrInvalidConfig, s)
	}
	return d, nil
}

/* end config.go */
