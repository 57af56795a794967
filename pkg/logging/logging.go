// pkg/logging/logging.go
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats accepted by ConfigureGlobalLogging.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	// logOutput is where the global logger writes. Logs go to stderr so
	// report and summary output on stdout stays machine readable.
	logOutput io.Writer = os.Stderr
)

// stdLogWriter forwards messages from the standard library logger (used by
// some dependencies) into zerolog at debug level.
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug().Str("source", "stdlog").Msg(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

// ConfigureGlobalLogging installs the global zerolog logger for the given
// level and format. Unknown levels fall back to info.
func ConfigureGlobalLogging(levelStr, format string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	w, err := writerFor(format, logOutput)
	if err != nil {
		return err
	}

	logContext := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(&stdLogWriter{logger: log.Logger})
	return nil
}

// ParseLevel converts a level name to zerolog.Level. An empty name is info.
func ParseLevel(levelString string) (zerolog.Level, error) {
	if strings.TrimSpace(levelString) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelString)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", levelString, err)
	}
	return level, nil
}

func writerFor(format string, out io.Writer) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}, nil
	case FormatJSON:
		return out, nil
	default:
		return nil, fmt.Errorf("unknown log format %q (use %s or %s)", format, FormatText, FormatJSON)
	}
}

// SetLogWriter redirects the output of subsequent ConfigureGlobalLogging calls.
func SetLogWriter(w io.Writer) {
	logOutput = w
}

// Component returns a child of parent tagged with component. A nil parent
// means the global logger.
func Component(component string, parent *zerolog.Logger) zerolog.Logger {
	base := log.Logger
	if parent != nil {
		base = *parent
	}
	return base.With().Str("component", component).Logger()
}
