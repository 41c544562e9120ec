package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Only the "goroutine N [" prefix of the stack is needed.
	stackBufSize = 32
	// Shortest stack header that can still carry a goroutine id.
	minStackHeaderLen = 12
	// len("goroutine ").
	goroutinePrefixLen = 10
)

var (
	Logger    zerolog.Logger
	stackPool = sync.Pool{New: func() interface{} { return make([]byte, stackBufSize) }}
)

func goroutineID() string {
	buf, ok := stackPool.Get().([]byte)
	if !ok {
		return "unknown"
	}
	defer stackPool.Put(buf) //nolint:staticcheck // small fixed-size slice

	n := runtime.Stack(buf, false)
	if n < minStackHeaderLen {
		return "unknown"
	}

	end := goroutinePrefixLen
	for end < n && buf[end] >= '0' && buf[end] <= '9' {
		end++
	}
	if end == goroutinePrefixLen {
		return "unknown"
	}
	return string(buf[goroutinePrefixLen:end])
}

func newLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			e.Str("goid", goroutineID())
		}))
}

func init() {
	Logger = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, zerolog.InfoLevel)
	log.Logger = Logger
}

// Info starts an info level event.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Error starts an error level event.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Warn starts a warning level event.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Debug starts a debug level event.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal starts a fatal event; Msg exits the process.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	Logger = Logger.Level(zerolog.DebugLevel)
	log.Logger = Logger
}

// SetLevel applies a textual level such as "debug" or "warn".
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	Logger = Logger.Level(parsed)
	log.Logger = Logger
	return nil
}

// Bytes renders a byte count for log fields. Negative sizes are unknown.
func Bytes(size int64) string {
	if size < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(size))
}
