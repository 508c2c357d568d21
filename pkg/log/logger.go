package log

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// Only the first line of the stack is needed: "goroutine 123 [running]:".
	minStackBufSize = 32
	// Minimum expected stack trace length for valid goroutine info.
	minStackTraceLen = 12
	// Number of characters to skip: "goroutine " (10 chars).
	goroutinePrefixLen = 10

	consoleTimeFormat = "15:04:05"
	logDirPerm        = 0750
)

var (
	Logger        zerolog.Logger
	goroutinePool sync.Pool

	mu          sync.Mutex
	fileWriter  *lumberjack.Logger
	activeLevel = zerolog.InfoLevel
)

func init() {
	goroutinePool.New = func() interface{} {
		return make([]byte, minStackBufSize)
	}
}

// getGoroutineID extracts the goroutine ID from the first stack line.
func getGoroutineID() string {
	bufInterface := goroutinePool.Get()
	buf, ok := bufInterface.([]byte)
	if !ok {
		return "unknown"
	}
	defer goroutinePool.Put(buf) //nolint:staticcheck // buf is a slice, this is the correct usage

	stackLen := runtime.Stack(buf, false)
	if stackLen < minStackTraceLen {
		return "unknown"
	}

	idx := goroutinePrefixLen
	if idx >= stackLen {
		return "unknown"
	}

	start := idx
	for idx < stackLen && buf[idx] >= '0' && buf[idx] <= '9' {
		idx++
	}

	if idx > start {
		return string(buf[start:idx])
	}
	return "unknown"
}

func init() {
	Logger = build(consoleWriter(), activeLevel)
	log.Logger = Logger
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: consoleTimeFormat,
	}
}

func build(out io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
			e.Str("goid", getGoroutineID())
		}))
}

// Info logs an info message with goroutine ID.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Error logs an error message with goroutine ID.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Warn logs a warning message with goroutine ID.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Debug logs a debug message with goroutine ID.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs a fatal message with goroutine ID and exits.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	mu.Lock()
	defer mu.Unlock()

	activeLevel = zerolog.DebugLevel
	Logger = Logger.Level(activeLevel)
	log.Logger = Logger
}

// SetOutputFile keeps console output and additionally writes JSON lines into a
// size-rotated file at path.
func SetOutputFile(path string, maxSizeMB, maxBackups int) error {
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
	}

	fileWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}

	Logger = build(zerolog.MultiLevelWriter(consoleWriter(), fileWriter), activeLevel)
	log.Logger = Logger
	return nil
}

// Close flushes and closes the rotating file writer, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}
