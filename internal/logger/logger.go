package logger

import (
	"flag"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable name for log level configuration.
const envLogLevel = "RTMP_LOG_LEVEL"

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	global      *Entry
	initOnce    sync.Once
	mu          sync.Mutex

	// Optional flag (users may pass -log.level=debug). If flags.Parse() hasn't
	// yet been called when Init is invoked, we still read the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// Entry wraps a zap.SugaredLogger so every call site can pass alternating
// key/value pairs the way the rest of this module already does (mirrors the
// slog.Logger calling convention this package replaces).
type Entry struct {
	s *zap.SugaredLogger
}

func (l *Entry) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Entry) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Entry) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Entry) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// With returns a child Entry carrying the given alternating key/value pairs
// on every subsequent call.
func (l *Entry) With(kv ...any) *Entry {
	return &Entry{s: l.s.With(kv...)}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func newLogger(w io.Writer) *Entry {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), atomicLevel)
	return &Entry{s: zap.New(core).Sugar()}
}

// Init initializes the global logger. Safe to call multiple times; only the
// first call sets the initial level (SetLevel/UseWriter mutate afterward).
func Init() {
	initOnce.Do(func() {
		atomicLevel.SetLevel(detectLevel())
		mu.Lock()
		global = newLogger(os.Stdout)
		mu.Unlock()
	})
}

// detectLevel resolves the initial log level from (precedence high→low):
//  1. command-line flag -log.level
//  2. environment variable RTMP_LOG_LEVEL
//  3. default (info)
func detectLevel() zapcore.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if lvl, ok := parseLevel(strings.TrimSpace(*flagLevel)); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zapcore.InfoLevel
}

// parseLevel converts a string to a zapcore.Level.
func parseLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error", "err":
		return zapcore.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return &invalidLevelError{level: level}
	}
	atomicLevel.SetLevel(lvl)
	return nil
}

type invalidLevelError struct{ level string }

func (e *invalidLevelError) Error() string { return "invalid log level: " + e.level }

// Level returns the current runtime level as an upper-case string.
func Level() string {
	Init()
	return atomicLevel.Level().CapitalString()
}

// UseWriter swaps the output writer (intended for tests). Retains current level.
func UseWriter(w io.Writer) {
	Init()
	mu.Lock()
	global = newLogger(w)
	mu.Unlock()
}

// Discard returns a standalone Entry that writes to io.Discard, for tests
// that need a logger but don't care about its output.
func Discard() *Entry {
	return newLogger(io.Discard)
}

// New returns a standalone Entry writing JSON lines to w at the package's
// current runtime level, independent of the global Logger().
func New(w io.Writer) *Entry {
	Init()
	return newLogger(w)
}

// Logger returns the global logger (ensures Init was called).
func Logger() *Entry {
	Init()
	mu.Lock()
	defer mu.Unlock()
	return global
}

func Debug(msg string, kv ...any) { Logger().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Logger().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Logger().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Logger().Error(msg, kv...) }

// WithConn attaches connection identity fields.
func WithConn(l *Entry, connID, peerAddr string) *Entry {
	return l.With("conn_id", connID, "peer_addr", peerAddr)
}

// WithStream attaches the stream key.
func WithStream(l *Entry, streamKey string) *Entry {
	return l.With("stream_key", streamKey)
}

// WithMessageMeta attaches message metadata fields. ts is the RTMP message
// timestamp in milliseconds.
func WithMessageMeta(l *Entry, msgType string, csid int, msid uint32, ts uint32) *Entry {
	return l.With("msg_type", msgType, "csid", csid, "msid", msid, "timestamp", ts)
}
