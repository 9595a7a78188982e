package log

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLogLevel = "PRE_LOG_LEVEL"
	envLogFile  = "PRE_LOG_FILE"
)

var (
	mu      sync.Mutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sink    = new(swapCore)
	loggers = make(map[string]*zap.SugaredLogger)
)

// swapCore lets Setup redirect loggers that were handed out at init time.
type swapCore struct {
	v atomic.Value // holder
}

type holder struct {
	core zapcore.Core
}

func (s *swapCore) store(c zapcore.Core) {
	s.v.Store(holder{core: c})
}

func (s *swapCore) load() zapcore.Core {
	return s.v.Load().(holder).core
}

func (s *swapCore) Enabled(l zapcore.Level) bool { return s.load().Enabled(l) }

func (s *swapCore) With(fields []zapcore.Field) zapcore.Core { return s.load().With(fields) }

func (s *swapCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return s.load().Check(e, ce)
}

func (s *swapCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return s.load().Write(e, fields)
}

func (s *swapCore) Sync() error { return s.load().Sync() }

// Options controls where and how verbose logs are written.
type Options struct {
	Level      string // debug, info, warn, error
	File       string // empty means stderr only
	MaxSize    int    // megabytes per file before rotation
	MaxBackups int
	MaxAge     int // days
}

func init() {
	opts := Options{
		Level:      os.Getenv(envLogLevel),
		File:       os.Getenv(envLogFile),
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
	}
	sink.store(newCore(opts))
}

func newCore(opts Options) zapcore.Core {
	if opts.Level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(strings.ToLower(opts.Level))); err == nil {
			level.SetLevel(l)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level))
	}

	return zapcore.NewTee(cores...)
}

// Setup replaces the sink of every logger, existing ones included.
func Setup(opts Options) {
	sink.store(newCore(opts))
}

// SetLevel changes the level of all loggers.
func SetLevel(l string) error {
	var zl zapcore.Level
	err := zl.UnmarshalText([]byte(strings.ToLower(l)))
	if err != nil {
		return err
	}
	level.SetLevel(zl)
	return nil
}

// Logger returns the named subsystem logger.
func Logger(name string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()

	l, ok := loggers[name]
	if ok {
		return l
	}

	l = build(name)
	loggers[name] = l
	return l
}

func build(name string) *zap.SugaredLogger {
	return zap.New(sink, zap.AddCaller()).Named(name).Sugar()
}
