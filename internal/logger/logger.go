package logger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of the process-wide base logger.
type Config struct {
	Level  string
	Format string // json or console
}

// callerSkip drops the write frame and the exported method that called it,
// so the reported caller is the code that logged.
const callerSkip = 2

const backgroundID = "xxxxxxxx"

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

// Init builds the base zap logger every component logger writes through.
func Init(cfg Config) error {
	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.Sampling = nil

	z, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("build zap logger: %w", err)
	}
	SetBase(z)
	return nil
}

// SetBase replaces the base logger. Tests use it with zaptest/observer.
func SetBase(z *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = z.WithOptions(zap.AddCallerSkip(callerSkip))
}

// Sync flushes the base logger.
func Sync() error {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base.Sync()
}

func current() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides structured logging across the application
type Logger struct {
	component string
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// GenerateID creates a short unique identifier for request/operation tracing
func GenerateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func (l *Logger) write(id string, level zapcore.Level, message string, args []interface{}) {
	z := current()
	if ce := z.Check(level, fmt.Sprintf(message, args...)); ce != nil {
		ce.Write(zap.String("component", l.component), zap.String("op", id))
	}
}

// Log writes a message tagged with the component and operation id.
func (l *Logger) Log(id string, level zapcore.Level, message string, args ...interface{}) {
	l.write(id, level, message, args)
}

// Debug logs debug level messages
func (l *Logger) Debug(id, message string, args ...interface{}) {
	l.write(id, zapcore.DebugLevel, message, args)
}

// Info logs info level messages
func (l *Logger) Info(id, message string, args ...interface{}) {
	l.write(id, zapcore.InfoLevel, message, args)
}

// Warn logs warning level messages
func (l *Logger) Warn(id, message string, args ...interface{}) {
	l.write(id, zapcore.WarnLevel, message, args)
}

// Error logs error level messages
func (l *Logger) Error(id, message string, args ...interface{}) {
	l.write(id, zapcore.ErrorLevel, message, args)
}

// LogWithoutID logs without an ID (for background operations)
func (l *Logger) LogWithoutID(level zapcore.Level, message string, args ...interface{}) {
	l.write(backgroundID, level, message, args)
}

// DebugBg logs debug messages for background operations
func (l *Logger) DebugBg(message string, args ...interface{}) {
	l.write(backgroundID, zapcore.DebugLevel, message, args)
}

// InfoBg logs info messages for background operations
func (l *Logger) InfoBg(message string, args ...interface{}) {
	l.write(backgroundID, zapcore.InfoLevel, message, args)
}

// WarnBg logs warning messages for background operations
func (l *Logger) WarnBg(message string, args ...interface{}) {
	l.write(backgroundID, zapcore.WarnLevel, message, args)
}

// ErrorBg logs error messages for background operations
func (l *Logger) ErrorBg(message string, args ...interface{}) {
	l.write(backgroundID, zapcore.ErrorLevel, message, args)
}
