package helper

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig selects level and encoding of the application logger.
type LoggerConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
	Output io.Writer
}

var (
	baseLogger *zap.SugaredLogger
	baseMu     sync.RWMutex
)

// InitLogger replaces the process-wide zap logger used by every Logger.
func InitLogger(cfg LoggerConfig) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)

	baseMu.Lock()
	baseLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	baseMu.Unlock()
}

func sugar() *zap.SugaredLogger {
	baseMu.RLock()
	l := baseLogger
	baseMu.RUnlock()
	if l != nil {
		return l
	}
	InitLogger(LoggerConfig{})
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger
}

// SyncLogger flushes buffered entries.
func SyncLogger() {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

// Logger tags every message with a component prefix.
type Logger struct {
	prefix string
}

func NewLogger(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) with() *zap.SugaredLogger {
	if l.prefix == "" {
		return sugar()
	}
	return sugar().With("component", l.prefix)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.with().Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.with().Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.with().Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.with().Errorf(format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.with().Fatalf(format, args...)
}

// Data logs a structured value under a title, keyed fields for maps.
func (l *Logger) Data(title string, data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		kv := make([]interface{}, 0, len(v)*2)
		for key, value := range v {
			kv = append(kv, key, value)
		}
		l.with().Infow(title, kv...)
	default:
		l.with().Infow(title, "data", fmt.Sprintf("%+v", data))
	}
}

var AppLogger = NewLogger("CARDPAY")

func Debug(format string, args ...interface{}) {
	AppLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	AppLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	AppLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	AppLogger.Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	AppLogger.Fatal(format, args...)
}

func Data(title string, data interface{}) {
	AppLogger.Data(title, data)
}
