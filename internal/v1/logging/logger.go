package logging

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	RemoteAddrKey    contextKey = "remote_addr"
	PlayerNameKey    contextKey = "player_name"
	RoomIDKey        contextKey = "room_id"
)

// Config selects the active sinks. Each sink has its own level; a sink
// with its enable flag off is simply absent from the tee.
type Config struct {
	EnableConsoleLog bool
	ConsoleLogLevel  zapcore.Level
	EnableFileLog    bool
	FileLogLevel     zapcore.Level
	FileLogPath      string
}

// ParseLevel maps the configuration level names onto zap levels. The
// accepted names are debug, info, warning, error and fatal.
func ParseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Initialize sets up the global logger from the configured sinks. It is a
// no-op after the first call.
func Initialize(cfg Config) error {
	var err error
	once.Do(func() {
		logger, err = buildLogger(cfg)
	})
	return err
}

// buildLogger assembles a tee of the enabled sinks: a console-encoded
// stdout core and a JSON file core. With no sink enabled the logger is a
// no-op. All zap cores are safe for concurrent use and write best-effort.
func buildLogger(cfg Config) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.EnableConsoleLog {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), cfg.ConsoleLogLevel))
	}
	if cfg.EnableFileLog {
		file, err := os.OpenFile(cfg.FileLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.Lock(file), cfg.FileLogLevel))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCallerSkip(1), zap.AddCaller()), nil
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback specific for tests or before init
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// Debug logs a message at DebugLevel
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, appendContextFields(ctx, fields)...)
}

// Info logs a message at InfoLevel
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

// Warn logs a message at WarnLevel
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

// Error logs a message at ErrorLevel
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

// Fatal logs a message at FatalLevel
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

// appendContextFields adds whatever session facts the context carries.
func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}

	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if addr, ok := ctx.Value(RemoteAddrKey).(string); ok {
		fields = append(fields, zap.String("remote_addr", addr))
	}
	if name, ok := ctx.Value(PlayerNameKey).(string); ok {
		fields = append(fields, zap.String("player_name", name))
	}
	if rid, ok := ctx.Value(RoomIDKey).(string); ok {
		fields = append(fields, zap.String("room_id", rid))
	}

	// Default service name
	fields = append(fields, zap.String("service", "pmms"))

	return fields
}
