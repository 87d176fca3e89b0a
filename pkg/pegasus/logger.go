package pegasus

import "go.uber.org/zap"

// LogLevel mirrors the teacher's leveled-logging call sites
// (cfg.logger.Log(LogLevelDebug, "msg", "key", val, ...)).
type LogLevel int8

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "NONE"
	}
}

// Logger is the narrow sink contract the core logs through. This is the
// "logging sink" external collaborator from spec §1/SPEC_FULL component
// 11: the core never reaches for a global logger, it only calls through
// whatever was injected at construction.
type Logger interface {
	Log(level LogLevel, msg string, keyvals ...interface{})
}

// nopLogger discards everything; used when no Logger option is given.
type nopLogger struct{}

func (nopLogger) Log(LogLevel, string, ...interface{}) {}

// zapLogger adapts a *zap.Logger (SPEC_FULL component 11) to the Logger
// interface, translating the level + loose keyvals call shape into
// zap's structured fields.
type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger wraps an existing *zap.Logger as a pegasus.Logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

// NewDefaultLogger returns the client's out-of-the-box Logger: a
// production zap.Logger logging at info level and above.
func NewDefaultLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return nopLogger{}
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) Log(level LogLevel, msg string, keyvals ...interface{}) {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case LogLevelDebug:
		l.z.Debug(msg, fields...)
	case LogLevelInfo:
		l.z.Info(msg, fields...)
	case LogLevelWarn:
		l.z.Warn(msg, fields...)
	case LogLevelError:
		l.z.Error(msg, fields...)
	}
}
