package pegasus

import "testing"

func TestLogLevelString(t *testing.T) {
	cases := map[LogLevel]string{
		LogLevelNone:  "NONE",
		LogLevelError: "ERROR",
		LogLevelWarn:  "WARN",
		LogLevelInfo:  "INFO",
		LogLevelDebug: "DEBUG",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}

type recordingLogger struct {
	calls []string
}

func (r *recordingLogger) Log(level LogLevel, msg string, keyvals ...interface{}) {
	r.calls = append(r.calls, level.String()+": "+msg)
}

func TestWithLoggerInjectsSink(t *testing.T) {
	rec := &recordingLogger{}
	c := defaultCfg()
	WithLogger(rec).apply(&c)

	c.logger.Log(LogLevelWarn, "session died", "endpoint", "p1:1")
	if len(rec.calls) != 1 || rec.calls[0] != "WARN: session died" {
		t.Errorf("got calls=%v, want exactly one WARN: session died", rec.calls)
	}
}
