package fade

// Logger is the logging surface the store, reconciler, monitor and tracker
// write to. Args are slog-style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger drops everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(msg string, args ...any) {}
func (*NopLogger) Info(msg string, args ...any)  {}
func (*NopLogger) Warn(msg string, args ...any)  {}
func (*NopLogger) Error(msg string, args ...any) {}
