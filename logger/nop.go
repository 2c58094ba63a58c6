package logger

type nopLogger struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (l nopLogger) With(...Field) Logger { return l }
func (nopLogger) Sync() error            { return nil }
