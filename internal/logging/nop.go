package logging

import "github.com/arloliu/cohort/types"

// NopLogger discards all log messages.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards everything. Fatal does not exit.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(_ string, _ ...any) {}
func (n *NopLogger) Info(_ string, _ ...any)  {}
func (n *NopLogger) Warn(_ string, _ ...any)  {}
func (n *NopLogger) Error(_ string, _ ...any) {}
func (n *NopLogger) Fatal(_ string, _ ...any) {}

// OrNop returns logger, or a NopLogger when logger is nil.
func OrNop(logger types.Logger) types.Logger {
	if logger == nil {
		return NewNop()
	}

	return logger
}
