package runtime

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/handle"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger used by Contexts created without
// WithLogger. It is a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package logger. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}

func handleField(key string, h handle.Handle) zap.Field {
	return zap.Stringer(key, h)
}
