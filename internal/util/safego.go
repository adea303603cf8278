// safego.go — Panic-recovering goroutine launcher.
package util

import (
	"go.uber.org/zap"
)

// SafeGo launches fn in a goroutine with deferred panic recovery.
// On panic: logs the value and stack. Does NOT exit — background
// panics should be survivable so the daemon stays up.
func SafeGo(logger *zap.Logger, fn func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in background goroutine", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		fn()
	}()
}

// Recover runs fn and converts a panic into ok=false. Used at ingestion
// boundaries so one bad item never aborts its batch.
func Recover(logger *zap.Logger, what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Warn("recovered panic", zap.String("op", what), zap.Any("panic", r))
			}
			ok = false
		}
	}()
	fn()
	return true
}
