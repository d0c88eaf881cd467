package ocppgw

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in this package.
type ctxKey string

const (
	loggerCtxKey ctxKey = "ocppgw:logger"
	clockCtxKey  ctxKey = "ocppgw:clock"
)

// withDeps injects the router's logger and clock into the context handed to
// filter subscribers, so policy code can log and measure without its own
// plumbing.
func (r *Router) withDeps(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, loggerCtxKey, r.logger)
	return context.WithValue(ctx, clockCtxKey, r.clock)
}

// LoggerFromContext retrieves the logger injected for filter subscribers.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

// ClockFromContext retrieves the clock injected for filter subscribers.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}
