package ocppgw

import (
	"context"
	"errors"
	"fmt"

	"github.com/trickstertwo/xlog"
)

var (
	// ErrRouterClosed is returned by Process* calls after Close.
	ErrRouterClosed = errors.New("ocppgw: router closed")
	// ErrNoSenderConfigured is returned by the builder when no outbound
	// sender was supplied.
	ErrNoSenderConfigured = errors.New("ocppgw: no sender configured")
	// ErrRegistryFrozen rejects registrations after the registry froze.
	ErrRegistryFrozen = errors.New("ocppgw: action registry frozen")
	// ErrObserverPoolShutdownTimeout signals that pool workers did not drain
	// within the close timeout.
	ErrObserverPoolShutdownTimeout = errors.New("ocppgw: observer pool shutdown timeout")
)

// ErrDuplicateAction is the startup-time failure for registering the same
// action name twice.
type ErrDuplicateAction struct{ Action string }

func (e ErrDuplicateAction) Error() string {
	return fmt.Sprintf("ocppgw: action %q already registered", e.Action)
}

// ErrUnknownSender names a sender adapter that was never registered.
type ErrUnknownSender struct{ Name string }

func (e ErrUnknownSender) Error() string { return fmt.Sprintf("ocppgw: unknown sender: %s", e.Name) }

// ErrorSink receives failures the router swallows: filter panics, parse
// errors reported out of band, downstream send errors. Implementations must
// not block and must never panic back into the router.
type ErrorSink interface {
	HandleError(ctx context.Context, component, operation string, err error)
}

// ErrorSinkFunc adapts a plain function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, component, operation string, err error)

func (f ErrorSinkFunc) HandleError(ctx context.Context, component, operation string, err error) {
	f(ctx, component, operation, err)
}

// loggingErrorSink is the default sink, reporting through xlog.
type loggingErrorSink struct {
	logger *xlog.Logger
}

func (s loggingErrorSink) HandleError(_ context.Context, component, operation string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Warn().
		Str("component", component).
		Str("operation", operation).
		Err(err).
		Msg("ocppgw error")
}
