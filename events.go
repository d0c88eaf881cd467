package ocppgw

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// EventType enumerates router lifecycle notifications for the Observer
// pattern.
type EventType string

const (
	// EventReceived fires once an envelope passed admission and, for
	// requests and sends, once its payload parsed.
	EventReceived EventType = "received"
	// EventFiltered fires exactly once per envelope after the forwarding
	// decision is finalized and before it is applied.
	EventFiltered EventType = "filtered"
	// EventSent fires after an outbound envelope was handed to the sender.
	EventSent EventType = "sent"
	// EventDropped fires when an envelope is discarded without any outbound
	// message: admission failure, DROP decision, stale correlation.
	EventDropped EventType = "dropped"
	// EventError reports failures the router swallowed.
	EventError EventType = "error"
)

// EventScope tells whether a notification came from the general pipeline or
// from a per-action handler.
type EventScope string

const (
	ScopeRouter EventScope = "router"
	ScopeAction EventScope = "action"
)

// Event carries telemetry for observers.
type Event struct {
	Type       EventType
	Scope      EventScope
	Kind       MessageKind
	Encoding   Encoding
	Action     string
	RequestID  string
	TrackingID string
	Node       NodeID
	Result     Result
	Reason     string
	Duration   time.Duration
	Err        error

	// attached for async dispatch
	observers []Observer
}

// Observer receives router lifecycle events. Implementations should be
// non-blocking; slow observers only ever delay the async dispatch pool,
// never the routing path.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits router events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("scope", string(e.Scope)),
		xlog.Str("kind", e.Kind.String()),
		xlog.Str("action", e.Action),
		xlog.Str("request_id", e.RequestID),
		xlog.Str("tracking_id", e.TrackingID),
	)
	switch e.Type {
	case EventError:
		ev.Warn().Err(e.Err).Msg("ocppgw event")
	case EventDropped:
		ev.Debug().Str("reason", e.Reason).Msg("ocppgw event")
	case EventFiltered:
		ev.Debug().Str("result", e.Result.String()).Str("reason", e.Reason).Msg("ocppgw event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("ocppgw event")
	}
}
