package ocppgw

import (
	"context"
	"fmt"
)

// ActionRequest couples the parsed, typed request body with the raw envelope
// it rode in on.
type ActionRequest[T any] struct {
	Body T
	Raw  *RequestMessage
}

// ActionSend is the one-way counterpart of ActionRequest.
type ActionSend[T any] struct {
	Body T
	Raw  *SendMessage
}

// ActionFilter applies per-action policy to a parsed request. Returning
// Next() passes the request to the following filter; the first decided
// result wins. An error or panic counts as "no decision from this filter"
// and is reported to the error sink.
type ActionFilter[T any] func(ctx context.Context, req *ActionRequest[T], conn Connection) (ForwardingDecision, error)

// SendActionFilter applies per-action policy to a parsed send-message.
type SendActionFilter[T any] func(ctx context.Context, sm *ActionSend[T], conn Connection) (ForwardingDecision, error)

// ActionConfig declares everything one protocol action contributes to the
// router: how to parse its payload, the policy filters to run, and what to
// do when no filter decides. One RegisterAction call replaces what would
// otherwise be a hand-written handler file per action.
type ActionConfig[T any] struct {
	// Parse overrides codec-driven decoding of the payload. When nil, the
	// payload is unmarshalled with the codec matching the envelope encoding.
	Parse func(e Encoding, payload []byte) (T, error)
	// Filters run in registration order; the first non-NEXT result wins.
	Filters []ActionFilter[T]
	// SendFilters apply when the action arrives as a one-way send-message.
	// When empty, Filters semantics do not apply to sends and the default
	// below governs them directly.
	SendFilters []SendActionFilter[T]
	// Default applies when no filter decided: ResultForward or ResultReject.
	// Leaving it at ResultNext defers to the router-wide default decision.
	Default Result
	// RejectBody synthesizes a failure response for a default REJECT; its
	// encoded form is attached to the error reply as details.
	RejectBody func(body T) any
}

// RegisterAction wires a typed action into the registry. Duplicate names and
// post-freeze registration fail fast; both are startup configuration errors.
func RegisterAction[T any](reg *ActionRegistry, action string, cfg ActionConfig[T]) error {
	if action == "" {
		return fmt.Errorf("ocppgw: action name must not be empty")
	}
	parse := cfg.Parse
	if parse == nil {
		parse = func(e Encoding, payload []byte) (T, error) {
			return DecodePayload[T](e, payload)
		}
	}

	entry := &actionEntry{
		name: action,
		request: func(ctx context.Context, r *Router, req *RequestMessage, conn Connection) ForwardingDecision {
			body, err := parse(req.Encoding, req.Payload)
			if err != nil {
				return Reject(
					fmt.Sprintf("could not parse %s payload: %v", action, err),
					WithRejectCode(CodeFormationViolation),
				)
			}
			r.notify(Event{
				Type:       EventReceived,
				Scope:      ScopeAction,
				Kind:       KindRequest,
				Encoding:   req.Encoding,
				Action:     action,
				RequestID:  req.RequestID,
				TrackingID: req.EventTrackingID,
			})

			ar := &ActionRequest[T]{Body: body, Raw: req}
			d := Next()
			for _, f := range cfg.Filters {
				res, ferr := invokeActionFilter(ctx, f, ar, conn)
				if ferr != nil {
					r.errorSink.HandleError(ctx, "ActionFilter", action, ferr)
					continue
				}
				if res.Decided() {
					d = res
					break
				}
			}
			d = finalizeActionDecision(d, cfg, body)

			r.notify(Event{
				Type:       EventFiltered,
				Scope:      ScopeAction,
				Kind:       KindRequest,
				Encoding:   req.Encoding,
				Action:     action,
				RequestID:  req.RequestID,
				TrackingID: req.EventTrackingID,
				Result:     d.Result(),
			})
			return d
		},
		send: func(ctx context.Context, r *Router, sm *SendMessage, conn Connection) ForwardingDecision {
			body, err := parse(sm.Encoding, sm.Payload)
			if err != nil {
				return Reject(
					fmt.Sprintf("could not parse %s payload: %v", action, err),
					WithRejectCode(CodeFormationViolation),
				)
			}
			r.notify(Event{
				Type:       EventReceived,
				Scope:      ScopeAction,
				Kind:       KindSend,
				Encoding:   sm.Encoding,
				Action:     action,
				RequestID:  sm.MessageID,
				TrackingID: sm.EventTrackingID,
			})

			as := &ActionSend[T]{Body: body, Raw: sm}
			d := Next()
			for _, f := range cfg.SendFilters {
				res, ferr := invokeSendActionFilter(ctx, f, as, conn)
				if ferr != nil {
					r.errorSink.HandleError(ctx, "SendActionFilter", action, ferr)
					continue
				}
				if res.Decided() {
					d = res
					break
				}
			}
			d = finalizeActionDecision(d, cfg, body)

			r.notify(Event{
				Type:       EventFiltered,
				Scope:      ScopeAction,
				Kind:       KindSend,
				Encoding:   sm.Encoding,
				Action:     action,
				RequestID:  sm.MessageID,
				TrackingID: sm.EventTrackingID,
				Result:     d.Result(),
			})
			return d
		},
	}
	return reg.register(entry)
}

// finalizeActionDecision applies the per-action default when no filter fired.
func finalizeActionDecision[T any](d ForwardingDecision, cfg ActionConfig[T], body T) ForwardingDecision {
	if d.Decided() {
		return d
	}
	switch cfg.Default {
	case ResultForward:
		return Forward()
	case ResultReject:
		opts := []DecisionOption{}
		if cfg.RejectBody != nil {
			if details, err := (JSONCodec{}).Marshal(cfg.RejectBody(body)); err == nil {
				opts = append(opts, WithRejectDetails(details))
			}
		}
		return Reject("rejected by default policy", opts...)
	default:
		return d
	}
}

func invokeActionFilter[T any](ctx context.Context, f ActionFilter[T], req *ActionRequest[T], conn Connection) (d ForwardingDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Next()
			err = fmt.Errorf("action filter panic: %v", rec)
		}
	}()
	return f(ctx, req, conn)
}

func invokeSendActionFilter[T any](ctx context.Context, f SendActionFilter[T], sm *ActionSend[T], conn Connection) (d ForwardingDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Next()
			err = fmt.Errorf("send action filter panic: %v", rec)
		}
	}()
	return f(ctx, sm, conn)
}
