package ocppgw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Router is the forwarding core: every inbound envelope runs through the
// admission check, the filter pipeline and exactly one applied decision.
// Process calls are safe under arbitrary concurrent interleaving; the
// pending store and the frozen action registry are the only shared state.
type Router struct {
	cfg      compiled
	sender   Sender
	registry *ActionRegistry
	pending  PendingStore

	clock     xclock.Clock
	logger    *xlog.Logger
	errorSink ErrorSink

	requestFilters  []RequestFilter
	responseFilters []ResponseFilter
	sendFilters     []SendFilter

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	metrics   routerMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// NodeID returns this router's own node id.
func (r *Router) NodeID() NodeID { return r.cfg.nodeID }

// Pending exposes the pending store for diagnostics.
func (r *Router) Pending() PendingStore { return r.pending }

// ForwardedNodeID reports which node a forwarded request will be answered
// to, without consuming the pending entry.
func (r *Router) ForwardedNodeID(ctx context.Context, requestID string) (NodeID, bool) {
	e, ok, err := r.pending.Peek(ctx, requestID)
	if err != nil {
		r.errorSink.HandleError(ctx, "PendingStore", "Peek", err)
		return Zero, false
	}
	if !ok {
		return Zero, false
	}
	return e.Source, true
}

// ProcessJSONRequest routes one inbound JSON request envelope.
func (r *Router) ProcessJSONRequest(ctx context.Context, req *RequestMessage, conn Connection) error {
	return r.processRequest(ctx, EncodingJSON, req, conn)
}

// ProcessBinaryRequest routes one inbound binary request envelope.
func (r *Router) ProcessBinaryRequest(ctx context.Context, req *RequestMessage, conn Connection) error {
	return r.processRequest(ctx, EncodingBinary, req, conn)
}

// ProcessJSONResponse routes one inbound JSON response envelope.
func (r *Router) ProcessJSONResponse(ctx context.Context, resp *ResponseMessage, conn Connection) error {
	return r.processResponse(ctx, EncodingJSON, resp, conn)
}

// ProcessBinaryResponse routes one inbound binary response envelope.
func (r *Router) ProcessBinaryResponse(ctx context.Context, resp *ResponseMessage, conn Connection) error {
	return r.processResponse(ctx, EncodingBinary, resp, conn)
}

// ProcessJSONRequestError routes one inbound JSON request-error envelope.
func (r *Router) ProcessJSONRequestError(ctx context.Context, em *ErrorMessage, conn Connection) error {
	em.Kind = RequestError
	return r.processError(ctx, EncodingJSON, em, conn)
}

// ProcessBinaryRequestError routes one inbound binary request-error envelope.
func (r *Router) ProcessBinaryRequestError(ctx context.Context, em *ErrorMessage, conn Connection) error {
	em.Kind = RequestError
	return r.processError(ctx, EncodingBinary, em, conn)
}

// ProcessJSONResponseError routes one inbound JSON response-error envelope.
func (r *Router) ProcessJSONResponseError(ctx context.Context, em *ErrorMessage, conn Connection) error {
	em.Kind = ResponseError
	return r.processError(ctx, EncodingJSON, em, conn)
}

// ProcessBinaryResponseError routes one inbound binary response-error envelope.
func (r *Router) ProcessBinaryResponseError(ctx context.Context, em *ErrorMessage, conn Connection) error {
	em.Kind = ResponseError
	return r.processError(ctx, EncodingBinary, em, conn)
}

// ProcessJSONSendMessage routes one inbound one-way JSON send-message.
func (r *Router) ProcessJSONSendMessage(ctx context.Context, sm *SendMessage, conn Connection) error {
	return r.processSend(ctx, EncodingJSON, sm, conn)
}

// ProcessBinarySendMessage routes one inbound one-way binary send-message.
func (r *Router) ProcessBinarySendMessage(ctx context.Context, sm *SendMessage, conn Connection) error {
	return r.processSend(ctx, EncodingBinary, sm, conn)
}

// processRequest is the shared request pipeline:
// admission -> general filters -> per-action handler -> default -> apply.
func (r *Router) processRequest(ctx context.Context, enc Encoding, req *RequestMessage, conn Connection) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	if req == nil {
		return fmt.Errorf("ocppgw: nil request")
	}
	req.Encoding = enc

	start := r.clock.Now()
	defer func() { r.metrics.recordProcessingTime(r.clock.Since(start).Nanoseconds()) }()
	r.metrics.received.Add(1)

	// Anycast admission: a cheap circuit-breaker before any parsing. The
	// drop is silent on purpose: no reply, no event.
	if !r.cfg.admit(req.Destination.NextHop) {
		r.metrics.dropped.Add(1)
		return nil
	}
	r.ensureTracking(&req.EventTrackingID)
	ctx = r.withDeps(ctx)

	d := runChain(ctx, r.cfg.arbitration, r.errorSink, "Router.RequestFilter", r.requestFilters, req, conn)

	if !d.Decided() {
		if entry, ok := r.registry.resolve(req.Action); ok {
			d = entry.request(ctx, r, req, conn)
		} else if r.registry.Len() > 0 {
			// An action-aware node answers actions it does not know.
			// A node with no registrations at all is a transparent
			// relay and leaves the fate to the default decision.
			d = Reject(
				fmt.Sprintf("unknown action %q", req.Action),
				WithRejectCode(CodeProtocolError),
			)
		}
	}
	if !d.Decided() {
		d = r.defaultDecision()
	}
	if ctx.Err() != nil {
		d = Drop(WithLogMessage("cancelled before apply"))
	}

	r.notify(Event{
		Type:       EventFiltered,
		Scope:      ScopeRouter,
		Kind:       KindRequest,
		Encoding:   enc,
		Action:     req.Action,
		RequestID:  req.RequestID,
		TrackingID: req.EventTrackingID,
		Node:       r.cfg.nodeID,
		Result:     d.Result(),
		Reason:     d.LogMessage(),
	})

	r.applyRequestDecision(ctx, d, req)
	return nil
}

// applyRequestDecision executes the fate exactly once.
func (r *Router) applyRequestDecision(ctx context.Context, d ForwardingDecision, req *RequestMessage) {
	switch d.Result() {
	case ResultForward, ResultReplace:
		out := *req
		out.NetworkPath = req.NetworkPath.Append(r.cfg.nodeID)
		if nd, ok := d.NewDestination(); ok {
			out.Destination = nd
		}
		if d.Result() == ResultReplace {
			if na, ok := d.NewAction(); ok {
				out.Action = na
			}
			if d.newEncoding != nil {
				out.Encoding = *d.newEncoding
			}
			p, ok, err := d.encodedPayload(out.Encoding)
			if err != nil {
				r.metrics.errors.Add(1)
				r.errorSink.HandleError(ctx, "Router", "EncodeReplacement", err)
				r.metrics.dropped.Add(1)
				return
			}
			if ok {
				out.Payload = p
			}
			r.metrics.replaced.Add(1)
		} else {
			r.metrics.forwarded.Add(1)
		}

		deadline := req.Deadline
		if deadline.IsZero() {
			deadline = r.clock.Now().Add(r.cfg.requestTimeout)
		}
		entry := PendingEntry{
			RequestID: out.RequestID,
			Context:   out.Action,
			Source:    req.NetworkPath.Source(),
			Deadline:  deadline,
		}
		if err := r.pending.Insert(ctx, entry); err != nil {
			r.metrics.errors.Add(1)
			r.errorSink.HandleError(ctx, "PendingStore", "Insert", err)
		}

		if err := r.sender.SendRequest(ctx, &out, r.sendDone(d)); err != nil {
			r.reportSendFailure(ctx, "SendRequest", err)
			return
		}
		r.notifySent(KindRequest, &out)

	case ResultReject:
		r.metrics.rejected.Add(1)
		em := r.rejectReply(RequestError, d, req.RequestID, req.Encoding, req.NetworkPath, req.EventTrackingID)
		if err := r.sender.SendError(ctx, em, r.sendDone(d)); err != nil {
			r.reportSendFailure(ctx, "SendError", err)
			return
		}
		r.notifySent(KindRequestError, em)

	default:
		r.metrics.dropped.Add(1)
		r.notify(Event{
			Type:       EventDropped,
			Scope:      ScopeRouter,
			Kind:       KindRequest,
			Encoding:   req.Encoding,
			Action:     req.Action,
			RequestID:  req.RequestID,
			TrackingID: req.EventTrackingID,
			Node:       r.cfg.nodeID,
			Reason:     d.LogMessage(),
		})
	}
}

// processResponse correlates a response with its pending entry and routes it
// back toward the request origin. A general response filter chain may
// override the lookup-based behavior.
func (r *Router) processResponse(ctx context.Context, enc Encoding, resp *ResponseMessage, conn Connection) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	if resp == nil {
		return fmt.Errorf("ocppgw: nil response")
	}
	resp.Encoding = enc

	start := r.clock.Now()
	defer func() { r.metrics.recordProcessingTime(r.clock.Since(start).Nanoseconds()) }()
	r.metrics.received.Add(1)
	r.ensureTracking(&resp.EventTrackingID)
	ctx = r.withDeps(ctx)

	d := runChain(ctx, r.cfg.arbitration, r.errorSink, "Router.ResponseFilter", r.responseFilters, resp, conn)

	entry, found, err := r.pending.TryRemove(ctx, resp.RequestID)
	if err != nil {
		r.metrics.errors.Add(1)
		r.errorSink.HandleError(ctx, "PendingStore", "TryRemove", err)
		found = false
	}

	if !d.Decided() {
		switch {
		case found && !entry.Expired(r.clock.Now()):
			d = Forward()
		case found:
			// The caller has almost certainly abandoned the request.
			r.metrics.lateResponses.Add(1)
			d = Drop(WithLogMessage("response after deadline"))
		case r.cfg.forwardUnknownResponses:
			r.metrics.unknownResponses.Add(1)
			d = Forward()
		default:
			r.metrics.unknownResponses.Add(1)
			d = Drop(WithLogMessage("no pending request"))
		}
	}
	if ctx.Err() != nil {
		d = Drop(WithLogMessage("cancelled before apply"))
	}

	r.notify(Event{
		Type:       EventFiltered,
		Scope:      ScopeRouter,
		Kind:       KindResponse,
		Encoding:   enc,
		RequestID:  resp.RequestID,
		TrackingID: resp.EventTrackingID,
		Node:       r.cfg.nodeID,
		Result:     d.Result(),
		Reason:     d.LogMessage(),
	})

	switch d.Result() {
	case ResultForward, ResultReplace:
		out := *resp
		out.NetworkPath = resp.NetworkPath.Append(r.cfg.nodeID)
		if nd, ok := d.NewDestination(); ok {
			out.Destination = nd
		} else if out.Destination.IsZero() && found {
			out.Destination = Destination{Target: entry.Source}
		}
		if p, ok, perr := d.encodedPayload(out.Encoding); perr != nil {
			r.metrics.errors.Add(1)
			r.errorSink.HandleError(ctx, "Router", "EncodeReplacement", perr)
			r.metrics.dropped.Add(1)
			return nil
		} else if ok {
			out.Payload = p
		}
		r.metrics.forwarded.Add(1)
		if serr := r.sender.SendResponse(ctx, &out, r.sendDone(d)); serr != nil {
			r.reportSendFailure(ctx, "SendResponse", serr)
			return nil
		}
		r.notifySent(KindResponse, &out)

	case ResultReject:
		r.metrics.rejected.Add(1)
		em := r.rejectReply(ResponseError, d, resp.RequestID, enc, resp.NetworkPath, resp.EventTrackingID)
		if serr := r.sender.SendError(ctx, em, r.sendDone(d)); serr != nil {
			r.reportSendFailure(ctx, "SendError", serr)
			return nil
		}
		r.notifySent(KindResponseError, em)

	default:
		r.metrics.dropped.Add(1)
		r.notify(Event{
			Type:       EventDropped,
			Scope:      ScopeRouter,
			Kind:       KindResponse,
			Encoding:   enc,
			RequestID:  resp.RequestID,
			TrackingID: resp.EventTrackingID,
			Node:       r.cfg.nodeID,
			Reason:     d.LogMessage(),
		})
	}
	return nil
}

// processError routes request-error and response-error envelopes. Errors are
// never filtered: they are forwarded to the recorded return path or dropped.
func (r *Router) processError(ctx context.Context, enc Encoding, em *ErrorMessage, _ Connection) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	if em == nil {
		return fmt.Errorf("ocppgw: nil error message")
	}
	em.Encoding = enc

	start := r.clock.Now()
	defer func() { r.metrics.recordProcessingTime(r.clock.Since(start).Nanoseconds()) }()
	r.metrics.received.Add(1)
	r.ensureTracking(&em.EventTrackingID)

	kind := KindRequestError
	if em.Kind == ResponseError {
		kind = KindResponseError
	}

	entry, found, err := r.pending.TryRemove(ctx, em.RequestID)
	if err != nil {
		r.metrics.errors.Add(1)
		r.errorSink.HandleError(ctx, "PendingStore", "TryRemove", err)
		found = false
	}

	reason := ""
	switch {
	case found && !entry.Expired(r.clock.Now()):
		out := *em
		out.NetworkPath = em.NetworkPath.Append(r.cfg.nodeID)
		if out.Destination.IsZero() {
			out.Destination = Destination{Target: entry.Source}
		}
		r.metrics.forwarded.Add(1)
		if serr := r.sender.SendError(ctx, &out, nil); serr != nil {
			r.reportSendFailure(ctx, "SendError", serr)
			return nil
		}
		r.notifySent(kind, &out)
		return nil
	case found:
		r.metrics.lateResponses.Add(1)
		reason = "error after deadline"
	default:
		r.metrics.unknownResponses.Add(1)
		reason = "no pending request"
	}

	r.metrics.dropped.Add(1)
	r.notify(Event{
		Type:       EventDropped,
		Scope:      ScopeRouter,
		Kind:       kind,
		Encoding:   enc,
		RequestID:  em.RequestID,
		TrackingID: em.EventTrackingID,
		Node:       r.cfg.nodeID,
		Reason:     reason,
	})
	return nil
}

// processSend mirrors the request pipeline for one-way messages: same
// admission and filtering, but nothing ever enters the pending table and a
// REJECT answers with a request-error since no send-error kind exists.
func (r *Router) processSend(ctx context.Context, enc Encoding, sm *SendMessage, conn Connection) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	if sm == nil {
		return fmt.Errorf("ocppgw: nil send message")
	}
	sm.Encoding = enc

	start := r.clock.Now()
	defer func() { r.metrics.recordProcessingTime(r.clock.Since(start).Nanoseconds()) }()
	r.metrics.received.Add(1)

	if !r.cfg.admit(sm.Destination.NextHop) {
		r.metrics.dropped.Add(1)
		return nil
	}
	r.ensureTracking(&sm.EventTrackingID)
	ctx = r.withDeps(ctx)

	d := runChain(ctx, r.cfg.arbitration, r.errorSink, "Router.SendFilter", r.sendFilters, sm, conn)

	if !d.Decided() {
		if entry, ok := r.registry.resolve(sm.Action); ok {
			d = entry.send(ctx, r, sm, conn)
		} else if r.registry.Len() > 0 {
			d = Reject(
				fmt.Sprintf("unknown action %q", sm.Action),
				WithRejectCode(CodeProtocolError),
			)
		}
	}
	if !d.Decided() {
		d = r.defaultDecision()
	}
	if ctx.Err() != nil {
		d = Drop(WithLogMessage("cancelled before apply"))
	}

	r.notify(Event{
		Type:       EventFiltered,
		Scope:      ScopeRouter,
		Kind:       KindSend,
		Encoding:   enc,
		Action:     sm.Action,
		RequestID:  sm.MessageID,
		TrackingID: sm.EventTrackingID,
		Node:       r.cfg.nodeID,
		Result:     d.Result(),
		Reason:     d.LogMessage(),
	})

	switch d.Result() {
	case ResultForward, ResultReplace:
		out := *sm
		out.NetworkPath = sm.NetworkPath.Append(r.cfg.nodeID)
		if nd, ok := d.NewDestination(); ok {
			out.Destination = nd
		}
		if d.Result() == ResultReplace {
			if na, ok := d.NewAction(); ok {
				out.Action = na
			}
			if d.newEncoding != nil {
				out.Encoding = *d.newEncoding
			}
			p, ok, perr := d.encodedPayload(out.Encoding)
			if perr != nil {
				r.metrics.errors.Add(1)
				r.errorSink.HandleError(ctx, "Router", "EncodeReplacement", perr)
				r.metrics.dropped.Add(1)
				return nil
			}
			if ok {
				out.Payload = p
			}
			r.metrics.replaced.Add(1)
		} else {
			r.metrics.forwarded.Add(1)
		}
		if serr := r.sender.Send(ctx, &out, r.sendDone(d)); serr != nil {
			r.reportSendFailure(ctx, "Send", serr)
			return nil
		}
		r.notifySent(KindSend, &out)

	case ResultReject:
		r.metrics.rejected.Add(1)
		em := r.rejectReply(RequestError, d, sm.MessageID, enc, sm.NetworkPath, sm.EventTrackingID)
		if serr := r.sender.SendError(ctx, em, r.sendDone(d)); serr != nil {
			r.reportSendFailure(ctx, "SendError", serr)
			return nil
		}
		r.notifySent(KindRequestError, em)

	default:
		r.metrics.dropped.Add(1)
		r.notify(Event{
			Type:       EventDropped,
			Scope:      ScopeRouter,
			Kind:       KindSend,
			Encoding:   enc,
			Action:     sm.Action,
			RequestID:  sm.MessageID,
			TrackingID: sm.EventTrackingID,
			Node:       r.cfg.nodeID,
			Reason:     d.LogMessage(),
		})
	}
	return nil
}

// rejectReply synthesizes the error envelope sent back along the reverse
// path when a decision rejects an envelope.
func (r *Router) rejectReply(kind ErrorKind, d ForwardingDecision, requestID string, enc Encoding, path NetworkPath, trackingID string) *ErrorMessage {
	code := d.rejectCode
	if code == "" {
		code = CodeFiltered
	}
	return &ErrorMessage{
		RequestID:   requestID,
		Kind:        kind,
		Code:        code,
		Description: d.rejectMessage,
		Details:     d.rejectDetails,
		Encoding:    enc,
		Destination: Destination{
			Target:  path.Source(),
			NextHop: path.Last(),
		},
		NetworkPath:     NetworkPath{r.cfg.nodeID},
		EventTrackingID: trackingID,
		Timestamp:       r.clock.Now(),
	}
}

func (r *Router) defaultDecision() ForwardingDecision {
	switch r.cfg.defaultDecision {
	case ResultForward:
		return Forward(WithLogMessage("default decision"))
	case ResultReject:
		return Reject("rejected by default decision")
	default:
		return Drop(WithLogMessage("default decision"))
	}
}

// sendDone composes the decision's completion callback with the router's
// own bookkeeping for downstream send failures.
func (r *Router) sendDone(d ForwardingDecision) SendCallback {
	return func(ctx context.Context, err error) {
		if err != nil {
			r.metrics.errors.Add(1)
			r.errorSink.HandleError(ctx, "Sender", "complete", err)
		}
		if d.onSent != nil {
			d.onSent(ctx, err)
		}
	}
}

func (r *Router) reportSendFailure(ctx context.Context, operation string, err error) {
	r.metrics.errors.Add(1)
	r.errorSink.HandleError(ctx, "Sender", operation, err)
	r.notify(Event{Type: EventError, Scope: ScopeRouter, Node: r.cfg.nodeID, Err: err})
}

func (r *Router) notifySent(kind MessageKind, env any) {
	e := Event{Type: EventSent, Scope: ScopeRouter, Kind: kind, Node: r.cfg.nodeID}
	switch m := env.(type) {
	case *RequestMessage:
		e.Encoding, e.Action, e.RequestID, e.TrackingID = m.Encoding, m.Action, m.RequestID, m.EventTrackingID
	case *ResponseMessage:
		e.Encoding, e.RequestID, e.TrackingID = m.Encoding, m.RequestID, m.EventTrackingID
	case *ErrorMessage:
		e.Encoding, e.RequestID, e.TrackingID = m.Encoding, m.RequestID, m.EventTrackingID
	case *SendMessage:
		e.Encoding, e.Action, e.RequestID, e.TrackingID = m.Encoding, m.Action, m.MessageID, m.EventTrackingID
	}
	r.notify(e)
}

// ensureTracking assigns a correlation id when the transport delivered none,
// so every log line across hops can be tied together.
func (r *Router) ensureTracking(id *string) {
	if *id != "" {
		return
	}
	u, err := uuid.NewV7()
	if err != nil {
		return
	}
	*id = u.String()
}

// AddObserver registers an observer. Thread-safe.
func (r *Router) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	r.observersMu.Lock()
	r.observers = append(r.observers, obs)
	r.observersMu.Unlock()
}

// RemoveObserver removes a previously added observer.
func (r *Router) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	for i, o := range r.observers {
		if o == obs {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			break
		}
	}
}

// notify dispatches an event asynchronously through the observer pool.
func (r *Router) notify(e Event) {
	if r.observerPool == nil {
		return
	}

	r.observersMu.RLock()
	n := len(r.observers)
	if n == 0 {
		r.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, n)
	copy(observers, r.observers)
	r.observersMu.RUnlock()

	r.observerPool.Notify(e, observers)
}

// Close shuts the router down: the observer pool drains, the pending store
// and the sender close. Idempotent.
func (r *Router) Close(ctx context.Context) error {
	var closeErr error

	r.closeOnce.Do(func() {
		r.closed.Store(true)

		if r.observerPool != nil {
			if err := r.observerPool.Close(observerDrainTimeout); err != nil {
				r.logger.Warn().Err(err).Msg("ocppgw: observer pool shutdown timeout")
				closeErr = err
			}
		}
		if err := r.pending.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("ocppgw: pending store close failed")
			closeErr = err
		}
		if err := r.sender.Close(ctx); err != nil {
			r.logger.Error().Err(err).Msg("ocppgw: sender close failed")
			closeErr = err
		}
	})

	return closeErr
}
