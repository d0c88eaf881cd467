package ocppgw

// Result is the verdict a filter pipeline produces for one envelope.
type Result uint8

const (
	// ResultNext means "not decided yet": defer to the per-action filter or
	// to the configured default. It is the zero value on purpose.
	ResultNext Result = iota
	ResultForward
	ResultReplace
	ResultReject
	ResultDrop
)

func (r Result) String() string {
	switch r {
	case ResultForward:
		return "FORWARD"
	case ResultReplace:
		return "REPLACE"
	case ResultReject:
		return "REJECT"
	case ResultDrop:
		return "DROP"
	default:
		return "NEXT"
	}
}

// ForwardingDecision is the immutable outcome of running an envelope through
// the filter pipeline. It is fully formed by its constructor before any
// observer can see it; there is no way to patch one afterwards.
type ForwardingDecision struct {
	result         Result
	newPayload     []byte
	newBody        any
	newAction      string
	newDestination *Destination
	newEncoding    *Encoding
	rejectCode     ResultCode
	rejectMessage  string
	rejectDetails  []byte
	logMessage     string
	onSent         SendCallback
}

// DecisionOption tweaks a decision at construction time.
type DecisionOption func(*ForwardingDecision)

// WithNewPayload replaces the outbound payload with pre-encoded bytes.
func WithNewPayload(p []byte) DecisionOption {
	return func(d *ForwardingDecision) { d.newPayload = p }
}

// WithNewBody replaces the outbound payload with a typed value, encoded by
// the router using the codec of the outbound encoding. Ignored when
// WithNewPayload is also present.
func WithNewBody(v any) DecisionOption {
	return func(d *ForwardingDecision) { d.newBody = v }
}

// WithNewAction rewrites the protocol action name on the outbound envelope.
func WithNewAction(action string) DecisionOption {
	return func(d *ForwardingDecision) { d.newAction = action }
}

// WithNewDestination rewrites the outbound destination and next hop.
func WithNewDestination(dst Destination) DecisionOption {
	return func(d *ForwardingDecision) { d.newDestination = &dst }
}

// WithNewEncoding re-serializes the outbound envelope in another encoding.
func WithNewEncoding(e Encoding) DecisionOption {
	return func(d *ForwardingDecision) { d.newEncoding = &e }
}

// WithRejectCode overrides the result code on the synthesized error reply.
func WithRejectCode(c ResultCode) DecisionOption {
	return func(d *ForwardingDecision) { d.rejectCode = c }
}

// WithRejectDetails attaches structured details to the error reply.
func WithRejectDetails(details []byte) DecisionOption {
	return func(d *ForwardingDecision) { d.rejectDetails = details }
}

// WithLogMessage attaches a free-form note surfaced on the filtered event.
func WithLogMessage(msg string) DecisionOption {
	return func(d *ForwardingDecision) { d.logMessage = msg }
}

// WithOnSent attaches a completion callback invoked after the outbound send,
// successful or not.
func WithOnSent(cb SendCallback) DecisionOption {
	return func(d *ForwardingDecision) { d.onSent = cb }
}

// Forward routes the envelope onward unchanged (aside from the mandatory
// network-path append).
func Forward(opts ...DecisionOption) ForwardingDecision {
	return build(ResultForward, opts)
}

// Replace routes the envelope onward with a rewritten payload, action,
// destination or encoding taken from the options.
func Replace(opts ...DecisionOption) ForwardingDecision {
	return build(ResultReplace, opts)
}

// Reject answers the sender with a protocol error carrying msg and sends
// nothing onward. The result code defaults to Filtered.
func Reject(msg string, opts ...DecisionOption) ForwardingDecision {
	d := build(ResultReject, opts)
	d.rejectMessage = msg
	if d.rejectCode == "" {
		d.rejectCode = CodeFiltered
	}
	return d
}

// Drop discards the envelope silently.
func Drop(opts ...DecisionOption) ForwardingDecision {
	return build(ResultDrop, opts)
}

// Next declines to decide, deferring to later filters or the default.
func Next() ForwardingDecision {
	return ForwardingDecision{}
}

func build(r Result, opts []DecisionOption) ForwardingDecision {
	d := ForwardingDecision{result: r}
	for _, o := range opts {
		if o != nil {
			o(&d)
		}
	}
	return d
}

// Result returns the verdict.
func (d ForwardingDecision) Result() Result { return d.result }

// Decided reports whether the decision is anything other than NEXT.
func (d ForwardingDecision) Decided() bool { return d.result != ResultNext }

// RejectMessage returns the human-readable rejection reason.
func (d ForwardingDecision) RejectMessage() string { return d.rejectMessage }

// RejectCode returns the result code used on the synthesized error reply.
func (d ForwardingDecision) RejectCode() ResultCode { return d.rejectCode }

// LogMessage returns the note attached by the deciding filter.
func (d ForwardingDecision) LogMessage() string { return d.logMessage }

// NewDestination returns the destination rewrite, if any.
func (d ForwardingDecision) NewDestination() (Destination, bool) {
	if d.newDestination == nil {
		return Destination{}, false
	}
	return *d.newDestination, true
}

// NewAction returns the action rewrite, if any.
func (d ForwardingDecision) NewAction() (string, bool) {
	return d.newAction, d.newAction != ""
}

// encodedPayload resolves the replacement payload for an outbound encoding,
// marshalling a typed body when only that was supplied.
func (d ForwardingDecision) encodedPayload(e Encoding) ([]byte, bool, error) {
	if d.newPayload != nil {
		return d.newPayload, true, nil
	}
	if d.newBody == nil {
		return nil, false, nil
	}
	p, err := codecFor(e).Marshal(d.newBody)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
