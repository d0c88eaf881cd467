package ocppgw

import (
	"context"
	"fmt"
	"sync"
)

// RequestFilter is a general subscriber consulted for every inbound request
// regardless of action, before per-action handlers run. Returning Next()
// defers to the remaining pipeline.
type RequestFilter func(ctx context.Context, req *RequestMessage, conn Connection) (ForwardingDecision, error)

// ResponseFilter may override the lookup-based routing of responses.
type ResponseFilter func(ctx context.Context, resp *ResponseMessage, conn Connection) (ForwardingDecision, error)

// SendFilter is the general subscriber for one-way send-messages.
type SendFilter func(ctx context.Context, sm *SendMessage, conn Connection) (ForwardingDecision, error)

// ArbitrationMode controls how multiple general filters are combined.
type ArbitrationMode uint8

const (
	// ArbitrationSequential runs filters in registration order and
	// short-circuits on the first non-NEXT decision. This is the default:
	// it never runs a later filter whose side effects would be discarded.
	ArbitrationSequential ArbitrationMode = iota
	// ArbitrationConcurrent fans out to every filter at once, waits for all
	// to finish, and adopts the first-registered decided result. Matches
	// deployments whose filters were written for multicast delivery; only
	// safe when every filter is idempotent.
	ArbitrationConcurrent
)

func (m ArbitrationMode) String() string {
	if m == ArbitrationConcurrent {
		return "concurrent"
	}
	return "sequential"
}

// runChain executes the configured filters under the given arbitration mode.
// A filter error or panic is reported to the sink and counts as NEXT from
// that subscriber; it never aborts the envelope.
func runChain[M any, F ~func(ctx context.Context, m M, conn Connection) (ForwardingDecision, error)](
	ctx context.Context,
	mode ArbitrationMode,
	sink ErrorSink,
	component string,
	filters []F,
	msg M,
	conn Connection,
) ForwardingDecision {
	switch len(filters) {
	case 0:
		return Next()
	case 1:
		d, err := invokeFilter(ctx, filters[0], msg, conn)
		if err != nil {
			sink.HandleError(ctx, component, "filter", err)
			return Next()
		}
		return d
	}

	if mode == ArbitrationSequential {
		for _, f := range filters {
			d, err := invokeFilter(ctx, f, msg, conn)
			if err != nil {
				sink.HandleError(ctx, component, "filter", err)
				continue
			}
			if d.Decided() {
				return d
			}
		}
		return Next()
	}

	// Concurrent fan-out: all subscribers run, the pipeline waits for every
	// one, and the first-registered decided result is adopted.
	type slot struct {
		d   ForwardingDecision
		err error
	}
	results := make([]slot, len(filters))
	var wg sync.WaitGroup
	for i, f := range filters {
		wg.Add(1)
		go func(i int, f F) {
			defer wg.Done()
			d, err := invokeFilter(ctx, f, msg, conn)
			results[i] = slot{d: d, err: err}
		}(i, f)
	}
	wg.Wait()

	adopted := Next()
	for _, s := range results {
		if s.err != nil {
			sink.HandleError(ctx, component, "filter", s.err)
			continue
		}
		if !adopted.Decided() && s.d.Decided() {
			adopted = s.d
		}
	}
	return adopted
}

func invokeFilter[M any, F ~func(ctx context.Context, m M, conn Connection) (ForwardingDecision, error)](
	ctx context.Context,
	f F,
	msg M,
	conn Connection,
) (d ForwardingDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Next()
			err = fmt.Errorf("filter panic: %v", rec)
		}
	}()
	return f(ctx, msg, conn)
}
