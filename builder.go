package ocppgw

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

const observerDrainTimeout = 5 * time.Second

// RouterBuilder constructs Router instances (Builder pattern). The routing
// policy is frozen at Build; there is no reconfiguration of a live router.
type RouterBuilder struct {
	cfg Config

	senderName string
	senderCfg  map[string]any
	senderInst Sender

	pending  PendingStore
	registry *ActionRegistry

	requestFilters  []RequestFilter
	responseFilters []ResponseFilter
	sendFilters     []SendFilter

	observers []Observer
	errorSink ErrorSink
	logger    *xlog.Logger
	clock     xclock.Clock

	poolWorkers int
	poolBuffer  int
}

// NewRouterBuilder returns a builder with sensible defaults for the node id
// given.
func NewRouterBuilder(node NodeID) *RouterBuilder {
	return &RouterBuilder{
		cfg:      Config{NodeID: node},
		registry: NewActionRegistry(),
	}
}

// WithConfig replaces the whole routing policy. The NodeID inside cfg wins
// over the one given to NewRouterBuilder when set.
func (rb *RouterBuilder) WithConfig(cfg Config) *RouterBuilder {
	if cfg.NodeID == Zero {
		cfg.NodeID = rb.cfg.NodeID
	}
	rb.cfg = cfg
	return rb
}

// WithDefaultDecision sets the fallback verdict for undecided envelopes.
func (rb *RouterBuilder) WithDefaultDecision(res Result) *RouterBuilder {
	rb.cfg.DefaultDecision = res
	return rb
}

// WithAnycastAllowed restricts admission to the given next-hop ids.
func (rb *RouterBuilder) WithAnycastAllowed(ids ...NodeID) *RouterBuilder {
	rb.cfg.AnycastAllowed = append(rb.cfg.AnycastAllowed, ids...)
	return rb
}

// WithAnycastDenied refuses admission to the given next-hop ids.
func (rb *RouterBuilder) WithAnycastDenied(ids ...NodeID) *RouterBuilder {
	rb.cfg.AnycastDenied = append(rb.cfg.AnycastDenied, ids...)
	return rb
}

// WithForwardUnknownResponses forwards responses that miss the pending table.
func (rb *RouterBuilder) WithForwardUnknownResponses(on bool) *RouterBuilder {
	rb.cfg.ForwardUnknownResponses = on
	return rb
}

// WithRequestTimeout bounds how long forwarded requests stay pending.
func (rb *RouterBuilder) WithRequestTimeout(d time.Duration) *RouterBuilder {
	if d > 0 {
		rb.cfg.RequestTimeout = d
	}
	return rb
}

// WithArbitration selects the general-filter arbitration mode.
func (rb *RouterBuilder) WithArbitration(m ArbitrationMode) *RouterBuilder {
	rb.cfg.Arbitration = m
	return rb
}

// WithSender selects an outbound adapter by registered name.
func (rb *RouterBuilder) WithSender(name string, cfg map[string]any) *RouterBuilder {
	rb.senderName = name
	rb.senderCfg = cfg
	return rb
}

// WithSenderInstance accepts a ready Sender (e.g. from an adapter Use()).
func (rb *RouterBuilder) WithSenderInstance(s Sender) *RouterBuilder {
	rb.senderInst = s
	return rb
}

// WithPendingStore replaces the default in-memory pending table.
func (rb *RouterBuilder) WithPendingStore(p PendingStore) *RouterBuilder {
	rb.pending = p
	return rb
}

// WithRegistry replaces the action registry populated via RegisterAction.
func (rb *RouterBuilder) WithRegistry(g *ActionRegistry) *RouterBuilder {
	if g != nil {
		rb.registry = g
	}
	return rb
}

// Registry returns the builder's action registry for RegisterAction calls.
func (rb *RouterBuilder) Registry() *ActionRegistry { return rb.registry }

// WithRequestFilter appends general request filters.
func (rb *RouterBuilder) WithRequestFilter(fs ...RequestFilter) *RouterBuilder {
	rb.requestFilters = append(rb.requestFilters, fs...)
	return rb
}

// WithResponseFilter appends general response filters.
func (rb *RouterBuilder) WithResponseFilter(fs ...ResponseFilter) *RouterBuilder {
	rb.responseFilters = append(rb.responseFilters, fs...)
	return rb
}

// WithSendFilter appends general send-message filters.
func (rb *RouterBuilder) WithSendFilter(fs ...SendFilter) *RouterBuilder {
	rb.sendFilters = append(rb.sendFilters, fs...)
	return rb
}

// WithObserver attaches observers for router lifecycle events.
func (rb *RouterBuilder) WithObserver(obs ...Observer) *RouterBuilder {
	for _, o := range obs {
		if o != nil {
			rb.observers = append(rb.observers, o)
		}
	}
	return rb
}

// WithErrorSink replaces the default logging error sink.
func (rb *RouterBuilder) WithErrorSink(s ErrorSink) *RouterBuilder {
	rb.errorSink = s
	return rb
}

// WithLogger injects a custom xlog logger.
func (rb *RouterBuilder) WithLogger(l *xlog.Logger) *RouterBuilder {
	rb.logger = l
	return rb
}

// WithClock injects a custom clock, useful for deadline tests.
func (rb *RouterBuilder) WithClock(c xclock.Clock) *RouterBuilder {
	rb.clock = c
	return rb
}

// WithObserverPool sizes the async event dispatch pool.
func (rb *RouterBuilder) WithObserverPool(workers, buffer int) *RouterBuilder {
	rb.poolWorkers = workers
	rb.poolBuffer = buffer
	return rb
}

// Build validates the configuration, freezes the action registry and returns
// a ready Router.
func (rb *RouterBuilder) Build() (*Router, error) {
	cc, err := rb.cfg.compile()
	if err != nil {
		return nil, err
	}

	var snd Sender
	switch {
	case rb.senderInst != nil:
		snd = rb.senderInst
	case rb.senderName != "":
		snd, err = NewSender(rb.senderName, rb.senderCfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoSenderConfigured
	}

	clk := rb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := rb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	sink := rb.errorSink
	if sink == nil {
		sink = loggingErrorSink{logger: lg}
	}
	pend := rb.pending
	if pend == nil {
		pend = NewPendingTable(clk)
	}

	rb.registry.Freeze()

	r := &Router{
		cfg:             cc,
		sender:          snd,
		registry:        rb.registry,
		pending:         pend,
		clock:           clk,
		logger:          lg,
		errorSink:       sink,
		requestFilters:  rb.requestFilters,
		responseFilters: rb.responseFilters,
		sendFilters:     rb.sendFilters,
		observerPool:    NewObserverPool(context.Background(), rb.poolWorkers, rb.poolBuffer),
	}

	// Attach a logging observer unless one was supplied externally.
	hasLogging := false
	for _, o := range rb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLogging = true
			break
		}
	}
	if !hasLogging {
		r.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range rb.observers {
		r.AddObserver(o)
	}

	return r, nil
}
