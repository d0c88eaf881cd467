package ocppgw

import (
	"fmt"
	"time"
)

// Config is the immutable routing policy handed to the builder. The router
// copies what it needs at construction; mutating a Config afterwards has no
// effect on a running router.
type Config struct {
	// NodeID is this gateway's own id, appended to the network path of every
	// envelope it forwards.
	NodeID NodeID
	// DefaultDecision applies when no filter and no per-action default
	// produced a verdict: ResultForward, ResultReject or ResultDrop.
	// The zero value falls back to ResultDrop.
	DefaultDecision Result
	// AnycastAllowed, when non-empty, limits admission to envelopes whose
	// next hop is in the set. Checked before any parsing or filtering.
	AnycastAllowed []NodeID
	// AnycastDenied drops envelopes whose next hop is in the set.
	AnycastDenied []NodeID
	// ForwardUnknownResponses forwards responses with no pending entry
	// instead of dropping them, for multi-path topologies where another
	// gateway forwarded the original request.
	ForwardUnknownResponses bool
	// RequestTimeout bounds how long a forwarded request may stay pending
	// when the request itself carries no deadline. Default 30s.
	RequestTimeout time.Duration
	// Arbitration selects how multiple general filters are combined.
	Arbitration ArbitrationMode
}

const defaultRequestTimeout = 30 * time.Second

// compiled is the router's internal, read-only view of a Config with the
// admission sets turned into lookup maps.
type compiled struct {
	nodeID                  NodeID
	defaultDecision         Result
	allowed                 map[NodeID]struct{}
	denied                  map[NodeID]struct{}
	forwardUnknownResponses bool
	requestTimeout          time.Duration
	arbitration             ArbitrationMode
}

func (c Config) compile() (compiled, error) {
	if c.NodeID == Zero {
		return compiled{}, fmt.Errorf("ocppgw: config requires a NodeID")
	}
	def := c.DefaultDecision
	switch def {
	case ResultNext:
		def = ResultDrop
	case ResultForward, ResultReject, ResultDrop:
	default:
		return compiled{}, fmt.Errorf("ocppgw: invalid default decision %s", def)
	}
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	cc := compiled{
		nodeID:                  c.NodeID,
		defaultDecision:         def,
		forwardUnknownResponses: c.ForwardUnknownResponses,
		requestTimeout:          timeout,
		arbitration:             c.Arbitration,
	}
	if len(c.AnycastAllowed) > 0 {
		cc.allowed = make(map[NodeID]struct{}, len(c.AnycastAllowed))
		for _, id := range c.AnycastAllowed {
			cc.allowed[id] = struct{}{}
		}
	}
	if len(c.AnycastDenied) > 0 {
		cc.denied = make(map[NodeID]struct{}, len(c.AnycastDenied))
		for _, id := range c.AnycastDenied {
			cc.denied[id] = struct{}{}
		}
	}
	return cc, nil
}

// admit applies the anycast allow/deny sets to a next-hop id.
func (c compiled) admit(nextHop NodeID) bool {
	if c.allowed != nil {
		if _, ok := c.allowed[nextHop]; !ok {
			return false
		}
	}
	if c.denied != nil {
		if _, ok := c.denied[nextHop]; ok {
			return false
		}
	}
	return true
}
