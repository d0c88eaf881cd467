package ocppgw

import (
	"context"
	"sync"
)

var (
	defaultRouter   *Router
	defaultRouterMu sync.Mutex
)

// Default returns the process-wide router, or nil if none was installed.
func Default() *Router {
	defaultRouterMu.Lock()
	defer defaultRouterMu.Unlock()
	return defaultRouter
}

// SetDefault installs the process-wide default Router.
func SetDefault(r *Router) {
	if r == nil {
		panic("ocppgw: SetDefault called with nil Router")
	}
	defaultRouterMu.Lock()
	defaultRouter = r
	defaultRouterMu.Unlock()
}

// New constructs a Router via the Builder and returns a close func for
// convenience.
func New(node NodeID, init func(rb *RouterBuilder)) (*Router, func() error, error) {
	rb := NewRouterBuilder(node)
	if init != nil {
		init(rb)
	}
	r, err := rb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return r.Close(context.Background()) }
	return r, closeFn, nil
}
