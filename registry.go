package ocppgw

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// actionEntry is the runtime shape of one registered action: the typed
// parse/filter machinery erased behind two closures, one per envelope kind
// that carries an action.
type actionEntry struct {
	name    string
	request func(ctx context.Context, r *Router, req *RequestMessage, conn Connection) ForwardingDecision
	send    func(ctx context.Context, r *Router, sm *SendMessage, conn Connection) ForwardingDecision
}

// ActionRegistry maps protocol action names to their registered handlers.
// It follows a single-writer-then-freeze pattern: RegisterAction populates it
// during startup, the router builder freezes it, and dispatch-time lookups
// are lock-free thereafter.
type ActionRegistry struct {
	mu      sync.Mutex
	frozen  atomic.Bool
	entries map[string]*actionEntry
}

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{entries: make(map[string]*actionEntry)}
}

func (g *ActionRegistry) register(e *actionEntry) error {
	if g.frozen.Load() {
		return ErrRegistryFrozen
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen.Load() {
		return ErrRegistryFrozen
	}
	if _, dup := g.entries[e.name]; dup {
		return ErrDuplicateAction{Action: e.name}
	}
	g.entries[e.name] = e
	return nil
}

// Freeze ends the registration phase. Idempotent.
func (g *ActionRegistry) Freeze() {
	g.mu.Lock()
	g.frozen.Store(true)
	g.mu.Unlock()
}

// resolve looks up the handler for an action. Safe for unsynchronized
// concurrent reads once frozen; before that it takes the writer lock.
func (g *ActionRegistry) resolve(action string) (*actionEntry, bool) {
	if g.frozen.Load() {
		e, ok := g.entries[action]
		return e, ok
	}
	g.mu.Lock()
	e, ok := g.entries[action]
	g.mu.Unlock()
	return e, ok
}

// Actions returns the registered action names, sorted.
func (g *ActionRegistry) Actions() []string {
	g.mu.Lock()
	names := make([]string, 0, len(g.entries))
	for n := range g.entries {
		names = append(names, n)
	}
	g.mu.Unlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered actions. Lock-free once frozen, like
// resolve, since the router consults it per envelope.
func (g *ActionRegistry) Len() int {
	if g.frozen.Load() {
		return len(g.entries)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
