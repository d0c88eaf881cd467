package ocppgw

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
)

// PendingEntry correlates an outstanding forwarded request with the node its
// eventual response must be returned to.
type PendingEntry struct {
	RequestID string
	// Context tags the expected response content type, opaque to the store.
	Context string
	// Source is the node the original request came from; responses are
	// routed back toward it.
	Source NodeID
	// Deadline is the point after which a matching response is considered
	// late and is no longer forwarded.
	Deadline time.Time
}

// Expired reports whether the entry's deadline has passed at now.
func (e PendingEntry) Expired(now time.Time) bool {
	return !e.Deadline.IsZero() && now.After(e.Deadline)
}

// PendingStore is the Strategy interface for pending-request bookkeeping.
// The default is the in-process sharded table below; HA deployments can
// share correlation state between gateways through the redispending adapter.
//
// TryRemove must be atomic: for a given request id at most one caller ever
// gets found == true, even under concurrent duplicate deliveries.
type PendingStore interface {
	Insert(ctx context.Context, e PendingEntry) error
	TryRemove(ctx context.Context, requestID string) (PendingEntry, bool, error)
	// Peek is a non-destructive lookup for diagnostics. Expired entries are
	// discarded on observation and reported as absent.
	Peek(ctx context.Context, requestID string) (PendingEntry, bool, error)
	Close(ctx context.Context) error
}

const pendingShards = 32

// PendingTable is the in-memory PendingStore: a sharded map so unrelated
// request ids never contend on one lock.
type PendingTable struct {
	clock  xclock.Clock
	shards [pendingShards]pendingShard

	sweepStop chan struct{}
	sweepOnce sync.Once
	closeOnce sync.Once
}

type pendingShard struct {
	mu      sync.Mutex
	entries map[string]PendingEntry
}

var _ PendingStore = (*PendingTable)(nil)

// NewPendingTable creates an empty table. A nil clock falls back to the
// process default.
func NewPendingTable(clock xclock.Clock) *PendingTable {
	if clock == nil {
		clock = xclock.Default()
	}
	t := &PendingTable{clock: clock}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]PendingEntry)
	}
	return t
}

func (t *PendingTable) shard(requestID string) *pendingShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return &t.shards[h.Sum32()%pendingShards]
}

// Insert records an entry. A duplicate request id is a no-op: ids are
// assumed caller-unique and the first writer wins.
func (t *PendingTable) Insert(_ context.Context, e PendingEntry) error {
	s := t.shard(e.RequestID)
	s.mu.Lock()
	if _, exists := s.entries[e.RequestID]; !exists {
		s.entries[e.RequestID] = e
	}
	s.mu.Unlock()
	return nil
}

// TryRemove atomically looks up and deletes the entry for requestID. The
// entry is returned even when already expired so the caller can tell a late
// response from an unknown one.
func (t *PendingTable) TryRemove(_ context.Context, requestID string) (PendingEntry, bool, error) {
	s := t.shard(requestID)
	s.mu.Lock()
	e, ok := s.entries[requestID]
	if ok {
		delete(s.entries, requestID)
	}
	s.mu.Unlock()
	return e, ok, nil
}

// Peek looks up without consuming. An expired entry is discarded here and
// reported as absent.
func (t *PendingTable) Peek(_ context.Context, requestID string) (PendingEntry, bool, error) {
	now := t.clock.Now()
	s := t.shard(requestID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return PendingEntry{}, false, nil
	}
	if e.Expired(now) {
		delete(s.entries, requestID)
		return PendingEntry{}, false, nil
	}
	return e, true, nil
}

// Len returns the current number of entries, expired ones included.
func (t *PendingTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// StartSweep launches a background pass discarding expired entries every
// interval. Correctness never depends on it; it only bounds memory growth
// from requests that never see any reply. Stopped by Close.
func (t *PendingTable) StartSweep(interval time.Duration) {
	if interval <= 0 {
		return
	}
	t.sweepOnce.Do(func() {
		t.sweepStop = make(chan struct{})
		go t.sweep(interval)
	})
}

func (t *PendingTable) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.sweepStop:
			return
		case <-ticker.C:
			now := t.clock.Now()
			for i := range t.shards {
				s := &t.shards[i]
				s.mu.Lock()
				for id, e := range s.entries {
					if e.Expired(now) {
						delete(s.entries, id)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// Close stops the sweep goroutine when one was started.
func (t *PendingTable) Close(context.Context) error {
	t.closeOnce.Do(func() {
		if t.sweepStop != nil {
			close(t.sweepStop)
		}
	})
	return nil
}
