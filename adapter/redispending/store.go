// Package redispending shares pending-request correlation state between
// gateways through Redis, so any node of an HA pair can route a response
// back even when a sibling forwarded the original request. The in-memory
// table in the root package stays the default for single-node deployments.
package redispending

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"

	"github.com/evgrid/ocppgw"
)

// Store implements ocppgw.PendingStore on a Redis keyspace. Entries live
// under cfg.KeyPrefix + requestID with a TTL of deadline-now plus a grace
// window, so Redis itself bounds memory growth; within the grace window a
// late response is still observed as late rather than unknown.
type Store struct {
	cfg    Config
	client *redis.Client
	clock  xclock.Clock
}

var _ ocppgw.PendingStore = (*Store)(nil)

// entryRecord is the JSON shape stored per request id.
type entryRecord struct {
	Context  string       `json:"ctx,omitempty"`
	Source   ocppgw.NodeID `json:"src"`
	Deadline time.Time    `json:"deadline"`
}

// New connects to Redis and returns a ready store.
func New(cfg Config) (*Store, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ocppgw/redispending: ping: %w", err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = xclock.Default()
	}
	return &Store{cfg: cfg, client: client, clock: clk}, nil
}

func (s *Store) key(requestID string) string {
	return s.cfg.KeyPrefix + requestID
}

// Insert records an entry. SetNX keeps request ids first-writer-wins, like
// the in-memory table.
func (s *Store) Insert(ctx context.Context, e ocppgw.PendingEntry) error {
	rec, err := json.Marshal(entryRecord{
		Context:  e.Context,
		Source:   e.Source,
		Deadline: e.Deadline,
	})
	if err != nil {
		return fmt.Errorf("ocppgw/redispending: encode entry: %w", err)
	}

	ttl := e.Deadline.Sub(s.clock.Now()) + s.cfg.Grace
	if ttl <= 0 {
		ttl = s.cfg.Grace
	}
	if err := s.client.SetNX(ctx, s.key(e.RequestID), rec, ttl).Err(); err != nil {
		return fmt.Errorf("ocppgw/redispending: insert %s: %w", e.RequestID, err)
	}
	return nil
}

// TryRemove consumes the entry atomically via GETDEL, so concurrent
// duplicate responses across gateways still resolve to exactly one forward.
func (s *Store) TryRemove(ctx context.Context, requestID string) (ocppgw.PendingEntry, bool, error) {
	val, err := s.client.GetDel(ctx, s.key(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocppgw.PendingEntry{}, false, nil
	}
	if err != nil {
		return ocppgw.PendingEntry{}, false, fmt.Errorf("ocppgw/redispending: tryremove %s: %w", requestID, err)
	}
	e, err := decodeEntry(requestID, val)
	if err != nil {
		return ocppgw.PendingEntry{}, false, err
	}
	return e, true, nil
}

// Peek looks up without consuming. Entries past their deadline are deleted
// on observation and reported as absent, matching the in-memory table.
func (s *Store) Peek(ctx context.Context, requestID string) (ocppgw.PendingEntry, bool, error) {
	val, err := s.client.Get(ctx, s.key(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocppgw.PendingEntry{}, false, nil
	}
	if err != nil {
		return ocppgw.PendingEntry{}, false, fmt.Errorf("ocppgw/redispending: peek %s: %w", requestID, err)
	}
	e, err := decodeEntry(requestID, val)
	if err != nil {
		return ocppgw.PendingEntry{}, false, err
	}
	if e.Expired(s.clock.Now()) {
		_ = s.client.Del(ctx, s.key(requestID)).Err()
		return ocppgw.PendingEntry{}, false, nil
	}
	return e, true, nil
}

// Close releases the Redis client.
func (s *Store) Close(context.Context) error {
	return s.client.Close()
}

func decodeEntry(requestID string, val []byte) (ocppgw.PendingEntry, error) {
	var rec entryRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return ocppgw.PendingEntry{}, fmt.Errorf("ocppgw/redispending: decode entry %s: %w", requestID, err)
	}
	return ocppgw.PendingEntry{
		RequestID: requestID,
		Context:   rec.Context,
		Source:    rec.Source,
		Deadline:  rec.Deadline,
	}, nil
}
