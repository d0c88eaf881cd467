package redispending

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/ocppgw"
)

// newTestStore connects to a local Redis or skips the test when none runs.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Defaults()
	cfg.KeyPrefix = "ocppgw:test:" + uuid.Must(uuid.NewV7()).String() + ":"
	s, err := New(cfg)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestStoreInsertAndTryRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := ocppgw.PendingEntry{
		RequestID: "R1",
		Context:   "GetReport",
		Source:    "CSMS",
		Deadline:  time.Now().Add(time.Minute).UTC(),
	}
	require.NoError(t, s.Insert(ctx, e))

	got, found, err := s.TryRemove(ctx, "R1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "R1", got.RequestID)
	assert.Equal(t, ocppgw.NodeID("CSMS"), got.Source)
	assert.Equal(t, "GetReport", got.Context)

	_, found, err = s.TryRemove(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, found, "GETDEL consumes the entry exactly once")
}

func TestStoreInsertFirstWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute).UTC()

	require.NoError(t, s.Insert(ctx, ocppgw.PendingEntry{RequestID: "R1", Source: "CSMS", Deadline: deadline}))
	require.NoError(t, s.Insert(ctx, ocppgw.PendingEntry{RequestID: "R1", Source: "NN-9", Deadline: deadline}))

	got, found, err := s.TryRemove(ctx, "R1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ocppgw.NodeID("CSMS"), got.Source)
}

func TestStorePeekDiscardsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, ocppgw.PendingEntry{
		RequestID: "stale",
		Deadline:  time.Now().Add(-time.Second).UTC(),
	}))

	_, found, err := s.Peek(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.TryRemove(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, found, "Peek must delete the expired key")
}

func TestStoreUnknownID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Peek(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.TryRemove(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConfigFromMapDurations(t *testing.T) {
	c, err := ConfigFromMap(map[string]any{
		"addr":  "redis:6379",
		"grace": "30s",
	})
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", c.Addr)
	assert.Equal(t, 30*time.Second, c.Grace)
	assert.Equal(t, "ocppgw:pending:", c.KeyPrefix)
}
