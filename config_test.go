package ocppgw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCompileDefaults(t *testing.T) {
	cc, err := Config{NodeID: "NN-1"}.compile()
	require.NoError(t, err)
	assert.Equal(t, ResultDrop, cc.defaultDecision)
	assert.Equal(t, defaultRequestTimeout, cc.requestTimeout)
	assert.Equal(t, ArbitrationSequential, cc.arbitration)
}

func TestConfigCompileRequiresNodeID(t *testing.T) {
	_, err := Config{}.compile()
	assert.Error(t, err)
}

func TestConfigCompileRejectsInvalidDefault(t *testing.T) {
	_, err := Config{NodeID: "NN-1", DefaultDecision: ResultReplace}.compile()
	assert.Error(t, err)
}

func TestConfigAdmission(t *testing.T) {
	t.Run("no lists admit everything", func(t *testing.T) {
		cc, err := Config{NodeID: "NN-1"}.compile()
		require.NoError(t, err)
		assert.True(t, cc.admit("CS-1"))
		assert.True(t, cc.admit(Zero))
	})

	t.Run("allow list", func(t *testing.T) {
		cc, err := Config{NodeID: "NN-1", AnycastAllowed: []NodeID{"CS-1"}}.compile()
		require.NoError(t, err)
		assert.True(t, cc.admit("CS-1"))
		assert.False(t, cc.admit("CS-2"))
	})

	t.Run("deny list", func(t *testing.T) {
		cc, err := Config{NodeID: "NN-1", AnycastDenied: []NodeID{"CS-1"}}.compile()
		require.NoError(t, err)
		assert.False(t, cc.admit("CS-1"))
		assert.True(t, cc.admit("CS-2"))
	})

	t.Run("deny wins over allow", func(t *testing.T) {
		cc, err := Config{
			NodeID:         "NN-1",
			AnycastAllowed: []NodeID{"CS-1"},
			AnycastDenied:  []NodeID{"CS-1"},
		}.compile()
		require.NoError(t, err)
		assert.False(t, cc.admit("CS-1"))
	})
}

func TestConfigCompileCopiesLists(t *testing.T) {
	ids := []NodeID{"CS-1"}
	cc, err := Config{NodeID: "NN-1", AnycastAllowed: ids}.compile()
	require.NoError(t, err)

	ids[0] = "CS-2"
	assert.True(t, cc.admit("CS-1"), "compiled sets must not alias the caller's slice")
}

func TestConfigRequestTimeoutOverride(t *testing.T) {
	cc, err := Config{NodeID: "NN-1", RequestTimeout: 5 * time.Second}.compile()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cc.requestTimeout)
}
