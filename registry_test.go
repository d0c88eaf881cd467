package ocppgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDuplicateActionFails(t *testing.T) {
	reg := NewActionRegistry()
	require.NoError(t, RegisterAction[map[string]any](reg, "BootNotification", ActionConfig[map[string]any]{}))

	err := RegisterAction[map[string]any](reg, "BootNotification", ActionConfig[map[string]any]{})
	require.Error(t, err)
	var dup ErrDuplicateAction
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "BootNotification", dup.Action)
}

func TestRegistryFrozenAfterFreeze(t *testing.T) {
	reg := NewActionRegistry()
	require.NoError(t, RegisterAction[map[string]any](reg, "Heartbeat", ActionConfig[map[string]any]{}))
	reg.Freeze()

	err := RegisterAction[map[string]any](reg, "StatusNotification", ActionConfig[map[string]any]{})
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	_, ok := reg.resolve("Heartbeat")
	assert.True(t, ok)
	_, ok = reg.resolve("StatusNotification")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryEmptyActionNameRejected(t *testing.T) {
	reg := NewActionRegistry()
	assert.Error(t, RegisterAction[map[string]any](reg, "", ActionConfig[map[string]any]{}))
}

func TestRegistryActionsSorted(t *testing.T) {
	reg := NewActionRegistry()
	for _, a := range []string{"TransactionEvent", "Authorize", "Heartbeat"} {
		require.NoError(t, RegisterAction[map[string]any](reg, a, ActionConfig[map[string]any]{}))
	}
	assert.Equal(t, []string{"Authorize", "Heartbeat", "TransactionEvent"}, reg.Actions())
}
