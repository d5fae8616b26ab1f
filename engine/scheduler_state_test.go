package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantStateTransitions(t *testing.T) {
	s := &Scheduler{states: make(map[string]TenantState)}

	require.Equal(t, StateIdle, s.State("tenant-1"))
	require.True(t, s.markDue("tenant-1"))
	require.Equal(t, StateDue, s.State("tenant-1"))

	s.setState("tenant-1", StateRunning)
	require.False(t, s.markDue("tenant-1"), "a tenant still running from an earlier tick stays running")
	require.Equal(t, StateRunning, s.State("tenant-1"))

	s.setState("tenant-1", StateSettled)
	require.Equal(t, StateSettled, s.State("tenant-1"))
	require.True(t, s.markDue("tenant-1"), "a settled tenant can be marked due again")
}
