package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
)

func TestIdentity_ResolveLocation(t *testing.T) {
	bartender := inventory.Identity{Actor: "ana", Location: "boston", Role: inventory.RoleBartender}
	auditor := inventory.Identity{Actor: "luis", Location: "boston", Role: inventory.RoleAuditor}

	loc, err := bartender.ResolveLocation("")
	require.NoError(t, err)
	assert.Equal(t, inventory.LocationID("boston"), loc)

	_, err = bartender.ResolveLocation("club-social")
	assert.ErrorIs(t, err, inventory.ErrAccessDenied)

	loc, err = auditor.ResolveLocation("club-social")
	require.NoError(t, err)
	assert.Equal(t, inventory.LocationID("club-social"), loc)

	_, err = inventory.Identity{Actor: "x"}.ResolveLocation("")
	assert.ErrorIs(t, err, inventory.ErrAccessDenied)

	_, err = inventory.Identity{}.ResolveLocation("boston")
	assert.ErrorIs(t, err, inventory.ErrAccessDenied)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, inventory.IsClientError(&inventory.NotPendingError{Label: "X"}))
	assert.False(t, inventory.IsClientError(&inventory.NotFoundError{Kind: "unit", Key: "A1"}))
	assert.True(t, inventory.IsNotFound(&inventory.NotFoundError{Kind: "unit", Key: "A1"}))
	assert.True(t, inventory.IsRetryable(inventory.ErrConcurrentModification))

	err := &inventory.IncompleteReconciliationError{Shift: "2025-03-01", Missing: []string{"GIN", "RON"}}
	assert.Equal(t, "shift 2025-03-01 cannot close: missing closing weight for GIN, RON", err.Error())
}
