package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":           RoleAdmin,
		"administrator":   RoleAdmin,
		"finance":         RoleFinanceUser,
		"Finance User":    RoleFinanceUser,
		"FINANCE_USER":    RoleFinanceUser,
		"pm":              RoleProjectManager,
		"Project Manager": RoleProjectManager,
		"project_manager": RoleProjectManager,
		"  vendor  ":      RoleVendor,
	}
	for input, want := range cases {
		got, err := NormalizeRole(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	for _, input := range []string{"", "superuser", "finance-admin"} {
		_, err := NormalizeRole(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestManagerRoleFor(t *testing.T) {
	got, ok := ManagerRoleFor(RoleVendor)
	require.True(t, ok)
	assert.Equal(t, RoleProjectManager, got)

	got, ok = ManagerRoleFor(RoleProjectManager)
	require.True(t, ok)
	assert.Equal(t, RoleFinanceUser, got)

	got, ok = ManagerRoleFor(RoleFinanceUser)
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, got)

	_, ok = ManagerRoleFor(RoleAdmin)
	assert.False(t, ok)
}

func TestStatusPredicates(t *testing.T) {
	terminal := map[InvoiceStatus]bool{
		StatusPMRejected:      true,
		StatusFinanceRejected: true,
		StatusFinanceApproved: true,
	}
	restorable := map[InvoiceStatus]bool{
		StatusPMRejected:      true,
		StatusFinanceRejected: true,
	}

	for _, status := range AllStatuses {
		assert.Equal(t, terminal[status], status.Terminal(), "Terminal(%s)", status)
		assert.Equal(t, restorable[status], status.Restorable(), "Restorable(%s)", status)
	}
}

func TestResetApproval(t *testing.T) {
	a := ResetApproval()
	assert.Equal(t, ApprovalPending, a.Status)
	assert.Nil(t, a.ApprovedBy)
	assert.Nil(t, a.ApprovedAt)
	assert.Nil(t, a.Notes)
}
