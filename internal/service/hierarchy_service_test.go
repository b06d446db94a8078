package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

func addUser(t *testing.T, store *memUserStore, id, name string, role repository.Role, managedBy *string) *repository.User {
	t.Helper()
	user := &repository.User{
		ID:          id,
		DisplayName: name,
		Role:        role,
		ManagedBy:   managedBy,
		IsActive:    true,
	}
	require.NoError(t, store.Create(context.Background(), user))
	if managedBy != nil {
		require.NoError(t, store.AssignManager(context.Background(), id, managedBy))
	}
	return user
}

func strPtr(s string) *string { return &s }

func TestResolveFinanceUserDirectChain(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "bob", "Bob", repository.RoleFinanceUser, nil)
	addUser(t, store, "alice", "Alice", repository.RoleProjectManager, strPtr("bob"))

	id, strategy, err := svc.ResolveFinanceUserForPM(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", id)
	assert.Equal(t, StrategyDirectChain, strategy)
}

func TestResolveFinanceUserReverseIndex(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	// Alice's own managed_by link is broken, but Bob still lists her.
	addUser(t, store, "bob", "Bob", repository.RoleFinanceUser, nil)
	addUser(t, store, "alice", "Alice", repository.RoleProjectManager, nil)
	require.NoError(t, store.ReplaceDirectReports(context.Background(), "bob", []string{"alice"}))
	store.users["alice"].ManagedBy = nil

	id, strategy, err := svc.ResolveFinanceUserForPM(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", id)
	assert.Equal(t, StrategyReverseIndex, strategy)
}

func TestResolveFinanceUserSubmitterChain(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)
	addUser(t, store, "pm", "PM", repository.RoleProjectManager, strPtr("fin"))
	addUser(t, store, "vendor", "Vendor", repository.RoleVendor, strPtr("pm"))

	invoice := &repository.Invoice{ID: "inv-1", SubmittedBy: "vendor"}

	// The invoice has no usable PM link at all.
	id, strategy, err := svc.ResolveFinanceUserForPM(context.Background(), "", invoice)
	require.NoError(t, err)
	assert.Equal(t, "fin", id)
	assert.Equal(t, StrategySubmitterChain, strategy)
}

func TestResolveFinanceUserUnroutable(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "alice", "Alice", repository.RoleProjectManager, nil)
	addUser(t, store, "vendor", "Vendor", repository.RoleVendor, nil)

	invoice := &repository.Invoice{ID: "inv-1", SubmittedBy: "vendor"}

	id, strategy, err := svc.ResolveFinanceUserForPM(context.Background(), "alice", invoice)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, StrategyNone, strategy)
}

func TestResolveSkipsDeactivatedFinanceUser(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "bob", "Bob", repository.RoleFinanceUser, nil)
	addUser(t, store, "alice", "Alice", repository.RoleProjectManager, strPtr("bob"))
	require.NoError(t, store.Deactivate(context.Background(), "bob"))

	id, strategy, err := svc.ResolveFinanceUserForPM(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, StrategyNone, strategy)
}

func TestValidateAssignment(t *testing.T) {
	cases := []struct {
		child, manager repository.Role
		ok             bool
	}{
		{repository.RoleFinanceUser, repository.RoleAdmin, true},
		{repository.RoleProjectManager, repository.RoleFinanceUser, true},
		{repository.RoleVendor, repository.RoleProjectManager, true},

		{repository.RoleFinanceUser, repository.RoleFinanceUser, false},
		{repository.RoleProjectManager, repository.RoleAdmin, false},
		{repository.RoleVendor, repository.RoleFinanceUser, false},
		{repository.RoleVendor, repository.RoleAdmin, false},
		{repository.RoleAdmin, repository.RoleAdmin, false},
	}

	for _, tc := range cases {
		err := ValidateAssignment(tc.child, tc.manager)
		if tc.ok {
			assert.NoError(t, err, "%s managed by %s", tc.child, tc.manager)
		} else {
			require.Error(t, err, "%s managed by %s", tc.child, tc.manager)
			assert.Equal(t, errors.ErrCodeInvalidAssignment, errors.CodeOf(err))
		}
	}
}

func TestAssignManagerRejectsWrongRolePairing(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "admin", "Admin", repository.RoleAdmin, nil)
	addUser(t, store, "vendor", "Vendor", repository.RoleVendor, nil)

	err := svc.AssignManager(context.Background(), "vendor", strPtr("admin"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAssignment, errors.CodeOf(err))

	// The failed call must not have written either edge.
	vendor, _ := store.GetByID(context.Background(), "vendor")
	assert.Nil(t, vendor.ManagedBy)
}

func TestAssignManagerUpdatesBothEdges(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)
	addUser(t, store, "pm", "PM", repository.RoleProjectManager, nil)

	require.NoError(t, svc.AssignManager(context.Background(), "pm", strPtr("fin")))

	pm, _ := store.GetByID(context.Background(), "pm")
	require.NotNil(t, pm.ManagedBy)
	assert.Equal(t, "fin", *pm.ManagedBy)

	fin, _ := store.GetByID(context.Background(), "fin")
	assert.Contains(t, fin.DirectReports, "pm")
}

func TestAssignManagerRejectsDeactivatedManager(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)
	addUser(t, store, "pm", "PM", repository.RoleProjectManager, nil)
	require.NoError(t, store.Deactivate(context.Background(), "fin"))

	err := svc.AssignManager(context.Background(), "pm", strPtr("fin"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAssignment, errors.CodeOf(err))
}

func TestReplaceDirectReportsReconciles(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)
	addUser(t, store, "old", "Old PM", repository.RoleProjectManager, strPtr("fin"))
	addUser(t, store, "new", "New PM", repository.RoleProjectManager, nil)

	require.NoError(t, svc.ReplaceDirectReports(context.Background(), "fin", []string{"new"}))

	// The removed report no longer points at the manager.
	old, _ := store.GetByID(context.Background(), "old")
	assert.Nil(t, old.ManagedBy)

	// The added report points at the manager, and the manager lists exactly it.
	added, _ := store.GetByID(context.Background(), "new")
	require.NotNil(t, added.ManagedBy)
	assert.Equal(t, "fin", *added.ManagedBy)

	fin, _ := store.GetByID(context.Background(), "fin")
	assert.Equal(t, []string{"new"}, fin.DirectReports)
}

func TestReplaceDirectReportsRejectsWrongLevel(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)
	addUser(t, store, "vendor", "Vendor", repository.RoleVendor, nil)

	err := svc.ReplaceDirectReports(context.Background(), "fin", []string{"vendor"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAssignment, errors.CodeOf(err))
}

func TestCreateUserRejectsAdminWithManager(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "root", "Root", repository.RoleAdmin, nil)

	err := svc.CreateUser(context.Background(), &repository.User{
		DisplayName: "Second Admin",
		Role:        repository.RoleAdmin,
		ManagedBy:   strPtr("root"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAssignment, errors.CodeOf(err))
}

func TestCreateUserWithManagerSyncsEdges(t *testing.T) {
	store := newMemUserStore()
	svc := NewHierarchyService(store, testLogger())

	addUser(t, store, "fin", "Fin", repository.RoleFinanceUser, nil)

	user := &repository.User{
		DisplayName: "New PM",
		Role:        repository.RoleProjectManager,
		ManagedBy:   strPtr("fin"),
	}
	require.NoError(t, svc.CreateUser(context.Background(), user))

	fin, _ := store.GetByID(context.Background(), "fin")
	assert.Contains(t, fin.DirectReports, user.ID)
}
