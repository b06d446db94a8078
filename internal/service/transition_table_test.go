package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

func TestTransitionTableEdges(t *testing.T) {
	table := NewTransitionTable()

	expected := map[transitionKey]repository.InvoiceStatus{
		{repository.StatusSubmitted, repository.ActionApprove}:     repository.StatusPendingPMApproval,
		{repository.StatusSubmitted, repository.ActionReject}:      repository.StatusPMRejected,
		{repository.StatusSubmitted, repository.ActionRequestInfo}: repository.StatusMoreInfoNeeded,

		{repository.StatusPendingPMApproval, repository.ActionApprove}:     repository.StatusPendingFinanceReview,
		{repository.StatusPendingPMApproval, repository.ActionReject}:      repository.StatusPMRejected,
		{repository.StatusPendingPMApproval, repository.ActionRequestInfo}: repository.StatusMoreInfoNeeded,

		{repository.StatusPendingFinanceReview, repository.ActionApprove}:     repository.StatusFinanceApproved,
		{repository.StatusPendingFinanceReview, repository.ActionReject}:      repository.StatusFinanceRejected,
		{repository.StatusPendingFinanceReview, repository.ActionRequestInfo}: repository.StatusMoreInfoNeeded,
		{repository.StatusPendingFinanceReview, repository.ActionSendBack}:    repository.StatusPendingPMApproval,

		{repository.StatusMoreInfoNeeded, repository.ActionReject}:      repository.StatusPMRejected,
		{repository.StatusMoreInfoNeeded, repository.ActionRequestInfo}: repository.StatusMoreInfoNeeded,
		{repository.StatusMoreInfoNeeded, repository.ActionResubmit}:    repository.StatusPendingPMApproval,

		{repository.StatusPMRejected, repository.ActionRestore}:      repository.StatusPendingPMApproval,
		{repository.StatusFinanceRejected, repository.ActionRestore}: repository.StatusPendingPMApproval,
	}

	for key, next := range expected {
		rule, ok := table.Lookup(key.From, key.Action)
		require.True(t, ok, "missing edge %s/%s", key.From, key.Action)
		assert.Equal(t, next, rule.Next, "edge %s/%s", key.From, key.Action)
	}

	// The return edge out of MORE_INFO_NEEDED is dynamic.
	rule, ok := table.Lookup(repository.StatusMoreInfoNeeded, repository.ActionApprove)
	require.True(t, ok)
	assert.True(t, rule.DynamicReturn)

	// Everything else is off the table.
	for _, from := range repository.AllStatuses {
		for _, action := range repository.AllActions {
			key := transitionKey{From: from, Action: action}
			_, defined := expected[key]
			dynamic := from == repository.StatusMoreInfoNeeded && action == repository.ActionApprove
			_, ok := table.Lookup(from, action)
			assert.Equal(t, defined || dynamic, ok, "edge %s/%s", from, action)
		}
	}
}

func TestTerminalStatesHaveOnlyRestoreEdges(t *testing.T) {
	table := NewTransitionTable()

	for _, from := range []repository.InvoiceStatus{
		repository.StatusPMRejected,
		repository.StatusFinanceRejected,
		repository.StatusFinanceApproved,
	} {
		for _, action := range repository.AllActions {
			rule, ok := table.Lookup(from, action)
			if !ok {
				continue
			}
			require.Equal(t, repository.ActionRestore, action, "unexpected edge %s/%s", from, action)
			require.True(t, from.Restorable(), "restore edge from unrestorable state %s", from)
			assert.Equal(t, []repository.Role{repository.RoleAdmin}, rule.Roles)
		}
	}

	// Finance-approved invoices are final: no edge at all.
	_, ok := table.Lookup(repository.StatusFinanceApproved, repository.ActionRestore)
	assert.False(t, ok)
}

func TestRoleMayInvoke(t *testing.T) {
	table := NewTransitionTable()

	assert.True(t, table.RoleMayInvoke(repository.ActionApprove, repository.RoleProjectManager))
	assert.True(t, table.RoleMayInvoke(repository.ActionApprove, repository.RoleFinanceUser))
	assert.True(t, table.RoleMayInvoke(repository.ActionApprove, repository.RoleAdmin))
	assert.False(t, table.RoleMayInvoke(repository.ActionApprove, repository.RoleVendor))

	assert.True(t, table.RoleMayInvoke(repository.ActionResubmit, repository.RoleVendor))
	assert.False(t, table.RoleMayInvoke(repository.ActionResubmit, repository.RoleAdmin))

	assert.True(t, table.RoleMayInvoke(repository.ActionRestore, repository.RoleAdmin))
	assert.False(t, table.RoleMayInvoke(repository.ActionRestore, repository.RoleProjectManager))
	assert.False(t, table.RoleMayInvoke(repository.ActionRestore, repository.RoleFinanceUser))

	assert.True(t, table.RoleMayInvoke(repository.ActionSendBack, repository.RoleFinanceUser))
	assert.False(t, table.RoleMayInvoke(repository.ActionSendBack, repository.RoleProjectManager))
}

func TestReturnDestination(t *testing.T) {
	financeRequested := &repository.Invoice{
		PMApproval:      repository.Approval{Status: repository.ApprovalApproved},
		FinanceApproval: repository.Approval{Status: repository.ApprovalInfoRequested},
	}
	assert.Equal(t, repository.StatusPendingFinanceReview, ReturnDestination(financeRequested))

	pmRequested := &repository.Invoice{
		PMApproval:      repository.Approval{Status: repository.ApprovalInfoRequested},
		FinanceApproval: repository.Approval{Status: repository.ApprovalPending},
	}
	assert.Equal(t, repository.StatusPendingPMApproval, ReturnDestination(pmRequested))

	// Undetermined defaults to the PM stage.
	undetermined := &repository.Invoice{
		PMApproval:      repository.Approval{Status: repository.ApprovalPending},
		FinanceApproval: repository.Approval{Status: repository.ApprovalPending},
	}
	assert.Equal(t, repository.StatusPendingPMApproval, ReturnDestination(undetermined))
}
