package service

import (
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

// transitionKey identifies one edge of the state machine.
type transitionKey struct {
	From   repository.InvoiceStatus
	Action repository.Action
}

// TransitionRule is one legal state-machine edge.
type TransitionRule struct {
	// Next is the destination state. Ignored when DynamicReturn is set.
	Next repository.InvoiceStatus
	// Roles that may take this edge. Role windows and assignment checks are
	// enforced by the engine before the edge is consulted.
	Roles []repository.Role
	// DynamicReturn marks the edge out of MORE_INFO_NEEDED whose destination
	// depends on which stage requested the information.
	DynamicReturn bool
}

// AllowsRole reports whether role may take this edge.
func (r TransitionRule) AllowsRole(role repository.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// TransitionTable is the immutable set of legal transitions. It is built once
// and injected into the workflow engine; nothing mutates it afterwards.
type TransitionTable struct {
	edges map[transitionKey]TransitionRule
	// actionRoles is the outer gate: which roles may ever invoke an action,
	// in any state. A role outside this set gets Unauthorized, not
	// InvalidTransition.
	actionRoles map[repository.Action][]repository.Role
}

// NewTransitionTable builds the workflow's transition table. Admin-only edges
// (intake acknowledgment, restore) are listed explicitly; there is no
// fallback branch that advances unlisted states.
func NewTransitionTable() *TransitionTable {
	pmAdmin := []repository.Role{repository.RoleProjectManager, repository.RoleAdmin}
	finAdmin := []repository.Role{repository.RoleFinanceUser, repository.RoleAdmin}
	adminOnly := []repository.Role{repository.RoleAdmin}
	vendorOnly := []repository.Role{repository.RoleVendor}

	edges := map[transitionKey]TransitionRule{
		{repository.StatusSubmitted, repository.ActionApprove}:     {Next: repository.StatusPendingPMApproval, Roles: pmAdmin},
		{repository.StatusSubmitted, repository.ActionReject}:      {Next: repository.StatusPMRejected, Roles: pmAdmin},
		{repository.StatusSubmitted, repository.ActionRequestInfo}: {Next: repository.StatusMoreInfoNeeded, Roles: pmAdmin},

		{repository.StatusPendingPMApproval, repository.ActionApprove}:     {Next: repository.StatusPendingFinanceReview, Roles: pmAdmin},
		{repository.StatusPendingPMApproval, repository.ActionReject}:      {Next: repository.StatusPMRejected, Roles: pmAdmin},
		{repository.StatusPendingPMApproval, repository.ActionRequestInfo}: {Next: repository.StatusMoreInfoNeeded, Roles: pmAdmin},

		{repository.StatusPendingFinanceReview, repository.ActionApprove}:     {Next: repository.StatusFinanceApproved, Roles: finAdmin},
		{repository.StatusPendingFinanceReview, repository.ActionReject}:      {Next: repository.StatusFinanceRejected, Roles: finAdmin},
		{repository.StatusPendingFinanceReview, repository.ActionRequestInfo}: {Next: repository.StatusMoreInfoNeeded, Roles: finAdmin},
		{repository.StatusPendingFinanceReview, repository.ActionSendBack}:    {Next: repository.StatusPendingPMApproval, Roles: finAdmin},

		{repository.StatusMoreInfoNeeded, repository.ActionApprove}:     {Roles: pmAdmin, DynamicReturn: true},
		{repository.StatusMoreInfoNeeded, repository.ActionReject}:      {Next: repository.StatusPMRejected, Roles: pmAdmin},
		{repository.StatusMoreInfoNeeded, repository.ActionRequestInfo}: {Next: repository.StatusMoreInfoNeeded, Roles: pmAdmin},
		{repository.StatusMoreInfoNeeded, repository.ActionResubmit}:    {Next: repository.StatusPendingPMApproval, Roles: vendorOnly},

		{repository.StatusPMRejected, repository.ActionRestore}:      {Next: repository.StatusPendingPMApproval, Roles: adminOnly},
		{repository.StatusFinanceRejected, repository.ActionRestore}: {Next: repository.StatusPendingPMApproval, Roles: adminOnly},
	}

	actionRoles := map[repository.Action][]repository.Role{
		repository.ActionApprove:     {repository.RoleProjectManager, repository.RoleFinanceUser, repository.RoleAdmin},
		repository.ActionReject:      {repository.RoleProjectManager, repository.RoleFinanceUser, repository.RoleAdmin},
		repository.ActionRequestInfo: {repository.RoleProjectManager, repository.RoleFinanceUser, repository.RoleAdmin},
		repository.ActionResubmit:    {repository.RoleVendor},
		repository.ActionSendBack:    {repository.RoleFinanceUser, repository.RoleAdmin},
		repository.ActionRestore:     {repository.RoleAdmin},
	}

	return &TransitionTable{edges: edges, actionRoles: actionRoles}
}

// Lookup returns the rule for a (state, action) pair.
func (t *TransitionTable) Lookup(from repository.InvoiceStatus, action repository.Action) (TransitionRule, bool) {
	rule, ok := t.edges[transitionKey{From: from, Action: action}]
	return rule, ok
}

// RoleMayInvoke reports whether a role may use an action in any state at all.
func (t *TransitionTable) RoleMayInvoke(action repository.Action, role repository.Role) bool {
	for _, allowed := range t.actionRoles[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// ReturnDestination resolves the dynamic edge out of MORE_INFO_NEEDED: the
// invoice goes back to whichever stage requested the information. Finance
// requests win; anything else (PM requested, or undetermined) returns to the
// PM stage.
func ReturnDestination(invoice *repository.Invoice) repository.InvoiceStatus {
	if invoice.FinanceApproval.Status == repository.ApprovalInfoRequested {
		return repository.StatusPendingFinanceReview
	}
	return repository.StatusPendingPMApproval
}
