package service

import (
	"context"
	"fmt"
	"time"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

// InvoiceStore is the invoice read/write store as the engine consumes it.
type InvoiceStore interface {
	GetByID(ctx context.Context, id string) (*repository.Invoice, error)
	// CommitTransition persists the invoice's post-transition state together
	// with exactly one audit entry, failing with an invalid-transition error
	// when the invoice is no longer in the expected status.
	CommitTransition(ctx context.Context, invoice *repository.Invoice, expected repository.InvoiceStatus, entry *repository.AuditEntry) error
}

// AuditLog reads the immutable transition history.
type AuditLog interface {
	History(ctx context.Context, invoiceID string) ([]*repository.AuditEntry, error)
}

// Notifier is the fire-and-forget notification sink. Implementations must
// never fail the transition; delivery problems are their own concern.
type Notifier interface {
	Publish(ctx context.Context, n repository.Notification)
}

// ActionRequest is one requested transition. ActorRole is the canonical role
// the caller claims; it is cross-checked against the stored user record.
type ActionRequest struct {
	InvoiceID string
	Action    repository.Action
	ActorID   string
	ActorRole repository.Role
	Notes     *string
	IPAddress *string
	UserAgent *string
}

// TransitionResult is the outcome of a successful transition.
type TransitionResult struct {
	PreviousStatus     repository.InvoiceStatus
	NewStatus          repository.InvoiceStatus
	AuditEntry         *repository.AuditEntry
	Notifications      []repository.Notification
	RoutingUnresolved  bool
	ResolutionStrategy ResolutionStrategy
}

// WorkflowService validates and applies workflow actions against invoices.
type WorkflowService struct {
	invoices  InvoiceStore
	users     UserStore
	audit     AuditLog
	hierarchy *HierarchyService
	table     *TransitionTable
	notifier  Notifier // nil disables notification publishing
	log       *logger.Logger
}

// NewWorkflowService creates the workflow engine. The transition table is
// built here once and never mutated.
func NewWorkflowService(
	invoices InvoiceStore,
	users UserStore,
	audit AuditLog,
	hierarchy *HierarchyService,
	notifier Notifier,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		invoices:  invoices,
		users:     users,
		audit:     audit,
		hierarchy: hierarchy,
		table:     NewTransitionTable(),
		notifier:  notifier,
		log:       log,
	}
}

// ApplyInvoiceAction runs one transition end to end: role gating, transition
// table lookup, approval sub-object updates, finance-user resolution, and the
// atomic commit of state plus audit entry. On success it returns the new
// status and the notification directives for the dispatcher.
func (s *WorkflowService) ApplyInvoiceAction(ctx context.Context, req *ActionRequest) (*TransitionResult, error) {
	invoice, err := s.invoices.GetByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	actor, err := s.users.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsActive {
		return nil, errors.Newf(errors.ErrCodeForbidden, "user %s is deactivated", actor.ID)
	}
	if req.ActorRole != "" && req.ActorRole != actor.Role {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"claimed role %s does not match user role %s", req.ActorRole, actor.Role)
	}

	// Outer gate: may this role ever use this action?
	if !s.table.RoleMayInvoke(req.Action, actor.Role) {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"role %s may not use action %s", actor.Role, req.Action)
	}

	// Role windows and assignment checks.
	if err := s.checkRoleWindow(invoice, actor, req.Action); err != nil {
		return nil, err
	}

	// Transition table.
	rule, ok := s.table.Lookup(invoice.Status, req.Action)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidTransition,
			"action %s is not valid in status %s", req.Action, invoice.Status)
	}
	if !rule.AllowsRole(actor.Role) {
		return nil, errors.Newf(errors.ErrCodeInvalidTransition,
			"role %s may not take action %s from status %s", actor.Role, req.Action, invoice.Status)
	}

	previous := invoice.Status
	next := s.destination(invoice, rule, req.Action, actor.Role)

	if err := s.applyApprovalEffects(invoice, req.Action, previous, next, actor, req.Notes); err != nil {
		return nil, err
	}

	result := &TransitionResult{
		PreviousStatus: previous,
		NewStatus:      next,
	}

	// First entry into finance review resolves the governing finance user.
	if next == repository.StatusPendingFinanceReview && invoice.AssignedFinanceUser == nil {
		s.resolveFinanceUser(ctx, invoice, result)
	}

	invoice.Status = next

	entry := &repository.AuditEntry{
		InvoiceID:      invoice.ID,
		Action:         req.Action,
		Actor:          actor.DisplayName,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		PreviousStatus: previous,
		NewStatus:      next,
		Notes:          req.Notes,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
	}

	// The commit re-checks the status it loaded; a concurrent transition
	// makes this fail rather than be overwritten.
	if err := s.invoices.CommitTransition(ctx, invoice, previous, entry); err != nil {
		return nil, err
	}

	result.AuditEntry = entry
	result.Notifications = s.buildNotifications(invoice, previous, next)

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("action", string(req.Action)).
		Str("actor_id", actor.ID).
		Str("actor_role", string(actor.Role)).
		Str("previous_status", string(previous)).
		Str("new_status", string(next)).
		Msg("Invoice transition applied")

	if s.notifier != nil {
		for _, n := range result.Notifications {
			s.notifier.Publish(ctx, n)
		}
	}

	return result, nil
}

// History returns the invoice's audit trail, oldest first.
func (s *WorkflowService) History(ctx context.Context, invoiceID string) ([]*repository.AuditEntry, error) {
	return s.audit.History(ctx, invoiceID)
}

// ── Gating ────────────────────────────────────────────────────────────────────

// checkRoleWindow enforces each role's state window and assignment rules.
// Project managers get FORBIDDEN outside their window or off their invoices;
// finance users get INVALID_TRANSITION outside finance review, matching the
// distinction callers rely on.
func (s *WorkflowService) checkRoleWindow(invoice *repository.Invoice, actor *repository.User, action repository.Action) error {
	switch actor.Role {
	case repository.RoleProjectManager:
		switch invoice.Status {
		case repository.StatusSubmitted, repository.StatusPendingPMApproval, repository.StatusMoreInfoNeeded:
		default:
			return errors.Newf(errors.ErrCodeForbidden,
				"project managers may not act on invoices in status %s", invoice.Status)
		}
		if !s.pmOwnsInvoice(invoice, actor) {
			return errors.Newf(errors.ErrCodeForbidden,
				"invoice %s is not assigned to project manager %s", invoice.ID, actor.ID)
		}

	case repository.RoleFinanceUser:
		if invoice.Status != repository.StatusPendingFinanceReview {
			return errors.Newf(errors.ErrCodeInvalidTransition,
				"finance users may only act while an invoice is in %s", repository.StatusPendingFinanceReview)
		}
		if invoice.PMApproval.Status != repository.ApprovalApproved {
			return errors.Newf(errors.ErrCodeInvalidTransition,
				"finance action requires PM approval, found %s", invoice.PMApproval.Status)
		}

	case repository.RoleAdmin:
		if invoice.Status.Terminal() {
			if action != repository.ActionRestore {
				return errors.Newf(errors.ErrCodeInvalidTransition,
					"invoice in terminal status %s cannot be changed", invoice.Status)
			}
			if !invoice.Status.Restorable() {
				return errors.Newf(errors.ErrCodeInvalidTransition,
					"invoices in status %s cannot be restored", invoice.Status)
			}
		}

	case repository.RoleVendor:
		if invoice.Status != repository.StatusMoreInfoNeeded {
			return errors.Newf(errors.ErrCodeInvalidTransition,
				"resubmission is only valid from %s", repository.StatusMoreInfoNeeded)
		}
		if invoice.SubmittedBy != actor.ID {
			return errors.Newf(errors.ErrCodeForbidden,
				"invoice %s was not submitted by %s", invoice.ID, actor.ID)
		}
	}
	return nil
}

func (s *WorkflowService) pmOwnsInvoice(invoice *repository.Invoice, pm *repository.User) bool {
	if invoice.AssignedPM != nil && *invoice.AssignedPM == pm.ID {
		return true
	}
	for _, project := range pm.AssignedProjects {
		if project == invoice.ProjectID {
			return true
		}
	}
	return false
}

// ── Destination and approval effects ──────────────────────────────────────────

// destination computes the next state. A PM approval always lands in finance
// review regardless of whether the invoice was still in intake: the PM
// approval sub-object, not the bare edge, is what advances the pipeline.
func (s *WorkflowService) destination(invoice *repository.Invoice, rule TransitionRule, action repository.Action, role repository.Role) repository.InvoiceStatus {
	if rule.DynamicReturn {
		return ReturnDestination(invoice)
	}
	if action == repository.ActionApprove &&
		role == repository.RoleProjectManager &&
		invoice.Status == repository.StatusSubmitted {
		return repository.StatusPendingFinanceReview
	}
	return rule.Next
}

// applyApprovalEffects updates the approval sub-objects that cause the
// transition. Status and sub-objects are only ever written together.
func (s *WorkflowService) applyApprovalEffects(
	invoice *repository.Invoice,
	action repository.Action,
	previous, next repository.InvoiceStatus,
	actor *repository.User,
	notes *string,
) error {
	switch action {
	case repository.ActionApprove:
		switch next {
		case repository.StatusPendingFinanceReview:
			if previous == repository.StatusMoreInfoNeeded &&
				invoice.FinanceApproval.Status == repository.ApprovalInfoRequested {
				// Info satisfied, finance re-reviews; the PM approval stands.
				invoice.FinanceApproval = repository.ResetApproval()
			} else {
				stampApproval(&invoice.PMApproval, repository.ApprovalApproved, actor, notes)
			}
		case repository.StatusPendingPMApproval:
			if previous == repository.StatusMoreInfoNeeded {
				invoice.PMApproval = repository.ResetApproval()
			}
			// Admin intake acknowledgment from SUBMITTED touches no approval.
		case repository.StatusFinanceApproved:
			stampApproval(&invoice.FinanceApproval, repository.ApprovalApproved, actor, notes)
		default:
			return errors.Newf(errors.ErrCodeInternal,
				"approve cannot produce status %s", next)
		}

	case repository.ActionReject:
		switch next {
		case repository.StatusPMRejected:
			stampApproval(&invoice.PMApproval, repository.ApprovalRejected, actor, notes)
		case repository.StatusFinanceRejected:
			stampApproval(&invoice.FinanceApproval, repository.ApprovalRejected, actor, notes)
		default:
			return errors.Newf(errors.ErrCodeInternal,
				"reject cannot produce status %s", next)
		}

	case repository.ActionRequestInfo:
		if previous == repository.StatusPendingFinanceReview {
			stampApproval(&invoice.FinanceApproval, repository.ApprovalInfoRequested, actor, notes)
		} else {
			stampApproval(&invoice.PMApproval, repository.ApprovalInfoRequested, actor, notes)
		}

	case repository.ActionResubmit:
		if invoice.PMApproval.Status == repository.ApprovalInfoRequested {
			invoice.PMApproval = repository.ResetApproval()
		}
		if invoice.FinanceApproval.Status == repository.ApprovalInfoRequested {
			invoice.FinanceApproval = repository.ResetApproval()
		}

	case repository.ActionSendBack, repository.ActionRestore:
		invoice.PMApproval = repository.ResetApproval()
		invoice.FinanceApproval = repository.ResetApproval()
	}

	return nil
}

func stampApproval(a *repository.Approval, status repository.ApprovalStatus, actor *repository.User, notes *string) {
	now := time.Now().UTC()
	role := actor.Role
	actorID := actor.ID
	a.Status = status
	a.ApprovedBy = &actorID
	a.ApprovedByRole = &role
	a.ApprovedAt = &now
	a.Notes = notes
}

// ── Resolution ────────────────────────────────────────────────────────────────

// resolveFinanceUser derives the finance user on first entry into finance
// review. An unresolvable invoice proceeds but is flagged for manual
// assignment; the engine never guesses a default.
func (s *WorkflowService) resolveFinanceUser(ctx context.Context, invoice *repository.Invoice, result *TransitionResult) {
	pmID := ""
	if invoice.AssignedPM != nil {
		pmID = *invoice.AssignedPM
	}

	financeUserID, strategy, err := s.hierarchy.ResolveFinanceUserForPM(ctx, pmID, invoice)
	if err != nil {
		s.log.Error().Err(err).
			Str("invoice_id", invoice.ID).
			Msg("Finance user resolution failed")
		invoice.RoutingUnresolved = true
		result.RoutingUnresolved = true
		result.ResolutionStrategy = StrategyNone
		return
	}

	result.ResolutionStrategy = strategy
	if financeUserID == "" {
		invoice.RoutingUnresolved = true
		result.RoutingUnresolved = true
		s.log.Warn().
			Str("invoice_id", invoice.ID).
			Str("assigned_pm", pmID).
			Msg("Invoice is unroutable to finance; flagged for manual assignment")
		return
	}

	invoice.AssignedFinanceUser = &financeUserID
	invoice.RoutingUnresolved = false
	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("finance_user_id", financeUserID).
		Str("strategy", string(strategy)).
		Msg("Finance user resolved")
}

// ── Notifications ─────────────────────────────────────────────────────────────

// buildNotifications produces the dispatcher directives for a transition.
func (s *WorkflowService) buildNotifications(invoice *repository.Invoice, previous, next repository.InvoiceStatus) []repository.Notification {
	var out []repository.Notification

	switch next {
	case repository.StatusPendingFinanceReview:
		if invoice.AssignedFinanceUser != nil {
			out = append(out, repository.Notification{
				RecipientID: *invoice.AssignedFinanceUser,
				Subject:     fmt.Sprintf("Invoice %s ready for finance review", invoice.InvoiceNumber),
				Body:        fmt.Sprintf("Invoice %s was approved by its project manager and awaits your review.", invoice.InvoiceNumber),
				Category:    "finance_review",
			})
		}

	case repository.StatusMoreInfoNeeded:
		out = append(out, repository.Notification{
			RecipientID: invoice.SubmittedBy,
			Subject:     fmt.Sprintf("More information requested on invoice %s", invoice.InvoiceNumber),
			Body:        fmt.Sprintf("A reviewer requested more information on invoice %s. Please resubmit with the requested details.", invoice.InvoiceNumber),
			Category:    "info_request",
		})

	case repository.StatusPMRejected, repository.StatusFinanceRejected:
		out = append(out, repository.Notification{
			RecipientID: invoice.SubmittedBy,
			Subject:     fmt.Sprintf("Invoice %s rejected", invoice.InvoiceNumber),
			Body:        fmt.Sprintf("Invoice %s was rejected during review.", invoice.InvoiceNumber),
			Category:    "rejection",
		})

	case repository.StatusFinanceApproved:
		out = append(out, repository.Notification{
			RecipientID: invoice.SubmittedBy,
			Subject:     fmt.Sprintf("Invoice %s approved", invoice.InvoiceNumber),
			Body:        fmt.Sprintf("Invoice %s completed finance review and is approved for payment.", invoice.InvoiceNumber),
			Category:    "approval",
		})

	case repository.StatusPendingPMApproval:
		if invoice.AssignedPM != nil {
			out = append(out, repository.Notification{
				RecipientID: *invoice.AssignedPM,
				Subject:     fmt.Sprintf("Invoice %s awaits your approval", invoice.InvoiceNumber),
				Body:        fmt.Sprintf("Invoice %s moved back into your approval queue.", invoice.InvoiceNumber),
				Category:    "pm_review",
			})
		}
	}

	return out
}
