package repository

import (
	"strings"
	"time"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
)

// ── Roles ─────────────────────────────────────────────────────────────────────

// Role is the closed four-value role enumeration. All role strings entering
// the system are normalized through NormalizeRole at the boundary; the core
// only ever sees these values.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleFinanceUser    Role = "FINANCE_USER"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleVendor         Role = "VENDOR"
)

// roleAliases maps the spellings seen in requests and legacy data onto the
// canonical enumeration.
var roleAliases = map[string]Role{
	"admin":           RoleAdmin,
	"administrator":   RoleAdmin,
	"finance_user":    RoleFinanceUser,
	"financeuser":     RoleFinanceUser,
	"finance user":    RoleFinanceUser,
	"finance":         RoleFinanceUser,
	"project_manager": RoleProjectManager,
	"projectmanager":  RoleProjectManager,
	"project manager": RoleProjectManager,
	"pm":              RoleProjectManager,
	"vendor":          RoleVendor,
}

// NormalizeRole converts an arbitrary role spelling into the canonical Role.
func NormalizeRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if role, ok := roleAliases[key]; ok {
		return role, nil
	}
	return "", errors.InvalidInput("role", "unknown role: "+s)
}

// ManagerRoleFor returns the only role allowed to manage the given role.
// Admin users have no manager.
func ManagerRoleFor(r Role) (Role, bool) {
	switch r {
	case RoleFinanceUser:
		return RoleAdmin, true
	case RoleProjectManager:
		return RoleFinanceUser, true
	case RoleVendor:
		return RoleProjectManager, true
	default:
		return "", false
	}
}

// ── Invoice states and actions ────────────────────────────────────────────────

// InvoiceStatus is one of the seven workflow states.
type InvoiceStatus string

const (
	StatusSubmitted            InvoiceStatus = "SUBMITTED"
	StatusPendingPMApproval    InvoiceStatus = "PENDING_PM_APPROVAL"
	StatusPendingFinanceReview InvoiceStatus = "PENDING_FINANCE_REVIEW"
	StatusMoreInfoNeeded       InvoiceStatus = "MORE_INFO_NEEDED"
	StatusPMRejected           InvoiceStatus = "PM_REJECTED"
	StatusFinanceRejected      InvoiceStatus = "FINANCE_REJECTED"
	StatusFinanceApproved      InvoiceStatus = "FINANCE_APPROVED"
)

// AllStatuses lists every workflow state.
var AllStatuses = []InvoiceStatus{
	StatusSubmitted,
	StatusPendingPMApproval,
	StatusPendingFinanceReview,
	StatusMoreInfoNeeded,
	StatusPMRejected,
	StatusFinanceRejected,
	StatusFinanceApproved,
}

// Terminal reports whether no further transition is possible from s, except
// administrative restoration of the rejected states.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPMRejected || s == StatusFinanceRejected || s == StatusFinanceApproved
}

// Restorable reports whether an Admin may reopen an invoice in this state.
// Finance-approved invoices are final for good.
func (s InvoiceStatus) Restorable() bool {
	return s == StatusPMRejected || s == StatusFinanceRejected
}

// Action is a workflow action requested by an actor.
type Action string

const (
	ActionApprove     Action = "APPROVE"
	ActionReject      Action = "REJECT"
	ActionRequestInfo Action = "REQUEST_INFO"
	ActionResubmit    Action = "RESUBMIT"
	ActionSendBack    Action = "SEND_BACK"
	ActionRestore     Action = "RESTORE"
)

// AllActions lists every workflow action.
var AllActions = []Action{
	ActionApprove,
	ActionReject,
	ActionRequestInfo,
	ActionResubmit,
	ActionSendBack,
	ActionRestore,
}

// ApprovalStatus is the state of one approval sub-object.
type ApprovalStatus string

const (
	ApprovalPending       ApprovalStatus = "PENDING"
	ApprovalApproved      ApprovalStatus = "APPROVED"
	ApprovalRejected      ApprovalStatus = "REJECTED"
	ApprovalInfoRequested ApprovalStatus = "INFO_REQUESTED"
)

// ── Entities ──────────────────────────────────────────────────────────────────

// User is a member of the four-level management hierarchy.
type User struct {
	ID               string
	DisplayName      string
	Role             Role
	ManagedBy        *string  // the direct superior, one level up
	DirectReports    []string // manager-side edge; may drift from ManagedBy until reconciled
	AssignedProjects []string // meaningful for project managers only
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Approval is one stage's approval sub-object. It is only ever written by the
// workflow engine as part of a transition, never independently of one.
type Approval struct {
	Status         ApprovalStatus
	ApprovedBy     *string
	ApprovedByRole *Role
	ApprovedAt     *time.Time
	Notes          *string
}

// ResetApproval returns a pristine pending approval.
func ResetApproval() Approval {
	return Approval{Status: ApprovalPending}
}

// Invoice is the workflow subject.
type Invoice struct {
	ID                  string
	InvoiceNumber       string
	ProjectID           string
	Status              InvoiceStatus
	SubmittedBy         string // vendor user ID
	AssignedPM          *string
	AssignedFinanceUser *string // resolved automatically, never entered by a human
	RoutingUnresolved   bool
	PMApproval          Approval
	FinanceApproval     Approval
	AmountCents         int64
	Currency            string
	Description         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AuditEntry is one immutable record of a transition.
type AuditEntry struct {
	ID             string
	InvoiceID      string
	Action         Action
	Actor          string // display name
	ActorID        string
	ActorRole      Role
	PreviousStatus InvoiceStatus
	NewStatus      InvoiceStatus
	Notes          *string
	IPAddress      *string
	UserAgent      *string
	PerformedAt    time.Time
}

// Notification is a directive for the external notification dispatcher.
type Notification struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Category    string `json:"category"`
}
