package service

import (
	"context"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

// UserStore is the hierarchy store as the services consume it. The real
// implementation is the Postgres user repository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*repository.User, error)
	// FindManagerListing returns the active user of the given role whose
	// direct reports contain reportID, or nil when none does.
	FindManagerListing(ctx context.Context, reportID string, role repository.Role) (*repository.User, error)
	AssignManager(ctx context.Context, userID string, managerID *string) error
	ReplaceDirectReports(ctx context.Context, managerID string, reportIDs []string) error
}

// ResolutionStrategy identifies which resolver strategy produced a result.
type ResolutionStrategy string

const (
	StrategyDirectChain    ResolutionStrategy = "direct_chain"
	StrategyReverseIndex   ResolutionStrategy = "reverse_index"
	StrategySubmitterChain ResolutionStrategy = "submitter_chain"
	StrategyNone           ResolutionStrategy = "none"
)

// UserAdminStore extends UserStore with provisioning operations.
type UserAdminStore interface {
	UserStore
	Create(ctx context.Context, user *repository.User) error
	Deactivate(ctx context.Context, id string) error
}

// HierarchyService owns user provisioning, hierarchy edits and finance-user
// resolution.
type HierarchyService struct {
	users UserAdminStore
	log   *logger.Logger
}

// NewHierarchyService creates a new HierarchyService.
func NewHierarchyService(users UserAdminStore, log *logger.Logger) *HierarchyService {
	return &HierarchyService{users: users, log: log}
}

// CreateUser provisions a user. An initial manager, when given, is validated
// against the parent-role table.
func (s *HierarchyService) CreateUser(ctx context.Context, user *repository.User) error {
	if user.DisplayName == "" {
		return errors.InvalidInput("display_name", "display name is required")
	}
	if user.Role == repository.RoleAdmin && user.ManagedBy != nil {
		return errors.New(errors.ErrCodeInvalidAssignment, "ADMIN users have no manager")
	}
	if user.ManagedBy != nil {
		manager, err := s.users.GetByID(ctx, *user.ManagedBy)
		if err != nil {
			return err
		}
		if err := ValidateAssignment(user.Role, manager.Role); err != nil {
			return err
		}
	}

	user.IsActive = true
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	// Keep the manager-side edge in sync with the initial assignment.
	if user.ManagedBy != nil {
		if err := s.users.AssignManager(ctx, user.ID, user.ManagedBy); err != nil {
			return err
		}
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("User provisioned")
	return nil
}

// DeactivateUser soft-deletes a user; referenced invoices keep their history.
func (s *HierarchyService) DeactivateUser(ctx context.Context, id string) error {
	if err := s.users.Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id).Msg("User deactivated")
	return nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// ResolveFinanceUserForPM derives the finance user governing a project
// manager. Strategies run in priority order, stopping at the first success:
//
//  1. direct chain: the PM's managed_by, when it points at a finance user
//  2. reverse index: the finance user whose direct reports list the PM
//  3. submitter chain: invoice submitter (vendor) → their PM → that PM's
//     finance user
//
// An empty result with StrategyNone means the invoice is unroutable; callers
// must flag it rather than pick a default.
func (s *HierarchyService) ResolveFinanceUserForPM(ctx context.Context, pmID string, invoice *repository.Invoice) (string, ResolutionStrategy, error) {
	// Strategy 1: direct chain.
	if pmID != "" {
		pm, err := s.users.GetByID(ctx, pmID)
		if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
			return "", StrategyNone, err
		}
		if pm != nil && pm.ManagedBy != nil {
			manager, err := s.users.GetByID(ctx, *pm.ManagedBy)
			if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
				return "", StrategyNone, err
			}
			if manager != nil && manager.Role == repository.RoleFinanceUser && manager.IsActive {
				return manager.ID, StrategyDirectChain, nil
			}
		}

		// Strategy 2: reverse index over the manager-side edge.
		manager, err := s.users.FindManagerListing(ctx, pmID, repository.RoleFinanceUser)
		if err != nil {
			return "", StrategyNone, err
		}
		if manager != nil {
			return manager.ID, StrategyReverseIndex, nil
		}
	}

	// Strategy 3: walk up from the invoice's original submitter.
	if invoice != nil && invoice.SubmittedBy != "" {
		if id, ok, err := s.resolveViaSubmitter(ctx, invoice.SubmittedBy); err != nil {
			return "", StrategyNone, err
		} else if ok {
			return id, StrategySubmitterChain, nil
		}
	}

	return "", StrategyNone, nil
}

func (s *HierarchyService) resolveViaSubmitter(ctx context.Context, submitterID string) (string, bool, error) {
	vendor, err := s.users.GetByID(ctx, submitterID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if vendor.ManagedBy == nil {
		return "", false, nil
	}

	pm, err := s.users.GetByID(ctx, *vendor.ManagedBy)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if pm.Role != repository.RoleProjectManager || pm.ManagedBy == nil {
		return "", false, nil
	}

	fin, err := s.users.GetByID(ctx, *pm.ManagedBy)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if fin.Role != repository.RoleFinanceUser || !fin.IsActive {
		return "", false, nil
	}
	return fin.ID, true, nil
}

// ── Assignment validation ─────────────────────────────────────────────────────

// ValidateAssignment enforces the parent-role table: a finance user reports
// to an admin, a project manager to a finance user, a vendor to a project
// manager. Anything else is rejected with the allowed manager role named.
func ValidateAssignment(childRole, managerRole repository.Role) error {
	allowed, ok := repository.ManagerRoleFor(childRole)
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidAssignment,
			"%s users have no manager", childRole)
	}
	if managerRole != allowed {
		return errors.Newf(errors.ErrCodeInvalidAssignment,
			"a %s must be managed by a %s, not a %s", childRole, allowed, managerRole)
	}
	return nil
}

// ── Mutations ─────────────────────────────────────────────────────────────────

// AssignManager points a user at a new manager, or unassigns it with a nil
// managerID. The parent-role invariant is re-validated before any write.
func (s *HierarchyService) AssignManager(ctx context.Context, userID string, managerID *string) error {
	child, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if managerID == nil {
		if err := s.users.AssignManager(ctx, userID, nil); err != nil {
			return err
		}
		s.log.Info().Str("user_id", userID).Msg("Manager unassigned")
		return nil
	}

	manager, err := s.users.GetByID(ctx, *managerID)
	if err != nil {
		return err
	}
	if !manager.IsActive {
		return errors.Newf(errors.ErrCodeInvalidAssignment,
			"manager %s is deactivated", manager.ID)
	}
	if err := ValidateAssignment(child.Role, manager.Role); err != nil {
		return err
	}

	if err := s.users.AssignManager(ctx, userID, managerID); err != nil {
		return err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("manager_id", *managerID).
		Str("role", string(child.Role)).
		Msg("Manager assigned")
	return nil
}

// ReplaceDirectReports swaps a manager's full set of direct reports as one
// logical operation. Every listed report is validated against the parent-role
// table first; the store applies the reconciliation atomically so no child is
// left pointing at a manager that no longer claims it.
func (s *HierarchyService) ReplaceDirectReports(ctx context.Context, managerID string, reportIDs []string) error {
	manager, err := s.users.GetByID(ctx, managerID)
	if err != nil {
		return err
	}

	for _, reportID := range reportIDs {
		report, err := s.users.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		if err := ValidateAssignment(report.Role, manager.Role); err != nil {
			return err
		}
	}

	if err := s.users.ReplaceDirectReports(ctx, managerID, reportIDs); err != nil {
		return err
	}

	s.log.Info().
		Str("manager_id", managerID).
		Int("report_count", len(reportIDs)).
		Msg("Direct reports replaced")
	return nil
}
