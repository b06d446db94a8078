package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finflow-io/be-invoice-workflow/internal/database"
	"github.com/finflow-io/be-invoice-workflow/internal/errors"
)

// UserRepository is the hierarchy store. It maintains both hierarchy edges:
// the child-side managed_by column and the manager-side direct_reports array.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, display_name, role, managed_by,
	direct_reports, assigned_projects, is_active,
	created_at, updated_at
`

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (display_name, role, managed_by, direct_reports, assigned_projects, is_active)
		VALUES ($1, $2::user_role, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		user.DisplayName,
		user.Role,
		user.ManagedBy,
		user.DirectReports,
		user.AssignedProjects,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create user")
	}
	return nil
}

// GetByID retrieves a user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := r.scanUser(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	return user, err
}

// FindManagerListing returns the active user of the given role whose
// direct_reports contains reportID, or nil when no such user exists. This is
// the reverse index: it answers even when the report's own managed_by link
// is missing.
func (r *UserRepository) FindManagerListing(ctx context.Context, reportID string, role Role) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $2::user_role
		  AND is_active
		  AND $1 = ANY(direct_reports)
		ORDER BY created_at ASC
		LIMIT 1
	`

	user, err := r.scanUser(r.db.QueryRow(ctx, query, reportID, role))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// AssignManager points a user at a new manager (or unassigns with nil),
// keeping both hierarchy edges in sync: the user is removed from every other
// manager's direct_reports and added to the new manager's.
func (r *UserRepository) AssignManager(ctx context.Context, userID string, managerID *string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var returnedID string
		err := tx.QueryRow(ctx, `
			UPDATE users SET managed_by = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING id
		`, userID, managerID).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("user", userID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign manager")
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET direct_reports = array_remove(direct_reports, $1), updated_at = NOW()
			WHERE $1 = ANY(direct_reports)
		`, userID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear previous manager edge")
		}

		if managerID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE users SET direct_reports = array_append(direct_reports, $1), updated_at = NOW()
				WHERE id = $2
			`, userID, *managerID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to record manager edge")
			}
		}
		return nil
	})
}

// ReplaceDirectReports swaps a manager's full set of direct reports in one
// transaction: reports no longer listed are unassigned, newly listed ones
// are assigned, and the manager-side array is rewritten.
func (r *UserRepository) ReplaceDirectReports(ctx context.Context, managerID string, reportIDs []string) error {
	if reportIDs == nil {
		reportIDs = []string{}
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// Unassign reports the manager no longer claims.
		_, err := tx.Exec(ctx, `
			UPDATE users SET managed_by = NULL, updated_at = NOW()
			WHERE managed_by = $1 AND NOT (id = ANY($2))
		`, managerID, reportIDs)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to unassign removed reports")
		}

		// Assign every listed report to this manager.
		if len(reportIDs) > 0 {
			_, err = tx.Exec(ctx, `
				UPDATE users SET managed_by = $1, updated_at = NOW()
				WHERE id = ANY($2)
			`, managerID, reportIDs)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign listed reports")
			}

			// Listed reports must not remain on any other manager's array.
			_, err = tx.Exec(ctx, `
				UPDATE users
				SET direct_reports = (
					SELECT COALESCE(array_agg(r), '{}') FROM unnest(direct_reports) AS r
					WHERE NOT (r = ANY($2))
				), updated_at = NOW()
				WHERE id <> $1 AND direct_reports && $2
			`, managerID, reportIDs)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear stale manager edges")
			}
		}

		var returnedID string
		err = tx.QueryRow(ctx, `
			UPDATE users SET direct_reports = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING id
		`, managerID, reportIDs).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("user", managerID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to replace direct reports")
		}
		return nil
	})
}

// Deactivate soft-deletes a user. Deactivated users keep their history but
// are excluded from resolution and may not act.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	var returnedID string
	err := r.db.QueryRow(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("user", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type userScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row userScanner) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Role,
		&user.ManagedBy,
		&user.DirectReports,
		&user.AssignedProjects,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
