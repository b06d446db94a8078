package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finflow-io/be-invoice-workflow/internal/database"
	"github.com/finflow-io/be-invoice-workflow/internal/errors"
)

// InvoiceRepository handles invoice reads and the transactional transition
// commit.
type InvoiceRepository struct {
	db    *database.DB
	audit *AuditRepository
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *database.DB, audit *AuditRepository) *InvoiceRepository {
	return &InvoiceRepository{db: db, audit: audit}
}

const invoiceColumns = `
	id, invoice_number, project_id, status,
	submitted_by, assigned_pm, assigned_finance_user, routing_unresolved,
	pm_approval_status, pm_approved_by, pm_approved_by_role, pm_approved_at, pm_notes,
	finance_approval_status, finance_approved_by, finance_approved_by_role, finance_approved_at, finance_notes,
	amount_cents, currency, description,
	created_at, updated_at
`

// Create inserts a new invoice. Approval sub-objects start PENDING.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *Invoice) error {
	query := `
		INSERT INTO invoices
		    (invoice_number, project_id, status, submitted_by, assigned_pm,
		     amount_cents, currency, description)
		VALUES ($1, $2, $3::invoice_status, $4, $5, $6, $7, $8)
		RETURNING id, pm_approval_status, finance_approval_status, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		invoice.InvoiceNumber,
		invoice.ProjectID,
		invoice.Status,
		invoice.SubmittedBy,
		invoice.AssignedPM,
		invoice.AmountCents,
		invoice.Currency,
		invoice.Description,
	).Scan(
		&invoice.ID,
		&invoice.PMApproval.Status,
		&invoice.FinanceApproval.Status,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice")
	}
	return nil
}

// GetByID retrieves an invoice.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	invoice, err := r.scanInvoice(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", id)
	}
	return invoice, err
}

// ListByStatus returns invoices in a given state, newest first.
func (r *InvoiceRepository) ListByStatus(ctx context.Context, status InvoiceStatus, limit, offset int) ([]*Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = $1::invoice_status
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list invoices")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListUnrouted returns invoices flagged for manual finance assignment.
func (r *InvoiceRepository) ListUnrouted(ctx context.Context) ([]*Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE routing_unresolved
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list unrouted invoices")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CommitTransition writes the invoice's post-transition state and its audit
// entry in one transaction. The WHERE clause re-checks the status the engine
// validated against: if a concurrent transition moved the invoice first, no
// row matches and the commit fails with an invalid-transition error instead
// of silently overwriting.
func (r *InvoiceRepository) CommitTransition(ctx context.Context, invoice *Invoice, expected InvoiceStatus, entry *AuditEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE invoices
			SET status                   = $3::invoice_status,
			    assigned_finance_user    = $4,
			    routing_unresolved       = $5,
			    pm_approval_status       = $6::approval_status,
			    pm_approved_by           = $7,
			    pm_approved_by_role      = $8::user_role,
			    pm_approved_at           = $9,
			    pm_notes                 = $10,
			    finance_approval_status  = $11::approval_status,
			    finance_approved_by      = $12,
			    finance_approved_by_role = $13::user_role,
			    finance_approved_at      = $14,
			    finance_notes            = $15,
			    updated_at               = NOW()
			WHERE id = $1 AND status = $2::invoice_status
			RETURNING updated_at
		`

		err := tx.QueryRow(ctx, query,
			invoice.ID,
			expected,
			invoice.Status,
			invoice.AssignedFinanceUser,
			invoice.RoutingUnresolved,
			invoice.PMApproval.Status,
			invoice.PMApproval.ApprovedBy,
			invoice.PMApproval.ApprovedByRole,
			invoice.PMApproval.ApprovedAt,
			invoice.PMApproval.Notes,
			invoice.FinanceApproval.Status,
			invoice.FinanceApproval.ApprovedBy,
			invoice.FinanceApproval.ApprovedByRole,
			invoice.FinanceApproval.ApprovedAt,
			invoice.FinanceApproval.Notes,
		).Scan(&invoice.UpdatedAt)
		if err == pgx.ErrNoRows {
			return errors.Newf(errors.ErrCodeInvalidTransition,
				"invoice %s is no longer in status %s", invoice.ID, expected)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to commit transition")
		}

		return r.audit.AppendTx(ctx, tx, entry)
	})
}

// AssignFinanceUser sets the finance user manually and clears the routing
// flag. Used by the administrative surface for unroutable invoices.
func (r *InvoiceRepository) AssignFinanceUser(ctx context.Context, invoiceID, financeUserID string) error {
	var returnedID string
	err := r.db.QueryRow(ctx, `
		UPDATE invoices
		SET assigned_finance_user = $2,
		    routing_unresolved    = FALSE,
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING id
	`, invoiceID, financeUserID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", invoiceID)
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *InvoiceRepository) scanRows(rows pgx.Rows) ([]*Invoice, error) {
	var invoices []*Invoice
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

type invoiceScanner interface {
	Scan(dest ...any) error
}

func (r *InvoiceRepository) scanInvoice(row invoiceScanner) (*Invoice, error) {
	invoice := &Invoice{}
	err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNumber,
		&invoice.ProjectID,
		&invoice.Status,
		&invoice.SubmittedBy,
		&invoice.AssignedPM,
		&invoice.AssignedFinanceUser,
		&invoice.RoutingUnresolved,
		&invoice.PMApproval.Status,
		&invoice.PMApproval.ApprovedBy,
		&invoice.PMApproval.ApprovedByRole,
		&invoice.PMApproval.ApprovedAt,
		&invoice.PMApproval.Notes,
		&invoice.FinanceApproval.Status,
		&invoice.FinanceApproval.ApprovedBy,
		&invoice.FinanceApproval.ApprovedByRole,
		&invoice.FinanceApproval.ApprovedAt,
		&invoice.FinanceApproval.Notes,
		&invoice.AmountCents,
		&invoice.Currency,
		&invoice.Description,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}
