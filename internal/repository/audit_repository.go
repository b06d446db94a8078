package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finflow-io/be-invoice-workflow/internal/database"
	"github.com/finflow-io/be-invoice-workflow/internal/errors"
)

// AuditRepository appends and reads immutable workflow audit entries.
// The table has a delete-prevention trigger; append is the only mutation.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsert = `
	INSERT INTO invoice_audit_log
	    (invoice_id, action, actor, actor_id, actor_role,
	     previous_status, new_status, notes, ip_address, user_agent)
	VALUES ($1, $2::workflow_action, $3, $4, $5::user_role,
	        $6::invoice_status, $7::invoice_status, $8, $9, $10)
	RETURNING id, performed_at
`

// Append inserts one audit entry on its own connection. Transition commits
// use AppendTx instead so the entry lands in the same transaction as the
// status change.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	err := r.db.QueryRow(ctx, auditInsert, auditArgs(entry)...).
		Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// AppendTx inserts one audit entry within an existing transaction.
func (r *AuditRepository) AppendTx(ctx context.Context, tx pgx.Tx, entry *AuditEntry) error {
	err := tx.QueryRow(ctx, auditInsert, auditArgs(entry)...).
		Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

func auditArgs(entry *AuditEntry) []any {
	return []any{
		entry.InvoiceID,
		entry.Action,
		entry.Actor,
		entry.ActorID,
		entry.ActorRole,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.Notes,
		entry.IPAddress,
		entry.UserAgent,
	}
}

// History returns the full audit trail for an invoice, oldest first.
func (r *AuditRepository) History(ctx context.Context, invoiceID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, invoice_id, action, actor, actor_id, actor_role,
		       previous_status, new_status, notes, ip_address, user_agent,
		       performed_at
		FROM invoice_audit_log
		WHERE invoice_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit history")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.InvoiceID,
			&entry.Action,
			&entry.Actor,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.Notes,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.PerformedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
