package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "disabled", ServiceName: "test"})
}

// ── user store fake ───────────────────────────────────────────────────────────

type memUserStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*repository.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*repository.User)}
}

func (s *memUserStore) Create(ctx context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", s.seq)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return cloneUser(user), nil
}

func (s *memUserStore) FindManagerListing(ctx context.Context, reportID string, role repository.Role) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Role != role || !user.IsActive {
			continue
		}
		for _, report := range user.DirectReports {
			if report == reportID {
				return cloneUser(user), nil
			}
		}
	}
	return nil, nil
}

func (s *memUserStore) AssignManager(ctx context.Context, userID string, managerID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	child, ok := s.users[userID]
	if !ok {
		return errors.NotFound("user", userID)
	}
	child.ManagedBy = managerID

	for _, user := range s.users {
		user.DirectReports = remove(user.DirectReports, userID)
	}
	if managerID != nil {
		manager, ok := s.users[*managerID]
		if !ok {
			return errors.NotFound("user", *managerID)
		}
		manager.DirectReports = append(manager.DirectReports, userID)
	}
	return nil
}

func (s *memUserStore) ReplaceDirectReports(ctx context.Context, managerID string, reportIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	manager, ok := s.users[managerID]
	if !ok {
		return errors.NotFound("user", managerID)
	}

	listed := make(map[string]bool, len(reportIDs))
	for _, id := range reportIDs {
		listed[id] = true
	}

	for _, user := range s.users {
		if user.ManagedBy != nil && *user.ManagedBy == managerID && !listed[user.ID] {
			user.ManagedBy = nil
		}
	}
	for _, id := range reportIDs {
		if report, ok := s.users[id]; ok {
			mgr := managerID
			report.ManagedBy = &mgr
		}
		for _, other := range s.users {
			if other.ID != managerID {
				other.DirectReports = remove(other.DirectReports, id)
			}
		}
	}
	manager.DirectReports = append([]string(nil), reportIDs...)
	return nil
}

func (s *memUserStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errors.NotFound("user", id)
	}
	user.IsActive = false
	return nil
}

func cloneUser(u *repository.User) *repository.User {
	c := *u
	c.DirectReports = append([]string(nil), u.DirectReports...)
	c.AssignedProjects = append([]string(nil), u.AssignedProjects...)
	return &c
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ── invoice store fake ────────────────────────────────────────────────────────

type memInvoiceStore struct {
	mu       sync.Mutex
	seq      int
	invoices map[string]*repository.Invoice
	audit    map[string][]*repository.AuditEntry

	// preCommit, when set, runs at the start of CommitTransition. Tests use
	// it to simulate a concurrent transition landing first.
	preCommit func()
}

func newMemInvoiceStore() *memInvoiceStore {
	return &memInvoiceStore{
		invoices: make(map[string]*repository.Invoice),
		audit:    make(map[string][]*repository.AuditEntry),
	}
}

func (s *memInvoiceStore) Create(ctx context.Context, invoice *repository.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if invoice.ID == "" {
		invoice.ID = fmt.Sprintf("inv-%d", s.seq)
	}
	invoice.CreatedAt = time.Now()
	invoice.UpdatedAt = invoice.CreatedAt
	s.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (s *memInvoiceStore) GetByID(ctx context.Context, id string) (*repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[id]
	if !ok {
		return nil, errors.NotFound("invoice", id)
	}
	return cloneInvoice(invoice), nil
}

func (s *memInvoiceStore) ListByStatus(ctx context.Context, status repository.InvoiceStatus, limit, offset int) ([]*repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Invoice
	for _, invoice := range s.invoices {
		if invoice.Status == status {
			out = append(out, cloneInvoice(invoice))
		}
	}
	return out, nil
}

func (s *memInvoiceStore) ListUnrouted(ctx context.Context) ([]*repository.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.Invoice
	for _, invoice := range s.invoices {
		if invoice.RoutingUnresolved {
			out = append(out, cloneInvoice(invoice))
		}
	}
	return out, nil
}

func (s *memInvoiceStore) CommitTransition(ctx context.Context, invoice *repository.Invoice, expected repository.InvoiceStatus, entry *repository.AuditEntry) error {
	if s.preCommit != nil {
		s.preCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invoices[invoice.ID]
	if !ok {
		return errors.NotFound("invoice", invoice.ID)
	}
	if stored.Status != expected {
		return errors.Newf(errors.ErrCodeInvalidTransition,
			"invoice %s is no longer in status %s", invoice.ID, expected)
	}

	invoice.UpdatedAt = time.Now()
	s.invoices[invoice.ID] = cloneInvoice(invoice)

	entry.ID = fmt.Sprintf("audit-%d", len(s.audit[invoice.ID])+1)
	entry.PerformedAt = time.Now()
	s.audit[invoice.ID] = append(s.audit[invoice.ID], entry)
	return nil
}

func (s *memInvoiceStore) AssignFinanceUser(ctx context.Context, invoiceID, financeUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return errors.NotFound("invoice", invoiceID)
	}
	invoice.AssignedFinanceUser = &financeUserID
	invoice.RoutingUnresolved = false
	return nil
}

// History implements AuditLog on the same fake.
func (s *memInvoiceStore) History(ctx context.Context, invoiceID string) ([]*repository.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*repository.AuditEntry(nil), s.audit[invoiceID]...), nil
}

func (s *memInvoiceStore) auditCount(invoiceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit[invoiceID])
}

func cloneInvoice(inv *repository.Invoice) *repository.Invoice {
	c := *inv
	return &c
}

// ── notifier fake ─────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu        sync.Mutex
	published []repository.Notification
}

func (n *recordingNotifier) Publish(ctx context.Context, notification repository.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, notification)
}
