package service

import (
	"context"
	"strings"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
)

// InvoiceAdminStore extends the transition store with the read and
// administrative operations the invoice service needs.
type InvoiceAdminStore interface {
	InvoiceStore
	Create(ctx context.Context, invoice *repository.Invoice) error
	ListByStatus(ctx context.Context, status repository.InvoiceStatus, limit, offset int) ([]*repository.Invoice, error)
	ListUnrouted(ctx context.Context) ([]*repository.Invoice, error)
	AssignFinanceUser(ctx context.Context, invoiceID, financeUserID string) error
}

// InvoiceService handles invoice creation, reads and the administrative
// routing repair surface.
type InvoiceService struct {
	invoices InvoiceAdminStore
	users    UserStore
	log      *logger.Logger
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(invoices InvoiceAdminStore, users UserStore, log *logger.Logger) *InvoiceService {
	return &InvoiceService{invoices: invoices, users: users, log: log}
}

// CreateInvoiceRequest represents a create invoice request.
type CreateInvoiceRequest struct {
	InvoiceNumber string
	ProjectID     string
	SubmittedBy   string
	AssignedPM    *string
	AmountCents   int64
	Currency      string
	Description   *string
}

// CreateInvoice creates an invoice in SUBMITTED. The submitter must be an
// active vendor; the assigned PM, when given, must be an active project
// manager.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*repository.Invoice, error) {
	if req.InvoiceNumber == "" {
		return nil, errors.InvalidInput("invoice_number", "invoice number is required")
	}
	if req.ProjectID == "" {
		return nil, errors.InvalidInput("project_id", "project is required")
	}
	if req.AmountCents <= 0 {
		return nil, errors.InvalidInput("amount_cents", "amount must be positive")
	}
	if len(req.Currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	submitter, err := s.users.GetByID(ctx, req.SubmittedBy)
	if err != nil {
		return nil, err
	}
	if submitter.Role != repository.RoleVendor {
		return nil, errors.InvalidInput("submitted_by", "submitter must be a vendor")
	}
	if !submitter.IsActive {
		return nil, errors.InvalidInput("submitted_by", "submitter is deactivated")
	}

	if req.AssignedPM != nil {
		pm, err := s.users.GetByID(ctx, *req.AssignedPM)
		if err != nil {
			return nil, err
		}
		if pm.Role != repository.RoleProjectManager || !pm.IsActive {
			return nil, errors.InvalidInput("assigned_pm", "assigned PM must be an active project manager")
		}
	}

	invoice := &repository.Invoice{
		InvoiceNumber:   req.InvoiceNumber,
		ProjectID:       req.ProjectID,
		Status:          repository.StatusSubmitted,
		SubmittedBy:     req.SubmittedBy,
		AssignedPM:      req.AssignedPM,
		AmountCents:     req.AmountCents,
		Currency:        strings.ToUpper(req.Currency),
		Description:     req.Description,
		PMApproval:      repository.ResetApproval(),
		FinanceApproval: repository.ResetApproval(),
	}

	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("project_id", invoice.ProjectID).
		Str("submitted_by", invoice.SubmittedBy).
		Int64("amount_cents", invoice.AmountCents).
		Msg("Invoice created")

	return invoice, nil
}

// GetInvoice retrieves an invoice by ID.
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (*repository.Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

// ListByStatus lists invoices in a given workflow state.
func (s *InvoiceService) ListByStatus(ctx context.Context, status repository.InvoiceStatus, page, pageSize int) ([]*repository.Invoice, error) {
	offset := (page - 1) * pageSize
	return s.invoices.ListByStatus(ctx, status, pageSize, offset)
}

// ListUnrouted returns invoices flagged as unroutable to finance so operators
// can repair broken hierarchy links.
func (s *InvoiceService) ListUnrouted(ctx context.Context) ([]*repository.Invoice, error) {
	return s.invoices.ListUnrouted(ctx)
}

// AssignFinanceUser manually routes an unresolved invoice to a finance user.
// Admin only; the target must be an active finance user.
func (s *InvoiceService) AssignFinanceUser(ctx context.Context, invoiceID, financeUserID, actorID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != repository.RoleAdmin {
		return errors.New(errors.ErrCodeUnauthorized, "only admins may assign finance users manually")
	}

	target, err := s.users.GetByID(ctx, financeUserID)
	if err != nil {
		return err
	}
	if target.Role != repository.RoleFinanceUser || !target.IsActive {
		return errors.InvalidInput("finance_user_id", "target must be an active finance user")
	}

	if err := s.invoices.AssignFinanceUser(ctx, invoiceID, financeUserID); err != nil {
		return err
	}

	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("finance_user_id", financeUserID).
		Str("assigned_by", actorID).
		Msg("Finance user assigned manually")
	return nil
}
