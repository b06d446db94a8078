package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/finflow-io/be-invoice-workflow/internal/errors"
	"github.com/finflow-io/be-invoice-workflow/internal/logger"
	"github.com/finflow-io/be-invoice-workflow/internal/repository"
	"github.com/finflow-io/be-invoice-workflow/internal/service"
)

// HTTPHandler is the thin HTTP wrapper over the core services. Role strings
// are normalized here; the services only ever see canonical roles.
type HTTPHandler struct {
	invoices  *service.InvoiceService
	workflow  *service.WorkflowService
	hierarchy *service.HierarchyService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	invoices *service.InvoiceService,
	workflow *service.WorkflowService,
	hierarchy *service.HierarchyService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		invoices:  invoices,
		workflow:  workflow,
		hierarchy: hierarchy,
		log:       log,
	}
}

// ── Invoices ──────────────────────────────────────────────────────────────────

// CreateInvoice handles invoice creation requests.
func (h *HTTPHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceNumber string  `json:"invoice_number"`
		ProjectID     string  `json:"project_id"`
		SubmittedBy   string  `json:"submitted_by"`
		AssignedPM    *string `json:"assigned_pm"`
		AmountCents   int64   `json:"amount_cents"`
		Currency      string  `json:"currency"`
		Description   *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invoice, err := h.invoices.CreateInvoice(r.Context(), &service.CreateInvoiceRequest{
		InvoiceNumber: req.InvoiceNumber,
		ProjectID:     req.ProjectID,
		SubmittedBy:   req.SubmittedBy,
		AssignedPM:    req.AssignedPM,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Description:   req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, invoice)
}

// GetInvoice handles invoice reads.
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Invoice ID is required", http.StatusBadRequest)
		return
	}

	invoice, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// ListInvoices lists invoices by workflow status.
func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	rawStatus := r.URL.Query().Get("status")
	if rawStatus == "" {
		http.Error(w, "Status is required", http.StatusBadRequest)
		return
	}
	status := repository.InvoiceStatus(strings.ToUpper(rawStatus))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	invoices, err := h.invoices.ListByStatus(r.Context(), status, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"page":     page,
		"pageSize": pageSize,
	})
}

// ApplyAction handles workflow action requests.
func (h *HTTPHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID string  `json:"invoice_id"`
		Action    string  `json:"action"`
		ActorID   string  `json:"actor_id"`
		ActorRole string  `json:"actor_role"`
		Notes     *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var role repository.Role
	if req.ActorRole != "" {
		var err error
		role, err = repository.NormalizeRole(req.ActorRole)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	ip := clientIP(r)
	userAgent := r.UserAgent()
	result, err := h.workflow.ApplyInvoiceAction(r.Context(), &service.ActionRequest{
		InvoiceID: req.InvoiceID,
		Action:    repository.Action(strings.ToUpper(req.Action)),
		ActorID:   req.ActorID,
		ActorRole: role,
		Notes:     req.Notes,
		IPAddress: &ip,
		UserAgent: &userAgent,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"previous_status":    result.PreviousStatus,
		"new_status":         result.NewStatus,
		"audit_entry":        result.AuditEntry,
		"notifications":      result.Notifications,
		"routing_unresolved": result.RoutingUnresolved,
	})
}

// History returns the full audit trail for an invoice, oldest first.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Invoice ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.workflow.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ListUnrouted lists invoices awaiting manual finance assignment.
func (h *HTTPHandler) ListUnrouted(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.invoices.ListUnrouted(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

// AssignFinanceUser manually routes an invoice to a finance user.
func (h *HTTPHandler) AssignFinanceUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID     string `json:"invoice_id"`
		FinanceUserID string `json:"finance_user_id"`
		ActorID       string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.invoices.AssignFinanceUser(r.Context(), req.InvoiceID, req.FinanceUserID, req.ActorID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// ── Users and hierarchy ───────────────────────────────────────────────────────

// CreateUser provisions a user.
func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName      string   `json:"display_name"`
		Role             string   `json:"role"`
		ManagedBy        *string  `json:"managed_by"`
		AssignedProjects []string `json:"assigned_projects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	role, err := repository.NormalizeRole(req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}

	user := &repository.User{
		DisplayName:      req.DisplayName,
		Role:             role,
		ManagedBy:        req.ManagedBy,
		AssignedProjects: req.AssignedProjects,
	}
	if err := h.hierarchy.CreateUser(r.Context(), user); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// DeactivateUser soft-deletes a user.
func (h *HTTPHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}
	if err := h.hierarchy.DeactivateUser(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignManager points a user at a new manager, or unassigns with a null
// manager_id.
func (h *HTTPHandler) AssignManager(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string  `json:"user_id"`
		ManagerID *string `json:"manager_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.hierarchy.AssignManager(r.Context(), req.UserID, req.ManagerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// ReplaceDirectReports swaps a manager's full set of direct reports.
func (h *HTTPHandler) ReplaceDirectReports(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ManagerID string   `json:"manager_id"`
		ReportIDs []string `json:"report_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.hierarchy.ReplaceDirectReports(r.Context(), req.ManagerID, req.ReportIDs); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "replaced"})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

// writeError maps error codes onto HTTP statuses. Unauthorized and forbidden
// are both 403: the caller is authenticated, the action is just not theirs
// to take.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeUnauthorized, errors.ErrCodeForbidden:
		status = http.StatusForbidden
	case errors.ErrCodeInvalidTransition, errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeInvalidAssignment:
		status = http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

// clientIP extracts the request origin, honoring X-Forwarded-For.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
