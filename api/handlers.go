/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees/{id}/requests             Request history
    POST   /api/employees/{id}/requests             Submit leave request
    GET    /api/employees/{id}/balance              Entitlement breakdown
    GET    /api/employees/{id}/ledger               Ledger entry history

  Requests:
    GET    /api/requests/pending                    All pending requests
    GET    /api/requests/{id}                       Request details
    POST   /api/requests/{id}/approve               Record an approval
    POST   /api/requests/{id}/reject                Record a rejection
    POST   /api/requests/{id}/cancel                Withdraw a request

  Admin:
    POST   /api/admin/adjustments                   Manual balance adjustment
    POST   /api/admin/rollover                      Year-end rollover
    GET    /api/leave-types                         Leave type catalog
    POST   /api/leave-types                         Upsert leave type
    POST   /api/policies                            Upsert policy
    GET    /api/calendars/{year}                    Get year calendar
    PUT    /api/calendars/{year}                    Upsert year calendar

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (idempotency, concurrent mutation)
  - 500: Internal errors

SECURITY NOTE:
  Actor identity is taken from request bodies and trusted as-is. Put an
  authenticating proxy in front before exposing this beyond localhost.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *leave.Ledger
	Workflow *leave.Workflow
	Recorder *leave.Recorder

	// Clock lets tests pin "now"; defaults to leave.Today.
	Clock func() leave.TimePoint
}

// NewHandler wires the domain services on top of the store.
func NewHandler(store *sqlite.Store) *Handler {
	ledger := leave.NewLedger(store, store)
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Workflow: leave.NewWorkflow(store, store, ledger, store),
		Recorder: leave.NewRecorder(ledger),
		Clock:    leave.Today,
	}
}

func (h *Handler) now() leave.TimePoint {
	if h.Clock != nil {
		return h.Clock()
	}
	return leave.Today()
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// SubmitRequest creates a new leave request for an employee.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var body SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hireDate, err := leave.ParseDate(body.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date", err)
		return
	}
	from, err := leave.ParseDate(body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := leave.ParseDate(body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	req, err := h.Workflow.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:    leave.EmployeeID(employeeID),
		LeaveTypeID:   leave.LeaveTypeID(body.LeaveTypeID),
		HireDate:      hireDate,
		From:          from,
		To:            to,
		Justification: body.Justification,
		AttachmentRef: body.AttachmentRef,
		ApproverRoles: body.ApproverRoles,
		WaiveNotice:   body.WaiveNotice,
	}, h.now())
	if err != nil {
		writeDomainError(w, "Failed to submit request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))
	req, err := h.Workflow.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListEmployeeRequests returns an employee's request history.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := leave.EmployeeID(chi.URLParam(r, "id"))
	reqs, err := h.Workflow.ListByEmployee(r.Context(), employeeID)
	if err != nil {
		writeDomainError(w, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// ListPendingRequests returns all requests awaiting decisions.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Workflow.ListPending(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list pending requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// ApproveRequest records an approval on the request's next pending step.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionApproved)
}

// RejectRequest records a rejection, short-circuiting the request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision leave.Decision) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var body DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Role == "" || body.Actor == "" {
		writeError(w, http.StatusBadRequest, "role and actor are required", nil)
		return
	}

	req, err := h.Workflow.Decide(r.Context(), id, body.Role, decision, body.Actor, h.now())
	if err != nil {
		writeDomainError(w, "Failed to record decision", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest withdraws a pending request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var body CancelDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required", nil)
		return
	}

	req, err := h.Workflow.Cancel(r.Context(), id, body.Actor, h.now())
	if err != nil {
		writeDomainError(w, "Failed to cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// BALANCE AND LEDGER
// =============================================================================

// GetBalance returns an employee's entitlement breakdown. Query parameters:
// leave_type (required), year (defaults to the current year), hire_date
// (optional; when present, accrual is synced to today before reading).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entitlementKey(w, r)
	if !ok {
		return
	}
	now := h.now()

	if hd := r.URL.Query().Get("hire_date"); hd != "" {
		hireDate, err := leave.ParseDate(hd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire_date", err)
			return
		}
		if _, err := h.Ledger.SyncAccrual(r.Context(), key, hireDate, now); err != nil {
			writeDomainError(w, "Failed to sync accrual", err)
			return
		}
	}

	ent, err := h.Ledger.Balance(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(key, ent, now))
}

// GetLedger returns the entry history behind an employee's balance.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	key, ok := h.entitlementKey(w, r)
	if !ok {
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) entitlementKey(w http.ResponseWriter, r *http.Request) (leave.Key, bool) {
	employeeID := chi.URLParam(r, "id")
	leaveType := r.URL.Query().Get("leave_type")
	if leaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type query parameter is required", nil)
		return leave.Key{}, false
	}
	year := h.now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return leave.Key{}, false
		}
		year = parsed
	}
	return leave.Key{
		EmployeeID:  leave.EmployeeID(employeeID),
		LeaveTypeID: leave.LeaveTypeID(leaveType),
		Year:        year,
	}, true
}

// =============================================================================
// ADMIN: ADJUSTMENTS AND ROLLOVER
// =============================================================================

// CreateAdjustment records a manual balance correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var body CreateAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	adj, err := h.Recorder.Record(r.Context(),
		leave.EmployeeID(body.EmployeeID),
		leave.LeaveTypeID(body.LeaveTypeID),
		body.Year,
		leave.AdjustmentType(body.Type),
		amount,
		body.Reason,
		body.Actor,
		h.now(),
	)
	if err != nil {
		writeDomainError(w, "Failed to record adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, AdjustmentDTO{
		ID:          string(adj.ID),
		EmployeeID:  string(adj.EmployeeID),
		LeaveTypeID: string(adj.LeaveTypeID),
		Year:        adj.Year,
		Type:        string(adj.Type),
		Amount:      adj.Amount.String(),
		Reason:      adj.Reason,
		Actor:       adj.Actor,
		RecordedAt:  adj.RecordedAt.String(),
	})
}

// TriggerRollover closes one employee's entitlement year and carries the
// allowed remainder forward.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var body RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required", nil)
		return
	}

	result, err := h.Ledger.Rollover(r.Context(),
		leave.EmployeeID(body.EmployeeID),
		leave.LeaveTypeID(body.LeaveTypeID),
		body.FromYear,
		body.Actor,
		h.now(),
	)
	if err != nil {
		writeDomainError(w, "Failed to roll over", err)
		return
	}

	writeJSON(w, http.StatusOK, RolloverDTO{
		EmployeeID:  body.EmployeeID,
		LeaveTypeID: body.LeaveTypeID,
		FromYear:    body.FromYear,
		ToYear:      body.FromYear + 1,
		CarriedOver: result.CarriedOver.String(),
		Forfeited:   result.Forfeited.String(),
	})
}

// =============================================================================
// ADMIN: LEAVE TYPES, POLICIES AND CALENDARS
// =============================================================================

// ListLeaveTypes returns the leave type catalog.
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListLeaveTypes(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list leave types", err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLeaveType upserts a leave type.
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var body LeaveTypeDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.ID == "" || body.Code == "" {
		writeError(w, http.StatusBadRequest, "id and code are required", nil)
		return
	}

	lt := leave.LeaveType{
		ID:          leave.LeaveTypeID(body.ID),
		Code:        body.Code,
		Name:        body.Name,
		CategoryID:  body.CategoryID,
		Description: body.Description,
		Paid:        body.Paid,
		Deductible:  body.Deductible,
		Attachment:  leave.AttachmentRequirement(body.Attachment),
	}
	if lt.Attachment == "" {
		lt.Attachment = leave.AttachmentNone
	}
	if err := h.Store.SaveLeaveType(r.Context(), lt); err != nil {
		writeDomainError(w, "Failed to save leave type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(lt))
}

// CreatePolicy upserts a policy. The body is the policy itself; amounts are
// decimal strings.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var policy leave.LeavePolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if policy.ID == "" || policy.LeaveTypeID == "" {
		writeError(w, http.StatusBadRequest, "id and leave type are required", nil)
		return
	}
	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeDomainError(w, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

// GetCalendar returns the calendar for a year.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	cal, err := h.Store.GetCalendar(r.Context(), year)
	if err != nil {
		writeDomainError(w, "Failed to get calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(cal))
}

// PutCalendar upserts the calendar for a year.
func (h *Handler) PutCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	var body CalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cal := leave.Calendar{Year: year}
	for _, hd := range body.Holidays {
		date, err := leave.ParseDate(hd.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid holiday date", err)
			return
		}
		cal.Holidays = append(cal.Holidays, leave.Holiday{Date: date, Name: hd.Name, Type: hd.Type})
	}
	for _, bp := range body.BlockedPeriods {
		from, err := leave.ParseDate(bp.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid blocked period start", err)
			return
		}
		to, err := leave.ParseDate(bp.To)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid blocked period end", err)
			return
		}
		cal.BlockedPeriods = append(cal.BlockedPeriods, leave.BlockedPeriod{From: from, To: to, Reason: bp.Reason})
	}

	if err := h.Store.SaveCalendar(r.Context(), cal); err != nil {
		writeDomainError(w, "Failed to save calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarDTO(cal))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, leave.ErrDuplicateIdempotencyKey),
		errors.Is(err, leave.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, message, err)
	case leave.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
