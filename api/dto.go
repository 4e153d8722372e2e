/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/workflow.go: Domain types these map from
*/
package api

import (
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// SubmitRequestDTO is the body for submitting a leave request.
type SubmitRequestDTO struct {
	LeaveTypeID   string   `json:"leave_type_id"`
	HireDate      string   `json:"hire_date"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Justification string   `json:"justification,omitempty"`
	AttachmentRef string   `json:"attachment_ref,omitempty"`
	ApproverRoles []string `json:"approver_roles,omitempty"`
	WaiveNotice   bool     `json:"waive_notice,omitempty"`
}

// DecisionDTO is the body for an approve/reject decision.
type DecisionDTO struct {
	Role  string `json:"role"`
	Actor string `json:"actor"`
}

// CancelDTO is the body for cancelling a request.
type CancelDTO struct {
	Actor string `json:"actor"`
}

// ApprovalStepDTO is one step of a request's approval flow.
type ApprovalStepDTO struct {
	Role      string `json:"role"`
	Status    string `json:"status"`
	Actor     string `json:"actor,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID            string            `json:"id"`
	EmployeeID    string            `json:"employee_id"`
	LeaveTypeID   string            `json:"leave_type_id"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	DurationDays  string            `json:"duration_days"`
	Justification string            `json:"justification,omitempty"`
	AttachmentRef string            `json:"attachment_ref,omitempty"`
	Status        string            `json:"status"`
	ApprovalFlow  []ApprovalStepDTO `json:"approval_flow"`
	SubmittedAt   string            `json:"submitted_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func toRequestDTO(req leave.LeaveRequest) RequestDTO {
	flow := make([]ApprovalStepDTO, len(req.ApprovalFlow))
	for i, step := range req.ApprovalFlow {
		flow[i] = ApprovalStepDTO{
			Role:   step.Role,
			Status: string(step.Status),
			Actor:  step.Actor,
		}
		if !step.DecidedAt.IsZero() {
			flow[i].DecidedAt = step.DecidedAt.String()
		}
	}
	return RequestDTO{
		ID:            string(req.ID),
		EmployeeID:    string(req.EmployeeID),
		LeaveTypeID:   string(req.LeaveTypeID),
		From:          req.Dates.From.String(),
		To:            req.Dates.To.String(),
		DurationDays:  req.DurationDays.String(),
		Justification: req.Justification,
		AttachmentRef: req.AttachmentRef,
		Status:        string(req.Status),
		ApprovalFlow:  flow,
		SubmittedAt:   req.SubmittedAt.String(),
		UpdatedAt:     req.UpdatedAt.String(),
	}
}

func toRequestDTOs(reqs []leave.LeaveRequest) []RequestDTO {
	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	return dtos
}

// =============================================================================
// BALANCE AND LEDGER
// =============================================================================

// BalanceDTO is an employee's entitlement breakdown for one leave type/year.
// Amounts are decimal strings so clients never see float drift.
type BalanceDTO struct {
	EmployeeID        string `json:"employee_id"`
	LeaveTypeID       string `json:"leave_type_id"`
	Year              int    `json:"year"`
	YearlyEntitlement string `json:"yearly_entitlement"`
	AccruedActual     string `json:"accrued_actual"`
	AccruedRounded    string `json:"accrued_rounded"`
	Consumed          string `json:"consumed"`
	Reserved          string `json:"reserved"`
	Adjustments       string `json:"adjustments"`
	Remaining         string `json:"remaining"`
	Available         string `json:"available"`
	AsOf              string `json:"as_of"`
}

func toBalanceDTO(key leave.Key, ent leave.Entitlement, asOf leave.TimePoint) BalanceDTO {
	return BalanceDTO{
		EmployeeID:        string(key.EmployeeID),
		LeaveTypeID:       string(key.LeaveTypeID),
		Year:              key.Year,
		YearlyEntitlement: ent.YearlyEntitlement.String(),
		AccruedActual:     ent.AccruedActual.String(),
		AccruedRounded:    ent.AccruedRounded.String(),
		Consumed:          ent.Consumed.String(),
		Reserved:          ent.Reserved.String(),
		Adjustments:       ent.Adjustments.String(),
		Remaining:         ent.Remaining.String(),
		Available:         ent.Available().String(),
		AsOf:              asOf.String(),
	}
}

// EntryDTO is one ledger entry in API responses.
type EntryDTO struct {
	ID          string `json:"id"`
	EffectiveAt string `json:"effective_at"`
	Delta       string `json:"delta"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Actor       string `json:"actor,omitempty"`
	RecordedAt  string `json:"recorded_at"`
}

func toEntryDTOs(entries []leave.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:          string(e.ID),
			EffectiveAt: e.EffectiveAt.String(),
			Delta:       e.Delta.String(),
			Type:        string(e.Type),
			ReferenceID: e.ReferenceID,
			Reason:      e.Reason,
			Actor:       e.Actor,
			RecordedAt:  e.RecordedAt.String(),
		}
	}
	return dtos
}

// =============================================================================
// ADJUSTMENTS AND ROLLOVER
// =============================================================================

// CreateAdjustmentRequest is the body for a manual balance adjustment.
type CreateAdjustmentRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Year        int    `json:"year"`
	Type        string `json:"type"` // ADD or DEDUCT
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	Actor       string `json:"actor"`
}

// AdjustmentDTO represents a recorded adjustment.
type AdjustmentDTO struct {
	ID          string `json:"id"`
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Year        int    `json:"year"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason,omitempty"`
	Actor       string `json:"actor"`
	RecordedAt  string `json:"recorded_at"`
}

// RolloverRequest is the body for triggering a year-end rollover.
type RolloverRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	FromYear    int    `json:"from_year"`
	Actor       string `json:"actor"`
}

// RolloverDTO reports what a rollover moved and forfeited.
type RolloverDTO struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	FromYear    int    `json:"from_year"`
	ToYear      int    `json:"to_year"`
	CarriedOver string `json:"carried_over"`
	Forfeited   string `json:"forfeited"`
}

// =============================================================================
// POLICIES, LEAVE TYPES AND CALENDARS
// =============================================================================

// LeaveTypeDTO represents a leave type in API requests and responses.
type LeaveTypeDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	CategoryID  string `json:"category_id,omitempty"`
	Description string `json:"description,omitempty"`
	Paid        bool   `json:"paid"`
	Deductible  bool   `json:"deductible"`
	Attachment  string `json:"attachment"`
}

func toLeaveTypeDTO(lt leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:          string(lt.ID),
		Code:        lt.Code,
		Name:        lt.Name,
		CategoryID:  lt.CategoryID,
		Description: lt.Description,
		Paid:        lt.Paid,
		Deductible:  lt.Deductible,
		Attachment:  string(lt.Attachment),
	}
}

// HolidayDTO is one public holiday.
type HolidayDTO struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// BlockedPeriodDTO is one admin-declared blackout window.
type BlockedPeriodDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// CalendarDTO represents a year's calendar.
type CalendarDTO struct {
	Year           int                `json:"year"`
	Holidays       []HolidayDTO       `json:"holidays"`
	BlockedPeriods []BlockedPeriodDTO `json:"blocked_periods"`
}

func toCalendarDTO(cal leave.Calendar) CalendarDTO {
	dto := CalendarDTO{
		Year:           cal.Year,
		Holidays:       []HolidayDTO{},
		BlockedPeriods: []BlockedPeriodDTO{},
	}
	for _, h := range cal.Holidays {
		dto.Holidays = append(dto.Holidays, HolidayDTO{Date: h.Date.String(), Name: h.Name, Type: h.Type})
	}
	for _, bp := range cal.BlockedPeriods {
		dto.BlockedPeriods = append(dto.BlockedPeriods, BlockedPeriodDTO{
			From: bp.From.String(), To: bp.To.String(), Reason: bp.Reason,
		})
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
