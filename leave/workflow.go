/*
workflow.go - Leave request state machine

PURPOSE:
  Mediates a leave request from submission through an ordered multi-step
  approval flow to a terminal state, validating against the policy,
  calendar and ledger before each transition.

STATE MACHINE:
  PENDING -> APPROVED | REJECTED | CANCELLED

  Terminal states are immutable. The request advances to APPROVED only when
  every role in the approval flow has approved, in order. A single rejection
  at any step short-circuits the whole request to REJECTED; later steps are
  never evaluated.

RESERVATION PROTOCOL:
  Submit places a soft reservation on the entitlement so concurrent requests
  cannot overdraw. Reject and cancel release it. The final approval converts
  it into consumption atomically; if the ledger refuses, the request stays
  PENDING and the error surfaces - request and ledger are never left
  inconsistent.

VALIDATION ON SUBMIT (in order):
  1. Policy and leave type resolve for the request's leave type
  2. Date range is well-formed (from <= to)
  3. Required attachment is present
  4. Notice period satisfied (from >= now + minNoticeDays) unless waived
  5. Range does not intersect a blocked period, unless the policy is exempt
  6. Duration (working days net of weekends and holidays) is positive
  7. Reservation fits the available balance

SEE ALSO:
  - ledger.go: Reserve/Release/ConsumeReserved
  - calendar.go: WorkingDays and blocked-period checks
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST MODEL
// =============================================================================

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// StepStatus is the state of one approval step.
type StepStatus string

const (
	StepPending  StepStatus = "Pending"
	StepApproved StepStatus = "Approved"
	StepRejected StepStatus = "Rejected"
)

// Decision is what an approver records on a step.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// ApprovalStep is one role's sign-off slot in the ordered flow.
type ApprovalStep struct {
	Role      string
	Status    StepStatus
	Actor     string
	DecidedAt TimePoint
}

// LeaveRequest is owned by the workflow; terminal requests are immutable.
type LeaveRequest struct {
	ID            RequestID
	EmployeeID    EmployeeID
	LeaveTypeID   LeaveTypeID
	Dates         DateRange
	DurationDays  decimal.Decimal
	Justification string
	AttachmentRef string
	Status        RequestStatus
	ApprovalFlow  []ApprovalStep
	SubmittedAt   TimePoint
	UpdatedAt     TimePoint
}

// IsTerminal reports whether the request can no longer change.
func (r LeaveRequest) IsTerminal() bool {
	return r.Status != StatusPending
}

// EntitlementKey is the ledger key this request draws from. A request is
// charged to the year its first day falls in.
func (r LeaveRequest) EntitlementKey() Key {
	return Key{EmployeeID: r.EmployeeID, LeaveTypeID: r.LeaveTypeID, Year: r.Dates.From.Year()}
}

// nextPendingStep returns the index of the first undecided step.
func (r LeaveRequest) nextPendingStep() (int, bool) {
	for i, step := range r.ApprovalFlow {
		if step.Status == StepPending {
			return i, true
		}
	}
	return 0, false
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Workflow orchestrates request transitions. It holds only read references
// to policy and calendar data; all balance mutation goes through the Ledger.
type Workflow struct {
	policies  PolicyRepository
	calendars CalendarProvider
	ledger    *Ledger
	requests  RequestStore

	mu        sync.Mutex
	requestMu map[RequestID]*sync.Mutex
}

func NewWorkflow(policies PolicyRepository, calendars CalendarProvider, ledger *Ledger, requests RequestStore) *Workflow {
	return &Workflow{
		policies:  policies,
		calendars: calendars,
		ledger:    ledger,
		requests:  requests,
		requestMu: make(map[RequestID]*sync.Mutex),
	}
}

// lockRequest linearizes decide/cancel per request: concurrent calls resolve
// in arrival order and the loser of a race against a terminal transition
// sees ErrInvalidTransition instead of corrupting state.
func (w *Workflow) lockRequest(id RequestID) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.requestMu[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	w.requestMu[id] = l
	return l
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput carries everything the workflow needs to validate a new
// request. HireDate comes from the (external) employee record; ApproverRoles
// is the ordered flow, defaulting to a single Manager step.
type SubmitInput struct {
	EmployeeID    EmployeeID
	LeaveTypeID   LeaveTypeID
	HireDate      TimePoint
	From          TimePoint
	To            TimePoint
	Justification string
	AttachmentRef string
	ApproverRoles []string
	WaiveNotice   bool
}

// Submit validates the request against policy, calendar and balance, places
// a reservation, and persists the request as PENDING.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput, now TimePoint) (LeaveRequest, error) {
	policy, err := w.policies.GetPolicy(ctx, in.LeaveTypeID, in.From)
	if err != nil {
		return LeaveRequest{}, err
	}
	leaveType, err := w.policies.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return LeaveRequest{}, err
	}

	r := DateRange{From: in.From, To: in.To}
	if !r.Valid() {
		return LeaveRequest{}, newValidationError(CodeInvalidRange, "from %s is after to %s", in.From, in.To)
	}

	if leaveType.RequiresAttachment() && in.AttachmentRef == "" {
		return LeaveRequest{}, newValidationError(CodeMissingAttachment,
			"%s requests require a %s attachment", leaveType.Code, leaveType.Attachment)
	}

	if !in.WaiveNotice && policy.MinNoticeDays > 0 {
		earliest := now.AddDays(policy.MinNoticeDays)
		if in.From.Before(earliest) {
			return LeaveRequest{}, newValidationError(CodeNoticeTooShort,
				"requests need %d days notice; earliest allowed start is %s", policy.MinNoticeDays, earliest)
		}
	}

	if !policy.BlockedPeriodExempt {
		for year := in.From.Year(); year <= in.To.Year(); year++ {
			cal, err := w.calendars.GetCalendar(ctx, year)
			if err != nil {
				return LeaveRequest{}, err
			}
			if bp, blocked := cal.BlockedOverlap(r); blocked {
				return LeaveRequest{}, newValidationError(CodeBlockedPeriod,
					"range %s intersects blocked period %s (%s)", r, bp.Range(), bp.Reason)
			}
		}
	}

	workingDays, err := WorkingDays(ctx, w.calendars, r)
	if err != nil {
		return LeaveRequest{}, err
	}
	if workingDays == 0 {
		return LeaveRequest{}, newValidationError(CodeZeroWorkingDays,
			"range %s contains no working days", r)
	}
	duration := decimal.NewFromInt(int64(workingDays))

	roles := in.ApproverRoles
	if len(roles) == 0 {
		roles = []string{"Manager"}
	}
	flow := make([]ApprovalStep, len(roles))
	for i, role := range roles {
		flow[i] = ApprovalStep{Role: role, Status: StepPending}
	}

	req := LeaveRequest{
		ID:            RequestID(uuid.NewString()),
		EmployeeID:    in.EmployeeID,
		LeaveTypeID:   in.LeaveTypeID,
		Dates:         r,
		DurationDays:  duration,
		Justification: in.Justification,
		AttachmentRef: in.AttachmentRef,
		Status:        StatusPending,
		ApprovalFlow:  flow,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}

	// Bring accrual up to date before checking balance, then hold the days.
	key := req.EntitlementKey()
	if _, err := w.ledger.SyncAccrual(ctx, key, in.HireDate, now); err != nil {
		return LeaveRequest{}, err
	}
	if err := w.ledger.Reserve(ctx, key, duration, string(req.ID), string(in.EmployeeID), now); err != nil {
		return LeaveRequest{}, err
	}

	if err := w.requests.Create(ctx, req); err != nil {
		// Undo the hold; the request never existed.
		releaseErr := w.ledger.Release(ctx, key, duration, string(req.ID), "submit failed", "system", now)
		if releaseErr != nil {
			return LeaveRequest{}, fmt.Errorf("create request: %w (release failed: %v)", err, releaseErr)
		}
		return LeaveRequest{}, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide records one role's decision. The role must own the next pending
// step. A rejection short-circuits the request; the final approval consumes
// the reserved balance atomically with the transition.
func (w *Workflow) Decide(ctx context.Context, id RequestID, role string, decision Decision, actor string, now TimePoint) (LeaveRequest, error) {
	lock := w.lockRequest(id)
	lock.Lock()
	defer lock.Unlock()

	req, err := w.requests.Get(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	if req.IsTerminal() {
		return LeaveRequest{}, &TransitionError{RequestID: id, Status: req.Status, Attempted: "decide"}
	}

	stepIdx, ok := req.nextPendingStep()
	if !ok {
		return LeaveRequest{}, &TransitionError{RequestID: id, Status: req.Status, Attempted: "decide"}
	}
	if req.ApprovalFlow[stepIdx].Role != role {
		expected := req.ApprovalFlow[stepIdx].Role
		inFlow := false
		for _, step := range req.ApprovalFlow {
			if step.Role == role {
				inFlow = true
				break
			}
		}
		if !inFlow {
			return LeaveRequest{}, &RoleError{RequestID: id, Role: role}
		}
		return LeaveRequest{}, &RoleError{RequestID: id, Role: role, Expected: expected}
	}

	switch decision {
	case DecisionRejected:
		return w.reject(ctx, req, stepIdx, actor, now)
	case DecisionApproved:
		return w.approve(ctx, req, stepIdx, actor, now)
	default:
		return LeaveRequest{}, newValidationError(CodeBadAmount, "unknown decision %q", decision)
	}
}

func (w *Workflow) reject(ctx context.Context, req LeaveRequest, stepIdx int, actor string, now TimePoint) (LeaveRequest, error) {
	req.ApprovalFlow[stepIdx].Status = StepRejected
	req.ApprovalFlow[stepIdx].Actor = actor
	req.ApprovalFlow[stepIdx].DecidedAt = now
	req.Status = StatusRejected
	req.UpdatedAt = now

	if err := w.releaseHold(ctx, req, "released on rejection", actor, now); err != nil {
		return LeaveRequest{}, err
	}
	if err := w.requests.Update(ctx, req); err != nil {
		return LeaveRequest{}, err
	}
	return req, nil
}

func (w *Workflow) approve(ctx context.Context, req LeaveRequest, stepIdx int, actor string, now TimePoint) (LeaveRequest, error) {
	req.ApprovalFlow[stepIdx].Status = StepApproved
	req.ApprovalFlow[stepIdx].Actor = actor
	req.ApprovalFlow[stepIdx].DecidedAt = now
	req.UpdatedAt = now

	// Intermediate step: persist progress, stay PENDING.
	if _, morePending := req.nextPendingStep(); morePending {
		if err := w.requests.Update(ctx, req); err != nil {
			return LeaveRequest{}, err
		}
		return req, nil
	}

	// Final approval: consume the reservation BEFORE persisting the
	// transition. If the ledger refuses, nothing is persisted and the stored
	// request is still PENDING with its prior steps - request and ledger
	// cannot diverge.
	err := w.ledger.ConsumeReserved(ctx, req.EntitlementKey(), req.DurationDays,
		string(req.ID), req.Justification, actor, now)
	if err != nil && !errors.Is(err, ErrDuplicateIdempotencyKey) {
		return LeaveRequest{}, err
	}

	req.Status = StatusApproved
	if err := w.requests.Update(ctx, req); err != nil {
		return LeaveRequest{}, err
	}
	return req, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws a request. Permitted only while PENDING; the reservation
// is released. In-flight ledger operations complete first because both take
// the same per-request and per-key locks.
func (w *Workflow) Cancel(ctx context.Context, id RequestID, actor string, now TimePoint) (LeaveRequest, error) {
	lock := w.lockRequest(id)
	lock.Lock()
	defer lock.Unlock()

	req, err := w.requests.Get(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	if req.IsTerminal() {
		return LeaveRequest{}, &TransitionError{RequestID: id, Status: req.Status, Attempted: "cancel"}
	}

	req.Status = StatusCancelled
	req.UpdatedAt = now

	if err := w.releaseHold(ctx, req, "released on cancellation", actor, now); err != nil {
		return LeaveRequest{}, err
	}
	if err := w.requests.Update(ctx, req); err != nil {
		return LeaveRequest{}, err
	}
	return req, nil
}

// releaseHold returns the request's reserved days. A duplicate idempotency
// key means a previous attempt already released; that is not an error.
func (w *Workflow) releaseHold(ctx context.Context, req LeaveRequest, reason, actor string, now TimePoint) error {
	err := w.ledger.Release(ctx, req.EntitlementKey(), req.DurationDays, string(req.ID), reason, actor, now)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return nil
	}
	return err
}

// =============================================================================
// READS
// =============================================================================

// Get returns a request by ID.
func (w *Workflow) Get(ctx context.Context, id RequestID) (LeaveRequest, error) {
	return w.requests.Get(ctx, id)
}

// ListPending returns all requests awaiting decisions.
func (w *Workflow) ListPending(ctx context.Context) ([]LeaveRequest, error) {
	return w.requests.ListPending(ctx)
}

// ListByEmployee returns an employee's requests.
func (w *Workflow) ListByEmployee(ctx context.Context, employeeID EmployeeID) ([]LeaveRequest, error) {
	return w.requests.ListByEmployee(ctx, employeeID)
}
