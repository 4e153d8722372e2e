// Package store provides in-memory implementations of the leave engine's
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements leave.EntryStore, leave.RequestStore,
// leave.PolicyRepository and leave.CalendarProvider in one fixture.
type Memory struct {
	mu          sync.RWMutex
	entries     map[leave.Key][]leave.Entry
	idempotency map[string]bool
	requests    map[leave.RequestID]leave.LeaveRequest
	policies    map[leave.LeaveTypeID][]leave.LeavePolicy
	leaveTypes  map[leave.LeaveTypeID]leave.LeaveType
	calendars   map[int]leave.Calendar
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[leave.Key][]leave.Entry),
		idempotency: make(map[string]bool),
		requests:    make(map[leave.RequestID]leave.LeaveRequest),
		policies:    make(map[leave.LeaveTypeID][]leave.LeavePolicy),
		leaveTypes:  make(map[leave.LeaveTypeID]leave.LeaveType),
		calendars:   make(map[int]leave.Calendar),
	}
}

// =============================================================================
// ENTRY STORE (leave.EntryStore)
// =============================================================================

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, entry leave.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return leave.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(entry)
	return nil
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, entries []leave.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first so the batch is all-or-nothing.
	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return leave.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range entries {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(entry leave.Entry) {
	k := entry.Key()
	m.entries[k] = append(m.entries[k], entry)
	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, key leave.Key) ([]leave.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]leave.Entry, len(m.entries[key]))
	copy(result, m.entries[key])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// REQUEST STORE (leave.RequestStore)
// =============================================================================

func (m *Memory) Create(_ context.Context, req leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *Memory) Get(_ context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

func (m *Memory) Update(_ context.Context, req leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[req.ID]; !ok {
		return leave.ErrRequestNotFound
	}
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

func (m *Memory) ListByEmployee(_ context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.LeaveRequest
	for _, req := range m.requests {
		if req.EmployeeID == employeeID {
			result = append(result, cloneRequest(req))
		}
	}
	sortRequests(result)
	return result, nil
}

func (m *Memory) ListPending(_ context.Context) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.LeaveRequest
	for _, req := range m.requests {
		if req.Status == leave.StatusPending {
			result = append(result, cloneRequest(req))
		}
	}
	sortRequests(result)
	return result, nil
}

// cloneRequest copies the approval flow so callers cannot mutate stored state.
func cloneRequest(req leave.LeaveRequest) leave.LeaveRequest {
	flow := make([]leave.ApprovalStep, len(req.ApprovalFlow))
	copy(flow, req.ApprovalFlow)
	req.ApprovalFlow = flow
	return req
}

func sortRequests(reqs []leave.LeaveRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].SubmittedAt.Equal(reqs[j].SubmittedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].SubmittedAt.Before(reqs[j].SubmittedAt)
	})
}

// =============================================================================
// POLICY REPOSITORY (leave.PolicyRepository)
// =============================================================================

// PutPolicy registers a policy version for its leave type.
func (m *Memory) PutPolicy(policy leave.LeavePolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.LeaveTypeID] = append(m.policies[policy.LeaveTypeID], policy)
}

// PutLeaveType registers a leave type.
func (m *Memory) PutLeaveType(lt leave.LeaveType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveTypes[lt.ID] = lt
}

// PutConfig registers a bundled leave type + policy.
func (m *Memory) PutConfig(cfg leave.PolicyConfig) {
	m.PutLeaveType(cfg.Type)
	m.PutPolicy(cfg.Policy)
}

func (m *Memory) GetPolicy(_ context.Context, leaveTypeID leave.LeaveTypeID, effectiveDate leave.TimePoint) (leave.LeavePolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.policies[leaveTypeID] {
		if p.InEffect(effectiveDate) {
			return p, nil
		}
	}
	return leave.LeavePolicy{}, leave.ErrPolicyNotFound
}

func (m *Memory) GetLeaveType(_ context.Context, id leave.LeaveTypeID) (leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lt, ok := m.leaveTypes[id]
	if !ok {
		return leave.LeaveType{}, leave.ErrLeaveTypeNotFound
	}
	return lt, nil
}

// =============================================================================
// CALENDAR PROVIDER (leave.CalendarProvider)
// =============================================================================

// PutCalendar registers the calendar for its year.
func (m *Memory) PutCalendar(cal leave.Calendar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[cal.Year] = cal
}

func (m *Memory) GetCalendar(_ context.Context, year int) (leave.Calendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cal, ok := m.calendars[year]
	if !ok {
		return leave.Calendar{}, leave.ErrCalendarNotFound
	}
	return cal, nil
}
