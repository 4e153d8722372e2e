/*
Package sqlite provides the SQLite-backed implementation of the leave
engine's storage interfaces.

PURPOSE:
  Implements leave.EntryStore, leave.RequestStore, leave.PolicyRepository
  and leave.CalendarProvider on a single database. The same patterns apply
  to PostgreSQL with minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table never sees UPDATE or DELETE. Corrections land as
  offsetting entries. A UNIQUE index on idempotency_key makes retried writes
  safe.

KEY TABLES:
  ledger_entries:  Immutable ledger of all entitlement changes
  leave_requests:  Request state + approval flow (JSON)
  leave_policies:  Policy versions (JSON config, effective window)
  leave_types:     Leave type catalog
  calendars:       One row per year: holidays + blocked periods (JSON)

WAL MODE:
  SQLite is opened with WAL for better read concurrency. A single writer at
  a time is fine for this workload because the ledger already serializes
  mutations per entitlement key.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: interface definitions
  - leave/ledger.go: higher-level ledger using EntryStore
  - leave/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		effective_at TEXT NOT NULL,
		delta TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		actor TEXT,
		idempotency_key TEXT UNIQUE,
		recorded_at TEXT NOT NULL,
		seq INTEGER
	);

	-- Hot path: balance folds load one entitlement key in append order
	CREATE INDEX IF NOT EXISTS idx_entries_key
		ON ledger_entries(employee_id, leave_type_id, year, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON ledger_entries(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		duration_days TEXT NOT NULL,
		justification TEXT,
		attachment_ref TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		approval_flow_json TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);

	-- Leave policies (versioned, JSON config)
	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		leave_type_id TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_policies_leave_type
		ON leave_policies(leave_type_id);

	-- Leave types
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		category_id TEXT,
		description TEXT,
		paid BOOLEAN DEFAULT TRUE,
		deductible BOOLEAN DEFAULT TRUE,
		attachment TEXT DEFAULT 'none'
	);

	-- Calendars (one per year)
	CREATE TABLE IF NOT EXISTS calendars (
		year INTEGER PRIMARY KEY,
		holidays_json TEXT NOT NULL,
		blocked_json TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (leave.EntryStore)
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, entry leave.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, entry)
}

func appendEntry(ctx context.Context, db execer, entry leave.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, employee_id, leave_type_id, year, effective_at, delta, entry_type,
		 reference_id, reason, actor, idempotency_key, recorded_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_entries))
	`

	_, err := db.ExecContext(ctx, query,
		entry.ID,
		entry.EmployeeID,
		entry.LeaveTypeID,
		entry.Year,
		entry.EffectiveAt.String(),
		entry.Delta.String(),
		entry.Type,
		nullString(entry.ReferenceID),
		nullString(entry.Reason),
		nullString(entry.Actor),
		nullString(entry.IdempotencyKey),
		entry.RecordedAt.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []leave.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reject duplicate keys within the batch so the insert is all-or-nothing.
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if seen[e.IdempotencyKey] {
				return leave.ErrDuplicateIdempotencyKey
			}
			seen[e.IdempotencyKey] = true
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := appendEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns all entries for an entitlement key in append order.
func (s *Store) Load(ctx context.Context, key leave.Key) ([]leave.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, leave_type_id, year, effective_at, delta, entry_type,
		       reference_id, reason, actor, idempotency_key, recorded_at
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, key.EmployeeID, key.LeaveTypeID, key.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []leave.Entry
	for rows.Next() {
		var (
			e              leave.Entry
			effective      string
			delta          string
			recorded       string
			reference      sql.NullString
			reason         sql.NullString
			actor          sql.NullString
			idempotencyKey sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.LeaveTypeID, &e.Year,
			&effective, &delta, &e.Type, &reference, &reason, &actor,
			&idempotencyKey, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.EffectiveAt, err = leave.ParseDate(effective); err != nil {
			return nil, fmt.Errorf("bad effective_at %q: %w", effective, err)
		}
		if e.RecordedAt, err = leave.ParseDate(recorded); err != nil {
			return nil, fmt.Errorf("bad recorded_at %q: %w", recorded, err)
		}
		e.Delta = leave.MustParseDays(delta)
		e.ReferenceID = reference.String
		e.Reason = reason.String
		e.Actor = actor.String
		e.IdempotencyKey = idempotencyKey.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListKeys returns the distinct entitlement keys with entries in a year.
// The rollover scheduler uses this to find balances to close.
func (s *Store) ListKeys(ctx context.Context, year int) ([]leave.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT employee_id, leave_type_id FROM ledger_entries
		WHERE year = ? ORDER BY employee_id, leave_type_id`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []leave.Key
	for rows.Next() {
		key := leave.Key{Year: year}
		if err := rows.Scan(&key.EmployeeID, &key.LeaveTypeID); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Exists checks if an idempotency key has been used.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// REQUEST STORE (leave.RequestStore)
// =============================================================================

func (s *Store) Create(ctx context.Context, req leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flowJSON, err := json.Marshal(req.ApprovalFlow)
	if err != nil {
		return fmt.Errorf("failed to marshal approval flow: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, leave_type_id, from_date, to_date, duration_days,
		 justification, attachment_ref, status, approval_flow_json, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.EmployeeID, req.LeaveTypeID,
		req.Dates.From.String(), req.Dates.To.String(), req.DurationDays.String(),
		nullString(req.Justification), nullString(req.AttachmentRef),
		req.Status, string(flowJSON),
		req.SubmittedAt.String(), req.UpdatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, leave_type_id, from_date, to_date, duration_days,
		       justification, attachment_ref, status, approval_flow_json, submitted_at, updated_at
		FROM leave_requests WHERE id = ?`, id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}
	return req, err
}

func (s *Store) Update(ctx context.Context, req leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flowJSON, err := json.Marshal(req.ApprovalFlow)
	if err != nil {
		return fmt.Errorf("failed to marshal approval flow: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approval_flow_json = ?, updated_at = ?
		WHERE id = ?`,
		req.Status, string(flowJSON), req.UpdatedAt.String(), req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return leave.ErrRequestNotFound
	}
	return nil
}

func (s *Store) ListByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, employee_id, leave_type_id, from_date, to_date, duration_days,
		       justification, attachment_ref, status, approval_flow_json, submitted_at, updated_at
		FROM leave_requests WHERE employee_id = ? ORDER BY submitted_at ASC, id ASC`, employeeID)
}

func (s *Store) ListPending(ctx context.Context) ([]leave.LeaveRequest, error) {
	return s.listRequests(ctx, `
		SELECT id, employee_id, leave_type_id, from_date, to_date, duration_days,
		       justification, attachment_ref, status, approval_flow_json, submitted_at, updated_at
		FROM leave_requests WHERE status = ? ORDER BY submitted_at ASC, id ASC`, leave.StatusPending)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (leave.LeaveRequest, error) {
	var (
		req           leave.LeaveRequest
		fromDate      string
		toDate        string
		duration      string
		justification sql.NullString
		attachment    sql.NullString
		flowJSON      string
		submitted     string
		updated       string
	)
	err := row.Scan(&req.ID, &req.EmployeeID, &req.LeaveTypeID, &fromDate, &toDate,
		&duration, &justification, &attachment, &req.Status, &flowJSON, &submitted, &updated)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	if req.Dates.From, err = leave.ParseDate(fromDate); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("bad from_date %q: %w", fromDate, err)
	}
	if req.Dates.To, err = leave.ParseDate(toDate); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("bad to_date %q: %w", toDate, err)
	}
	if req.SubmittedAt, err = leave.ParseDate(submitted); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("bad submitted_at %q: %w", submitted, err)
	}
	if req.UpdatedAt, err = leave.ParseDate(updated); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("bad updated_at %q: %w", updated, err)
	}
	req.DurationDays = leave.MustParseDays(duration)
	req.Justification = justification.String
	req.AttachmentRef = attachment.String
	if err := json.Unmarshal([]byte(flowJSON), &req.ApprovalFlow); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("failed to unmarshal approval flow: %w", err)
	}
	return req, nil
}

// =============================================================================
// POLICY REPOSITORY (leave.PolicyRepository)
// =============================================================================

// SavePolicy inserts or replaces a policy version.
func (s *Store) SavePolicy(ctx context.Context, policy leave.LeavePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO leave_policies (id, leave_type_id, config_json, version)
		VALUES (?, ?, ?, ?)`,
		policy.ID, policy.LeaveTypeID, string(configJSON), policy.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, leaveTypeID leave.LeaveTypeID, effectiveDate leave.TimePoint) (leave.LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest version wins when several are in effect.
	rows, err := s.db.QueryContext(ctx,
		`SELECT config_json FROM leave_policies WHERE leave_type_id = ? ORDER BY version DESC`,
		leaveTypeID)
	if err != nil {
		return leave.LeavePolicy{}, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return leave.LeavePolicy{}, err
		}
		var policy leave.LeavePolicy
		if err := json.Unmarshal([]byte(configJSON), &policy); err != nil {
			return leave.LeavePolicy{}, fmt.Errorf("failed to unmarshal policy: %w", err)
		}
		if policy.InEffect(effectiveDate) {
			return policy, nil
		}
	}
	if err := rows.Err(); err != nil {
		return leave.LeavePolicy{}, err
	}
	return leave.LeavePolicy{}, leave.ErrPolicyNotFound
}

// SaveLeaveType inserts or replaces a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO leave_types
		(id, code, name, category_id, description, paid, deductible, attachment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lt.ID, lt.Code, lt.Name, nullString(lt.CategoryID), nullString(lt.Description),
		lt.Paid, lt.Deductible, string(lt.Attachment),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func (s *Store) GetLeaveType(ctx context.Context, id leave.LeaveTypeID) (leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, category_id, description, paid, deductible, attachment
		FROM leave_types WHERE id = ?`, id)

	lt, err := scanLeaveType(row)
	if err == sql.ErrNoRows {
		return leave.LeaveType{}, leave.ErrLeaveTypeNotFound
	}
	if err != nil {
		return leave.LeaveType{}, fmt.Errorf("failed to query leave type: %w", err)
	}
	return lt, nil
}

// ListLeaveTypes returns the full leave type catalog.
func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, category_id, description, paid, deductible, attachment
		FROM leave_types ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

func scanLeaveType(row rowScanner) (leave.LeaveType, error) {
	var (
		lt         leave.LeaveType
		category   sql.NullString
		desc       sql.NullString
		attachment string
	)
	err := row.Scan(&lt.ID, &lt.Code, &lt.Name, &category, &desc,
		&lt.Paid, &lt.Deductible, &attachment)
	if err != nil {
		return leave.LeaveType{}, err
	}
	lt.CategoryID = category.String
	lt.Description = desc.String
	lt.Attachment = leave.AttachmentRequirement(attachment)
	return lt, nil
}

// =============================================================================
// CALENDAR PROVIDER (leave.CalendarProvider)
// =============================================================================

// SaveCalendar inserts or replaces the calendar for its year.
func (s *Store) SaveCalendar(ctx context.Context, cal leave.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holidaysJSON, err := json.Marshal(cal.Holidays)
	if err != nil {
		return fmt.Errorf("failed to marshal holidays: %w", err)
	}
	blockedJSON, err := json.Marshal(cal.BlockedPeriods)
	if err != nil {
		return fmt.Errorf("failed to marshal blocked periods: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calendars (year, holidays_json, blocked_json)
		VALUES (?, ?, ?)`,
		cal.Year, string(holidaysJSON), string(blockedJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save calendar: %w", err)
	}
	return nil
}

func (s *Store) GetCalendar(ctx context.Context, year int) (leave.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holidaysJSON, blockedJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT holidays_json, blocked_json FROM calendars WHERE year = ?", year,
	).Scan(&holidaysJSON, &blockedJSON)
	if err == sql.ErrNoRows {
		return leave.Calendar{}, leave.ErrCalendarNotFound
	}
	if err != nil {
		return leave.Calendar{}, fmt.Errorf("failed to query calendar: %w", err)
	}

	cal := leave.Calendar{Year: year}
	if err := json.Unmarshal([]byte(holidaysJSON), &cal.Holidays); err != nil {
		return leave.Calendar{}, fmt.Errorf("failed to unmarshal holidays: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedJSON), &cal.BlockedPeriods); err != nil {
		return leave.Calendar{}, fmt.Errorf("failed to unmarshal blocked periods: %w", err)
	}
	return cal, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed installs the standard annual/sick configurations and a calendar for
// the given year with the end-of-year freeze. Intended for development.
func (s *Store) Seed(ctx context.Context, year int) error {
	configs := []leave.PolicyConfig{
		leave.AnnualLeaveConfig("lt-annual", "pol-annual-v1"),
		leave.SickLeaveConfig("lt-sick", "pol-sick-v1"),
	}
	for _, cfg := range configs {
		if err := s.SaveLeaveType(ctx, cfg.Type); err != nil {
			return err
		}
		if err := s.SavePolicy(ctx, cfg.Policy); err != nil {
			return err
		}
	}
	return s.SaveCalendar(ctx, leave.YearEndFreezeCalendar(year, nil))
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
