package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestServer runs the full stack on an in-memory database, seeded with the
// standard configurations, with the clock pinned to 2025-06-02.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(context.Background(), 2025))

	handler := api.NewHandler(store)
	handler.Clock = func() leave.TimePoint {
		return leave.NewTimePoint(2025, time.June, 2)
	}
	return api.NewRouter(handler)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func submitBody() map[string]any {
	return map[string]any{
		"leave_type_id": "lt-annual",
		"hire_date":     "2023-01-01",
		"from":          "2025-07-14",
		"to":            "2025-07-18",
	}
}

// =============================================================================
// REQUEST LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_SubmitApproveAndBalance(t *testing.T) {
	// GIVEN: A seeded server
	// WHEN: Submitting a week of annual leave, then approving it
	// THEN: The balance reflects the hold, then the consumption

	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/requests", submitBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[api.RequestDTO](t, rec)
	assert.Equal(t, "PENDING", req.Status)
	assert.Equal(t, "5", req.DurationDays)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=lt-annual&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "5", balance.Reserved)
	assert.Equal(t, "21", balance.Remaining)
	assert.Equal(t, "16", balance.Available)

	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/approve",
		map[string]string{"role": "Manager", "actor": "mgr-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[api.RequestDTO](t, rec)
	assert.Equal(t, "APPROVED", approved.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=lt-annual&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance = decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "0", balance.Reserved)
	assert.Equal(t, "5", balance.Consumed)
	assert.Equal(t, "16", balance.Remaining)
}

func TestAPI_SubmitValidationFailure_400(t *testing.T) {
	// GIVEN: The 7-day notice rule on annual leave
	// WHEN: Requesting leave that starts in two days
	// THEN: 400 with the validation detail

	router := newTestServer(t)
	body := submitBody()
	body["from"] = "2025-06-04"
	body["to"] = "2025-06-05"

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/requests", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "notice")
}

func TestAPI_CancelRequest(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/requests", submitBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	req := decode[api.RequestDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/cancel",
		map[string]string{"actor": "emp-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[api.RequestDTO](t, rec)
	assert.Equal(t, "CANCELLED", cancelled.Status)

	// Cancelling again hits the terminal-state rule.
	rec = doJSON(t, router, http.MethodPost, "/api/requests/"+req.ID+"/cancel",
		map[string]string{"actor": "emp-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UnknownRequest_404(t *testing.T) {
	router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/requests/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PendingQueue(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/requests", submitBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/requests/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]api.RequestDTO](t, rec)
	assert.Len(t, pending, 1)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAPI_AdjustmentAndLedgerHistory(t *testing.T) {
	// GIVEN: A manual 3-day grant
	// WHEN: Reading the balance and ledger
	// THEN: Both reflect the actor-attributed adjustment

	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/adjustments", map[string]any{
		"employee_id":   "emp-1",
		"leave_type_id": "lt-annual",
		"year":          2025,
		"type":          "ADD",
		"amount":        "3",
		"reason":        "service award",
		"actor":         "hr-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=lt-annual&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "3", balance.Adjustments)
	assert.Equal(t, "3", balance.Remaining)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/ledger?leave_type=lt-annual&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.EntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "adjustment", entries[0].Type)
	assert.Equal(t, "hr-1", entries[0].Actor)
}

func TestAPI_Rollover(t *testing.T) {
	// GIVEN: 4 days granted in 2025 (under the 5-day carry cap)
	// WHEN: Triggering a rollover into 2026
	// THEN: All 4 carry; the new year opens with them

	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/adjustments", map[string]any{
		"employee_id":   "emp-1",
		"leave_type_id": "lt-annual",
		"year":          2025,
		"type":          "ADD",
		"amount":        "4",
		"reason":        "prior accrual",
		"actor":         "hr-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/admin/rollover", map[string]any{
		"employee_id":   "emp-1",
		"leave_type_id": "lt-annual",
		"from_year":     2025,
		"actor":         "hr-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[api.RolloverDTO](t, rec)
	assert.Equal(t, "4", result.CarriedOver)
	assert.Equal(t, "0", result.Forfeited)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=lt-annual&year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "4", balance.Remaining)
}

func TestAPI_LeaveTypeCatalogAndCalendar(t *testing.T) {
	router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/leave-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[[]api.LeaveTypeDTO](t, rec)
	require.Len(t, types, 2)
	assert.Equal(t, "AL", types[0].Code)
	assert.Equal(t, "SL", types[1].Code)

	rec = doJSON(t, router, http.MethodGet, "/api/calendars/2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cal := decode[api.CalendarDTO](t, rec)
	require.Len(t, cal.BlockedPeriods, 1)
	assert.Equal(t, "2025-12-25", cal.BlockedPeriods[0].From)

	rec = doJSON(t, router, http.MethodGet, "/api/calendars/2030", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
