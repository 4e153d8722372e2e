package leave

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ADJUSTMENT RECORDER - Actor-attributed manual corrections
// =============================================================================

// Recorder appends manual grants and deductions to the ledger. There is no
// update or delete: a mistake is corrected by recording the opposite
// adjustment, preserving full history.
type Recorder struct {
	ledger *Ledger
}

func NewRecorder(ledger *Ledger) *Recorder {
	return &Recorder{ledger: ledger}
}

// Record validates and appends one adjustment, feeding the ledger
// immediately. Amount must be positive; the actor is required for audit
// attribution (the engine does not authenticate it).
func (r *Recorder) Record(
	ctx context.Context,
	employeeID EmployeeID,
	leaveTypeID LeaveTypeID,
	year int,
	adjType AdjustmentType,
	amount decimal.Decimal,
	reason string,
	actor string,
	now TimePoint,
) (Adjustment, error) {
	if !amount.IsPositive() {
		return Adjustment{}, newValidationError(CodeBadAmount, "adjustment amount must be positive, got %s", amount)
	}
	if actor == "" {
		return Adjustment{}, newValidationError(CodeMissingActor, "adjustments must be actor-attributed")
	}
	if adjType != AdjustmentAdd && adjType != AdjustmentDeduct {
		return Adjustment{}, newValidationError(CodeBadAmount, "unknown adjustment type %q", adjType)
	}

	adj := Adjustment{
		ID:          AdjustmentID(uuid.NewString()),
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		Year:        year,
		Type:        adjType,
		Amount:      amount,
		Reason:      reason,
		Actor:       actor,
		RecordedAt:  now,
	}

	if err := r.ledger.ApplyAdjustment(ctx, adj); err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}
