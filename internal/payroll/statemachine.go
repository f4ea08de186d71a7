package payroll

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

// StateMachine implements the draft/confirmed/cancelled lifecycle a
// PayrollRecord moves through, per spec.md §4.5-4.6. Confirm freezes a
// snapshot; Cancel never mutates a confirmed record in place, it forks a
// new draft at version+1 so the confirmed record remains an immutable
// historical fact.
type StateMachine struct {
	repo Repository
}

// NewStateMachine constructs a StateMachine over the given repository.
func NewStateMachine(repo Repository) *StateMachine {
	return &StateMachine{repo: repo}
}

// CreateFromCalculation materializes a CalculationResult as a draft
// PayrollRecord. Idempotent at the group level: calling it again for the
// same (company, employee, period) updates the current draft row in place
// rather than inserting a second row at the same (group_id, version), since
// PayrollCalculator is expected to be re-run whenever upstream attendance or
// master data changes before the record is confirmed. If the recomputed
// totals exactly match the existing draft, the draft is returned unchanged
// and no write happens.
func (s *StateMachine) CreateFromCalculation(ctx context.Context, companyID, employeeID, periodID string, result *CalculationResult) (*PayrollRecord, error) {
	group, err := s.repo.GetGroup(ctx, companyID, employeeID, periodID)
	if err != nil && !isNotFound(err) {
		return nil, apierror.Internal(err)
	}

	now := time.Now()

	if group == nil {
		group = &PayrollRecordGroup{
			ID:              uuid.New().String(),
			CompanyID:       companyID,
			EmployeeID:      employeeID,
			PayrollPeriodID: periodID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.CreateGroup(ctx, group); err != nil {
			return nil, apierror.Internal(err)
		}
		return s.createDraft(ctx, group, 1, result, now)
	}

	current, err := s.repo.GetRecord(ctx, group.CurrentRecordID)
	if err != nil && !isNotFound(err) {
		return nil, apierror.Internal(err)
	}
	if current == nil {
		return s.createDraft(ctx, group, 1, result, now)
	}
	if current.Status != StatusDraft {
		return nil, apierror.InvalidStatef("payroll record group already has a %s record; cancel it before recalculating", current.Status)
	}
	if sameTotals(current, result) {
		return current, nil
	}

	current.TotalEarnings = result.TotalEarnings
	current.TotalDeductions = result.TotalDeductions
	current.NetPay = result.NetPay
	current.CalculationDetails = result.Details
	current.UpdatedAt = now

	items := make([]PayrollRecordItem, len(result.Items))
	for i, it := range result.Items {
		it.ID = uuid.New().String()
		it.RecordID = current.ID
		items[i] = it
	}

	if err := s.repo.UpdateRecord(ctx, current, items); err != nil {
		return nil, apierror.Internal(err)
	}
	return current, nil
}

// createDraft inserts a brand-new PayrollRecord at the given version and
// points the group at it. Used both for a group's very first draft and
// after Cancel forks a new one.
func (s *StateMachine) createDraft(ctx context.Context, group *PayrollRecordGroup, version int, result *CalculationResult, now time.Time) (*PayrollRecord, error) {
	rec := &PayrollRecord{
		ID:                 uuid.New().String(),
		GroupID:            group.ID,
		Version:            version,
		Status:             StatusDraft,
		TotalEarnings:      result.TotalEarnings,
		TotalDeductions:    result.TotalDeductions,
		NetPay:             result.NetPay,
		CalculationDetails: result.Details,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	items := make([]PayrollRecordItem, len(result.Items))
	for i, it := range result.Items {
		it.ID = uuid.New().String()
		it.RecordID = rec.ID
		items[i] = it
	}

	if err := s.repo.CreateRecord(ctx, rec, items); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := s.repo.UpdateGroupCurrentRecord(ctx, group.ID, rec.ID); err != nil {
		return nil, apierror.Internal(err)
	}
	return rec, nil
}

// sameTotals reports whether a recalculation produced the same earnings,
// deductions and net pay as the existing draft, making the write a no-op.
func sameTotals(current *PayrollRecord, result *CalculationResult) bool {
	return current.TotalEarnings == result.TotalEarnings &&
		current.TotalDeductions == result.TotalDeductions &&
		current.NetPay == result.NetPay
}

// Confirm transitions a draft record to confirmed, freezing a snapshot of
// the record and its items and appending a history entry. The transition
// is conditioned on status=draft via Repository.TransitionRecordStatus, so
// a concurrent double-confirm loses the race rather than corrupting state.
func (s *StateMachine) Confirm(ctx context.Context, recordID, confirmedBy string) (*PayrollRecord, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NotFoundf("payroll record %s not found", recordID)
		}
		return nil, apierror.Internal(err)
	}
	if rec.Status != StatusDraft {
		return nil, apierror.InvalidStatef("payroll record %s is %s, not draft", recordID, rec.Status)
	}

	items, err := s.repo.GetRecordItems(ctx, recordID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	now := time.Now()
	ok, err := s.repo.TransitionRecordStatus(ctx, recordID, StatusDraft, StatusConfirmed, map[string]interface{}{
		"confirmed_at": now,
		"confirmed_by": confirmedBy,
	})
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if !ok {
		return nil, apierror.Conflictf("payroll record %s was already transitioned by another request", recordID)
	}

	payload, err := json.Marshal(struct {
		Record PayrollRecord       `json:"record"`
		Items  []PayrollRecordItem `json:"items"`
	}{Record: *rec, Items: items})
	if err != nil {
		return nil, apierror.Internal(err)
	}

	if err := s.repo.CreateSnapshot(ctx, &PayrollSnapshot{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		return nil, apierror.Internal(err)
	}

	if err := s.repo.AppendHistory(ctx, &PayrollHistory{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Action:    "confirm",
		OldValue:  string(StatusDraft),
		NewValue:  string(StatusConfirmed),
		Actor:     confirmedBy,
		CreatedAt: now,
	}); err != nil {
		return nil, apierror.Internal(err)
	}

	rec.Status = StatusConfirmed
	rec.ConfirmedAt = &now
	rec.ConfirmedBy = confirmedBy
	return rec, nil
}

// Cancel retires a confirmed record and forks a new draft at version+1,
// cloning its items as the starting point for recalculation. The confirmed
// record and its snapshot are never mutated; cancellation and the new
// draft's creation are each logged as separate history entries.
func (s *StateMachine) Cancel(ctx context.Context, recordID, cancelledBy, reason string) (*PayrollRecord, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NotFoundf("payroll record %s not found", recordID)
		}
		return nil, apierror.Internal(err)
	}
	if rec.Status != StatusConfirmed {
		return nil, apierror.InvalidStatef("payroll record %s is %s, only confirmed records can be cancelled", recordID, rec.Status)
	}

	items, err := s.repo.GetRecordItems(ctx, recordID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	now := time.Now()
	ok, err := s.repo.TransitionRecordStatus(ctx, recordID, StatusConfirmed, StatusCancelled, map[string]interface{}{
		"cancelled_at":  now,
		"cancelled_by":  cancelledBy,
		"cancel_reason": reason,
	})
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if !ok {
		return nil, apierror.Conflictf("payroll record %s was already transitioned by another request", recordID)
	}

	if err := s.repo.AppendHistory(ctx, &PayrollHistory{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Action:    "cancel",
		OldValue:  string(StatusConfirmed),
		NewValue:  string(StatusCancelled),
		Actor:     cancelledBy,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return nil, apierror.Internal(err)
	}

	newRec := &PayrollRecord{
		ID:                 uuid.New().String(),
		GroupID:            rec.GroupID,
		Version:            rec.Version + 1,
		Status:             StatusDraft,
		TotalEarnings:      rec.TotalEarnings,
		TotalDeductions:    rec.TotalDeductions,
		NetPay:             rec.NetPay,
		CalculationDetails: rec.CalculationDetails,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	newItems := make([]PayrollRecordItem, len(items))
	for i, it := range items {
		it.ID = uuid.New().String()
		it.RecordID = newRec.ID
		newItems[i] = it
	}

	if err := s.repo.CreateRecord(ctx, newRec, newItems); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := s.repo.UpdateGroupCurrentRecord(ctx, rec.GroupID, newRec.ID); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := s.repo.AppendHistory(ctx, &PayrollHistory{
		ID:        uuid.New().String(),
		RecordID:  newRec.ID,
		Action:    "fork_after_cancel",
		OldValue:  recordID,
		NewValue:  newRec.ID,
		Actor:     cancelledBy,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return nil, apierror.Internal(err)
	}

	return newRec, nil
}

func isNotFound(err error) bool {
	return err == ErrNotFound
}
