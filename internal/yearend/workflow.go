package yearend

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
)

// Workflow drives an Adjustment through draft → submitted → approved →
// confirmed, with submitted able to fork back to returned for
// resubmission. Role and ownership checks (employee may only touch their
// own adjustment) are the caller's responsibility; Workflow enforces only
// the status preconditions spec.md §4.7 names.
type Workflow struct {
	repo      Repository
	employees employee.Repository
}

// NewWorkflow constructs a Workflow over the given repository and the
// employee master, the latter needed to build a withholding slip.
func NewWorkflow(repo Repository, employees employee.Repository) *Workflow {
	return &Workflow{repo: repo, employees: employees}
}

// Create starts a new draft Adjustment. Unique per (company, employee,
// target_year); a second Create for the same key is a Conflict.
func (w *Workflow) Create(ctx context.Context, companyID, employeeID string, targetYear int, deductions Deductions, actor string) (*Adjustment, error) {
	existing, err := w.repo.GetByEmployeeYear(ctx, companyID, employeeID, targetYear)
	if err != nil && !isNotFound(err) {
		return nil, apierror.Internal(err)
	}
	if existing != nil {
		return nil, apierror.Conflictf("a year-end adjustment for employee %s / %d already exists", employeeID, targetYear)
	}

	now := time.Now()
	adj := &Adjustment{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		EmployeeID: employeeID,
		TargetYear: targetYear,
		Status:     StatusDraft,
		Deductions: deductions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.repo.Create(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := w.repo.AppendHistory(ctx, &History{
		ID:           uuid.New().String(),
		AdjustmentID: adj.ID,
		Action:       "created",
		ChangedBy:    actor,
		NewStatus:    StatusDraft,
		CreatedAt:    now,
	}); err != nil {
		return nil, apierror.Internal(err)
	}
	return adj, nil
}

// Update patches an Adjustment's mutable fields. Allowed only when
// status ∈ {draft, returned}.
func (w *Workflow) Update(ctx context.Context, id string, patch UpdateFields) (*Adjustment, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusDraft && adj.Status != StatusReturned {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only draft or returned can be updated", id, adj.Status)
	}

	if patch.Deductions != nil {
		adj.Deductions = *patch.Deductions
	}
	if patch.AnnualIncome != nil {
		adj.AnnualIncome = patch.AnnualIncome
	}
	if patch.AnnualWithheldTax != nil {
		adj.AnnualWithheldTax = patch.AnnualWithheldTax
	}
	if patch.AnnualCalculatedTax != nil {
		adj.AnnualCalculatedTax = patch.AnnualCalculatedTax
	}
	if patch.SpouseInfo != nil {
		adj.SpouseInfo = patch.SpouseInfo
	}
	if patch.DependentInfo != nil {
		adj.DependentInfo = patch.DependentInfo
	}
	if patch.InsuranceInfo != nil {
		adj.InsuranceInfo = patch.InsuranceInfo
	}
	adj.UpdatedAt = time.Now()

	if err := w.repo.Update(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	return adj, nil
}

// Submit transitions an Adjustment from draft or returned to submitted.
func (w *Workflow) Submit(ctx context.Context, id, actor string) (*Adjustment, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusDraft && adj.Status != StatusReturned {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only draft or returned can be submitted", id, adj.Status)
	}

	old := adj.Status
	now := time.Now()
	adj.Status = StatusSubmitted
	adj.SubmittedAt = &now
	adj.UpdatedAt = now

	if err := w.repo.Update(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := w.appendTransition(ctx, adj.ID, "submitted", actor, old, StatusSubmitted, "", now); err != nil {
		return nil, err
	}
	return adj, nil
}

// Approve transitions an Adjustment from submitted to approved.
func (w *Workflow) Approve(ctx context.Context, id, actor string) (*Adjustment, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusSubmitted {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only submitted can be approved", id, adj.Status)
	}

	now := time.Now()
	adj.Status = StatusApproved
	adj.ApprovedAt = &now
	adj.ApprovedBy = actor
	adj.UpdatedAt = now

	if err := w.repo.Update(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := w.appendTransition(ctx, adj.ID, "approved", actor, StatusSubmitted, StatusApproved, "", now); err != nil {
		return nil, err
	}
	return adj, nil
}

// Return sends a submitted Adjustment back to the employee with a reason.
func (w *Workflow) Return(ctx context.Context, id, reason, actor string) (*Adjustment, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusSubmitted {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only submitted can be returned", id, adj.Status)
	}

	now := time.Now()
	adj.Status = StatusReturned
	adj.ReturnedAt = &now
	adj.ReturnReason = reason
	adj.UpdatedAt = now

	if err := w.repo.Update(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := w.appendTransition(ctx, adj.ID, "returned", actor, StatusSubmitted, StatusReturned, reason, now); err != nil {
		return nil, err
	}
	return adj, nil
}

// Confirm finalizes an approved Adjustment, computing the true-up amount
// as annual_calculated_tax − annual_withheld_tax: positive means
// additional withholding is owed, negative means a refund is due.
func (w *Workflow) Confirm(ctx context.Context, id, actor string) (*Adjustment, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusApproved {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only approved can be confirmed", id, adj.Status)
	}
	if adj.AnnualCalculatedTax == nil || adj.AnnualWithheldTax == nil {
		return nil, apierror.ValidationFailedf("annual_calculated_tax and annual_withheld_tax must be set before confirming")
	}

	amount := *adj.AnnualCalculatedTax - *adj.AnnualWithheldTax
	now := time.Now()
	adj.AdjustmentAmount = &amount
	adj.Status = StatusConfirmed
	adj.ConfirmedAt = &now
	adj.ConfirmedBy = actor
	adj.UpdatedAt = now

	if err := w.repo.Update(ctx, adj); err != nil {
		return nil, apierror.Internal(err)
	}
	if err := w.appendTransition(ctx, adj.ID, "confirmed", actor, StatusApproved, StatusConfirmed, "", now); err != nil {
		return nil, err
	}
	return adj, nil
}

// GenerateWithholdingSlip materializes a WithholdingSlip from a confirmed
// Adjustment and the employee master. At-most-once per Adjustment: a
// second call is a Conflict.
func (w *Workflow) GenerateWithholdingSlip(ctx context.Context, id string) (*WithholdingSlip, error) {
	adj, err := w.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusConfirmed {
		return nil, apierror.InvalidStatef("year-end adjustment %s is %s, only confirmed adjustments can generate a withholding slip", id, adj.Status)
	}

	existing, err := w.repo.GetWithholdingSlip(ctx, adj.ID)
	if err != nil && !isNotFound(err) {
		return nil, apierror.Internal(err)
	}
	if existing != nil {
		return nil, apierror.Conflictf("a withholding slip for year-end adjustment %s already exists", id)
	}

	emp, err := w.employees.GetEmployee(ctx, adj.CompanyID, adj.EmployeeID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	slip := &WithholdingSlip{
		ID:           uuid.New().String(),
		CompanyID:    adj.CompanyID,
		AdjustmentID: adj.ID,
		EmployeeID:   emp.ID,
		TargetYear:   adj.TargetYear,
		IssueDate:    time.Now(),
		SlipData: SlipData{
			EmployeeName:                emp.LastName + " " + emp.FirstName,
			EmployeeNameKana:            emp.LastNameKana + " " + emp.FirstNameKana,
			BirthDate:                   emp.BirthDate,
			TargetYear:                  adj.TargetYear,
			AnnualIncome:                adj.AnnualIncome,
			AnnualWithheldTax:           adj.AnnualWithheldTax,
			AnnualCalculatedTax:         adj.AnnualCalculatedTax,
			AdjustmentAmount:            adj.AdjustmentAmount,
			Deductions:                  adj.Deductions,
			SpouseInfo:                  adj.SpouseInfo,
			DependentInfo:               adj.DependentInfo,
			InsuranceInfo:               adj.InsuranceInfo,
			SocialInsuranceEnrolled:     emp.SocialInsuranceEnrolled,
			PensionInsuranceEnrolled:    emp.PensionInsuranceEnrolled,
			EmploymentInsuranceEnrolled: emp.EmploymentInsuranceEnrolled,
		},
	}

	if err := w.repo.CreateWithholdingSlip(ctx, slip); err != nil {
		return nil, apierror.Internal(err)
	}
	return slip, nil
}

func (w *Workflow) get(ctx context.Context, id string) (*Adjustment, error) {
	adj, err := w.repo.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apierror.NotFoundf("year-end adjustment %s not found", id)
		}
		return nil, apierror.Internal(err)
	}
	return adj, nil
}

func (w *Workflow) appendTransition(ctx context.Context, adjustmentID, action, actor string, old, new_ Status, reason string, at time.Time) error {
	if err := w.repo.AppendHistory(ctx, &History{
		ID:           uuid.New().String(),
		AdjustmentID: adjustmentID,
		Action:       action,
		ChangedBy:    actor,
		OldStatus:    old,
		NewStatus:    new_,
		Reason:       reason,
		CreatedAt:    at,
	}); err != nil {
		return apierror.Internal(err)
	}
	return nil
}

func isNotFound(err error) bool {
	return err == ErrNotFound
}
