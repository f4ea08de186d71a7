package yearend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
)

type fakeRepo struct {
	adjustments map[string]*Adjustment
	byKey       map[string]string // companyID|employeeID|year -> id
	history     []History
	slips       map[string]*WithholdingSlip
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		adjustments: map[string]*Adjustment{},
		byKey:       map[string]string{},
		slips:       map[string]*WithholdingSlip{},
	}
}

func key(companyID, employeeID string, year int) string {
	return fmt.Sprintf("%s|%s|%d", companyID, employeeID, year)
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*Adjustment, error) {
	a, ok := f.adjustments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetByEmployeeYear(ctx context.Context, companyID, employeeID string, targetYear int) (*Adjustment, error) {
	id, ok := f.byKey[key(companyID, employeeID, targetYear)]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Get(ctx, id)
}

func (f *fakeRepo) List(ctx context.Context, companyID string, targetYear *int, status *Status, employeeID *string, offset, limit int) ([]Adjustment, int, error) {
	return nil, 0, nil
}

func (f *fakeRepo) Create(ctx context.Context, a *Adjustment) error {
	cp := *a
	f.adjustments[a.ID] = &cp
	f.byKey[key(a.CompanyID, a.EmployeeID, a.TargetYear)] = a.ID
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, a *Adjustment) error {
	cp := *a
	f.adjustments[a.ID] = &cp
	return nil
}

func (f *fakeRepo) AppendHistory(ctx context.Context, h *History) error {
	f.history = append(f.history, *h)
	return nil
}

func (f *fakeRepo) CreateCertificate(ctx context.Context, c *Certificate) error { return nil }
func (f *fakeRepo) ListCertificates(ctx context.Context, adjustmentID string) ([]Certificate, error) {
	return nil, nil
}

func (f *fakeRepo) GetWithholdingSlip(ctx context.Context, adjustmentID string) (*WithholdingSlip, error) {
	s, ok := f.slips[adjustmentID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) CreateWithholdingSlip(ctx context.Context, s *WithholdingSlip) error {
	f.slips[s.AdjustmentID] = s
	return nil
}

type fakeEmployees struct{}

func (fakeEmployees) CreateEmployee(ctx context.Context, e *employee.Employee) error { return nil }

func (fakeEmployees) GetEmployee(ctx context.Context, companyID, employeeID string) (*employee.Employee, error) {
	birth := time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)
	return &employee.Employee{
		ID: employeeID, CompanyID: companyID,
		FirstName: "太郎", LastName: "山田",
		FirstNameKana: "タロウ", LastNameKana: "ヤマダ",
		BirthDate:                   &birth,
		SocialInsuranceEnrolled:     true,
		PensionInsuranceEnrolled:    true,
		EmploymentInsuranceEnrolled: true,
	}, nil
}

func (fakeEmployees) ListActiveEmployees(ctx context.Context, companyID string) ([]employee.Employee, error) {
	return nil, nil
}
func (fakeEmployees) UpdateEmployee(ctx context.Context, e *employee.Employee) error { return nil }
func (fakeEmployees) SoftDeleteEmployee(ctx context.Context, companyID, employeeID string, deletedAt time.Time) error {
	return nil
}
func (fakeEmployees) AllowancesEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) ([]employee.EmployeeAllowanceWithType, error) {
	return nil, nil
}
func (fakeEmployees) CommuteEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) (*employee.CommuteDetail, error) {
	return nil, nil
}
func (fakeEmployees) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (fakeEmployees) WithTx(tx pgx.Tx) employee.Repository       { return fakeEmployees{} }

func TestCreate_RejectsDuplicatePerEmployeeYear(t *testing.T) {
	w := NewWorkflow(newFakeRepo(), fakeEmployees{})
	_, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{Basic: 480000}, "emp-1")
	require.NoError(t, err)

	_, err = w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{}, "emp-1")
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindConflict))
}

func TestSubmitApproveConfirm_HappyPath(t *testing.T) {
	w := NewWorkflow(newFakeRepo(), fakeEmployees{})
	adj, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{Basic: 480000}, "emp-1")
	require.NoError(t, err)

	adj, err = w.Submit(context.Background(), adj.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, adj.Status)

	adj, err = w.Approve(context.Background(), adj.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, adj.Status)

	withheld := int64(300000)
	calculated := int64(320000)
	_, err = w.Update(context.Background(), adj.ID, UpdateFields{})
	require.Error(t, err) // approved is not draft/returned
	assert.True(t, apierror.Is(err, apierror.KindInvalidState))

	repo := w.repo
	a, _ := repo.Get(context.Background(), adj.ID)
	a.AnnualWithheldTax = &withheld
	a.AnnualCalculatedTax = &calculated
	require.NoError(t, repo.Update(context.Background(), a))

	confirmed, err := w.Confirm(context.Background(), adj.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.AdjustmentAmount)
	assert.Equal(t, int64(20000), *confirmed.AdjustmentAmount)
}

func TestConfirm_RejectsWithoutAnnualTaxFigures(t *testing.T) {
	repo := newFakeRepo()
	w := NewWorkflow(repo, fakeEmployees{})
	adj, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{}, "emp-1")
	require.NoError(t, err)
	adj, err = w.Submit(context.Background(), adj.ID, "emp-1")
	require.NoError(t, err)
	adj, err = w.Approve(context.Background(), adj.ID, "admin-1")
	require.NoError(t, err)

	_, err = w.Confirm(context.Background(), adj.ID, "admin-1")
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindValidationFailed))
}

func TestReturn_SendsBackToEmployeeThenResubmits(t *testing.T) {
	w := NewWorkflow(newFakeRepo(), fakeEmployees{})
	adj, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{}, "emp-1")
	require.NoError(t, err)
	adj, err = w.Submit(context.Background(), adj.ID, "emp-1")
	require.NoError(t, err)

	adj, err = w.Return(context.Background(), adj.ID, "添付書類が不足しています", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, adj.Status)
	assert.Equal(t, "添付書類が不足しています", adj.ReturnReason)

	adj, err = w.Submit(context.Background(), adj.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, adj.Status)
}

func TestGenerateWithholdingSlip_AtMostOnce(t *testing.T) {
	repo := newFakeRepo()
	w := NewWorkflow(repo, fakeEmployees{})
	adj, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{Basic: 480000}, "emp-1")
	require.NoError(t, err)
	adj, err = w.Submit(context.Background(), adj.ID, "emp-1")
	require.NoError(t, err)
	adj, err = w.Approve(context.Background(), adj.ID, "admin-1")
	require.NoError(t, err)

	withheld := int64(300000)
	calculated := int64(280000)
	stored, _ := repo.Get(context.Background(), adj.ID)
	stored.AnnualWithheldTax = &withheld
	stored.AnnualCalculatedTax = &calculated
	require.NoError(t, repo.Update(context.Background(), stored))

	confirmed, err := w.Confirm(context.Background(), adj.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-20000), *confirmed.AdjustmentAmount)

	slip, err := w.GenerateWithholdingSlip(context.Background(), confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, "山田 太郎", slip.SlipData.EmployeeName)

	_, err = w.GenerateWithholdingSlip(context.Background(), confirmed.ID)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindConflict))
}

func TestGenerateWithholdingSlip_RejectsUnconfirmed(t *testing.T) {
	w := NewWorkflow(newFakeRepo(), fakeEmployees{})
	adj, err := w.Create(context.Background(), "co-1", "emp-1", 2025, Deductions{}, "emp-1")
	require.NoError(t, err)

	_, err = w.GenerateWithholdingSlip(context.Background(), adj.ID)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindInvalidState))
}
