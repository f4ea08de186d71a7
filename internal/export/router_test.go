package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"github.com/kyuyo-systems/payroll-engine/internal/accounting"
	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/attendance"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
	"github.com/kyuyo-systems/payroll-engine/internal/payroll"
	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
	"github.com/kyuyo-systems/payroll-engine/internal/yearend"
)

// --- fakes -----------------------------------------------------------------

type fakePayrollRepo struct {
	confirmed []payroll.ConfirmedRecord
	all       []payroll.ConfirmedRecord
}

func (f *fakePayrollRepo) GetGroup(ctx context.Context, companyID, employeeID, periodID string) (*payroll.PayrollRecordGroup, error) {
	return nil, payroll.ErrNotFound
}
func (f *fakePayrollRepo) CreateGroup(ctx context.Context, g *payroll.PayrollRecordGroup) error {
	return nil
}
func (f *fakePayrollRepo) UpdateGroupCurrentRecord(ctx context.Context, groupID, recordID string) error {
	return nil
}
func (f *fakePayrollRepo) CreateRecord(ctx context.Context, rec *payroll.PayrollRecord, items []payroll.PayrollRecordItem) error {
	return nil
}
func (f *fakePayrollRepo) GetRecord(ctx context.Context, recordID string) (*payroll.PayrollRecord, error) {
	return nil, payroll.ErrNotFound
}
func (f *fakePayrollRepo) GetRecordItems(ctx context.Context, recordID string) ([]payroll.PayrollRecordItem, error) {
	return nil, nil
}
func (f *fakePayrollRepo) ListConfirmedByPeriod(ctx context.Context, companyID, periodID string) ([]payroll.ConfirmedRecord, error) {
	return f.confirmed, nil
}
func (f *fakePayrollRepo) ListByPeriod(ctx context.Context, companyID, periodID string) ([]payroll.ConfirmedRecord, error) {
	return f.all, nil
}
func (f *fakePayrollRepo) TransitionRecordStatus(ctx context.Context, recordID string, from, to payroll.RecordStatus, fields map[string]interface{}) (bool, error) {
	return false, nil
}
func (f *fakePayrollRepo) CreateSnapshot(ctx context.Context, s *payroll.PayrollSnapshot) error {
	return nil
}
func (f *fakePayrollRepo) AppendHistory(ctx context.Context, h *payroll.PayrollHistory) error {
	return nil
}
func (f *fakePayrollRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakePayrollRepo) WithTx(tx pgx.Tx) payroll.Repository        { return f }

type fakeAccountingRepo struct {
	byKey map[string]*accounting.Mapping
}

func (f *fakeAccountingRepo) Get(ctx context.Context, companyID, itemType, itemCode string) (*accounting.Mapping, error) {
	m, ok := f.byKey[companyID+"|"+itemType+"|"+itemCode]
	if !ok {
		return nil, accounting.ErrNotFound
	}
	return m, nil
}
func (f *fakeAccountingRepo) List(ctx context.Context, companyID string) ([]accounting.Mapping, error) {
	return nil, nil
}
func (f *fakeAccountingRepo) Upsert(ctx context.Context, m *accounting.Mapping) error { return nil }
func (f *fakeAccountingRepo) Delete(ctx context.Context, companyID, id string) error  { return nil }

type fakeEmployeeRepo struct {
	byID map[string]*employee.Employee
}

func (f *fakeEmployeeRepo) CreateEmployee(ctx context.Context, e *employee.Employee) error { return nil }
func (f *fakeEmployeeRepo) GetEmployee(ctx context.Context, companyID, employeeID string) (*employee.Employee, error) {
	e, ok := f.byID[employeeID]
	if !ok {
		return nil, employee.ErrNotFound
	}
	return e, nil
}
func (f *fakeEmployeeRepo) ListActiveEmployees(ctx context.Context, companyID string) ([]employee.Employee, error) {
	return nil, nil
}
func (f *fakeEmployeeRepo) UpdateEmployee(ctx context.Context, e *employee.Employee) error { return nil }
func (f *fakeEmployeeRepo) SoftDeleteEmployee(ctx context.Context, companyID, employeeID string, deletedAt time.Time) error {
	return nil
}
func (f *fakeEmployeeRepo) AllowancesEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) ([]employee.EmployeeAllowanceWithType, error) {
	return nil, nil
}
func (f *fakeEmployeeRepo) CommuteEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) (*employee.CommuteDetail, error) {
	return nil, nil
}
func (f *fakeEmployeeRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakeEmployeeRepo) WithTx(tx pgx.Tx) employee.Repository       { return f }

type fakeTenantRepo struct {
	company *tenant.Company
}

func (f *fakeTenantRepo) CreateCompany(ctx context.Context, c *tenant.Company) error { return nil }
func (f *fakeTenantRepo) GetCompany(ctx context.Context, companyID string) (*tenant.Company, error) {
	return f.company, nil
}
func (f *fakeTenantRepo) GetCompanyBySlug(ctx context.Context, slug string) (*tenant.Company, error) {
	return f.company, nil
}
func (f *fakeTenantRepo) UpdateCompany(ctx context.Context, companyID string, req tenant.UpdateCompanyRequest, updatedAt time.Time) error {
	return nil
}
func (f *fakeTenantRepo) SoftDeleteCompany(ctx context.Context, companyID string, deletedAt time.Time) error {
	return nil
}

type fakeYearEndRepo struct{}

func (f *fakeYearEndRepo) Get(ctx context.Context, id string) (*yearend.Adjustment, error) {
	return nil, yearend.ErrNotFound
}
func (f *fakeYearEndRepo) GetByEmployeeYear(ctx context.Context, companyID, employeeID string, targetYear int) (*yearend.Adjustment, error) {
	return nil, yearend.ErrNotFound
}
func (f *fakeYearEndRepo) List(ctx context.Context, companyID string, targetYear *int, status *yearend.Status, employeeID *string, offset, limit int) ([]yearend.Adjustment, int, error) {
	return nil, 0, nil
}
func (f *fakeYearEndRepo) Create(ctx context.Context, a *yearend.Adjustment) error { return nil }
func (f *fakeYearEndRepo) Update(ctx context.Context, a *yearend.Adjustment) error { return nil }
func (f *fakeYearEndRepo) AppendHistory(ctx context.Context, h *yearend.History) error {
	return nil
}
func (f *fakeYearEndRepo) CreateCertificate(ctx context.Context, c *yearend.Certificate) error {
	return nil
}
func (f *fakeYearEndRepo) ListCertificates(ctx context.Context, adjustmentID string) ([]yearend.Certificate, error) {
	return nil, nil
}
func (f *fakeYearEndRepo) GetWithholdingSlip(ctx context.Context, adjustmentID string) (*yearend.WithholdingSlip, error) {
	return nil, yearend.ErrNotFound
}
func (f *fakeYearEndRepo) CreateWithholdingSlip(ctx context.Context, s *yearend.WithholdingSlip) error {
	return nil
}

type fakeAttendanceRepo struct {
	period *attendance.PayrollPeriod
}

func (f *fakeAttendanceRepo) GetAttendanceRecord(ctx context.Context, companyID, employeeID string, yearMonth int) (*attendance.AttendanceRecord, error) {
	return nil, attendance.ErrNotFound
}
func (f *fakeAttendanceRepo) UpsertAttendanceRecord(ctx context.Context, a *attendance.AttendanceRecord) error {
	return nil
}
func (f *fakeAttendanceRepo) GetPayrollPeriod(ctx context.Context, companyID string, yearMonth int, periodType attendance.PeriodType) (*attendance.PayrollPeriod, error) {
	return f.period, nil
}
func (f *fakeAttendanceRepo) GetPayrollPeriodByID(ctx context.Context, companyID, periodID string) (*attendance.PayrollPeriod, error) {
	return f.period, nil
}
func (f *fakeAttendanceRepo) CreatePayrollPeriod(ctx context.Context, p *attendance.PayrollPeriod) error {
	return nil
}
func (f *fakeAttendanceRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakeAttendanceRepo) WithTx(tx pgx.Tx) attendance.Repository     { return f }

// --- fixtures ----------------------------------------------------------------

func sampleRecord(employeeID string, status payroll.RecordStatus) payroll.ConfirmedRecord {
	return payroll.ConfirmedRecord{
		PayrollRecord: payroll.PayrollRecord{
			ID:              "rec-" + employeeID,
			Status:          status,
			TotalEarnings:   300000,
			TotalDeductions: 50000,
			NetPay:          250000,
		},
		CompanyID:       "co-1",
		EmployeeID:      employeeID,
		PayrollPeriodID: "period-1",
		Items: []payroll.PayrollRecordItem{
			{ItemType: payroll.ItemEarning, ItemCode: "base_salary", ItemName: "基本給", Amount: 300000},
			{ItemType: payroll.ItemDeduction, ItemCode: "health_insurance", ItemName: "健康保険料", Amount: 50000},
		},
	}
}

func sampleEmployee(id, code string) *employee.Employee {
	return &employee.Employee{
		ID:            id,
		CompanyID:     "co-1",
		EmployeeCode:  code,
		FirstName:     "太郎",
		LastName:      "山田",
		Department:    "営業部",
		BankName:      "みずほ銀行",
		BranchName:    "東京支店",
		AccountType:   "savings",
		AccountNumber: "1234567",
		AccountHolder: "ヤマダ タロウ",
	}
}

func newRouter() (*ExportRouter, *fakePayrollRepo) {
	pr := &fakePayrollRepo{}
	ar := &fakeAccountingRepo{byKey: map[string]*accounting.Mapping{}}
	er := &fakeEmployeeRepo{byID: map[string]*employee.Employee{
		"emp-1": sampleEmployee("emp-1", "0001"),
		"emp-2": sampleEmployee("emp-2", "0002"),
	}}
	tr := &fakeTenantRepo{company: &tenant.Company{ID: "co-1", Name: "テスト株式会社"}}
	attRepo := &fakeAttendanceRepo{period: &attendance.PayrollPeriod{
		ID: "period-1", CompanyID: "co-1", PaymentDate: time.Date(2026, 7, 25, 0, 0, 0, 0, time.UTC),
	}}
	yw := yearend.NewWorkflow(&fakeYearEndRepo{}, er)

	return NewExportRouter(pr, accounting.NewService(ar), er, tenant.NewService(tr), attRepo, yw), pr
}

// --- tests -------------------------------------------------------------------

func TestPayrollLedgerCSV_IncludesGrandTotalRow(t *testing.T) {
	router, pr := newRouter()
	pr.confirmed = []payroll.ConfirmedRecord{
		sampleRecord("emp-1", payroll.StatusConfirmed),
		sampleRecord("emp-2", payroll.StatusConfirmed),
	}

	csv, err := router.PayrollLedgerCSV(context.Background(), "co-1", "period-1")
	require.NoError(t, err)

	s := string(csv)
	assert.True(t, strings.HasPrefix(s, "\xEF\xBB\xBF"))
	assert.Contains(t, s, "社員コード,氏名,部署,支給額合計,控除額合計,差引支給額")
	assert.Contains(t, s, "0001,山田 太郎,営業部,300000,50000,250000")
	assert.Contains(t, s, "合計,,,600000,100000,500000")
}

func TestBankTransfer_RejectsEmptyPeriod(t *testing.T) {
	router, _ := newRouter()
	_, err := router.BankTransfer(context.Background(), "co-1", "period-1")
	require.Error(t, err)
}

func TestBankTransfer_ProducesShiftJISFixedWidthRecords(t *testing.T) {
	router, pr := newRouter()
	pr.confirmed = []payroll.ConfirmedRecord{sampleRecord("emp-1", payroll.StatusConfirmed)}

	out, err := router.BankTransfer(context.Background(), "co-1", "period-1")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	decoded, err := japanese.ShiftJIS.NewDecoder().String(string(out))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(decoded, "\r\n"), "\r\n")
	// header, one data record, trailer, end record.
	require.Len(t, lines, 4)
	for _, l := range lines {
		assert.Equal(t, 120, len([]rune(l)))
	}
	assert.Equal(t, byte('1'), lines[0][0])
	assert.Equal(t, byte('2'), lines[1][0])
	assert.Equal(t, byte('8'), lines[2][0])
	assert.Equal(t, byte('9'), lines[3][0])
}

func TestAccountingJournal_FallsBackToGenericAccountsWhenUnmapped(t *testing.T) {
	router, pr := newRouter()
	pr.confirmed = []payroll.ConfirmedRecord{sampleRecord("emp-1", payroll.StatusConfirmed)}

	out, err := router.AccountingJournal(context.Background(), "co-1", "period-1")
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "給与手当,給与手当,,,300000,基本給")
	assert.Contains(t, s, ",,預り金,預り金,50000,健康保険料")
}

func TestMonthlySummary_CountsAcrossAllStatuses(t *testing.T) {
	router, pr := newRouter()
	pr.all = []payroll.ConfirmedRecord{
		sampleRecord("emp-1", payroll.StatusConfirmed),
		sampleRecord("emp-2", payroll.StatusDraft),
	}

	summary, err := router.MonthlySummary(context.Background(), "co-1", "period-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEmployees)
	assert.Equal(t, int64(600000), summary.TotalEarnings)
	assert.Equal(t, 1, summary.ByStatus["confirmed"])
	assert.Equal(t, 1, summary.ByStatus["draft"])
}

func TestGenerateWithholdingSlip_ThrottlesBurstOfRetries(t *testing.T) {
	router, _ := newRouter()
	_, err1 := router.GenerateWithholdingSlip(context.Background(), "adj-1")
	_, err2 := router.GenerateWithholdingSlip(context.Background(), "adj-1")

	// Both fail (no backing yearend.Repository in this fixture), but the
	// second must fail fast on the limiter rather than reach the workflow.
	require.Error(t, err1)
	require.Error(t, err2)
	assert.True(t, apierror.Is(err1, apierror.KindNotFound))
	assert.True(t, apierror.Is(err2, apierror.KindConflict))
}
