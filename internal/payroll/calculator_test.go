package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/attendance"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
	"github.com/kyuyo-systems/payroll-engine/internal/insurance"
	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
	"github.com/kyuyo-systems/payroll-engine/internal/tax"
	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
)

type fakeEmployeeRepo struct {
	allowances []employee.EmployeeAllowanceWithType
	commute    *employee.CommuteDetail
}

func (f *fakeEmployeeRepo) CreateEmployee(ctx context.Context, e *employee.Employee) error { return nil }
func (f *fakeEmployeeRepo) GetEmployee(ctx context.Context, companyID, employeeID string) (*employee.Employee, error) {
	return nil, employee.ErrNotFound
}
func (f *fakeEmployeeRepo) ListActiveEmployees(ctx context.Context, companyID string) ([]employee.Employee, error) {
	return nil, nil
}
func (f *fakeEmployeeRepo) UpdateEmployee(ctx context.Context, e *employee.Employee) error { return nil }
func (f *fakeEmployeeRepo) SoftDeleteEmployee(ctx context.Context, companyID, employeeID string, deletedAt time.Time) error {
	return nil
}
func (f *fakeEmployeeRepo) AllowancesEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) ([]employee.EmployeeAllowanceWithType, error) {
	return f.allowances, nil
}
func (f *fakeEmployeeRepo) CommuteEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) (*employee.CommuteDetail, error) {
	return f.commute, nil
}
func (f *fakeEmployeeRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakeEmployeeRepo) WithTx(tx pgx.Tx) employee.Repository       { return f }

type fakeRateRepo struct {
	insuranceRates []ratebook.InsuranceRate
	brackets       []ratebook.IncomeTaxBracket
}

func (f *fakeRateRepo) InsuranceRateCandidates(ctx context.Context, companyID string, insuranceType ratebook.InsuranceType, targetDate time.Time, prefecture string) ([]ratebook.InsuranceRate, error) {
	var out []ratebook.InsuranceRate
	for _, r := range f.insuranceRates {
		if r.InsuranceType == insuranceType {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeRateRepo) IncomeTaxBracketCandidates(ctx context.Context, tableType ratebook.TableType, taxableIncome int64, dependentsCount int, targetDate time.Time) ([]ratebook.IncomeTaxBracket, error) {
	var out []ratebook.IncomeTaxBracket
	for _, b := range f.brackets {
		if b.TableType == tableType {
			out = append(out, b)
		}
	}
	return out, nil
}
func (f *fakeRateRepo) CommuteLimitCandidates(ctx context.Context, commuteType ratebook.CommuteType, distance decimal.Decimal, targetDate time.Time) ([]ratebook.CommuteTaxLimit, error) {
	return nil, nil
}
func (f *fakeRateRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakeRateRepo) WithTx(tx pgx.Tx) ratebook.Repository       { return f }

func testCompany() tenant.Company {
	return tenant.Company{
		ID:                        "company-1",
		HealthInsurancePrefecture: "tokyo",
		CareInsuranceApplicable:   true,
	}
}

func testPeriod() attendance.PayrollPeriod {
	return attendance.PayrollPeriod{
		StartDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		PaymentDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestCalculate_MonthlySalaryNoDeductionsNoAttendance(t *testing.T) {
	emp := employee.Employee{
		ID:             "emp-1",
		CompanyID:      "company-1",
		SalaryType:     employee.SalaryMonthly,
		SalarySettings: employee.SalarySettings{MonthlySalary: 300000, MonthlyPrescribedHours: 160},
		TaxCategory:    tax.CategoryKou,
	}

	empRepo := &fakeEmployeeRepo{}
	insEngine := insurance.New(ratebook.New(&fakeRateRepo{}))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, nil, testPeriod())
	require.NoError(t, err)

	assert.Equal(t, int64(300000), result.TotalEarnings)
	assert.Equal(t, int64(0), result.TotalDeductions)
	assert.Equal(t, int64(300000), result.NetPay)
	assert.Equal(t, int64(300000), result.Details.GrossSalary)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "base_salary", result.Items[0].ItemCode)
}

func TestCalculate_AbsenceDaysReduceBaseSalary(t *testing.T) {
	emp := employee.Employee{
		ID:             "emp-1",
		CompanyID:      "company-1",
		SalaryType:     employee.SalaryMonthly,
		SalarySettings: employee.SalarySettings{MonthlySalary: 200000, MonthlyPrescribedHours: 160},
		TaxCategory:    tax.CategoryKou,
	}
	att := &attendance.AttendanceRecord{StatutoryWorkDays: 20, AbsenceDays: 2}

	empRepo := &fakeEmployeeRepo{}
	insEngine := insurance.New(ratebook.New(&fakeRateRepo{}))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, att, testPeriod())
	require.NoError(t, err)

	// daily_rate = 200000/20 = 10000, absence_deduction = 10000*2 = 20000
	assert.Equal(t, int64(180000), result.Details.BaseSalary)
}

func TestCalculate_HourlySalaryFloorsToYen(t *testing.T) {
	emp := employee.Employee{
		ID:             "emp-1",
		CompanyID:      "company-1",
		SalaryType:     employee.SalaryHourly,
		SalarySettings: employee.SalarySettings{HourlyRate: 1500},
		TaxCategory:    tax.CategoryKou,
	}
	att := &attendance.AttendanceRecord{TotalWorkMinutes: 100} // 1500*100/60 = 2500.0 exact

	empRepo := &fakeEmployeeRepo{}
	insEngine := insurance.New(ratebook.New(&fakeRateRepo{}))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, att, testPeriod())
	require.NoError(t, err)
	assert.Equal(t, int64(2500), result.Details.BaseSalary)
}

func TestCalculate_CommuteSplitsTaxableAndNonTaxable(t *testing.T) {
	emp := employee.Employee{
		ID:             "emp-1",
		CompanyID:      "company-1",
		SalaryType:     employee.SalaryMonthly,
		SalarySettings: employee.SalarySettings{MonthlySalary: 200000, MonthlyPrescribedHours: 160},
		TaxCategory:    tax.CategoryKou,
	}

	empRepo := &fakeEmployeeRepo{
		commute: &employee.CommuteDetail{MonthlyCost: 200000, NonTaxableLimit: 150000},
	}
	insEngine := insurance.New(ratebook.New(&fakeRateRepo{}))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, nil, testPeriod())
	require.NoError(t, err)

	assert.Equal(t, int64(400000), result.TotalEarnings) // 200000 base + 200000 commute
	// taxable_earnings = 400000 - commute_nontaxable(150000) - social_insurance(0) = 250000
	assert.Equal(t, int64(250000), result.Details.TaxableEarnings)
}

func TestCalculate_SocialInsuranceOnlyWhenEnrolled(t *testing.T) {
	emp := employee.Employee{
		ID:                       "emp-1",
		CompanyID:                "company-1",
		SalaryType:               employee.SalaryMonthly,
		SalarySettings:           employee.SalarySettings{MonthlySalary: 300000, MonthlyPrescribedHours: 160},
		TaxCategory:              tax.CategoryKou,
		SocialInsuranceEnrolled:  true,
		PensionInsuranceEnrolled: false,
	}

	rateRepo := &fakeRateRepo{
		insuranceRates: []ratebook.InsuranceRate{
			{InsuranceType: ratebook.InsuranceHealth, ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EmployeeRate: decimal.NewFromFloat(0.05)},
		},
	}
	empRepo := &fakeEmployeeRepo{}
	insEngine := insurance.New(ratebook.New(rateRepo))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, nil, testPeriod())
	require.NoError(t, err)

	assert.Equal(t, int64(15000), result.Details.SocialInsuranceTotal) // 300000*0.05
	for _, it := range result.Items {
		assert.NotEqual(t, "pension_insurance", it.ItemCode)
	}
}

func TestCalculate_ResidentTaxPassesThroughWhenPositive(t *testing.T) {
	emp := employee.Employee{
		ID:                       "emp-1",
		CompanyID:                "company-1",
		SalaryType:               employee.SalaryMonthly,
		SalarySettings:           employee.SalarySettings{MonthlySalary: 300000, MonthlyPrescribedHours: 160},
		TaxCategory:              tax.CategoryKou,
		ResidentTaxMonthlyAmount: 12000,
	}

	empRepo := &fakeEmployeeRepo{}
	insEngine := insurance.New(ratebook.New(&fakeRateRepo{}))
	taxEngine := tax.New(ratebook.New(&fakeRateRepo{}), decimal.NewFromFloat(0.0358))
	calc := NewCalculator(empRepo, insEngine, taxEngine, 160, 150000, 20)

	result, err := calc.Calculate(context.Background(), testCompany(), emp, nil, testPeriod())
	require.NoError(t, err)

	assert.Equal(t, int64(12000), result.TotalDeductions)
	assert.Equal(t, int64(288000), result.NetPay)
}
