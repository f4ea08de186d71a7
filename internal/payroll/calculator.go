package payroll

import (
	"context"
	"math"

	"github.com/kyuyo-systems/payroll-engine/internal/attendance"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
	"github.com/kyuyo-systems/payroll-engine/internal/insurance"
	"github.com/kyuyo-systems/payroll-engine/internal/overtime"
	"github.com/kyuyo-systems/payroll-engine/internal/tax"
	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
)

// Calculator composes the engine layer (overtime, insurance, tax) with
// employee master, allowances, commute and attendance into a
// CalculationResult, per spec.md §4.2.
type Calculator struct {
	employees employee.Repository
	insurance *insurance.Engine
	tax       *tax.Engine

	defaultMonthlyHours int
	defaultCommuteLimit int64
	defaultStatutoryDays int
}

// NewCalculator constructs a Calculator. defaultMonthlyHours and
// defaultCommuteLimit back-fill employee/commute settings that omit them,
// per original_source's DEFAULT_MONTHLY_HOURS and the commute non-taxable
// limit fallback.
func NewCalculator(employees employee.Repository, insuranceEngine *insurance.Engine, taxEngine *tax.Engine, defaultMonthlyHours int, defaultCommuteLimit int64, defaultStatutoryDays int) *Calculator {
	return &Calculator{
		employees:            employees,
		insurance:            insuranceEngine,
		tax:                  taxEngine,
		defaultMonthlyHours:  defaultMonthlyHours,
		defaultCommuteLimit:  defaultCommuteLimit,
		defaultStatutoryDays: defaultStatutoryDays,
	}
}

// Calculate computes one employee's payroll for one period. att may be nil
// when no attendance record exists for the month (work_days/minutes treated
// as zero, matching original_source's attendance-optional read).
func (c *Calculator) Calculate(ctx context.Context, company tenant.Company, emp employee.Employee, att *attendance.AttendanceRecord, period attendance.PayrollPeriod) (*CalculationResult, error) {
	var items []PayrollRecordItem
	var totalEarnings, totalDeductions int64
	displayOrder := 0

	addItem := func(itemType ItemType, code, name string, amount int64, taxable, siTarget, eiTarget bool) {
		if amount == 0 {
			return
		}
		displayOrder++
		items = append(items, PayrollRecordItem{
			ItemType: itemType, ItemCode: code, ItemName: name, Amount: amount,
			IsTaxable: taxable, IsSocialInsuranceTarget: siTarget, IsEmploymentInsuranceTarget: eiTarget,
			DisplayOrder: displayOrder,
		})
	}

	workDays := 0
	totalWorkMinutes := 0
	absenceDays := 0
	statutoryWorkDays := c.defaultStatutoryDays
	var notes []string
	if att != nil {
		workDays = att.WorkDays
		totalWorkMinutes = att.TotalWorkMinutes
		absenceDays = att.AbsenceDays
		if att.StatutoryWorkDays > 0 {
			statutoryWorkDays = att.StatutoryWorkDays
		}
	}

	settings := emp.SalarySettings

	// 1. Base salary.
	var baseSalary int64
	switch emp.SalaryType {
	case employee.SalaryMonthly:
		baseSalary = settings.MonthlySalary
		if absenceDays > 0 && statutoryWorkDays > 0 {
			dailyRate := baseSalary / int64(statutoryWorkDays)
			baseSalary -= dailyRate * int64(absenceDays)
			if baseSalary < 0 {
				baseSalary = 0
				notes = append(notes, "base salary clamped to 0 by absence deduction")
			}
		}
	case employee.SalaryDaily:
		baseSalary = settings.DailyRate * int64(workDays)
	case employee.SalaryHourly:
		baseSalary = int64(math.Floor(float64(settings.HourlyRate) * float64(totalWorkMinutes) / 60.0))
	case employee.SalaryCommission:
		baseSalary = settings.BaseAmount + settings.CommissionAmount
	}
	addItem(ItemEarning, "base_salary", "基本給", baseSalary, true, true, true)
	totalEarnings += baseSalary

	// 2. Overtime premiums.
	monthlyHours := settings.MonthlyPrescribedHours
	if monthlyHours <= 0 {
		monthlyHours = c.defaultMonthlyHours
	}

	var baseHourly int64
	switch emp.SalaryType {
	case employee.SalaryMonthly:
		baseHourly = settings.MonthlySalary / int64(monthlyHours)
	case employee.SalaryDaily:
		baseHourly = settings.DailyRate / 8
	case employee.SalaryHourly:
		baseHourly = settings.HourlyRate
	default:
		baseHourly = baseSalary / int64(monthlyHours)
	}

	if att != nil {
		breakdown := overtime.Compute(baseHourly, att.ToOvertimeAttendance())
		for _, it := range breakdown.Items() {
			addItem(ItemEarning, it.Code, it.Name, it.Amount, true, false, true)
			totalEarnings += it.Amount
		}
	}

	// 3. Allowances.
	allowances, err := c.employees.AllowancesEffectiveDuring(ctx, emp.CompanyID, emp.ID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	for _, ea := range allowances {
		code := "allowance_" + ea.AllowanceType.Code
		addItem(ItemEarning, code, ea.AllowanceType.Name, ea.Amount,
			ea.AllowanceType.IsTaxable, ea.AllowanceType.IsSocialInsuranceTarget, ea.AllowanceType.IsEmploymentInsuranceTarget)
		totalEarnings += ea.Amount
	}

	// 4. Commute allowance.
	commute, err := c.employees.CommuteEffectiveDuring(ctx, emp.CompanyID, emp.ID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	var commuteNonTaxable int64
	if commute != nil && commute.MonthlyCost > 0 {
		limit := commute.NonTaxableLimit
		if limit <= 0 {
			limit = c.defaultCommuteLimit
		}
		commuteNonTaxable = commute.MonthlyCost
		if limit < commuteNonTaxable {
			commuteNonTaxable = limit
		}
		addItem(ItemEarning, "commute", "通勤手当", commute.MonthlyCost, false, true, true)
		totalEarnings += commute.MonthlyCost
	}

	grossSalary := totalEarnings
	targetDate := period.PaymentDate
	age := emp.AgeAt(targetDate)

	// 5. Social insurance deductions.
	var socialInsuranceTotal int64
	if emp.SocialInsuranceEnrolled {
		health, err := c.insurance.Health(ctx, emp.CompanyID, grossSalary, targetDate, age, company.HealthInsurancePrefecture, company.CareInsuranceApplicable)
		if err != nil {
			return nil, err
		}
		addItem(ItemDeduction, "health_insurance", "健康保険料", health.Health, false, false, false)
		totalDeductions += health.Health
		socialInsuranceTotal += health.Health

		addItem(ItemDeduction, "care_insurance", "介護保険料", health.Care, false, false, false)
		totalDeductions += health.Care
		socialInsuranceTotal += health.Care
	}
	if emp.PensionInsuranceEnrolled {
		pension, err := c.insurance.Pension(ctx, emp.CompanyID, grossSalary, targetDate)
		if err != nil {
			return nil, err
		}
		addItem(ItemDeduction, "pension_insurance", "厚生年金保険料", pension, false, false, false)
		totalDeductions += pension
		socialInsuranceTotal += pension
	}
	if emp.EmploymentInsuranceEnrolled {
		empIns, err := c.insurance.Employment(ctx, emp.CompanyID, grossSalary, targetDate)
		if err != nil {
			return nil, err
		}
		addItem(ItemDeduction, "employment_insurance", "雇用保険料", empIns, false, false, false)
		totalDeductions += empIns
		socialInsuranceTotal += empIns
	}

	// Taxable base = gross earnings - non-taxable commute - social insurance.
	taxableEarnings := totalEarnings - commuteNonTaxable - socialInsuranceTotal
	if taxableEarnings < 0 {
		taxableEarnings = 0
	}

	incomeTax, err := c.tax.CalculateIncomeTax(ctx, taxableEarnings, emp.TaxCategory, emp.DependentsCount, targetDate, emp.SalaryType == employee.SalaryMonthly)
	if err != nil {
		return nil, err
	}
	addItem(ItemDeduction, "income_tax", "所得税", incomeTax, false, false, false)
	totalDeductions += incomeTax

	if emp.ResidentTaxMonthlyAmount > 0 {
		addItem(ItemDeduction, "resident_tax", "住民税", emp.ResidentTaxMonthlyAmount, false, false, false)
		totalDeductions += emp.ResidentTaxMonthlyAmount
	}

	netPay := totalEarnings - totalDeductions

	return &CalculationResult{
		Items:           items,
		TotalEarnings:   totalEarnings,
		TotalDeductions: totalDeductions,
		NetPay:          netPay,
		Details: CalculationDetails{
			SalaryType:           emp.SalaryType,
			EmployeeAge:          age,
			BaseSalary:           baseSalary,
			BaseHourlyRate:       baseHourly,
			GrossSalary:          grossSalary,
			SocialInsuranceTotal: socialInsuranceTotal,
			TaxableEarnings:      taxableEarnings,
			IncomeTax:            incomeTax,
			WorkDays:             workDays,
			TotalWorkMinutes:     totalWorkMinutes,
			Notes:                notes,
		},
	}, nil
}
