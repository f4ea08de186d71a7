// Package employee implements the Employee master, allowance and commute
// records described in spec.md §3.
package employee

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
	"github.com/kyuyo-systems/payroll-engine/internal/tax"
)

// SalaryType selects which SalarySettings fields PayrollCalculator reads.
type SalaryType string

const (
	SalaryMonthly    SalaryType = "monthly"
	SalaryDaily      SalaryType = "daily"
	SalaryHourly     SalaryType = "hourly"
	SalaryCommission SalaryType = "commission"
)

// SalarySettings is the structured payload backing Employee.SalaryType.
// Only the fields relevant to the employee's SalaryType are populated.
type SalarySettings struct {
	MonthlySalary          int64 `json:"monthly_salary,omitempty"`
	DailyRate              int64 `json:"daily_rate,omitempty"`
	HourlyRate             int64 `json:"hourly_rate,omitempty"`
	BaseAmount             int64 `json:"base_amount,omitempty"`
	CommissionAmount       int64 `json:"commission_amount,omitempty"`
	MonthlyPrescribedHours int   `json:"monthly_prescribed_hours,omitempty"`
}

// Value implements driver.Valuer so pgx can store SalarySettings as JSONB.
func (s SalarySettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (s *SalarySettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = SalarySettings{}
		return nil
	}
	return fmt.Errorf("unsupported SalarySettings scan type %T", src)
}

// Employee is the per-tenant employee master record.
type Employee struct {
	ID           string
	CompanyID    string
	EmployeeCode string

	FirstName     string
	LastName      string
	FirstNameKana string
	LastNameKana  string
	Email         string
	BirthDate     *time.Time

	HireDate        time.Time
	TerminationDate *time.Time
	EmploymentType  string
	Department      string
	Position        string

	SalaryType     SalaryType
	SalarySettings SalarySettings

	TaxCategory                 tax.Category
	DependentsCount             int
	SocialInsuranceEnrolled     bool
	PensionInsuranceEnrolled    bool
	EmploymentInsuranceEnrolled bool
	ResidentTaxMonthlyAmount    int64

	BankName      string
	BranchName    string
	AccountType   string
	AccountNumber string
	AccountHolder string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// AgeAt reproduces original_source's imprecise age calculation:
// (target - birth_date).days // 365. Preserved verbatim per spec.md §9.
func (e Employee) AgeAt(target time.Time) int {
	if e.BirthDate == nil {
		return 0
	}
	days := int(target.Sub(*e.BirthDate).Hours() / 24)
	return days / 365
}

// AllowanceType is the per-tenant catalog of allowance kinds.
type AllowanceType struct {
	ID                           string
	CompanyID                    string
	Code                         string
	Name                         string
	IsTaxable                    bool
	IsSocialInsuranceTarget      bool
	IsEmploymentInsuranceTarget  bool
	IsOvertimeBase               bool
	IsActive                     bool
	DisplayOrder                 int
}

// EmployeeAllowance time-ranges a single allowance amount for one employee.
type EmployeeAllowance struct {
	ID              string
	CompanyID       string
	EmployeeID      string
	AllowanceTypeID string
	Amount          int64
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
}

// EmployeeAllowanceWithType joins an EmployeeAllowance to its AllowanceType,
// the shape PayrollCalculator needs to build an earning item.
type EmployeeAllowanceWithType struct {
	EmployeeAllowance
	AllowanceType AllowanceType
}

// CommuteDetail time-ranges an employee's commute reimbursement.
type CommuteDetail struct {
	ID              string
	CompanyID       string
	EmployeeID      string
	CommuteMethod   ratebook.CommuteType
	Distance        *decimal.Decimal
	Route           string
	MonthlyCost     int64
	NonTaxableLimit int64
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
}
