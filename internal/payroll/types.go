// Package payroll implements PayrollCalculator and PayrollStateMachine: the
// composed earning/deduction calculation and the draft/confirmed/cancelled
// record lifecycle described in spec.md §2 and §4.5-4.6.
package payroll

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kyuyo-systems/payroll-engine/internal/employee"
)

// ItemType distinguishes an earning line item from a deduction.
type ItemType string

const (
	ItemEarning   ItemType = "earning"
	ItemDeduction ItemType = "deduction"
)

// RecordStatus is a PayrollRecord's position in the draft/confirmed/cancelled
// lifecycle.
type RecordStatus string

const (
	StatusDraft     RecordStatus = "draft"
	StatusConfirmed RecordStatus = "confirmed"
	StatusCancelled RecordStatus = "cancelled"
)

// PayrollRecordGroup is the (employee, payroll_period) aggregate root; it
// tracks which PayrollRecord version is current.
type PayrollRecordGroup struct {
	ID              string
	CompanyID       string
	EmployeeID      string
	PayrollPeriodID string
	CurrentRecordID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CalculationDetails is the structured breakdown PayrollCalculator attaches
// to a record, frozen into the confirmed snapshot.
type CalculationDetails struct {
	SalaryType           employee.SalaryType `json:"salary_type"`
	EmployeeAge          int                 `json:"employee_age"`
	BaseSalary           int64               `json:"base_salary"`
	BaseHourlyRate       int64               `json:"base_hourly_rate"`
	GrossSalary          int64               `json:"gross_salary"`
	SocialInsuranceTotal int64               `json:"social_insurance_total"`
	TaxableEarnings      int64               `json:"taxable_earnings"`
	IncomeTax            int64               `json:"income_tax"`
	WorkDays             int                 `json:"work_days"`
	TotalWorkMinutes     int                 `json:"total_work_minutes"`
	Notes                []string            `json:"notes,omitempty"`
}

// Value implements driver.Valuer so pgx can store CalculationDetails as JSONB.
func (d CalculationDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (d *CalculationDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = CalculationDetails{}
		return nil
	}
	return fmt.Errorf("unsupported CalculationDetails scan type %T", src)
}

// PayrollRecord is one version within a PayrollRecordGroup. Immutable once
// it leaves draft, except for the status-transition fields themselves.
type PayrollRecord struct {
	ID      string
	GroupID string
	Version int
	Status  RecordStatus

	TotalEarnings   int64
	TotalDeductions int64
	NetPay          int64

	CalculationDetails CalculationDetails

	ConfirmedAt *time.Time
	ConfirmedBy string

	CancelledAt  *time.Time
	CancelledBy  string
	CancelReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayrollRecordItem is a single earning or deduction line. Created with its
// record and never mutated afterward.
type PayrollRecordItem struct {
	ID       string
	RecordID string

	ItemType ItemType
	ItemCode string
	ItemName string
	Amount   int64

	IsTaxable                   bool
	IsSocialInsuranceTarget     bool
	IsEmploymentInsuranceTarget bool

	Notes        string
	DisplayOrder int
}

// PayrollSnapshot is the 1:1, append-only frozen payload created when a
// record is confirmed.
type PayrollSnapshot struct {
	ID        string
	RecordID  string
	Payload   []byte // frozen JSON: record + items + calculation details
	CreatedAt time.Time
}

// PayrollHistory is an append-only audit trail entry for a record's status
// transitions.
type PayrollHistory struct {
	ID        string
	RecordID  string
	Action    string
	OldValue  string
	NewValue  string
	Actor     string
	Reason    string
	CreatedAt time.Time
}

// CalculationResult is PayrollCalculator's output: an ordered list of
// earning/deduction items plus totals, ready to become a draft PayrollRecord.
type CalculationResult struct {
	Items           []PayrollRecordItem
	TotalEarnings   int64
	TotalDeductions int64
	NetPay          int64
	Details         CalculationDetails
}

// ConfirmedRecord joins a confirmed PayrollRecord back to its group's
// employee for export-time reporting, which reads across groups rather
// than through a single group's current record.
type ConfirmedRecord struct {
	PayrollRecord
	CompanyID       string
	EmployeeID      string
	PayrollPeriodID string
	Items           []PayrollRecordItem
}
