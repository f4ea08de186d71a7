// Package attendance implements AttendanceRecord and PayrollPeriod, the
// monthly inputs PayrollCalculator reads per spec.md §3.
package attendance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/overtime"
)

// AttendanceRecord is the one-per-employee-month attendance summary.
type AttendanceRecord struct {
	ID         string
	CompanyID  string
	EmployeeID string
	YearMonth  int // YYYYMM

	StatutoryWorkDays     int
	WorkDays              int
	AbsenceDays           int
	LateCount             int
	EarlyLeaveCount       int
	PaidLeaveDays         decimal.Decimal
	SubstituteHolidayDays decimal.Decimal

	TotalWorkMinutes int
	RegularMinutes   int

	OvertimeWithinStatutoryMinutes int
	OvertimeStatutoryMinutes      int
	NightMinutes                   int
	StatutoryHolidayMinutes        int
	NonStatutoryHolidayMinutes     int
	NightOvertimeMinutes           int
	NightHolidayMinutes            int
	NightOvertimeHolidayMinutes    int

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToOvertimeAttendance projects the minute fields PayrollCalculator feeds
// into overtime.Compute.
func (a AttendanceRecord) ToOvertimeAttendance() overtime.Attendance {
	return overtime.Attendance{
		OvertimeWithinStatutoryMinutes: a.OvertimeWithinStatutoryMinutes,
		OvertimeStatutoryMinutes:       a.OvertimeStatutoryMinutes,
		NightMinutes:                   a.NightMinutes,
		StatutoryHolidayMinutes:        a.StatutoryHolidayMinutes,
		NonStatutoryHolidayMinutes:     a.NonStatutoryHolidayMinutes,
		NightOvertimeMinutes:           a.NightOvertimeMinutes,
		NightHolidayMinutes:            a.NightHolidayMinutes,
		NightOvertimeHolidayMinutes:    a.NightOvertimeHolidayMinutes,
	}
}

// PeriodType distinguishes how a PayrollPeriod's date boundaries are cut.
type PeriodType string

const (
	PeriodMonthly PeriodType = "monthly"
	PeriodWeekly  PeriodType = "weekly"
	PeriodDaily   PeriodType = "daily"
)

// PeriodStatus tracks a PayrollPeriod's own lifecycle, independent of the
// PayrollRecord state machine each employee's slip goes through within it.
type PeriodStatus string

const (
	PeriodDraft     PeriodStatus = "draft"
	PeriodConfirmed PeriodStatus = "confirmed"
	PeriodPaid      PeriodStatus = "paid"
)

// PayrollPeriod is the per-tenant calculation window; exactly one exists
// per (company, year_month, period_type).
type PayrollPeriod struct {
	ID               string
	CompanyID        string
	PeriodType       PeriodType
	YearMonth        int
	StartDate        time.Time
	EndDate          time.Time
	PaymentDate      time.Time
	ClosingDate      time.Time
	WeeklyClosingDay *int
	Status           PeriodStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
