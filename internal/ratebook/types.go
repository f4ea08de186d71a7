// Package ratebook implements RateBook, the read-only time-ranged lookup
// service for income-tax brackets, insurance rates and commute non-taxable
// limits described in spec.md §4.1.
package ratebook

import (
	"time"

	"github.com/shopspring/decimal"
)

// InsuranceType distinguishes the three insurance rate tables.
type InsuranceType string

const (
	InsuranceHealth      InsuranceType = "health"
	InsurancePension     InsuranceType = "pension"
	InsuranceEmployment  InsuranceType = "employment"
)

// InsuranceRate is one time-ranged row of internal/insurance lookup data.
// CompanyID is nil for a global row.
type InsuranceRate struct {
	ID                string
	CompanyID         *string
	InsuranceType     InsuranceType
	ValidFrom         time.Time
	ValidTo           *time.Time
	Prefecture        *string
	BusinessType      *string
	EmployeeRate      decimal.Decimal
	EmployerRate      decimal.Decimal
	CareInsuranceRate *decimal.Decimal
}

// TableType selects which income-tax withholding table a bracket row
// belongs to.
type TableType string

const (
	TableMonthlyKou TableType = "monthly_kou"
	TableDailyKou   TableType = "daily_kou"
	TableOtsu       TableType = "otsu"
	TableHei        TableType = "hei"
)

// IncomeTaxBracket is one row of the withholding-tax bracket table.
// IncomeTo is exclusive and nil means open-ended.
type IncomeTaxBracket struct {
	ID              string
	TableType       TableType
	ValidFrom       time.Time
	ValidTo         *time.Time
	IncomeFrom      int64
	IncomeTo        *int64
	DependentsCount int
	TaxAmount       int64
}

// CommuteType distinguishes commuting methods for the non-taxable limit
// table.
type CommuteType string

const (
	CommutePublicTransport CommuteType = "public_transport"
	CommuteCar             CommuteType = "car"
	CommuteBicycle         CommuteType = "bicycle"
	CommuteMixed           CommuteType = "mixed"
)

// CommuteTaxLimit is one distance-bucketed row of the commute non-taxable
// limit table. DistanceTo is exclusive and nil means open-ended.
type CommuteTaxLimit struct {
	ID           string
	CommuteType  CommuteType
	ValidFrom    time.Time
	ValidTo      *time.Time
	DistanceFrom *decimal.Decimal
	DistanceTo   *decimal.Decimal
	LimitAmount  int64
}

// InsuranceConstant holds a named bound such as bonus SI caps that aren't
// time-ranged rate rows.
type InsuranceConstant struct {
	ID           string
	ConstantType string
	LimitAmount  int64
	Description  string
}
