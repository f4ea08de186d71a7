// Package insurance implements InsuranceEngine: health, care, pension and
// employment insurance deductions derived from gross salary via RateBook
// lookups (spec.md §4.3).
package insurance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
)

// CareInsuranceMinAge and CareInsuranceMaxAge bound the half-open age
// window [40, 65) in which care insurance applies.
const (
	CareInsuranceMinAge = 40
	CareInsuranceMaxAge = 65
)

// Engine composes RateBook lookups into the four insurance deduction
// amounts. Every method treats a NotFound rate as "this deduction is
// zero", per spec.md §4.1's stated failure semantics for InsuranceEngine.
type Engine struct {
	book *ratebook.Book
}

// New constructs an Engine over the given RateBook.
func New(book *ratebook.Book) *Engine {
	return &Engine{book: book}
}

// HealthResult holds the two components a single health-insurance lookup
// can produce.
type HealthResult struct {
	Health int64
	Care   int64
}

// Health computes health and care insurance deductions. Care insurance is
// non-zero only when age falls in [40, 65), the company allows it, and the
// rate row carries a non-null care rate.
func (e *Engine) Health(ctx context.Context, companyID string, gross int64, targetDate time.Time, age int, prefecture string, careApplicable bool) (HealthResult, error) {
	rate, err := e.book.FindInsuranceRate(ctx, companyID, ratebook.InsuranceHealth, targetDate, prefecture)
	if apierror.Is(err, apierror.KindNotFound) {
		return HealthResult{}, nil
	}
	if err != nil {
		return HealthResult{}, err
	}

	result := HealthResult{Health: floorMul(gross, rate.EmployeeRate)}
	if careApplicable && age >= CareInsuranceMinAge && age < CareInsuranceMaxAge &&
		rate.CareInsuranceRate != nil && rate.CareInsuranceRate.GreaterThan(decimal.Zero) {
		result.Care = floorMul(gross, *rate.CareInsuranceRate)
	}
	return result, nil
}

// Pension computes the employee's pension insurance deduction.
func (e *Engine) Pension(ctx context.Context, companyID string, gross int64, targetDate time.Time) (int64, error) {
	return e.lookupAndFloor(ctx, companyID, ratebook.InsurancePension, gross, targetDate)
}

// Employment computes the employee's employment insurance deduction.
func (e *Engine) Employment(ctx context.Context, companyID string, gross int64, targetDate time.Time) (int64, error) {
	return e.lookupAndFloor(ctx, companyID, ratebook.InsuranceEmployment, gross, targetDate)
}

func (e *Engine) lookupAndFloor(ctx context.Context, companyID string, insuranceType ratebook.InsuranceType, gross int64, targetDate time.Time) (int64, error) {
	rate, err := e.book.FindInsuranceRate(ctx, companyID, insuranceType, targetDate, "")
	if apierror.Is(err, apierror.KindNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return floorMul(gross, rate.EmployeeRate), nil
}

func floorMul(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}
