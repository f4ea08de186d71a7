// Package yearend implements the YearEndWorkflow aggregate described in
// spec.md §4.7: the annual tax true-up an employee and their employer
// reconcile once confirmed payroll totals for the year are known.
package yearend

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is YearEndAdjustment's five-state lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusReturned  Status = "returned"
	StatusApproved  Status = "approved"
	StatusConfirmed Status = "confirmed"
)

// DeclarationInfo is a free-form JSONB payload for the spouse/dependent/
// insurance declaration sections of the year-end adjustment questionnaire.
// The original schema stores each as an unstructured dict; callers read and
// write it as JSON via map[string]interface{} rather than a fixed struct,
// since its shape varies by declaration type and is never computed on.
type DeclarationInfo map[string]interface{}

// Value implements driver.Valuer so pgx can store DeclarationInfo as JSONB.
func (d DeclarationInfo) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (d *DeclarationInfo) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		if len(v) == 0 {
			*d = nil
			return nil
		}
		return json.Unmarshal(v, d)
	case string:
		if v == "" {
			*d = nil
			return nil
		}
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = nil
		return nil
	}
	return fmt.Errorf("unsupported DeclarationInfo scan type %T", src)
}

// Deductions holds the eleven flat deduction fields a year-end adjustment
// collects, each in whole yen. Fields not applicable to a given employee
// are left at zero.
type Deductions struct {
	Basic                  int64
	Spouse                 int64
	Dependent              int64
	Disability             int64
	Widow                  int64
	WorkingStudent         int64
	SocialInsurancePremium int64
	SmallBusinessMutualAid int64
	LifeInsurancePremium   int64
	EarthquakeInsurance    int64
	HousingLoan            int64
}

// Total sums every deduction field.
func (d Deductions) Total() int64 {
	return d.Basic + d.Spouse + d.Dependent + d.Disability + d.Widow +
		d.WorkingStudent + d.SocialInsurancePremium + d.SmallBusinessMutualAid +
		d.LifeInsurancePremium + d.EarthquakeInsurance + d.HousingLoan
}

// Adjustment is the YearEndAdjustment aggregate root: unique per
// (company, employee, target_year).
type Adjustment struct {
	ID         string
	CompanyID  string
	EmployeeID string
	TargetYear int
	Status     Status

	Deductions Deductions

	AnnualIncome         *int64
	AnnualWithheldTax    *int64
	AnnualCalculatedTax  *int64
	AdjustmentAmount     *int64

	SpouseInfo    DeclarationInfo
	DependentInfo DeclarationInfo
	InsuranceInfo DeclarationInfo

	SubmittedAt  *time.Time
	ReturnedAt   *time.Time
	ReturnReason string
	ApprovedAt   *time.Time
	ApprovedBy   string
	ConfirmedAt  *time.Time
	ConfirmedBy  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateFields is the patch Update applies to an Adjustment's mutable
// fields. A nil pointer leaves the corresponding field untouched, matching
// the original's exclude_unset PATCH semantics.
type UpdateFields struct {
	Deductions          *Deductions
	AnnualIncome        *int64
	AnnualWithheldTax   *int64
	AnnualCalculatedTax *int64
	SpouseInfo          DeclarationInfo
	DependentInfo       DeclarationInfo
	InsuranceInfo       DeclarationInfo
}

// History is an append-only log of every status transition an Adjustment
// has gone through.
type History struct {
	ID           string
	AdjustmentID string
	Action       string
	ChangedBy    string
	OldStatus    Status
	NewStatus    Status
	Reason       string
	CreatedAt    time.Time
}

// Certificate records the metadata of a deduction certificate attached to
// an Adjustment. File storage itself is out of scope; this is a record of
// what was submitted, not the bytes.
type Certificate struct {
	ID               string
	CompanyID        string
	AdjustmentID     string
	CertificateType  string
	FileName         string
	FileSize         int64
	UploadedAt       time.Time
}

// WithholdingSlip is the frozen, at-most-once-per-Adjustment slip payload
// GenerateWithholdingSlip produces.
type WithholdingSlip struct {
	ID           string
	CompanyID    string
	AdjustmentID string
	EmployeeID   string
	TargetYear   int
	IssueDate    time.Time
	SlipData     SlipData
}

// SlipData is the structured content of a withholding slip: the
// information a 源泉徴収票 carries, expressed as data rather than a
// rendered document, since PDF rendering is out of scope.
type SlipData struct {
	EmployeeName       string          `json:"employee_name"`
	EmployeeNameKana   string          `json:"employee_name_kana"`
	Address            string          `json:"address"`
	BirthDate          *time.Time      `json:"birth_date,omitempty"`
	TargetYear         int             `json:"target_year"`
	AnnualIncome       *int64          `json:"annual_income,omitempty"`
	AnnualWithheldTax  *int64          `json:"annual_withheld_tax,omitempty"`
	AnnualCalculatedTax *int64         `json:"annual_calculated_tax,omitempty"`
	AdjustmentAmount   *int64          `json:"adjustment_amount,omitempty"`
	Deductions         Deductions      `json:"deductions"`
	SpouseInfo         DeclarationInfo `json:"spouse_info,omitempty"`
	DependentInfo      DeclarationInfo `json:"dependent_info,omitempty"`
	InsuranceInfo      DeclarationInfo `json:"insurance_info,omitempty"`

	SocialInsuranceEnrolled     bool `json:"social_insurance_enrolled"`
	PensionInsuranceEnrolled    bool `json:"pension_insurance_enrolled"`
	EmploymentInsuranceEnrolled bool `json:"employment_insurance_enrolled"`
}

// Value implements driver.Valuer so pgx can store SlipData as JSONB.
func (s SlipData) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (s *SlipData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = SlipData{}
		return nil
	}
	return fmt.Errorf("unsupported SlipData scan type %T", src)
}
