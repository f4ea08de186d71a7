package tenant

import "time"

// Company is the tenant root entity: one per onboarded employer. All
// domain rows outside the global rate tables carry its ID as company_id.
type Company struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	SchemaName string `json:"schema_name"`

	ClosingDay              int    `json:"closing_day"`                // 1-31
	PaymentDay              int    `json:"payment_day"`                // 1-31
	PaymentMonthOffset      int    `json:"payment_month_offset"`       // months added to the attendance month to get the payment month
	HealthInsurancePrefecture string `json:"health_insurance_prefecture"`
	CareInsuranceApplicable bool   `json:"care_insurance_applicable"`

	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CreateCompanyRequest is the input to Service.CreateCompany.
type CreateCompanyRequest struct {
	Name                      string
	Slug                      string
	ClosingDay                int
	PaymentDay                int
	PaymentMonthOffset        int
	HealthInsurancePrefecture string
	CareInsuranceApplicable   bool
}

// UpdateCompanyRequest is the input to Service.UpdateCompany. Every field is
// written, zero values included; callers pass the full desired state.
type UpdateCompanyRequest struct {
	Name                      string
	ClosingDay                int
	PaymentDay                int
	PaymentMonthOffset        int
	HealthInsurancePrefecture string
	CareInsuranceApplicable   bool
}
