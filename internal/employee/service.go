package employee

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/tax"
)

// Service wraps Repository with the validation rules spec.md §3 states for
// the Employee entity.
type Service struct {
	repo Repository
}

// NewService constructs a Service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateEmployeeRequest is the input to Service.CreateEmployee.
type CreateEmployeeRequest struct {
	CompanyID       string
	EmployeeCode    string
	FirstName       string
	LastName        string
	HireDate        time.Time
	EmploymentType  string
	SalaryType      SalaryType
	SalarySettings  SalarySettings
	TaxCategory     tax.Category
	DependentsCount int
}

func (s *Service) CreateEmployee(ctx context.Context, req CreateEmployeeRequest) (*Employee, error) {
	if req.EmployeeCode == "" {
		return nil, apierror.ValidationFailedf("employee_code is required")
	}
	if !isValidSalaryType(req.SalaryType) {
		return nil, apierror.ValidationFailedf("invalid salary_type %q", req.SalaryType)
	}
	if !isValidTaxCategory(req.TaxCategory) {
		return nil, apierror.ValidationFailedf("invalid tax_category %q", req.TaxCategory)
	}

	now := time.Now()
	e := &Employee{
		ID:              uuid.New().String(),
		CompanyID:       req.CompanyID,
		EmployeeCode:    req.EmployeeCode,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		HireDate:        req.HireDate,
		EmploymentType:  req.EmploymentType,
		SalaryType:      req.SalaryType,
		SalarySettings:  req.SalarySettings,
		TaxCategory:     req.TaxCategory,
		DependentsCount: req.DependentsCount,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateEmployee(ctx, e); err != nil {
		return nil, apierror.Internal(err)
	}
	return e, nil
}

// GetEmployee retrieves an employee by ID, scoped to its company.
func (s *Service) GetEmployee(ctx context.Context, companyID, employeeID string) (*Employee, error) {
	e, err := s.repo.GetEmployee(ctx, companyID, employeeID)
	if err == ErrNotFound {
		return nil, apierror.NotFoundf("employee %s not found", employeeID)
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return e, nil
}

func isValidSalaryType(t SalaryType) bool {
	switch t {
	case SalaryMonthly, SalaryDaily, SalaryHourly, SalaryCommission:
		return true
	}
	return false
}

func isValidTaxCategory(c tax.Category) bool {
	switch c {
	case tax.CategoryKou, tax.CategoryOtsu, tax.CategoryHei:
		return true
	}
	return false
}
