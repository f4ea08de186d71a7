package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

// Service provides company onboarding and settings management.
type Service struct {
	repo Repository
}

// NewService creates a new company service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateCompany validates the request and provisions a new company and its
// tenant schema.
func (s *Service) CreateCompany(ctx context.Context, req CreateCompanyRequest) (*Company, error) {
	if len(req.Slug) < 3 || len(req.Slug) > 50 {
		return nil, apierror.ValidationFailedf("slug must be between 3 and 50 characters")
	}
	if !slugRegex.MatchString(req.Slug) {
		return nil, apierror.ValidationFailedf("slug must contain only lowercase letters, numbers, and hyphens")
	}
	if err := validateDayOfMonth("closing_day", req.ClosingDay); err != nil {
		return nil, err
	}
	if err := validateDayOfMonth("payment_day", req.PaymentDay); err != nil {
		return nil, err
	}

	schemaName := fmt.Sprintf("tenant_%s", strings.ReplaceAll(req.Slug, "-", "_"))
	now := time.Now()

	company := &Company{
		ID:                        uuid.New().String(),
		Name:                      req.Name,
		Slug:                      req.Slug,
		SchemaName:                schemaName,
		ClosingDay:                req.ClosingDay,
		PaymentDay:                req.PaymentDay,
		PaymentMonthOffset:        req.PaymentMonthOffset,
		HealthInsurancePrefecture: req.HealthInsurancePrefecture,
		CareInsuranceApplicable:   req.CareInsuranceApplicable,
		IsActive:                  true,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := s.repo.CreateCompany(ctx, company); err != nil {
		return nil, apierror.Internal(err)
	}
	return company, nil
}

// GetCompany retrieves a company by ID.
func (s *Service) GetCompany(ctx context.Context, companyID string) (*Company, error) {
	company, err := s.repo.GetCompany(ctx, companyID)
	if err == ErrCompanyNotFound {
		return nil, apierror.NotFoundf("company %s not found", companyID)
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return company, nil
}

// GetCompanyBySlug retrieves a company by slug.
func (s *Service) GetCompanyBySlug(ctx context.Context, slug string) (*Company, error) {
	company, err := s.repo.GetCompanyBySlug(ctx, slug)
	if err == ErrCompanyNotFound {
		return nil, apierror.NotFoundf("company with slug %s not found", slug)
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return company, nil
}

// UpdateCompany updates a company's settings.
func (s *Service) UpdateCompany(ctx context.Context, companyID string, req UpdateCompanyRequest) error {
	if err := validateDayOfMonth("closing_day", req.ClosingDay); err != nil {
		return err
	}
	if err := validateDayOfMonth("payment_day", req.PaymentDay); err != nil {
		return err
	}

	err := s.repo.UpdateCompany(ctx, companyID, req, time.Now())
	if err == ErrCompanyNotFound {
		return apierror.NotFoundf("company %s not found", companyID)
	}
	if err != nil {
		return apierror.Internal(err)
	}
	return nil
}

// SoftDeleteCompany deactivates a company without dropping its schema.
func (s *Service) SoftDeleteCompany(ctx context.Context, companyID string) error {
	err := s.repo.SoftDeleteCompany(ctx, companyID, time.Now())
	if err == ErrCompanyNotFound {
		return apierror.NotFoundf("company %s not found", companyID)
	}
	if err != nil {
		return apierror.Internal(err)
	}
	return nil
}

func validateDayOfMonth(field string, day int) error {
	if day < 1 || day > 31 {
		return apierror.ValidationFailedf("%s must be between 1 and 31, got %d", field, day)
	}
	return nil
}
