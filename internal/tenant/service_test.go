package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

type fakeRepo struct {
	companies map[string]*Company
	bySlug    map[string]*Company
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{companies: map[string]*Company{}, bySlug: map[string]*Company{}}
}

func (f *fakeRepo) CreateCompany(ctx context.Context, c *Company) error {
	cp := *c
	f.companies[c.ID] = &cp
	f.bySlug[c.Slug] = &cp
	return nil
}
func (f *fakeRepo) GetCompany(ctx context.Context, companyID string) (*Company, error) {
	c, ok := f.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	return c, nil
}
func (f *fakeRepo) GetCompanyBySlug(ctx context.Context, slug string) (*Company, error) {
	c, ok := f.bySlug[slug]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	return c, nil
}
func (f *fakeRepo) UpdateCompany(ctx context.Context, companyID string, req UpdateCompanyRequest, updatedAt time.Time) error {
	c, ok := f.companies[companyID]
	if !ok {
		return ErrCompanyNotFound
	}
	c.Name = req.Name
	c.ClosingDay = req.ClosingDay
	c.PaymentDay = req.PaymentDay
	c.PaymentMonthOffset = req.PaymentMonthOffset
	c.HealthInsurancePrefecture = req.HealthInsurancePrefecture
	c.CareInsuranceApplicable = req.CareInsuranceApplicable
	c.UpdatedAt = updatedAt
	return nil
}
func (f *fakeRepo) SoftDeleteCompany(ctx context.Context, companyID string, deletedAt time.Time) error {
	c, ok := f.companies[companyID]
	if !ok {
		return ErrCompanyNotFound
	}
	c.IsActive = false
	c.DeletedAt = &deletedAt
	return nil
}

func validRequest() CreateCompanyRequest {
	return CreateCompanyRequest{
		Name:                      "Sample K.K.",
		Slug:                      "sample-kk",
		ClosingDay:                31,
		PaymentDay:                25,
		PaymentMonthOffset:        1,
		HealthInsurancePrefecture: "東京都",
		CareInsuranceApplicable:   true,
	}
}

func TestCreateCompany_ProvisionsSchemaName(t *testing.T) {
	svc := NewService(newFakeRepo())
	company, err := svc.CreateCompany(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "tenant_sample_kk", company.SchemaName)
	assert.True(t, company.IsActive)
}

func TestCreateCompany_RejectsShortSlug(t *testing.T) {
	svc := NewService(newFakeRepo())
	req := validRequest()
	req.Slug = "ab"

	_, err := svc.CreateCompany(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindValidationFailed))
}

func TestCreateCompany_RejectsInvalidClosingDay(t *testing.T) {
	svc := NewService(newFakeRepo())
	req := validRequest()
	req.ClosingDay = 32

	_, err := svc.CreateCompany(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindValidationFailed))
}

func TestGetCompany_NotFoundIsApiError(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.GetCompany(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestUpdateCompany_PersistsNewSettings(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	company, err := svc.CreateCompany(context.Background(), validRequest())
	require.NoError(t, err)

	err = svc.UpdateCompany(context.Background(), company.ID, UpdateCompanyRequest{
		Name: "Renamed K.K.", ClosingDay: 20, PaymentDay: 10, PaymentMonthOffset: 0,
		HealthInsurancePrefecture: "大阪府", CareInsuranceApplicable: false,
	})
	require.NoError(t, err)

	updated, err := svc.GetCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed K.K.", updated.Name)
	assert.Equal(t, "大阪府", updated.HealthInsurancePrefecture)
}

func TestSoftDeleteCompany_DeactivatesWithoutDroppingSchema(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	company, err := svc.CreateCompany(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteCompany(context.Background(), company.ID))

	deleted := repo.companies[company.ID]
	assert.False(t, deleted.IsActive)
	assert.NotNil(t, deleted.DeletedAt)
	assert.NotEmpty(t, deleted.SchemaName)
}
