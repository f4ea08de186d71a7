//go:build integration

package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
	"github.com/kyuyo-systems/payroll-engine/internal/testutil"
)

func TestService_CreateCompany_ProvisionsSchema(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := tenant.NewPostgresRepository(pool)
	svc := tenant.NewService(repo)

	ctx := context.Background()
	slug := "acme-payroll"

	company, err := svc.CreateCompany(ctx, tenant.CreateCompanyRequest{
		Name:                      "Acme Corp",
		Slug:                      slug,
		ClosingDay:                31,
		PaymentDay:                25,
		PaymentMonthOffset:        1,
		HealthInsurancePrefecture: "東京都",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		testutil.TeardownTestSchema(t, pool, company.SchemaName)
		_, _ = pool.Exec(ctx, "DELETE FROM public.companies WHERE id = $1", company.ID)
	})

	var tableCount int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = 'employees'
	`, company.SchemaName).Scan(&tableCount)
	require.NoError(t, err)
	assert.Equal(t, 1, tableCount, "create_tenant_schema should provision an employees table")

	fetched, err := svc.GetCompanyBySlug(ctx, slug)
	require.NoError(t, err)
	assert.Equal(t, company.ID, fetched.ID)
}
