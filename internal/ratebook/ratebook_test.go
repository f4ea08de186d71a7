package ratebook

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

type fakeRepo struct {
	insurance []InsuranceRate
	brackets  []IncomeTaxBracket
	commute   []CommuteTaxLimit
}

func (f *fakeRepo) InsuranceRateCandidates(ctx context.Context, companyID string, insuranceType InsuranceType, targetDate time.Time, prefecture string) ([]InsuranceRate, error) {
	return f.insurance, nil
}
func (f *fakeRepo) IncomeTaxBracketCandidates(ctx context.Context, tableType TableType, taxableIncome int64, dependentsCount int, targetDate time.Time) ([]IncomeTaxBracket, error) {
	return f.brackets, nil
}
func (f *fakeRepo) CommuteLimitCandidates(ctx context.Context, commuteType CommuteType, distance decimal.Decimal, targetDate time.Time) ([]CommuteTaxLimit, error) {
	var out []CommuteTaxLimit
	for _, c := range f.commute {
		if c.DistanceFrom != nil && distance.LessThan(*c.DistanceFrom) {
			continue
		}
		if c.DistanceTo != nil && !distance.LessThan(*c.DistanceTo) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakeRepo) WithTx(tx pgx.Tx) Repository                 { return f }

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestFindInsuranceRate_TenantOverridesGlobal(t *testing.T) {
	companyID := "company-1"
	tenantRate := InsuranceRate{ID: "tenant", CompanyID: &companyID, ValidFrom: date("2024-04-01"), EmployeeRate: decimal.NewFromFloat(0.05)}
	globalRate := InsuranceRate{ID: "global", CompanyID: nil, ValidFrom: date("2024-04-01"), EmployeeRate: decimal.NewFromFloat(0.049)}

	book := New(&fakeRepo{insurance: []InsuranceRate{tenantRate, globalRate}})
	rate, err := book.FindInsuranceRate(context.Background(), companyID, InsuranceHealth, date("2024-05-01"), "東京都")

	require.NoError(t, err)
	assert.Equal(t, "tenant", rate.ID)
}

func TestFindInsuranceRate_TiedGlobalRowsAreAmbiguous(t *testing.T) {
	a := InsuranceRate{ID: "a", ValidFrom: date("2024-04-01")}
	b := InsuranceRate{ID: "b", ValidFrom: date("2024-04-01")}

	book := New(&fakeRepo{insurance: []InsuranceRate{a, b}})
	_, err := book.FindInsuranceRate(context.Background(), "company-1", InsuranceHealth, date("2024-05-01"), "東京都")

	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindAmbiguousRate))
}

func TestFindInsuranceRate_NoCandidatesIsNotFound(t *testing.T) {
	book := New(&fakeRepo{})
	_, err := book.FindInsuranceRate(context.Background(), "company-1", InsuranceHealth, date("2024-05-01"), "東京都")

	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindNotFound))
}

func TestFindCommuteNonTaxableLimit_ResolvesByDistanceBucket(t *testing.T) {
	near := decimal.NewFromInt(0)
	mid := decimal.NewFromInt(2)
	far := decimal.NewFromInt(10)
	book := New(&fakeRepo{commute: []CommuteTaxLimit{
		{ID: "short", CommuteType: CommutePublicTransport, ValidFrom: date("2024-01-01"), DistanceFrom: &near, DistanceTo: &mid, LimitAmount: 4200},
		{ID: "long", CommuteType: CommutePublicTransport, ValidFrom: date("2024-01-01"), DistanceFrom: &mid, DistanceTo: &far, LimitAmount: 7100},
	}})

	shortLimit, err := book.FindCommuteNonTaxableLimit(context.Background(), CommutePublicTransport, decimal.NewFromFloat(1.5), date("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(4200), shortLimit)

	longLimit, err := book.FindCommuteNonTaxableLimit(context.Background(), CommutePublicTransport, decimal.NewFromFloat(5), date("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(7100), longLimit)
}

func TestFindIncomeTax_ReturnsBracketTaxAmount(t *testing.T) {
	book := New(&fakeRepo{brackets: []IncomeTaxBracket{
		{ID: "b1", ValidFrom: date("2024-01-01"), TaxAmount: 5740},
	}})
	amount, err := book.FindIncomeTax(context.Background(), TableMonthlyKou, 255795, 1, date("2024-05-01"))

	require.NoError(t, err)
	assert.Equal(t, int64(5740), amount)
}
