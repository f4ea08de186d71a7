package ratebook

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

// Book is the RateBook component: a thin, testable layer over Repository
// that applies tenant-override-over-global precedence and surfaces a tie
// within one scope as apierror.KindAmbiguousRate.
type Book struct {
	repo Repository
}

// New constructs a Book over the given repository.
func New(repo Repository) *Book {
	return &Book{repo: repo}
}

// FindInsuranceRate resolves spec.md §4.1's tenant-override-then-global,
// greatest-valid_from-wins lookup.
func (b *Book) FindInsuranceRate(ctx context.Context, companyID string, insuranceType InsuranceType, targetDate time.Time, prefecture string) (*InsuranceRate, error) {
	candidates, err := b.repo.InsuranceRateCandidates(ctx, companyID, insuranceType, targetDate, prefecture)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if len(candidates) == 0 {
		return nil, apierror.NotFoundf("no %s insurance rate valid on %s", insuranceType, targetDate.Format("2006-01-02"))
	}

	tenantScoped := make([]InsuranceRate, 0, len(candidates))
	global := make([]InsuranceRate, 0, len(candidates))
	for _, c := range candidates {
		if c.CompanyID != nil && *c.CompanyID == companyID {
			tenantScoped = append(tenantScoped, c)
		} else if c.CompanyID == nil {
			global = append(global, c)
		}
	}

	scope := tenantScoped
	if len(scope) == 0 {
		scope = global
	}
	return pickByValidFrom(scope, func(r InsuranceRate) time.Time { return r.ValidFrom })
}

// FindIncomeTax resolves §4.1's bracket lookup for the given table type.
func (b *Book) FindIncomeTax(ctx context.Context, tableType TableType, taxableIncome int64, dependentsCount int, targetDate time.Time) (int64, error) {
	candidates, err := b.repo.IncomeTaxBracketCandidates(ctx, tableType, taxableIncome, dependentsCount, targetDate)
	if err != nil {
		return 0, apierror.Internal(err)
	}
	if len(candidates) == 0 {
		return 0, apierror.NotFoundf("no %s bracket covers income %d on %s", tableType, taxableIncome, targetDate.Format("2006-01-02"))
	}
	bracket, err := pickByValidFrom(candidates, func(b IncomeTaxBracket) time.Time { return b.ValidFrom })
	if err != nil {
		return 0, err
	}
	return bracket.TaxAmount, nil
}

// FindCommuteNonTaxableLimit resolves §4.1's distance-bucketed commute
// limit lookup: the repository filters candidates to rows whose
// [distance_from, distance_to) bucket contains distance, mirroring the
// income-tax bracket lookup pattern.
func (b *Book) FindCommuteNonTaxableLimit(ctx context.Context, commuteType CommuteType, distance decimal.Decimal, targetDate time.Time) (int64, error) {
	candidates, err := b.repo.CommuteLimitCandidates(ctx, commuteType, distance, targetDate)
	if err != nil {
		return 0, apierror.Internal(err)
	}
	if len(candidates) == 0 {
		return 0, apierror.NotFoundf("no commute limit for %s at distance %s on %s", commuteType, distance.String(), targetDate.Format("2006-01-02"))
	}
	limit, err := pickByValidFrom(candidates, func(c CommuteTaxLimit) time.Time { return c.ValidFrom })
	if err != nil {
		return 0, err
	}
	return limit.LimitAmount, nil
}

// pickByValidFrom selects the element with the greatest ValidFrom. Two
// elements tied on the maximum ValidFrom within the same scope is a data
// error: the caller cannot determine which rate applies.
func pickByValidFrom[T any](items []T, validFrom func(T) time.Time) (*T, error) {
	best := items[0]
	bestTime := validFrom(best)
	tied := 1
	for _, it := range items[1:] {
		t := validFrom(it)
		switch {
		case t.After(bestTime):
			best = it
			bestTime = t
			tied = 1
		case t.Equal(bestTime):
			tied++
		}
	}
	if tied > 1 {
		return nil, apierror.AmbiguousRatef("%d candidate rows tie on valid_from=%s", tied, bestTime.Format("2006-01-02"))
	}
	return &best, nil
}
