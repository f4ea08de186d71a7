// Package tax implements TaxEngine: withholding income-tax lookup by
// taxable base, tax category, dependents count and date (spec.md §4.4).
package tax

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
)

// Category is the Japanese withholding tax category (甲/乙/丙).
type Category string

const (
	CategoryKou  Category = "kou"  // primary employer
	CategoryOtsu Category = "otsu" // secondary employer
	CategoryHei  Category = "hei"  // daily workers
)

// Engine composes a RateBook lookup into the withholding income tax
// amount, applying the off-table fallback policy spec.md §4.4 specifies
// rather than guessing a legal basis for it.
type Engine struct {
	book         *ratebook.Book
	fallbackRate decimal.Decimal
}

// New constructs an Engine. fallbackRate is the flat rate applied to
// taxable income for otsu/hei categories when no bracket row matches;
// config.Default().IncomeTaxFallbackRateOtsuHei is "0.0358", taken
// verbatim from the original system's off-table policy.
func New(book *ratebook.Book, fallbackRate decimal.Decimal) *Engine {
	return &Engine{book: book, fallbackRate: fallbackRate}
}

// CalculateIncomeTax resolves the withholding table type from category and
// isMonthly, looks up the bracket, and falls back per spec.md §4.4 when no
// bracket row matches: otsu/hei use the flat fallback rate, kou returns 0.
func (e *Engine) CalculateIncomeTax(ctx context.Context, taxable int64, category Category, dependentsCount int, targetDate time.Time, isMonthly bool) (int64, error) {
	tableType := tableTypeFor(category, isMonthly)

	amount, err := e.book.FindIncomeTax(ctx, tableType, taxable, dependentsCount, targetDate)
	if err == nil {
		return amount, nil
	}
	if !apierror.Is(err, apierror.KindNotFound) {
		return 0, err
	}

	switch category {
	case CategoryOtsu, CategoryHei:
		return decimal.NewFromInt(taxable).Mul(e.fallbackRate).Floor().IntPart(), nil
	default: // kou, off-table
		return 0, nil
	}
}

func tableTypeFor(category Category, isMonthly bool) ratebook.TableType {
	switch category {
	case CategoryKou:
		if isMonthly {
			return ratebook.TableMonthlyKou
		}
		return ratebook.TableDailyKou
	case CategoryHei:
		return ratebook.TableHei
	default:
		return ratebook.TableOtsu
	}
}
