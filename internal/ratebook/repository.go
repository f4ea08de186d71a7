package ratebook

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository is the persistence boundary RateBook is built on. It exposes
// raw candidate rows for a scope; Book applies the tenant-override-then-
// global precedence and tie detection on top so that logic is testable
// without a database.
type Repository interface {
	InsuranceRateCandidates(ctx context.Context, companyID string, insuranceType InsuranceType, targetDate time.Time, prefecture string) ([]InsuranceRate, error)
	IncomeTaxBracketCandidates(ctx context.Context, tableType TableType, taxableIncome int64, dependentsCount int, targetDate time.Time) ([]IncomeTaxBracket, error)
	CommuteLimitCandidates(ctx context.Context, commuteType CommuteType, distance decimal.Decimal, targetDate time.Time) ([]CommuteTaxLimit, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
	WithTx(tx pgx.Tx) Repository
}

// PostgresRepository is the pgx-backed Repository implementation, styled
// after internal/payroll/repository.go's dual pool/tx dispatch pattern.
type PostgresRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewPostgresRepository constructs a pool-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx returns a repository instance bound to an in-flight transaction,
// so PayrollCalculator can read rate rows inside the same transaction as
// the rest of its lookups (spec.md §5 ordering guarantee).
func (r *PostgresRepository) WithTx(tx pgx.Tx) Repository {
	return &PostgresRepository{pool: r.pool, tx: tx}
}

func (r *PostgresRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if r.tx != nil {
		return r.tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

// InsuranceRateCandidates returns every row (tenant-scoped and global)
// whose validity window covers targetDate, ordered newest-valid_from
// first within each scope. Book.FindInsuranceRate picks the winning scope
// and detects ties.
func (r *PostgresRepository) InsuranceRateCandidates(ctx context.Context, companyID string, insuranceType InsuranceType, targetDate time.Time, prefecture string) ([]InsuranceRate, error) {
	sql := `
		SELECT id, company_id, insurance_type, valid_from, valid_to, prefecture, business_type,
		       employee_rate, employer_rate, care_insurance_rate
		FROM insurance_rates
		WHERE insurance_type = $1
		  AND valid_from <= $2
		  AND (valid_to IS NULL OR valid_to >= $2)
		  AND (company_id = $3 OR company_id IS NULL)
		  AND ($4 = '' OR insurance_type != 'health' OR prefecture = $4 OR prefecture IS NULL)
		ORDER BY (company_id IS NULL) ASC, valid_from DESC
	`
	rows, err := r.query(ctx, sql, string(insuranceType), targetDate, companyID, prefecture)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InsuranceRate
	for rows.Next() {
		var rate InsuranceRate
		var it string
		if err := rows.Scan(&rate.ID, &rate.CompanyID, &it, &rate.ValidFrom, &rate.ValidTo,
			&rate.Prefecture, &rate.BusinessType, &rate.EmployeeRate, &rate.EmployerRate, &rate.CareInsuranceRate); err != nil {
			return nil, err
		}
		rate.InsuranceType = InsuranceType(it)
		out = append(out, rate)
	}
	return out, rows.Err()
}

// IncomeTaxBracketCandidates returns every bracket row whose validity
// window covers targetDate, whose income range contains taxableIncome,
// and whose dependents_count matches exactly.
func (r *PostgresRepository) IncomeTaxBracketCandidates(ctx context.Context, tableType TableType, taxableIncome int64, dependentsCount int, targetDate time.Time) ([]IncomeTaxBracket, error) {
	sql := `
		SELECT id, table_type, valid_from, valid_to, income_from, income_to, dependents_count, tax_amount
		FROM income_tax_table
		WHERE table_type = $1
		  AND valid_from <= $2
		  AND (valid_to IS NULL OR valid_to >= $2)
		  AND income_from <= $3
		  AND (income_to IS NULL OR income_to > $3)
		  AND dependents_count = $4
		ORDER BY income_from DESC
	`
	rows, err := r.query(ctx, sql, string(tableType), targetDate, taxableIncome, dependentsCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncomeTaxBracket
	for rows.Next() {
		var b IncomeTaxBracket
		var tt string
		if err := rows.Scan(&b.ID, &tt, &b.ValidFrom, &b.ValidTo, &b.IncomeFrom, &b.IncomeTo, &b.DependentsCount, &b.TaxAmount); err != nil {
			return nil, err
		}
		b.TableType = TableType(tt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// CommuteLimitCandidates returns every commute-limit row whose validity
// window covers targetDate and whose [distance_from, distance_to) bucket
// contains distance.
func (r *PostgresRepository) CommuteLimitCandidates(ctx context.Context, commuteType CommuteType, distance decimal.Decimal, targetDate time.Time) ([]CommuteTaxLimit, error) {
	sql := `
		SELECT id, commute_type, valid_from, valid_to, distance_from, distance_to, limit_amount
		FROM commute_tax_limits
		WHERE commute_type = $1
		  AND valid_from <= $2
		  AND (valid_to IS NULL OR valid_to >= $2)
		  AND (distance_from IS NULL OR distance_from <= $3)
		  AND (distance_to IS NULL OR distance_to > $3)
		ORDER BY valid_from DESC
	`
	rows, err := r.query(ctx, sql, string(commuteType), targetDate, distance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommuteTaxLimit
	for rows.Next() {
		var c CommuteTaxLimit
		var ct string
		if err := rows.Scan(&c.ID, &ct, &c.ValidFrom, &c.ValidTo, &c.DistanceFrom, &c.DistanceTo, &c.LimitAmount); err != nil {
			return nil, err
		}
		c.CommuteType = CommuteType(ct)
		out = append(out, c)
	}
	return out, rows.Err()
}
