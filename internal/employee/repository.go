package employee

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kyuyo-systems/payroll-engine/internal/cryptutil"
	"github.com/kyuyo-systems/payroll-engine/internal/ratebook"
)

// Repository defines data access for employees, allowances and commute
// details.
type Repository interface {
	CreateEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, companyID, employeeID string) (*Employee, error)
	ListActiveEmployees(ctx context.Context, companyID string) ([]Employee, error)
	UpdateEmployee(ctx context.Context, e *Employee) error
	SoftDeleteEmployee(ctx context.Context, companyID, employeeID string, deletedAt time.Time) error

	AllowancesEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) ([]EmployeeAllowanceWithType, error)
	CommuteEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) (*CommuteDetail, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrNotFound is returned when an employee row does not exist or is soft-deleted.
var ErrNotFound = fmt.Errorf("employee not found")

// PostgresRepository implements Repository using pgx, dispatching through
// tx when set so callers can read and write employees inside the same
// schema-scoped transaction database.Pool.WithTx opens, mirroring
// internal/ratebook.PostgresRepository's pool/tx pattern. AccountNumber is
// encrypted at rest via accountBox when non-nil; a nil box leaves it in
// plaintext, which is what repository tests against a bare Postgres use.
type PostgresRepository struct {
	pool       *pgxpool.Pool
	tx         pgx.Tx
	accountBox *cryptutil.Box
}

// NewPostgresRepository constructs a pool-backed repository. accountBox
// encrypts bank_account_number at rest per config's encryption_key; pass
// nil to store it in plaintext.
func NewPostgresRepository(pool *pgxpool.Pool, accountBox *cryptutil.Box) *PostgresRepository {
	return &PostgresRepository{pool: pool, accountBox: accountBox}
}

// WithTx returns a repository bound to an in-flight transaction, so
// callers that already opened a schema-scoped transaction via
// database.Pool.WithTx can read and write employees within it.
func (r *PostgresRepository) WithTx(tx pgx.Tx) Repository {
	return &PostgresRepository{pool: r.pool, tx: tx, accountBox: r.accountBox}
}

func (r *PostgresRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if r.tx != nil {
		return r.tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if r.tx != nil {
		return r.tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *PostgresRepository) queryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if r.tx != nil {
		return r.tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *PostgresRepository) encryptAccountNumber(plaintext string) (string, error) {
	if r.accountBox == nil {
		return plaintext, nil
	}
	return r.accountBox.Encrypt(plaintext)
}

func (r *PostgresRepository) decryptAccountNumber(stored string) (string, error) {
	if r.accountBox == nil {
		return stored, nil
	}
	return r.accountBox.Decrypt(stored)
}

const employeeColumns = `id, company_id, employee_code, first_name, last_name, first_name_kana, last_name_kana,
	email, birth_date, hire_date, termination_date, employment_type, department, position,
	salary_type, salary_settings, tax_category, dependents_count, social_insurance_enrolled,
	pension_insurance_enrolled, employment_insurance_enrolled, resident_tax_monthly_amount,
	bank_name, branch_name, account_type, account_number, account_holder, is_active,
	created_at, updated_at, deleted_at`

func (r *PostgresRepository) CreateEmployee(ctx context.Context, e *Employee) error {
	accountNumber, err := r.encryptAccountNumber(e.AccountNumber)
	if err != nil {
		return fmt.Errorf("encrypt account number: %w", err)
	}
	_, err = r.exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
	`, e.ID, e.CompanyID, e.EmployeeCode, e.FirstName, e.LastName, e.FirstNameKana, e.LastNameKana,
		e.Email, e.BirthDate, e.HireDate, e.TerminationDate, e.EmploymentType, e.Department, e.Position,
		e.SalaryType, e.SalarySettings, e.TaxCategory, e.DependentsCount, e.SocialInsuranceEnrolled,
		e.PensionInsuranceEnrolled, e.EmploymentInsuranceEnrolled, e.ResidentTaxMonthlyAmount,
		e.BankName, e.BranchName, e.AccountType, accountNumber, e.AccountHolder, e.IsActive,
		e.CreatedAt, e.UpdatedAt, e.DeletedAt)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.EmployeeCode, &e.FirstName, &e.LastName, &e.FirstNameKana, &e.LastNameKana,
		&e.Email, &e.BirthDate, &e.HireDate, &e.TerminationDate, &e.EmploymentType, &e.Department, &e.Position,
		&e.SalaryType, &e.SalarySettings, &e.TaxCategory, &e.DependentsCount, &e.SocialInsuranceEnrolled,
		&e.PensionInsuranceEnrolled, &e.EmploymentInsuranceEnrolled, &e.ResidentTaxMonthlyAmount,
		&e.BankName, &e.BranchName, &e.AccountType, &e.AccountNumber, &e.AccountHolder, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) GetEmployee(ctx context.Context, companyID, employeeID string) (*Employee, error) {
	row := r.queryRow(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE company_id = $1 AND id = $2 AND deleted_at IS NULL
	`, companyID, employeeID)
	e, err := scanEmployee(row)
	if err != nil {
		return nil, err
	}
	if e.AccountNumber, err = r.decryptAccountNumber(e.AccountNumber); err != nil {
		return nil, fmt.Errorf("decrypt account number: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListActiveEmployees(ctx context.Context, companyID string) ([]Employee, error) {
	rows, err := r.query(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY employee_code
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		if e.AccountNumber, err = r.decryptAccountNumber(e.AccountNumber); err != nil {
			return nil, fmt.Errorf("decrypt account number: %w", err)
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateEmployee(ctx context.Context, e *Employee) error {
	accountNumber, err := r.encryptAccountNumber(e.AccountNumber)
	if err != nil {
		return fmt.Errorf("encrypt account number: %w", err)
	}
	result, err := r.exec(ctx, `
		UPDATE employees SET
			first_name=$1, last_name=$2, first_name_kana=$3, last_name_kana=$4, email=$5,
			birth_date=$6, termination_date=$7, employment_type=$8, department=$9, position=$10,
			salary_type=$11, salary_settings=$12, tax_category=$13, dependents_count=$14,
			social_insurance_enrolled=$15, pension_insurance_enrolled=$16, employment_insurance_enrolled=$17,
			resident_tax_monthly_amount=$18, bank_name=$19, branch_name=$20, account_type=$21,
			account_number=$22, account_holder=$23, updated_at=$24
		WHERE company_id=$25 AND id=$26 AND deleted_at IS NULL
	`, e.FirstName, e.LastName, e.FirstNameKana, e.LastNameKana, e.Email,
		e.BirthDate, e.TerminationDate, e.EmploymentType, e.Department, e.Position,
		e.SalaryType, e.SalarySettings, e.TaxCategory, e.DependentsCount,
		e.SocialInsuranceEnrolled, e.PensionInsuranceEnrolled, e.EmploymentInsuranceEnrolled,
		e.ResidentTaxMonthlyAmount, e.BankName, e.BranchName, e.AccountType,
		accountNumber, e.AccountHolder, e.UpdatedAt, e.CompanyID, e.ID)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SoftDeleteEmployee(ctx context.Context, companyID, employeeID string, deletedAt time.Time) error {
	result, err := r.exec(ctx, `
		UPDATE employees SET is_active=false, deleted_at=$1, updated_at=$1
		WHERE company_id=$2 AND id=$3 AND deleted_at IS NULL
	`, deletedAt, companyID, employeeID)
	if err != nil {
		return fmt.Errorf("soft delete employee: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AllowancesEffectiveDuring returns allowances whose [effective_from,
// effective_to] window overlaps [periodStart, periodEnd], joined to their
// active AllowanceType.
func (r *PostgresRepository) AllowancesEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) ([]EmployeeAllowanceWithType, error) {
	rows, err := r.query(ctx, `
		SELECT ea.id, ea.company_id, ea.employee_id, ea.allowance_type_id, ea.amount,
			ea.effective_from, ea.effective_to,
			at.id, at.company_id, at.code, at.name, at.is_taxable, at.is_social_insurance_target,
			at.is_employment_insurance_target, at.is_overtime_base, at.is_active, at.display_order
		FROM employee_allowances ea
		JOIN allowance_types at ON at.id = ea.allowance_type_id
		WHERE ea.company_id = $1 AND ea.employee_id = $2
			AND ea.effective_from <= $4
			AND (ea.effective_to IS NULL OR ea.effective_to >= $3)
			AND at.is_active = true
		ORDER BY at.display_order NULLS LAST, ea.id
	`, companyID, employeeID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("query allowances: %w", err)
	}
	defer rows.Close()

	var out []EmployeeAllowanceWithType
	for rows.Next() {
		var ea EmployeeAllowanceWithType
		if err := rows.Scan(
			&ea.ID, &ea.CompanyID, &ea.EmployeeID, &ea.AllowanceTypeID, &ea.Amount,
			&ea.EffectiveFrom, &ea.EffectiveTo,
			&ea.AllowanceType.ID, &ea.AllowanceType.CompanyID, &ea.AllowanceType.Code, &ea.AllowanceType.Name,
			&ea.AllowanceType.IsTaxable, &ea.AllowanceType.IsSocialInsuranceTarget,
			&ea.AllowanceType.IsEmploymentInsuranceTarget, &ea.AllowanceType.IsOvertimeBase,
			&ea.AllowanceType.IsActive, &ea.AllowanceType.DisplayOrder,
		); err != nil {
			return nil, fmt.Errorf("scan allowance: %w", err)
		}
		out = append(out, ea)
	}
	return out, nil
}

// CommuteEffectiveDuring returns the commute detail with the lowest id among
// those whose validity window overlaps the period. Neither effective_from
// nor insertion time decides between several overlapping rows.
func (r *PostgresRepository) CommuteEffectiveDuring(ctx context.Context, companyID, employeeID string, periodStart, periodEnd time.Time) (*CommuteDetail, error) {
	var c CommuteDetail
	var distance *decimal.Decimal
	var method ratebook.CommuteType
	err := r.queryRow(ctx, `
		SELECT id, company_id, employee_id, commute_method, distance, route,
			monthly_cost, non_taxable_limit, effective_from, effective_to
		FROM commute_details
		WHERE company_id = $1 AND employee_id = $2
			AND effective_from <= $4
			AND (effective_to IS NULL OR effective_to >= $3)
		ORDER BY id
		LIMIT 1
	`, companyID, employeeID, periodStart, periodEnd).Scan(
		&c.ID, &c.CompanyID, &c.EmployeeID, &method, &distance, &c.Route,
		&c.MonthlyCost, &c.NonTaxableLimit, &c.EffectiveFrom, &c.EffectiveTo,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query commute detail: %w", err)
	}
	c.CommuteMethod = method
	c.Distance = distance
	return &c, nil
}
