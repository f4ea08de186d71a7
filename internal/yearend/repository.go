package yearend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an adjustment, certificate or slip row does
// not exist.
var ErrNotFound = fmt.Errorf("year-end adjustment not found")

// Repository is Workflow's persistence boundary.
type Repository interface {
	Get(ctx context.Context, id string) (*Adjustment, error)
	GetByEmployeeYear(ctx context.Context, companyID, employeeID string, targetYear int) (*Adjustment, error)
	List(ctx context.Context, companyID string, targetYear *int, status *Status, employeeID *string, offset, limit int) ([]Adjustment, int, error)
	Create(ctx context.Context, a *Adjustment) error
	Update(ctx context.Context, a *Adjustment) error

	AppendHistory(ctx context.Context, h *History) error

	CreateCertificate(ctx context.Context, c *Certificate) error
	ListCertificates(ctx context.Context, adjustmentID string) ([]Certificate, error)

	GetWithholdingSlip(ctx context.Context, adjustmentID string) (*WithholdingSlip, error)
	CreateWithholdingSlip(ctx context.Context, s *WithholdingSlip) error
}

// PostgresRepository implements Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a pool-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const adjustmentColumns = `id, company_id, employee_id, target_year, status,
	basic_deduction, spouse_deduction, dependent_deduction, disability_deduction, widow_deduction,
	working_student_deduction, social_insurance_premium, small_business_mutual_aid,
	life_insurance_premium, earthquake_insurance_premium, housing_loan_deduction,
	annual_income, annual_withheld_tax, annual_calculated_tax, adjustment_amount,
	spouse_info, dependent_info, insurance_info,
	submitted_at, returned_at, return_reason, approved_at, approved_by, confirmed_at, confirmed_by,
	created_at, updated_at`

func scanAdjustment(row pgx.Row) (*Adjustment, error) {
	var a Adjustment
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.EmployeeID, &a.TargetYear, &a.Status,
		&a.Deductions.Basic, &a.Deductions.Spouse, &a.Deductions.Dependent, &a.Deductions.Disability, &a.Deductions.Widow,
		&a.Deductions.WorkingStudent, &a.Deductions.SocialInsurancePremium, &a.Deductions.SmallBusinessMutualAid,
		&a.Deductions.LifeInsurancePremium, &a.Deductions.EarthquakeInsurance, &a.Deductions.HousingLoan,
		&a.AnnualIncome, &a.AnnualWithheldTax, &a.AnnualCalculatedTax, &a.AdjustmentAmount,
		&a.SpouseInfo, &a.DependentInfo, &a.InsuranceInfo,
		&a.SubmittedAt, &a.ReturnedAt, &a.ReturnReason, &a.ApprovedAt, &a.ApprovedBy, &a.ConfirmedAt, &a.ConfirmedBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Adjustment, error) {
	a, err := scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM year_end_adjustments WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get year-end adjustment: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByEmployeeYear(ctx context.Context, companyID, employeeID string, targetYear int) (*Adjustment, error) {
	a, err := scanAdjustment(r.pool.QueryRow(ctx, `
		SELECT `+adjustmentColumns+` FROM year_end_adjustments
		WHERE company_id = $1 AND employee_id = $2 AND target_year = $3
	`, companyID, employeeID, targetYear))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get year-end adjustment by employee/year: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context, companyID string, targetYear *int, status *Status, employeeID *string, offset, limit int) ([]Adjustment, int, error) {
	where := "company_id = $1"
	args := []interface{}{companyID}
	i := 2
	if targetYear != nil {
		where += fmt.Sprintf(" AND target_year = $%d", i)
		args = append(args, *targetYear)
		i++
	}
	if status != nil {
		where += fmt.Sprintf(" AND status = $%d", i)
		args = append(args, *status)
		i++
	}
	if employeeID != nil {
		where += fmt.Sprintf(" AND employee_id = $%d", i)
		args = append(args, *employeeID)
		i++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM year_end_adjustments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count year-end adjustments: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `
		SELECT `+adjustmentColumns+` FROM year_end_adjustments
		WHERE `+where+`
		ORDER BY id DESC
		LIMIT $`+fmt.Sprint(i)+` OFFSET $`+fmt.Sprint(i+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query year-end adjustments: %w", err)
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan year-end adjustment: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *Adjustment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO year_end_adjustments (`+adjustmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
	`,
		a.ID, a.CompanyID, a.EmployeeID, a.TargetYear, a.Status,
		a.Deductions.Basic, a.Deductions.Spouse, a.Deductions.Dependent, a.Deductions.Disability, a.Deductions.Widow,
		a.Deductions.WorkingStudent, a.Deductions.SocialInsurancePremium, a.Deductions.SmallBusinessMutualAid,
		a.Deductions.LifeInsurancePremium, a.Deductions.EarthquakeInsurance, a.Deductions.HousingLoan,
		a.AnnualIncome, a.AnnualWithheldTax, a.AnnualCalculatedTax, a.AdjustmentAmount,
		a.SpouseInfo, a.DependentInfo, a.InsuranceInfo,
		a.SubmittedAt, a.ReturnedAt, a.ReturnReason, a.ApprovedAt, a.ApprovedBy, a.ConfirmedAt, a.ConfirmedBy,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert year-end adjustment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, a *Adjustment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE year_end_adjustments SET
			status = $1,
			basic_deduction = $2, spouse_deduction = $3, dependent_deduction = $4, disability_deduction = $5,
			widow_deduction = $6, working_student_deduction = $7, social_insurance_premium = $8,
			small_business_mutual_aid = $9, life_insurance_premium = $10, earthquake_insurance_premium = $11,
			housing_loan_deduction = $12,
			annual_income = $13, annual_withheld_tax = $14, annual_calculated_tax = $15, adjustment_amount = $16,
			spouse_info = $17, dependent_info = $18, insurance_info = $19,
			submitted_at = $20, returned_at = $21, return_reason = $22,
			approved_at = $23, approved_by = $24, confirmed_at = $25, confirmed_by = $26,
			updated_at = $27
		WHERE id = $28
	`,
		a.Status,
		a.Deductions.Basic, a.Deductions.Spouse, a.Deductions.Dependent, a.Deductions.Disability,
		a.Deductions.Widow, a.Deductions.WorkingStudent, a.Deductions.SocialInsurancePremium,
		a.Deductions.SmallBusinessMutualAid, a.Deductions.LifeInsurancePremium, a.Deductions.EarthquakeInsurance,
		a.Deductions.HousingLoan,
		a.AnnualIncome, a.AnnualWithheldTax, a.AnnualCalculatedTax, a.AdjustmentAmount,
		a.SpouseInfo, a.DependentInfo, a.InsuranceInfo,
		a.SubmittedAt, a.ReturnedAt, a.ReturnReason,
		a.ApprovedAt, a.ApprovedBy, a.ConfirmedAt, a.ConfirmedBy,
		a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update year-end adjustment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, h *History) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO year_end_adjustment_history (id, year_end_adjustment_id, action, changed_by, old_status, new_status, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, h.ID, h.AdjustmentID, h.Action, h.ChangedBy, h.OldStatus, h.NewStatus, h.Reason, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert year-end adjustment history: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateCertificate(ctx context.Context, c *Certificate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deduction_certificates (id, company_id, year_end_adjustment_id, certificate_type, file_name, file_size, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.CompanyID, c.AdjustmentID, c.CertificateType, c.FileName, c.FileSize, c.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert deduction certificate: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListCertificates(ctx context.Context, adjustmentID string) ([]Certificate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, year_end_adjustment_id, certificate_type, file_name, file_size, uploaded_at
		FROM deduction_certificates WHERE year_end_adjustment_id = $1
	`, adjustmentID)
	if err != nil {
		return nil, fmt.Errorf("query deduction certificates: %w", err)
	}
	defer rows.Close()

	var out []Certificate
	for rows.Next() {
		var c Certificate
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.AdjustmentID, &c.CertificateType, &c.FileName, &c.FileSize, &c.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan deduction certificate: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *PostgresRepository) GetWithholdingSlip(ctx context.Context, adjustmentID string) (*WithholdingSlip, error) {
	var s WithholdingSlip
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, year_end_adjustment_id, employee_id, target_year, issue_date, slip_data
		FROM tax_withholding_slips WHERE year_end_adjustment_id = $1
	`, adjustmentID).Scan(&s.ID, &s.CompanyID, &s.AdjustmentID, &s.EmployeeID, &s.TargetYear, &s.IssueDate, &s.SlipData)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tax withholding slip: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) CreateWithholdingSlip(ctx context.Context, s *WithholdingSlip) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tax_withholding_slips (id, company_id, year_end_adjustment_id, employee_id, target_year, issue_date, slip_data)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.CompanyID, s.AdjustmentID, s.EmployeeID, s.TargetYear, s.IssueDate, s.SlipData)
	if err != nil {
		return fmt.Errorf("insert tax withholding slip: %w", err)
	}
	return nil
}
