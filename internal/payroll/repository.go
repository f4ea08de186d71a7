package payroll

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a group, record or item row does not exist.
var ErrNotFound = fmt.Errorf("payroll record not found")

// Repository is PayrollStateMachine's persistence boundary. Status
// transitions are expressed as conditional updates (WHERE status =
// expected) so the caller can detect a lost race via RowsAffected,
// mirroring the teacher's ApprovePayrollRun pattern.
type Repository interface {
	GetGroup(ctx context.Context, companyID, employeeID, periodID string) (*PayrollRecordGroup, error)
	CreateGroup(ctx context.Context, g *PayrollRecordGroup) error
	UpdateGroupCurrentRecord(ctx context.Context, groupID, recordID string) error

	CreateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error

	// UpdateRecord overwrites an existing draft row's totals, details and
	// items in place by ID, instead of inserting a second row at the same
	// (group_id, version). Returns ErrNotFound if the row is no longer a
	// draft.
	UpdateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error

	GetRecord(ctx context.Context, recordID string) (*PayrollRecord, error)
	GetRecordItems(ctx context.Context, recordID string) ([]PayrollRecordItem, error)

	// ListConfirmedByPeriod returns every confirmed record in a payroll
	// period, with items, ordered by employee code for ledger/bank-transfer
	// export. Read-only reporting path, not used by PayrollStateMachine.
	ListConfirmedByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error)

	// ListByPeriod returns every record in a payroll period regardless of
	// status, for monthly_summary's across-all-statuses aggregation.
	ListByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error)

	// TransitionRecordStatus applies an atomic WHERE status = from update.
	// Returns false (no error) when the row was not in the expected state,
	// i.e. it lost a concurrent transition race.
	TransitionRecordStatus(ctx context.Context, recordID string, from, to RecordStatus, fields map[string]interface{}) (bool, error)

	CreateSnapshot(ctx context.Context, s *PayrollSnapshot) error
	AppendHistory(ctx context.Context, h *PayrollHistory) error

	BeginTx(ctx context.Context) (pgx.Tx, error)
	WithTx(tx pgx.Tx) Repository
}

// PostgresRepository implements Repository using pgx. A non-nil tx routes
// every statement through the in-flight transaction, the same dispatch
// pattern internal/ratebook.PostgresRepository uses.
type PostgresRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewPostgresRepository constructs a pool-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx returns a repository bound to an in-flight transaction so
// PayrollStateMachine can create a record, its items and its group update
// atomically.
func (r *PostgresRepository) WithTx(tx pgx.Tx) Repository {
	return &PostgresRepository{pool: r.pool, tx: tx}
}

func (r *PostgresRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	if r.tx != nil {
		tag, err := r.tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) queryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if r.tx != nil {
		return r.tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if r.tx != nil {
		return r.tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *PostgresRepository) GetGroup(ctx context.Context, companyID, employeeID, periodID string) (*PayrollRecordGroup, error) {
	var g PayrollRecordGroup
	err := r.queryRow(ctx, `
		SELECT id, company_id, employee_id, payroll_period_id, current_record_id, created_at, updated_at
		FROM payroll_record_groups
		WHERE company_id = $1 AND employee_id = $2 AND payroll_period_id = $3
	`, companyID, employeeID, periodID).Scan(
		&g.ID, &g.CompanyID, &g.EmployeeID, &g.PayrollPeriodID, &g.CurrentRecordID, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll record group: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, g *PayrollRecordGroup) error {
	_, err := r.exec(ctx, `
		INSERT INTO payroll_record_groups (id, company_id, employee_id, payroll_period_id, current_record_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, g.ID, g.CompanyID, g.EmployeeID, g.PayrollPeriodID, g.CurrentRecordID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payroll record group: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateGroupCurrentRecord(ctx context.Context, groupID, recordID string) error {
	affected, err := r.exec(ctx, `
		UPDATE payroll_record_groups SET current_record_id = $1, updated_at = NOW() WHERE id = $2
	`, recordID, groupID)
	if err != nil {
		return fmt.Errorf("update group current record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	_, err := r.exec(ctx, `
		INSERT INTO payroll_records (id, group_id, version, status, total_earnings, total_deductions,
			net_pay, calculation_details, confirmed_by, cancelled_by, cancel_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.ID, rec.GroupID, rec.Version, rec.Status, rec.TotalEarnings, rec.TotalDeductions,
		rec.NetPay, rec.CalculationDetails, rec.ConfirmedBy, rec.CancelledBy, rec.CancelReason, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payroll record: %w", err)
	}

	for _, it := range items {
		_, err = r.exec(ctx, `
			INSERT INTO payroll_record_items (id, record_id, item_type, item_code, item_name, amount,
				is_taxable, is_social_insurance_target, is_employment_insurance_target, notes, display_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, it.ID, it.RecordID, it.ItemType, it.ItemCode, it.ItemName, it.Amount,
			it.IsTaxable, it.IsSocialInsuranceTarget, it.IsEmploymentInsuranceTarget, it.Notes, it.DisplayOrder)
		if err != nil {
			return fmt.Errorf("insert payroll record item %s: %w", it.ItemCode, err)
		}
	}

	return nil
}

func (r *PostgresRepository) UpdateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	affected, err := r.exec(ctx, `
		UPDATE payroll_records SET total_earnings = $1, total_deductions = $2, net_pay = $3,
			calculation_details = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`, rec.TotalEarnings, rec.TotalDeductions, rec.NetPay, rec.CalculationDetails, rec.UpdatedAt, rec.ID, StatusDraft)
	if err != nil {
		return fmt.Errorf("update payroll record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := r.exec(ctx, `DELETE FROM payroll_record_items WHERE record_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("delete payroll record items: %w", err)
	}
	for _, it := range items {
		if _, err := r.exec(ctx, `
			INSERT INTO payroll_record_items (id, record_id, item_type, item_code, item_name, amount,
				is_taxable, is_social_insurance_target, is_employment_insurance_target, notes, display_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, it.ID, it.RecordID, it.ItemType, it.ItemCode, it.ItemName, it.Amount,
			it.IsTaxable, it.IsSocialInsuranceTarget, it.IsEmploymentInsuranceTarget, it.Notes, it.DisplayOrder); err != nil {
			return fmt.Errorf("insert payroll record item %s: %w", it.ItemCode, err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetRecord(ctx context.Context, recordID string) (*PayrollRecord, error) {
	var rec PayrollRecord
	err := r.queryRow(ctx, `
		SELECT id, group_id, version, status, total_earnings, total_deductions, net_pay, calculation_details,
			confirmed_at, confirmed_by, cancelled_at, cancelled_by, cancel_reason, created_at, updated_at
		FROM payroll_records
		WHERE id = $1
	`, recordID).Scan(
		&rec.ID, &rec.GroupID, &rec.Version, &rec.Status, &rec.TotalEarnings, &rec.TotalDeductions,
		&rec.NetPay, &rec.CalculationDetails, &rec.ConfirmedAt, &rec.ConfirmedBy,
		&rec.CancelledAt, &rec.CancelledBy, &rec.CancelReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) GetRecordItems(ctx context.Context, recordID string) ([]PayrollRecordItem, error) {
	rows, err := r.query(ctx, `
		SELECT id, record_id, item_type, item_code, item_name, amount, is_taxable,
			is_social_insurance_target, is_employment_insurance_target, notes, display_order
		FROM payroll_record_items
		WHERE record_id = $1
		ORDER BY display_order
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query payroll record items: %w", err)
	}
	defer rows.Close()

	var out []PayrollRecordItem
	for rows.Next() {
		var it PayrollRecordItem
		if err := rows.Scan(&it.ID, &it.RecordID, &it.ItemType, &it.ItemCode, &it.ItemName, &it.Amount,
			&it.IsTaxable, &it.IsSocialInsuranceTarget, &it.IsEmploymentInsuranceTarget, &it.Notes, &it.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan payroll record item: %w", err)
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *PostgresRepository) ListConfirmedByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	rows, err := r.query(ctx, `
		SELECT pr.id, pr.group_id, pr.version, pr.status, pr.total_earnings, pr.total_deductions, pr.net_pay,
			pr.calculation_details, pr.confirmed_at, pr.confirmed_by, pr.cancelled_at, pr.cancelled_by,
			pr.cancel_reason, pr.created_at, pr.updated_at,
			g.company_id, g.employee_id, g.payroll_period_id
		FROM payroll_records pr
		JOIN payroll_record_groups g ON g.id = pr.group_id
		JOIN employees e ON e.id = g.employee_id
		WHERE g.company_id = $1 AND g.payroll_period_id = $2 AND pr.status = $3
		ORDER BY e.employee_code
	`, companyID, periodID, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("query confirmed payroll records by period: %w", err)
	}
	defer rows.Close()

	var out []ConfirmedRecord
	for rows.Next() {
		var cr ConfirmedRecord
		if err := rows.Scan(
			&cr.ID, &cr.GroupID, &cr.Version, &cr.Status, &cr.TotalEarnings, &cr.TotalDeductions, &cr.NetPay,
			&cr.CalculationDetails, &cr.ConfirmedAt, &cr.ConfirmedBy, &cr.CancelledAt, &cr.CancelledBy,
			&cr.CancelReason, &cr.CreatedAt, &cr.UpdatedAt,
			&cr.CompanyID, &cr.EmployeeID, &cr.PayrollPeriodID,
		); err != nil {
			return nil, fmt.Errorf("scan confirmed payroll record: %w", err)
		}
		items, err := r.GetRecordItems(ctx, cr.ID)
		if err != nil {
			return nil, err
		}
		cr.Items = items
		out = append(out, cr)
	}
	return out, nil
}

func (r *PostgresRepository) ListByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	rows, err := r.query(ctx, `
		SELECT pr.id, pr.group_id, pr.version, pr.status, pr.total_earnings, pr.total_deductions, pr.net_pay,
			pr.calculation_details, pr.confirmed_at, pr.confirmed_by, pr.cancelled_at, pr.cancelled_by,
			pr.cancel_reason, pr.created_at, pr.updated_at,
			g.company_id, g.employee_id, g.payroll_period_id
		FROM payroll_records pr
		JOIN payroll_record_groups g ON g.id = pr.group_id
		JOIN employees e ON e.id = g.employee_id
		WHERE g.company_id = $1 AND g.payroll_period_id = $2
		ORDER BY e.employee_code
	`, companyID, periodID)
	if err != nil {
		return nil, fmt.Errorf("query payroll records by period: %w", err)
	}
	defer rows.Close()

	var out []ConfirmedRecord
	for rows.Next() {
		var cr ConfirmedRecord
		if err := rows.Scan(
			&cr.ID, &cr.GroupID, &cr.Version, &cr.Status, &cr.TotalEarnings, &cr.TotalDeductions, &cr.NetPay,
			&cr.CalculationDetails, &cr.ConfirmedAt, &cr.ConfirmedBy, &cr.CancelledAt, &cr.CancelledBy,
			&cr.CancelReason, &cr.CreatedAt, &cr.UpdatedAt,
			&cr.CompanyID, &cr.EmployeeID, &cr.PayrollPeriodID,
		); err != nil {
			return nil, fmt.Errorf("scan payroll record: %w", err)
		}
		out = append(out, cr)
	}
	return out, nil
}

// TransitionRecordStatus mirrors the teacher's ApprovePayrollRun: it only
// takes effect if the row is still in the expected `from` status, and
// reports whether it did so via the bool return rather than an error, so
// callers can distinguish "lost the race" from "database failure".
func (r *PostgresRepository) TransitionRecordStatus(ctx context.Context, recordID string, from, to RecordStatus, fields map[string]interface{}) (bool, error) {
	setClauses := "status = $1, updated_at = NOW()"
	args := []interface{}{to}
	i := 2
	for col, val := range fields {
		setClauses += fmt.Sprintf(", %s = $%d", col, i)
		args = append(args, val)
		i++
	}
	args = append(args, recordID, from)

	query := fmt.Sprintf(`UPDATE payroll_records SET %s WHERE id = $%d AND status = $%d`, setClauses, i, i+1)
	affected, err := r.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition payroll record status: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresRepository) CreateSnapshot(ctx context.Context, s *PayrollSnapshot) error {
	_, err := r.exec(ctx, `
		INSERT INTO payroll_snapshots (id, record_id, payload, created_at)
		VALUES ($1,$2,$3,$4)
	`, s.ID, s.RecordID, s.Payload, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payroll snapshot: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, h *PayrollHistory) error {
	_, err := r.exec(ctx, `
		INSERT INTO payroll_history (id, record_id, action, old_value, new_value, actor, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, h.ID, h.RecordID, h.Action, h.OldValue, h.NewValue, h.Actor, h.Reason, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payroll history: %w", err)
	}
	return nil
}
