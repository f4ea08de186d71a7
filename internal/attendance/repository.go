package attendance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines data access for attendance records and payroll periods.
type Repository interface {
	GetAttendanceRecord(ctx context.Context, companyID, employeeID string, yearMonth int) (*AttendanceRecord, error)
	UpsertAttendanceRecord(ctx context.Context, a *AttendanceRecord) error

	GetPayrollPeriod(ctx context.Context, companyID string, yearMonth int, periodType PeriodType) (*PayrollPeriod, error)
	GetPayrollPeriodByID(ctx context.Context, companyID, periodID string) (*PayrollPeriod, error)
	CreatePayrollPeriod(ctx context.Context, p *PayrollPeriod) error

	BeginTx(ctx context.Context) (pgx.Tx, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrNotFound is returned when no attendance record or period row matches.
var ErrNotFound = fmt.Errorf("attendance record not found")

// PostgresRepository implements Repository using pgx, dispatching through
// tx when set so callers can read attendance and period rows inside the
// same schema-scoped transaction database.Pool.WithTx opens.
type PostgresRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewPostgresRepository constructs a pool-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// WithTx returns a repository bound to an in-flight transaction.
func (r *PostgresRepository) WithTx(tx pgx.Tx) Repository {
	return &PostgresRepository{pool: r.pool, tx: tx}
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

func (r *PostgresRepository) queryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if r.tx != nil {
		return r.tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

const attendanceColumns = `id, company_id, employee_id, year_month, statutory_work_days, work_days,
	absence_days, late_count, early_leave_count, paid_leave_days, substitute_holiday_days,
	total_work_minutes, regular_minutes, overtime_within_statutory_minutes, overtime_statutory_minutes,
	night_minutes, statutory_holiday_minutes, non_statutory_holiday_minutes, night_overtime_minutes,
	night_holiday_minutes, night_overtime_holiday_minutes, notes, created_at, updated_at`

func scanAttendance(row pgx.Row) (*AttendanceRecord, error) {
	var a AttendanceRecord
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.EmployeeID, &a.YearMonth, &a.StatutoryWorkDays, &a.WorkDays,
		&a.AbsenceDays, &a.LateCount, &a.EarlyLeaveCount, &a.PaidLeaveDays, &a.SubstituteHolidayDays,
		&a.TotalWorkMinutes, &a.RegularMinutes, &a.OvertimeWithinStatutoryMinutes, &a.OvertimeStatutoryMinutes,
		&a.NightMinutes, &a.StatutoryHolidayMinutes, &a.NonStatutoryHolidayMinutes, &a.NightOvertimeMinutes,
		&a.NightHolidayMinutes, &a.NightOvertimeHolidayMinutes, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) GetAttendanceRecord(ctx context.Context, companyID, employeeID string, yearMonth int) (*AttendanceRecord, error) {
	row := r.queryRow(ctx, `
		SELECT `+attendanceColumns+` FROM attendance_records
		WHERE company_id = $1 AND employee_id = $2 AND year_month = $3
	`, companyID, employeeID, yearMonth)
	return scanAttendance(row)
}

// UpsertAttendanceRecord inserts or replaces the unique (company, employee,
// year_month) row.
func (r *PostgresRepository) UpsertAttendanceRecord(ctx context.Context, a *AttendanceRecord) error {
	_, err := r.exec(ctx, `
		INSERT INTO attendance_records (`+attendanceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		ON CONFLICT (company_id, employee_id, year_month) DO UPDATE SET
			statutory_work_days = EXCLUDED.statutory_work_days,
			work_days = EXCLUDED.work_days,
			absence_days = EXCLUDED.absence_days,
			late_count = EXCLUDED.late_count,
			early_leave_count = EXCLUDED.early_leave_count,
			paid_leave_days = EXCLUDED.paid_leave_days,
			substitute_holiday_days = EXCLUDED.substitute_holiday_days,
			total_work_minutes = EXCLUDED.total_work_minutes,
			regular_minutes = EXCLUDED.regular_minutes,
			overtime_within_statutory_minutes = EXCLUDED.overtime_within_statutory_minutes,
			overtime_statutory_minutes = EXCLUDED.overtime_statutory_minutes,
			night_minutes = EXCLUDED.night_minutes,
			statutory_holiday_minutes = EXCLUDED.statutory_holiday_minutes,
			non_statutory_holiday_minutes = EXCLUDED.non_statutory_holiday_minutes,
			night_overtime_minutes = EXCLUDED.night_overtime_minutes,
			night_holiday_minutes = EXCLUDED.night_holiday_minutes,
			night_overtime_holiday_minutes = EXCLUDED.night_overtime_holiday_minutes,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.CompanyID, a.EmployeeID, a.YearMonth, a.StatutoryWorkDays, a.WorkDays,
		a.AbsenceDays, a.LateCount, a.EarlyLeaveCount, a.PaidLeaveDays, a.SubstituteHolidayDays,
		a.TotalWorkMinutes, a.RegularMinutes, a.OvertimeWithinStatutoryMinutes, a.OvertimeStatutoryMinutes,
		a.NightMinutes, a.StatutoryHolidayMinutes, a.NonStatutoryHolidayMinutes, a.NightOvertimeMinutes,
		a.NightHolidayMinutes, a.NightOvertimeHolidayMinutes, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPayrollPeriod(ctx context.Context, companyID string, yearMonth int, periodType PeriodType) (*PayrollPeriod, error) {
	var p PayrollPeriod
	err := r.queryRow(ctx, `
		SELECT id, company_id, period_type, year_month, start_date, end_date, payment_date,
			closing_date, weekly_closing_day, status, created_at, updated_at
		FROM payroll_periods
		WHERE company_id = $1 AND year_month = $2 AND period_type = $3
	`, companyID, yearMonth, periodType).Scan(
		&p.ID, &p.CompanyID, &p.PeriodType, &p.YearMonth, &p.StartDate, &p.EndDate, &p.PaymentDate,
		&p.ClosingDate, &p.WeeklyClosingDay, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll period: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetPayrollPeriodByID(ctx context.Context, companyID, periodID string) (*PayrollPeriod, error) {
	var p PayrollPeriod
	err := r.queryRow(ctx, `
		SELECT id, company_id, period_type, year_month, start_date, end_date, payment_date,
			closing_date, weekly_closing_day, status, created_at, updated_at
		FROM payroll_periods
		WHERE company_id = $1 AND id = $2
	`, companyID, periodID).Scan(
		&p.ID, &p.CompanyID, &p.PeriodType, &p.YearMonth, &p.StartDate, &p.EndDate, &p.PaymentDate,
		&p.ClosingDate, &p.WeeklyClosingDay, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll period by id: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreatePayrollPeriod(ctx context.Context, p *PayrollPeriod) error {
	_, err := r.exec(ctx, `
		INSERT INTO payroll_periods (id, company_id, period_type, year_month, start_date, end_date,
			payment_date, closing_date, weekly_closing_day, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.CompanyID, p.PeriodType, p.YearMonth, p.StartDate, p.EndDate,
		p.PaymentDate, p.ClosingDate, p.WeeklyClosingDay, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payroll period: %w", err)
	}
	return nil
}
