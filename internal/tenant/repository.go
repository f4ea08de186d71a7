package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines the contract for company data access.
type Repository interface {
	CreateCompany(ctx context.Context, company *Company) error
	GetCompany(ctx context.Context, companyID string) (*Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (*Company, error)
	UpdateCompany(ctx context.Context, companyID string, req UpdateCompanyRequest, updatedAt time.Time) error
	SoftDeleteCompany(ctx context.Context, companyID string, deletedAt time.Time) error
}

// Common errors
var (
	ErrCompanyNotFound = fmt.Errorf("company not found")
	ErrSlugExists      = fmt.Errorf("slug already exists")
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const companyColumns = `id, name, slug, schema_name, closing_day, payment_day, payment_month_offset,
	health_insurance_prefecture, care_insurance_applicable, is_active, created_at, updated_at, deleted_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(
		&c.ID, &c.Name, &c.Slug, &c.SchemaName, &c.ClosingDay, &c.PaymentDay, &c.PaymentMonthOffset,
		&c.HealthInsurancePrefecture, &c.CareInsuranceApplicable, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan company: %w", err)
	}
	return &c, nil
}

// CreateCompany inserts the company record and provisions its schema in a
// single transaction.
func (r *PostgresRepository) CreateCompany(ctx context.Context, company *Company) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO companies (id, name, slug, schema_name, closing_day, payment_day, payment_month_offset,
			health_insurance_prefecture, care_insurance_applicable, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, company.ID, company.Name, company.Slug, company.SchemaName, company.ClosingDay, company.PaymentDay,
		company.PaymentMonthOffset, company.HealthInsurancePrefecture, company.CareInsuranceApplicable,
		company.IsActive, company.CreatedAt, company.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT create_tenant_schema($1)", company.SchemaName); err != nil {
		return fmt.Errorf("create tenant schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetCompany retrieves a company by ID, excluding soft-deleted rows.
func (r *PostgresRepository) GetCompany(ctx context.Context, companyID string) (*Company, error) {
	row := r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1 AND deleted_at IS NULL`, companyID)
	return scanCompany(row)
}

// GetCompanyBySlug retrieves a company by slug, excluding soft-deleted rows.
func (r *PostgresRepository) GetCompanyBySlug(ctx context.Context, slug string) (*Company, error) {
	row := r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE slug = $1 AND deleted_at IS NULL`, slug)
	return scanCompany(row)
}

// UpdateCompany updates a company's mutable settings.
func (r *PostgresRepository) UpdateCompany(ctx context.Context, companyID string, req UpdateCompanyRequest, updatedAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE companies
		SET name = $1, closing_day = $2, payment_day = $3, payment_month_offset = $4,
			health_insurance_prefecture = $5, care_insurance_applicable = $6, updated_at = $7
		WHERE id = $8 AND deleted_at IS NULL
	`, req.Name, req.ClosingDay, req.PaymentDay, req.PaymentMonthOffset,
		req.HealthInsurancePrefecture, req.CareInsuranceApplicable, updatedAt, companyID)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

// SoftDeleteCompany marks a company deleted without dropping its schema or data.
func (r *PostgresRepository) SoftDeleteCompany(ctx context.Context, companyID string, deletedAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE companies SET is_active = false, deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`, deletedAt, companyID)
	if err != nil {
		return fmt.Errorf("soft delete company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}
