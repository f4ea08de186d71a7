package accounting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a mapping row does not exist.
var ErrNotFound = fmt.Errorf("accounting mapping not found")

// Repository is the persistence boundary for accounting mappings.
type Repository interface {
	Get(ctx context.Context, companyID, itemType, itemCode string) (*Mapping, error)
	List(ctx context.Context, companyID string) ([]Mapping, error)
	Upsert(ctx context.Context, m *Mapping) error
	Delete(ctx context.Context, companyID, id string) error
}

// PostgresRepository implements Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a pool-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, companyID, itemType, itemCode string) (*Mapping, error) {
	var m Mapping
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, item_type, item_code, account_code, account_name, debit_credit, created_at, updated_at
		FROM accounting_mappings
		WHERE company_id = $1 AND item_type = $2 AND item_code = $3
	`, companyID, itemType, itemCode).Scan(
		&m.ID, &m.CompanyID, &m.ItemType, &m.ItemCode, &m.AccountCode, &m.AccountName, &m.DebitCredit, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get accounting mapping: %w", err)
	}
	return &m, nil
}

func (r *PostgresRepository) List(ctx context.Context, companyID string) ([]Mapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, item_type, item_code, account_code, account_name, debit_credit, created_at, updated_at
		FROM accounting_mappings
		WHERE company_id = $1
		ORDER BY item_type, item_code
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list accounting mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ItemType, &m.ItemCode, &m.AccountCode, &m.AccountName, &m.DebitCredit, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan accounting mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, m *Mapping) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounting_mappings (id, company_id, item_type, item_code, account_code, account_name, debit_credit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (company_id, item_type, item_code) DO UPDATE SET
			account_code = EXCLUDED.account_code,
			account_name = EXCLUDED.account_name,
			debit_credit = EXCLUDED.debit_credit,
			updated_at = EXCLUDED.updated_at
	`, m.ID, m.CompanyID, m.ItemType, m.ItemCode, m.AccountCode, m.AccountName, m.DebitCredit, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert accounting mapping: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, companyID, id string) error {
	affected, err := r.pool.Exec(ctx, `DELETE FROM accounting_mappings WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete accounting mapping: %w", err)
	}
	if affected.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
