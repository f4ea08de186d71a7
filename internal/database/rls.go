package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SetTenantSession issues the SET LOCAL statements that back spec §5's
// row-level-security requirement. Every transaction that reads or writes
// tenant data sets these alongside the schema-level search_path, so RLS
// policies declared on the tables are a second line of defense even though
// the per-tenant schema is the primary isolation boundary.
func SetTenantSession(ctx context.Context, tx pgx.Tx, companyID string, isSuperAdmin bool) error {
	if _, err := tx.Exec(ctx, "SELECT set_config('app.current_company_id', $1, true)", companyID); err != nil {
		return fmt.Errorf("set app.current_company_id: %w", err)
	}
	value := "off"
	if isSuperAdmin {
		value = "on"
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.is_super_admin', $1, true)", value); err != nil {
		return fmt.Errorf("set app.is_super_admin: %w", err)
	}
	return nil
}
