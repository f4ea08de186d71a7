//go:build gorm

package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kyuyo-systems/payroll-engine/internal/database"
)

type mappingModel struct {
	ID          string `gorm:"primaryKey"`
	CompanyID   string
	ItemType    string
	ItemCode    string
	AccountCode string
	AccountName string
	DebitCredit string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (mappingModel) TableName() string { return "accounting_mappings" }

// GORMRepository implements Repository using GORM, following the same
// per-tenant-schema dispatch as internal/payroll/repository_gorm.go.
type GORMRepository struct {
	cache *database.TenantDBCache
}

// NewGORMRepository constructs a GORMRepository over a base *gorm.DB.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{cache: database.NewTenantDBCache(db)}
}

func (r *GORMRepository) db(ctx context.Context) *gorm.DB {
	return r.cache.Get(database.GetSchema(ctx))
}

func (r *GORMRepository) Get(ctx context.Context, companyID, itemType, itemCode string) (*Mapping, error) {
	var m mappingModel
	err := r.db(ctx).WithContext(ctx).
		Where("company_id = ? AND item_type = ? AND item_code = ?", companyID, itemType, itemCode).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get accounting mapping: %w", err)
	}
	return mappingFromModel(m), nil
}

func (r *GORMRepository) List(ctx context.Context, companyID string) ([]Mapping, error) {
	var ms []mappingModel
	if err := r.db(ctx).WithContext(ctx).Where("company_id = ?", companyID).Order("item_type, item_code").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list accounting mappings: %w", err)
	}
	out := make([]Mapping, len(ms))
	for i, m := range ms {
		out[i] = *mappingFromModel(m)
	}
	return out, nil
}

func (r *GORMRepository) Upsert(ctx context.Context, m *Mapping) error {
	model := mappingModel{
		ID: m.ID, CompanyID: m.CompanyID, ItemType: m.ItemType, ItemCode: m.ItemCode,
		AccountCode: m.AccountCode, AccountName: m.AccountName, DebitCredit: string(m.DebitCredit),
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
	err := r.db(ctx).WithContext(ctx).
		Where("company_id = ? AND item_type = ? AND item_code = ?", m.CompanyID, m.ItemType, m.ItemCode).
		Assign(model).FirstOrCreate(&model).Error
	if err != nil {
		return fmt.Errorf("upsert accounting mapping: %w", err)
	}
	return nil
}

func (r *GORMRepository) Delete(ctx context.Context, companyID, id string) error {
	result := r.db(ctx).WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&mappingModel{})
	if result.Error != nil {
		return fmt.Errorf("delete accounting mapping: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func mappingFromModel(m mappingModel) *Mapping {
	return &Mapping{
		ID: m.ID, CompanyID: m.CompanyID, ItemType: m.ItemType, ItemCode: m.ItemCode,
		AccountCode: m.AccountCode, AccountName: m.AccountName, DebitCredit: DebitCredit(m.DebitCredit),
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}
