//go:build gorm

package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/kyuyo-systems/payroll-engine/internal/database"
)

// recordGroupModel and recordModel/itemModel are GORM's table mapping for
// the same payroll_record_groups/payroll_records/payroll_record_items
// schema PostgresRepository reads with raw SQL. Kept separate from
// internal/models so this package has no compile-time dependency on the
// teacher's legacy GORM model set.
type recordGroupModel struct {
	ID              string `gorm:"primaryKey"`
	CompanyID       string
	EmployeeID      string
	PayrollPeriodID string
	CurrentRecordID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (recordGroupModel) TableName() string { return "payroll_record_groups" }

type recordModel struct {
	ID                 string `gorm:"primaryKey"`
	GroupID            string
	Version            int
	Status             string
	TotalEarnings      int64
	TotalDeductions    int64
	NetPay             int64
	CalculationDetails CalculationDetails `gorm:"type:jsonb"`
	ConfirmedAt        *time.Time
	ConfirmedBy        string
	CancelledAt        *time.Time
	CancelledBy        string
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (recordModel) TableName() string { return "payroll_records" }

type itemModel struct {
	ID                          string `gorm:"primaryKey"`
	RecordID                    string
	ItemType                    string
	ItemCode                    string
	ItemName                    string
	Amount                      int64
	IsTaxable                   bool
	IsSocialInsuranceTarget     bool
	IsEmploymentInsuranceTarget bool
	Notes                       string
	DisplayOrder                int
}

func (itemModel) TableName() string { return "payroll_record_items" }

type snapshotModel struct {
	ID        string `gorm:"primaryKey"`
	RecordID  string
	Payload   []byte
	CreatedAt time.Time
}

func (snapshotModel) TableName() string { return "payroll_snapshots" }

type historyModel struct {
	ID        string `gorm:"primaryKey"`
	RecordID  string
	Action    string
	OldValue  string
	NewValue  string
	Actor     string
	Reason    string
	CreatedAt time.Time
}

func (historyModel) TableName() string { return "payroll_history" }

// GORMRepository implements Repository using GORM, the teacher's second
// backend for read-heavy reporting paths that benefit from its query
// builder and association preloading over raw SQL. Each call resolves the
// tenant schema from context via database.GetSchema and routes through a
// TenantDBCache so search_path is set once per schema, not per query.
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

func (r *GORMRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("BeginTx is not supported in the GORM implementation; use gorm.DB.Transaction instead")
}

func (r *GORMRepository) WithTx(tx pgx.Tx) Repository {
	return r
}

func (r *GORMRepository) GetGroup(ctx context.Context, companyID, employeeID, periodID string) (*PayrollRecordGroup, error) {
	var m recordGroupModel
	err := r.db(ctx).WithContext(ctx).
		Where("company_id = ? AND employee_id = ? AND payroll_period_id = ?", companyID, employeeID, periodID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll record group: %w", err)
	}
	return groupFromModel(m), nil
}

func (r *GORMRepository) CreateGroup(ctx context.Context, g *PayrollRecordGroup) error {
	m := groupToModel(g)
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert payroll record group: %w", err)
	}
	return nil
}

func (r *GORMRepository) UpdateGroupCurrentRecord(ctx context.Context, groupID, recordID string) error {
	result := r.db(ctx).WithContext(ctx).Model(&recordGroupModel{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{"current_record_id": recordID, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("update group current record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GORMRepository) CreateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	return r.db(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rm := recordToModel(rec)
		if err := tx.Create(&rm).Error; err != nil {
			return fmt.Errorf("insert payroll record: %w", err)
		}
		for _, it := range items {
			im := itemToModel(it)
			if err := tx.Create(&im).Error; err != nil {
				return fmt.Errorf("insert payroll record item %s: %w", it.ItemCode, err)
			}
		}
		return nil
	})
}

func (r *GORMRepository) UpdateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	return r.db(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&recordModel{}).
			Where("id = ? AND status = ?", rec.ID, string(StatusDraft)).
			Updates(map[string]interface{}{
				"total_earnings":      rec.TotalEarnings,
				"total_deductions":    rec.TotalDeductions,
				"net_pay":             rec.NetPay,
				"calculation_details": rec.CalculationDetails,
				"updated_at":          rec.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("update payroll record: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("record_id = ?", rec.ID).Delete(&itemModel{}).Error; err != nil {
			return fmt.Errorf("delete payroll record items: %w", err)
		}
		for _, it := range items {
			im := itemToModel(it)
			if err := tx.Create(&im).Error; err != nil {
				return fmt.Errorf("insert payroll record item %s: %w", it.ItemCode, err)
			}
		}
		return nil
	})
}

func (r *GORMRepository) GetRecord(ctx context.Context, recordID string) (*PayrollRecord, error) {
	var m recordModel
	err := r.db(ctx).WithContext(ctx).Where("id = ?", recordID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payroll record: %w", err)
	}
	return recordFromModel(m), nil
}

func (r *GORMRepository) GetRecordItems(ctx context.Context, recordID string) ([]PayrollRecordItem, error) {
	var ms []itemModel
	if err := r.db(ctx).WithContext(ctx).Where("record_id = ?", recordID).Order("display_order").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("query payroll record items: %w", err)
	}
	out := make([]PayrollRecordItem, len(ms))
	for i, m := range ms {
		out[i] = itemFromModel(m)
	}
	return out, nil
}

func (r *GORMRepository) ListConfirmedByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	var rows []struct {
		recordModel
		GroupCompanyID       string `gorm:"column:group_company_id"`
		GroupEmployeeID      string `gorm:"column:group_employee_id"`
		GroupPayrollPeriodID string `gorm:"column:group_payroll_period_id"`
	}
	err := r.db(ctx).WithContext(ctx).Table("payroll_records AS pr").
		Select(`pr.*, g.company_id AS group_company_id, g.employee_id AS group_employee_id, g.payroll_period_id AS group_payroll_period_id`).
		Joins("JOIN payroll_record_groups AS g ON g.id = pr.group_id").
		Joins("JOIN employees AS e ON e.id = g.employee_id").
		Where("g.company_id = ? AND g.payroll_period_id = ? AND pr.status = ?", companyID, periodID, string(StatusConfirmed)).
		Order("e.employee_code").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query confirmed payroll records by period: %w", err)
	}

	out := make([]ConfirmedRecord, len(rows))
	for i, row := range rows {
		items, err := r.GetRecordItems(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		rec := recordFromModel(row.recordModel)
		out[i] = ConfirmedRecord{
			PayrollRecord: *rec, CompanyID: row.GroupCompanyID, EmployeeID: row.GroupEmployeeID,
			PayrollPeriodID: row.GroupPayrollPeriodID, Items: items,
		}
	}
	return out, nil
}

func (r *GORMRepository) ListByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	var rows []struct {
		recordModel
		GroupCompanyID       string `gorm:"column:group_company_id"`
		GroupEmployeeID      string `gorm:"column:group_employee_id"`
		GroupPayrollPeriodID string `gorm:"column:group_payroll_period_id"`
	}
	err := r.db(ctx).WithContext(ctx).Table("payroll_records AS pr").
		Select(`pr.*, g.company_id AS group_company_id, g.employee_id AS group_employee_id, g.payroll_period_id AS group_payroll_period_id`).
		Joins("JOIN payroll_record_groups AS g ON g.id = pr.group_id").
		Joins("JOIN employees AS e ON e.id = g.employee_id").
		Where("g.company_id = ? AND g.payroll_period_id = ?", companyID, periodID).
		Order("e.employee_code").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query payroll records by period: %w", err)
	}

	out := make([]ConfirmedRecord, len(rows))
	for i, row := range rows {
		rec := recordFromModel(row.recordModel)
		out[i] = ConfirmedRecord{
			PayrollRecord: *rec, CompanyID: row.GroupCompanyID, EmployeeID: row.GroupEmployeeID,
			PayrollPeriodID: row.GroupPayrollPeriodID,
		}
	}
	return out, nil
}

func (r *GORMRepository) TransitionRecordStatus(ctx context.Context, recordID string, from, to RecordStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": string(to), "updated_at": time.Now()}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db(ctx).WithContext(ctx).Model(&recordModel{}).
		Where("id = ? AND status = ?", recordID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("transition payroll record status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GORMRepository) CreateSnapshot(ctx context.Context, s *PayrollSnapshot) error {
	m := snapshotModel{ID: s.ID, RecordID: s.RecordID, Payload: s.Payload, CreatedAt: s.CreatedAt}
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert payroll snapshot: %w", err)
	}
	return nil
}

func (r *GORMRepository) AppendHistory(ctx context.Context, h *PayrollHistory) error {
	m := historyModel{
		ID: h.ID, RecordID: h.RecordID, Action: h.Action, OldValue: h.OldValue,
		NewValue: h.NewValue, Actor: h.Actor, Reason: h.Reason, CreatedAt: h.CreatedAt,
	}
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert payroll history: %w", err)
	}
	return nil
}

func groupToModel(g *PayrollRecordGroup) recordGroupModel {
	return recordGroupModel{
		ID: g.ID, CompanyID: g.CompanyID, EmployeeID: g.EmployeeID, PayrollPeriodID: g.PayrollPeriodID,
		CurrentRecordID: g.CurrentRecordID, CreatedAt: g.CreatedAt, UpdatedAt: g.UpdatedAt,
	}
}

func groupFromModel(m recordGroupModel) *PayrollRecordGroup {
	return &PayrollRecordGroup{
		ID: m.ID, CompanyID: m.CompanyID, EmployeeID: m.EmployeeID, PayrollPeriodID: m.PayrollPeriodID,
		CurrentRecordID: m.CurrentRecordID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func recordToModel(r *PayrollRecord) recordModel {
	return recordModel{
		ID: r.ID, GroupID: r.GroupID, Version: r.Version, Status: string(r.Status),
		TotalEarnings: r.TotalEarnings, TotalDeductions: r.TotalDeductions, NetPay: r.NetPay,
		CalculationDetails: r.CalculationDetails, ConfirmedAt: r.ConfirmedAt, ConfirmedBy: r.ConfirmedBy,
		CancelledAt: r.CancelledAt, CancelledBy: r.CancelledBy, CancelReason: r.CancelReason,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func recordFromModel(m recordModel) *PayrollRecord {
	return &PayrollRecord{
		ID: m.ID, GroupID: m.GroupID, Version: m.Version, Status: RecordStatus(m.Status),
		TotalEarnings: m.TotalEarnings, TotalDeductions: m.TotalDeductions, NetPay: m.NetPay,
		CalculationDetails: m.CalculationDetails, ConfirmedAt: m.ConfirmedAt, ConfirmedBy: m.ConfirmedBy,
		CancelledAt: m.CancelledAt, CancelledBy: m.CancelledBy, CancelReason: m.CancelReason,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func itemToModel(it PayrollRecordItem) itemModel {
	return itemModel{
		ID: it.ID, RecordID: it.RecordID, ItemType: string(it.ItemType), ItemCode: it.ItemCode,
		ItemName: it.ItemName, Amount: it.Amount, IsTaxable: it.IsTaxable,
		IsSocialInsuranceTarget: it.IsSocialInsuranceTarget, IsEmploymentInsuranceTarget: it.IsEmploymentInsuranceTarget,
		Notes: it.Notes, DisplayOrder: it.DisplayOrder,
	}
}

func itemFromModel(m itemModel) PayrollRecordItem {
	return PayrollRecordItem{
		ID: m.ID, RecordID: m.RecordID, ItemType: ItemType(m.ItemType), ItemCode: m.ItemCode,
		ItemName: m.ItemName, Amount: m.Amount, IsTaxable: m.IsTaxable,
		IsSocialInsuranceTarget: m.IsSocialInsuranceTarget, IsEmploymentInsuranceTarget: m.IsEmploymentInsuranceTarget,
		Notes: m.Notes, DisplayOrder: m.DisplayOrder,
	}
}

