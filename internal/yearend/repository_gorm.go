//go:build gorm

package yearend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kyuyo-systems/payroll-engine/internal/database"
)

type adjustmentModel struct {
	ID         string `gorm:"primaryKey"`
	CompanyID  string
	EmployeeID string
	TargetYear int
	Status     string

	BasicDeduction          int64
	SpouseDeduction         int64
	DependentDeduction      int64
	DisabilityDeduction     int64
	WidowDeduction          int64
	WorkingStudentDeduction int64
	SocialInsurancePremium  int64
	SmallBusinessMutualAid  int64
	LifeInsurancePremium    int64
	EarthquakeInsurance     int64 `gorm:"column:earthquake_insurance_premium"`
	HousingLoanDeduction    int64

	AnnualIncome        *int64
	AnnualWithheldTax   *int64
	AnnualCalculatedTax *int64
	AdjustmentAmount    *int64

	SpouseInfo    DeclarationInfo `gorm:"type:jsonb"`
	DependentInfo DeclarationInfo `gorm:"type:jsonb"`
	InsuranceInfo DeclarationInfo `gorm:"type:jsonb"`

	SubmittedAt  *time.Time
	ReturnedAt   *time.Time
	ReturnReason string
	ApprovedAt   *time.Time
	ApprovedBy   string
	ConfirmedAt  *time.Time
	ConfirmedBy  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (adjustmentModel) TableName() string { return "year_end_adjustments" }

type historyModel struct {
	ID           string `gorm:"primaryKey"`
	AdjustmentID string `gorm:"column:year_end_adjustment_id"`
	Action       string
	ChangedBy    string
	OldStatus    string
	NewStatus    string
	Reason       string
	CreatedAt    time.Time
}

func (historyModel) TableName() string { return "year_end_adjustment_history" }

type certificateModel struct {
	ID              string `gorm:"primaryKey"`
	CompanyID       string
	AdjustmentID    string `gorm:"column:year_end_adjustment_id"`
	CertificateType string
	FileName        string
	FileSize        int64
	UploadedAt      time.Time
}

func (certificateModel) TableName() string { return "deduction_certificates" }

type withholdingSlipModel struct {
	ID           string `gorm:"primaryKey"`
	CompanyID    string
	AdjustmentID string `gorm:"column:year_end_adjustment_id"`
	EmployeeID   string
	TargetYear   int
	IssueDate    time.Time
	SlipData     SlipData `gorm:"type:jsonb"`
}

func (withholdingSlipModel) TableName() string { return "tax_withholding_slips" }

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

func (r *GORMRepository) Get(ctx context.Context, id string) (*Adjustment, error) {
	var m adjustmentModel
	err := r.db(ctx).WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get year-end adjustment: %w", err)
	}
	return adjustmentFromModel(m), nil
}

func (r *GORMRepository) GetByEmployeeYear(ctx context.Context, companyID, employeeID string, targetYear int) (*Adjustment, error) {
	var m adjustmentModel
	err := r.db(ctx).WithContext(ctx).
		Where("company_id = ? AND employee_id = ? AND target_year = ?", companyID, employeeID, targetYear).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get year-end adjustment by employee/year: %w", err)
	}
	return adjustmentFromModel(m), nil
}

func (r *GORMRepository) List(ctx context.Context, companyID string, targetYear *int, status *Status, employeeID *string, offset, limit int) ([]Adjustment, int, error) {
	q := r.db(ctx).WithContext(ctx).Model(&adjustmentModel{}).Where("company_id = ?", companyID)
	if targetYear != nil {
		q = q.Where("target_year = ?", *targetYear)
	}
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	if employeeID != nil {
		q = q.Where("employee_id = ?", *employeeID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count year-end adjustments: %w", err)
	}

	var ms []adjustmentModel
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&ms).Error; err != nil {
		return nil, 0, fmt.Errorf("query year-end adjustments: %w", err)
	}
	out := make([]Adjustment, len(ms))
	for i, m := range ms {
		out[i] = *adjustmentFromModel(m)
	}
	return out, int(total), nil
}

func (r *GORMRepository) Create(ctx context.Context, a *Adjustment) error {
	m := adjustmentToModel(a)
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert year-end adjustment: %w", err)
	}
	return nil
}

func (r *GORMRepository) Update(ctx context.Context, a *Adjustment) error {
	m := adjustmentToModel(a)
	if err := r.db(ctx).WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("update year-end adjustment: %w", err)
	}
	return nil
}

func (r *GORMRepository) AppendHistory(ctx context.Context, h *History) error {
	m := historyModel{
		ID: h.ID, AdjustmentID: h.AdjustmentID, Action: h.Action, ChangedBy: h.ChangedBy,
		OldStatus: string(h.OldStatus), NewStatus: string(h.NewStatus), Reason: h.Reason, CreatedAt: h.CreatedAt,
	}
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert year-end adjustment history: %w", err)
	}
	return nil
}

func (r *GORMRepository) CreateCertificate(ctx context.Context, c *Certificate) error {
	m := certificateModel{
		ID: c.ID, CompanyID: c.CompanyID, AdjustmentID: c.AdjustmentID,
		CertificateType: c.CertificateType, FileName: c.FileName, FileSize: c.FileSize, UploadedAt: c.UploadedAt,
	}
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert deduction certificate: %w", err)
	}
	return nil
}

func (r *GORMRepository) ListCertificates(ctx context.Context, adjustmentID string) ([]Certificate, error) {
	var ms []certificateModel
	if err := r.db(ctx).WithContext(ctx).Where("year_end_adjustment_id = ?", adjustmentID).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("query deduction certificates: %w", err)
	}
	out := make([]Certificate, len(ms))
	for i, m := range ms {
		out[i] = Certificate{
			ID: m.ID, CompanyID: m.CompanyID, AdjustmentID: m.AdjustmentID,
			CertificateType: m.CertificateType, FileName: m.FileName, FileSize: m.FileSize, UploadedAt: m.UploadedAt,
		}
	}
	return out, nil
}

func (r *GORMRepository) GetWithholdingSlip(ctx context.Context, adjustmentID string) (*WithholdingSlip, error) {
	var m withholdingSlipModel
	err := r.db(ctx).WithContext(ctx).Where("year_end_adjustment_id = ?", adjustmentID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tax withholding slip: %w", err)
	}
	return &WithholdingSlip{
		ID: m.ID, CompanyID: m.CompanyID, AdjustmentID: m.AdjustmentID, EmployeeID: m.EmployeeID,
		TargetYear: m.TargetYear, IssueDate: m.IssueDate, SlipData: m.SlipData,
	}, nil
}

func (r *GORMRepository) CreateWithholdingSlip(ctx context.Context, s *WithholdingSlip) error {
	m := withholdingSlipModel{
		ID: s.ID, CompanyID: s.CompanyID, AdjustmentID: s.AdjustmentID, EmployeeID: s.EmployeeID,
		TargetYear: s.TargetYear, IssueDate: s.IssueDate, SlipData: s.SlipData,
	}
	if err := r.db(ctx).WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert tax withholding slip: %w", err)
	}
	return nil
}

func adjustmentToModel(a *Adjustment) adjustmentModel {
	return adjustmentModel{
		ID: a.ID, CompanyID: a.CompanyID, EmployeeID: a.EmployeeID, TargetYear: a.TargetYear, Status: string(a.Status),
		BasicDeduction: a.Deductions.Basic, SpouseDeduction: a.Deductions.Spouse, DependentDeduction: a.Deductions.Dependent,
		DisabilityDeduction: a.Deductions.Disability, WidowDeduction: a.Deductions.Widow,
		WorkingStudentDeduction: a.Deductions.WorkingStudent, SocialInsurancePremium: a.Deductions.SocialInsurancePremium,
		SmallBusinessMutualAid: a.Deductions.SmallBusinessMutualAid, LifeInsurancePremium: a.Deductions.LifeInsurancePremium,
		EarthquakeInsurance: a.Deductions.EarthquakeInsurance, HousingLoanDeduction: a.Deductions.HousingLoan,
		AnnualIncome: a.AnnualIncome, AnnualWithheldTax: a.AnnualWithheldTax, AnnualCalculatedTax: a.AnnualCalculatedTax,
		AdjustmentAmount: a.AdjustmentAmount,
		SpouseInfo:       a.SpouseInfo, DependentInfo: a.DependentInfo, InsuranceInfo: a.InsuranceInfo,
		SubmittedAt: a.SubmittedAt, ReturnedAt: a.ReturnedAt, ReturnReason: a.ReturnReason,
		ApprovedAt: a.ApprovedAt, ApprovedBy: a.ApprovedBy, ConfirmedAt: a.ConfirmedAt, ConfirmedBy: a.ConfirmedBy,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func adjustmentFromModel(m adjustmentModel) *Adjustment {
	return &Adjustment{
		ID: m.ID, CompanyID: m.CompanyID, EmployeeID: m.EmployeeID, TargetYear: m.TargetYear, Status: Status(m.Status),
		Deductions: Deductions{
			Basic: m.BasicDeduction, Spouse: m.SpouseDeduction, Dependent: m.DependentDeduction,
			Disability: m.DisabilityDeduction, Widow: m.WidowDeduction, WorkingStudent: m.WorkingStudentDeduction,
			SocialInsurancePremium: m.SocialInsurancePremium, SmallBusinessMutualAid: m.SmallBusinessMutualAid,
			LifeInsurancePremium: m.LifeInsurancePremium, EarthquakeInsurance: m.EarthquakeInsurance,
			HousingLoan: m.HousingLoanDeduction,
		},
		AnnualIncome: m.AnnualIncome, AnnualWithheldTax: m.AnnualWithheldTax, AnnualCalculatedTax: m.AnnualCalculatedTax,
		AdjustmentAmount: m.AdjustmentAmount,
		SpouseInfo:       m.SpouseInfo, DependentInfo: m.DependentInfo, InsuranceInfo: m.InsuranceInfo,
		SubmittedAt: m.SubmittedAt, ReturnedAt: m.ReturnedAt, ReturnReason: m.ReturnReason,
		ApprovedAt: m.ApprovedAt, ApprovedBy: m.ApprovedBy, ConfirmedAt: m.ConfirmedAt, ConfirmedBy: m.ConfirmedBy,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}
