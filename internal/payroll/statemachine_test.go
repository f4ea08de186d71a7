package payroll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
)

type fakePayrollRepo struct {
	groups    map[string]*PayrollRecordGroup // keyed by company|employee|period
	records   map[string]*PayrollRecord
	items     map[string][]PayrollRecordItem
	snapshots []PayrollSnapshot
	history   []PayrollHistory
}

func newFakePayrollRepo() *fakePayrollRepo {
	return &fakePayrollRepo{
		groups:  map[string]*PayrollRecordGroup{},
		records: map[string]*PayrollRecord{},
		items:   map[string][]PayrollRecordItem{},
	}
}

func groupKey(companyID, employeeID, periodID string) string {
	return companyID + "|" + employeeID + "|" + periodID
}

func (f *fakePayrollRepo) GetGroup(ctx context.Context, companyID, employeeID, periodID string) (*PayrollRecordGroup, error) {
	g, ok := f.groups[groupKey(companyID, employeeID, periodID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakePayrollRepo) CreateGroup(ctx context.Context, g *PayrollRecordGroup) error {
	cp := *g
	f.groups[groupKey(g.CompanyID, g.EmployeeID, g.PayrollPeriodID)] = &cp
	return nil
}

func (f *fakePayrollRepo) UpdateGroupCurrentRecord(ctx context.Context, groupID, recordID string) error {
	for _, g := range f.groups {
		if g.ID == groupID {
			g.CurrentRecordID = recordID
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakePayrollRepo) CreateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	for _, existing := range f.records {
		if existing.GroupID == rec.GroupID && existing.Version == rec.Version {
			return fmt.Errorf("duplicate key value violates unique constraint on (group_id, version)")
		}
	}
	cp := *rec
	f.records[rec.ID] = &cp
	f.items[rec.ID] = append([]PayrollRecordItem(nil), items...)
	return nil
}

func (f *fakePayrollRepo) UpdateRecord(ctx context.Context, rec *PayrollRecord, items []PayrollRecordItem) error {
	existing, ok := f.records[rec.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrNotFound
	}
	cp := *rec
	f.records[rec.ID] = &cp
	f.items[rec.ID] = append([]PayrollRecordItem(nil), items...)
	return nil
}

func (f *fakePayrollRepo) GetRecord(ctx context.Context, recordID string) (*PayrollRecord, error) {
	r, ok := f.records[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakePayrollRepo) GetRecordItems(ctx context.Context, recordID string) ([]PayrollRecordItem, error) {
	return f.items[recordID], nil
}

func (f *fakePayrollRepo) TransitionRecordStatus(ctx context.Context, recordID string, from, to RecordStatus, fields map[string]interface{}) (bool, error) {
	r, ok := f.records[recordID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	if v, ok := fields["confirmed_at"]; ok {
		t := v.(time.Time)
		r.ConfirmedAt = &t
	}
	if v, ok := fields["confirmed_by"]; ok {
		r.ConfirmedBy = v.(string)
	}
	if v, ok := fields["cancelled_at"]; ok {
		t := v.(time.Time)
		r.CancelledAt = &t
	}
	if v, ok := fields["cancelled_by"]; ok {
		r.CancelledBy = v.(string)
	}
	if v, ok := fields["cancel_reason"]; ok {
		r.CancelReason = v.(string)
	}
	return true, nil
}

func (f *fakePayrollRepo) CreateSnapshot(ctx context.Context, s *PayrollSnapshot) error {
	f.snapshots = append(f.snapshots, *s)
	return nil
}

func (f *fakePayrollRepo) AppendHistory(ctx context.Context, h *PayrollHistory) error {
	f.history = append(f.history, *h)
	return nil
}

func (f *fakePayrollRepo) ListConfirmedByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	return nil, nil
}

func (f *fakePayrollRepo) ListByPeriod(ctx context.Context, companyID, periodID string) ([]ConfirmedRecord, error) {
	return nil, nil
}

func (f *fakePayrollRepo) BeginTx(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (f *fakePayrollRepo) WithTx(tx pgx.Tx) Repository                 { return f }

func sampleResult() *CalculationResult {
	return &CalculationResult{
		Items: []PayrollRecordItem{
			{ItemType: ItemEarning, ItemCode: "base_salary", ItemName: "基本給", Amount: 300000, DisplayOrder: 1},
		},
		TotalEarnings:   300000,
		TotalDeductions: 0,
		NetPay:          300000,
		Details:         CalculationDetails{GrossSalary: 300000},
	}
}

func TestCreateFromCalculation_CreatesGroupAndDraft(t *testing.T) {
	sm := NewStateMachine(newFakePayrollRepo())
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())

	require.NoError(t, err)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, int64(300000), rec.NetPay)
}

func TestCreateFromCalculation_RecalculateUpdatesDraftInPlace(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	first, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)

	second := sampleResult()
	second.TotalEarnings = 310000
	second.NetPay = 310000
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", second)
	require.NoError(t, err)

	assert.Equal(t, first.ID, rec.ID, "recalculation must update the existing draft row, not insert a second one")
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, int64(310000), rec.NetPay)

	stored, err := repo.GetRecord(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(310000), stored.NetPay)
}

func TestCreateFromCalculation_RecalculateWithUnchangedTotalsIsNoop(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	first, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)

	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)

	assert.Equal(t, first.ID, rec.ID)
	assert.Equal(t, first.UpdatedAt, rec.UpdatedAt, "unchanged totals must return the existing draft without writing")
}

func TestCreateFromCalculation_RejectsWhenCurrentRecordConfirmed(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)
	_, err = sm.Confirm(context.Background(), rec.ID, "admin-1")
	require.NoError(t, err)

	_, err = sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindInvalidState))
}

func TestConfirm_FreezesSnapshotAndTransitionsStatus(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)

	confirmed, err := sm.Confirm(context.Background(), rec.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Equal(t, "admin-1", confirmed.ConfirmedBy)
	require.Len(t, repo.snapshots, 1)
	assert.Equal(t, rec.ID, repo.snapshots[0].RecordID)
}

func TestConfirm_RejectsNonDraftRecord(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)
	_, err = sm.Confirm(context.Background(), rec.ID, "admin-1")
	require.NoError(t, err)

	_, err = sm.Confirm(context.Background(), rec.ID, "admin-1")
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindInvalidState))
}

func TestCancel_ForksNewDraftAtNextVersion(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)
	confirmed, err := sm.Confirm(context.Background(), rec.ID, "admin-1")
	require.NoError(t, err)

	forked, err := sm.Cancel(context.Background(), confirmed.ID, "admin-1", "入力ミス")
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, forked.Status)
	assert.Equal(t, confirmed.Version+1, forked.Version)
	assert.NotEqual(t, confirmed.ID, forked.ID)

	cancelledRec, err := repo.GetRecord(context.Background(), confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelledRec.Status)

	forkedItems, err := repo.GetRecordItems(context.Background(), forked.ID)
	require.NoError(t, err)
	require.Len(t, forkedItems, 1)
	assert.Equal(t, "base_salary", forkedItems[0].ItemCode)
}

func TestCancel_RejectsDraftRecord(t *testing.T) {
	repo := newFakePayrollRepo()
	sm := NewStateMachine(repo)
	rec, err := sm.CreateFromCalculation(context.Background(), "co-1", "emp-1", "period-1", sampleResult())
	require.NoError(t, err)

	_, err = sm.Cancel(context.Background(), rec.ID, "admin-1", "reason")
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.KindInvalidState))
}
