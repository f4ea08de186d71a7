package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/time/rate"

	"github.com/kyuyo-systems/payroll-engine/internal/accounting"
	"github.com/kyuyo-systems/payroll-engine/internal/apierror"
	"github.com/kyuyo-systems/payroll-engine/internal/attendance"
	"github.com/kyuyo-systems/payroll-engine/internal/employee"
	"github.com/kyuyo-systems/payroll-engine/internal/payroll"
	"github.com/kyuyo-systems/payroll-engine/internal/tenant"
	"github.com/kyuyo-systems/payroll-engine/internal/yearend"
)

// ExportRouter produces the reporting outputs spec.md §4.8 names: the bank
// transfer file, the payroll ledger, the accounting journal and the
// monthly summary, plus a rate-guarded pass-through to
// yearend.Workflow.GenerateWithholdingSlip.
type ExportRouter struct {
	payroll    payroll.Repository
	accounting *accounting.Service
	employees  employee.Repository
	companies  *tenant.Service
	periods    attendance.Repository
	yearEnd    *yearend.Workflow

	slipMu       sync.Mutex
	slipLimiters map[string]*rate.Limiter
}

// NewExportRouter constructs an ExportRouter over its reporting dependencies.
func NewExportRouter(
	payrollRepo payroll.Repository,
	accountingSvc *accounting.Service,
	employees employee.Repository,
	companies *tenant.Service,
	periods attendance.Repository,
	yearEnd *yearend.Workflow,
) *ExportRouter {
	return &ExportRouter{
		payroll:      payrollRepo,
		accounting:   accountingSvc,
		employees:    employees,
		companies:    companies,
		periods:      periods,
		yearEnd:      yearEnd,
		slipLimiters: make(map[string]*rate.Limiter),
	}
}

// PayrollLedger builds the 賃金台帳 for one payroll period from confirmed
// records only, ordered by employee code.
func (x *ExportRouter) PayrollLedger(ctx context.Context, companyID, periodID string) (*PayrollLedgerResult, error) {
	records, err := x.payroll.ListConfirmedByPeriod(ctx, companyID, periodID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	res := &PayrollLedgerResult{PayrollPeriodID: periodID}
	for _, rec := range records {
		emp, err := x.employees.GetEmployee(ctx, companyID, rec.EmployeeID)
		if err != nil {
			return nil, apierror.Internal(err)
		}
		res.Entries = append(res.Entries, PayrollLedgerEntry{
			EmployeeID:      emp.ID,
			EmployeeCode:    emp.EmployeeCode,
			EmployeeName:    emp.LastName + " " + emp.FirstName,
			Department:      emp.Department,
			TotalEarnings:   rec.TotalEarnings,
			TotalDeductions: rec.TotalDeductions,
			NetPay:          rec.NetPay,
		})
		res.GrandTotalEarnings += rec.TotalEarnings
		res.GrandTotalDeductions += rec.TotalDeductions
		res.GrandTotalNetPay += rec.NetPay
	}
	return res, nil
}

// PayrollLedgerCSV renders PayrollLedger as a UTF-8 CSV with a leading BOM,
// matching payroll_ledger's utf-8-sig encoding so Excel opens it without
// mangling the Japanese headers.
func (x *ExportRouter) PayrollLedgerCSV(ctx context.Context, companyID, periodID string) ([]byte, error) {
	res, err := x.PayrollLedger(ctx, companyID, periodID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"社員コード", "氏名", "部署", "支給額合計", "控除額合計", "差引支給額"})
	for _, e := range res.Entries {
		_ = w.Write([]string{
			e.EmployeeCode, e.EmployeeName, e.Department,
			fmt.Sprintf("%d", e.TotalEarnings), fmt.Sprintf("%d", e.TotalDeductions), fmt.Sprintf("%d", e.NetPay),
		})
	}
	_ = w.Write([]string{"合計", "", "", fmt.Sprintf("%d", res.GrandTotalEarnings), fmt.Sprintf("%d", res.GrandTotalDeductions), fmt.Sprintf("%d", res.GrandTotalNetPay)})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apierror.Internal(err)
	}
	return buf.Bytes(), nil
}

// BankTransfer renders the Zengin fixed-width 総合振込 file for every
// confirmed record in a payroll period, shift_jis encoded. Each record is
// padded or cut to 120 characters before encoding; field widths are counted
// in characters, not Shift-JIS bytes, so a record holding full-width
// characters encodes to more than 120 bytes. Returns a NotFound error if
// there is nothing confirmed yet to pay.
func (x *ExportRouter) BankTransfer(ctx context.Context, companyID, periodID string) ([]byte, error) {
	records, err := x.payroll.ListConfirmedByPeriod(ctx, companyID, periodID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	if len(records) == 0 {
		return nil, apierror.NotFoundf("no confirmed payroll records for period %s", periodID)
	}

	period, err := x.periods.GetPayrollPeriodByID(ctx, companyID, periodID)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	company, err := x.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	var lines []string

	header := "1"
	header += "21"
	header += "0"
	header += spaces(10)
	header += ljust(company.Name, 40)
	header += period.PaymentDate.Format("0102")
	header += spaces(15)
	header += spaces(15)
	header += spaces(4)
	header += spaces(7)
	header += spaces(17)
	lines = append(lines, ljust(truncate(header, 120), 120))

	var totalAmount int64
	for _, rec := range records {
		emp, err := x.employees.GetEmployee(ctx, companyID, rec.EmployeeID)
		if err != nil {
			return nil, apierror.Internal(err)
		}

		accountTypeCode := "2"
		if emp.AccountType == "savings" {
			accountTypeCode = "1"
		}
		holder := emp.AccountHolder
		if holder == "" {
			holder = emp.LastName + emp.FirstName
		}

		data := "2"
		data += spaces(4)
		data += ljust(emp.BankName, 15)
		data += spaces(3)
		data += ljust(emp.BranchName, 15)
		data += spaces(4)
		data += accountTypeCode
		data += ljust(emp.AccountNumber, 7)
		data += ljust(holder, 30)
		data += rjustZero(fmt.Sprintf("%d", rec.NetPay), 10)
		data += "0"
		data += spaces(20)
		lines = append(lines, ljust(truncate(data, 120), 120))

		totalAmount += rec.NetPay
	}

	trailer := "8"
	trailer += rjustZero(fmt.Sprintf("%d", len(records)), 6)
	trailer += rjustZero(fmt.Sprintf("%d", totalAmount), 12)
	trailer += spaces(101)
	lines = append(lines, ljust(truncate(trailer, 120), 120))

	lines = append(lines, "9"+spaces(119))

	content := ""
	for i, l := range lines {
		if i > 0 {
			content += "\r\n"
		}
		content += l
	}
	content += "\r\n"

	encoded, err := japanese.ShiftJIS.NewEncoder().String(content)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return []byte(encoded), nil
}

// AccountingJournal renders the 会計仕訳 CSV, aggregating every confirmed
// record's items by (item_type, item_code, item_name) and resolving each
// group to a GL account via accounting.Service.Resolve.
func (x *ExportRouter) AccountingJournal(ctx context.Context, companyID, periodID string) ([]byte, error) {
	records, err := x.payroll.ListConfirmedByPeriod(ctx, companyID, periodID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	type agg struct {
		itemType string
		itemCode string
		itemName string
		amount   int64
	}
	totals := map[string]*agg{}
	var order []string
	for _, rec := range records {
		for _, it := range rec.Items {
			key := string(it.ItemType) + "|" + it.ItemCode + "|" + it.ItemName
			a, ok := totals[key]
			if !ok {
				a = &agg{itemType: string(it.ItemType), itemCode: it.ItemCode, itemName: it.ItemName}
				totals[key] = a
				order = append(order, key)
			}
			a.amount += it.Amount
		}
	}
	sort.Strings(order)

	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"借方科目コード", "借方科目名", "貸方科目コード", "貸方科目名", "金額", "摘要"})

	for _, key := range order {
		a := totals[key]
		resolved, err := x.accounting.Resolve(ctx, companyID, a.itemType, a.itemCode)
		if err != nil {
			return nil, apierror.Internal(err)
		}

		debitCode, debitName, creditCode, creditName := "", "", "", ""
		if resolved.DebitCredit == accounting.Debit {
			debitCode, debitName = resolved.AccountCode, resolved.AccountName
		} else {
			creditCode, creditName = resolved.AccountCode, resolved.AccountName
		}
		_ = w.Write([]string{debitCode, debitName, creditCode, creditName, fmt.Sprintf("%d", a.amount), a.itemName})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apierror.Internal(err)
	}
	return buf.Bytes(), nil
}

// MonthlySummary aggregates every record in a payroll period regardless of
// status, matching monthly_summary's across-all-statuses tally.
func (x *ExportRouter) MonthlySummary(ctx context.Context, companyID, periodID string) (*MonthlySummary, error) {
	records, err := x.payroll.ListByPeriod(ctx, companyID, periodID)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	summary := &MonthlySummary{PayrollPeriodID: periodID, ByStatus: map[string]int{}}
	employees := map[string]struct{}{}
	for _, rec := range records {
		employees[rec.EmployeeID] = struct{}{}
		summary.TotalEarnings += rec.TotalEarnings
		summary.TotalDeductions += rec.TotalDeductions
		summary.TotalNetPay += rec.NetPay
		summary.ByStatus[string(rec.Status)]++
	}
	summary.TotalEmployees = len(employees)
	return summary, nil
}

// GenerateWithholdingSlip wraps yearend.Workflow.GenerateWithholdingSlip
// with a per-adjustment token-bucket guard: a burst of concurrent retries
// against the same confirmed adjustment is throttled to one attempt before
// it ever reaches the repository's at-most-once Conflict check, so the
// usual client pattern of retrying a slow request on timeout can't pile up
// duplicate generation attempts under load.
func (x *ExportRouter) GenerateWithholdingSlip(ctx context.Context, adjustmentID string) (*yearend.WithholdingSlip, error) {
	limiter := x.limiterFor(adjustmentID)
	if !limiter.Allow() {
		return nil, apierror.Conflictf("withholding slip generation for adjustment %s is already in flight", adjustmentID)
	}
	return x.yearEnd.GenerateWithholdingSlip(ctx, adjustmentID)
}

func (x *ExportRouter) limiterFor(adjustmentID string) *rate.Limiter {
	x.slipMu.Lock()
	defer x.slipMu.Unlock()
	l, ok := x.slipLimiters[adjustmentID]
	if !ok {
		l = rate.NewLimiter(rate.Every(10*time.Second), 1)
		x.slipLimiters[adjustmentID] = l
	}
	return l
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func ljust(s string, n int) string {
	if len([]rune(s)) >= n {
		return string([]rune(s)[:n])
	}
	return s + spaces(n-len([]rune(s)))
}

func rjustZero(s string, n int) string {
	if len(s) >= n {
		return s[len(s)-n:]
	}
	b := make([]byte, n-len(s))
	for i := range b {
		b[i] = '0'
	}
	return string(b) + s
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
