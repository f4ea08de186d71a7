// Package export implements ExportRouter: the bank-transfer, payroll-ledger,
// accounting-journal and monthly-summary reports spec.md §4.8 describes,
// read from confirmed PayrollRecords.
package export

// PayrollLedgerEntry is one employee's row in the 賃金台帳.
type PayrollLedgerEntry struct {
	EmployeeID      string
	EmployeeCode    string
	EmployeeName    string
	Department      string
	TotalEarnings   int64
	TotalDeductions int64
	NetPay          int64
}

// PayrollLedgerResult is the full ledger for one payroll period, confirmed
// records only, in employee-code order, with grand totals for the trailing
// summary row.
type PayrollLedgerResult struct {
	PayrollPeriodID      string
	Entries              []PayrollLedgerEntry
	GrandTotalEarnings   int64
	GrandTotalDeductions int64
	GrandTotalNetPay     int64
}

// AccountingJournalLine is one aggregated debit/credit row, grouped by
// (item_type, item_code, item_name) and summed across every confirmed
// record in the period.
type AccountingJournalLine struct {
	DebitAccountCode  string
	DebitAccountName  string
	CreditAccountCode string
	CreditAccountName string
	Amount            int64
	Description       string
}

// MonthlySummary aggregates every record in a payroll period regardless of
// status, unlike the ledger and journal which only see confirmed records.
type MonthlySummary struct {
	PayrollPeriodID string
	TotalEmployees  int
	TotalEarnings   int64
	TotalDeductions int64
	TotalNetPay     int64
	ByStatus        map[string]int
}
