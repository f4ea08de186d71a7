// Package accounting implements the AccountingMapping lookup
// ExportRouter's accounting-journal serializer consults to translate a
// confirmed payroll record's items into debit/credit account codes.
package accounting

import "time"

// DebitCredit is which side of a journal line a mapping posts to.
type DebitCredit string

const (
	Debit  DebitCredit = "debit"
	Credit DebitCredit = "credit"
)

// Mapping ties one (item_type, item_code) pair to a GL account. Earning
// items normally map to a debit account, deduction items to a credit
// account, but DebitCredit is stored explicitly rather than derived from
// item type since a company's chart of accounts may differ.
type Mapping struct {
	ID          string
	CompanyID   string
	ItemType    string
	ItemCode    string
	AccountCode string
	AccountName string
	DebitCredit DebitCredit
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FallbackDebitAccountCode and FallbackDebitAccountName are used for an
// earning item with no configured Mapping, exactly as
// accounting_journal's else-branch.
const (
	FallbackDebitAccountCode = "給与手当"
	FallbackDebitAccountName = "給与手当"
)

// FallbackCreditAccountCode and FallbackCreditAccountName are used for a
// deduction item with no configured Mapping.
const (
	FallbackCreditAccountCode = "預り金"
	FallbackCreditAccountName = "預り金"
)
