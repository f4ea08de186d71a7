package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service resolves item_type/item_code pairs to GL account codes and
// manages the mapping table an admin configures per company.
type Service struct {
	repo Repository
}

// NewService constructs a Service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolved is a mapping that always has an account code and name, falling
// back to the generic 給与手当/預り金 labels when no company-specific
// Mapping exists for the (itemType, itemCode) pair.
type Resolved struct {
	AccountCode string
	AccountName string
	DebitCredit DebitCredit
}

// Resolve looks up the GL account for an item, falling back to the
// generic earning/deduction labels exactly as accounting_journal's
// else-branch does when no Mapping is configured.
func (s *Service) Resolve(ctx context.Context, companyID, itemType, itemCode string) (Resolved, error) {
	m, err := s.repo.Get(ctx, companyID, itemType, itemCode)
	if err != nil && err != ErrNotFound {
		return Resolved{}, err
	}
	if m != nil {
		return Resolved{AccountCode: m.AccountCode, AccountName: m.AccountName, DebitCredit: m.DebitCredit}, nil
	}
	if itemType == "earning" {
		return Resolved{AccountCode: FallbackDebitAccountCode, AccountName: FallbackDebitAccountName, DebitCredit: Debit}, nil
	}
	return Resolved{AccountCode: FallbackCreditAccountCode, AccountName: FallbackCreditAccountName, DebitCredit: Credit}, nil
}

// SetMapping creates or updates the account mapping for an item.
func (s *Service) SetMapping(ctx context.Context, companyID, itemType, itemCode, accountCode, accountName string, dc DebitCredit) (*Mapping, error) {
	existing, err := s.repo.Get(ctx, companyID, itemType, itemCode)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	now := time.Now()
	m := &Mapping{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		ItemType:    itemType,
		ItemCode:    itemCode,
		AccountCode: accountCode,
		AccountName: accountName,
		DebitCredit: dc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMappings returns every configured mapping for a company.
func (s *Service) ListMappings(ctx context.Context, companyID string) ([]Mapping, error) {
	return s.repo.List(ctx, companyID)
}

// DeleteMapping removes a company's override for an item, reverting it to
// the fallback label.
func (s *Service) DeleteMapping(ctx context.Context, companyID, id string) error {
	return s.repo.Delete(ctx, companyID, id)
}
