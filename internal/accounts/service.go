package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
)

// Service exposes account reads plus the aggregate recalculation operation.
type Service interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Recalculate(ctx context.Context, accountID uuid.UUID, apply bool) (*RecalculationReport, error)
}

// RecalculationReport compares stored aggregate caches against values
// re-derived from the full ledger history.
type RecalculationReport struct {
	AccountID       uuid.UUID       `json:"accountId"`
	Username        string          `json:"username"`
	StoredPersonal  decimal.Decimal `json:"storedPersonalPoints"`
	DerivedPersonal decimal.Decimal `json:"derivedPersonalPoints"`
	StoredGroup     decimal.Decimal `json:"storedGroupPoints"`
	DerivedGroup    decimal.Decimal `json:"derivedGroupPoints"`
	StoredBalance   int64           `json:"storedBalance"`
	DerivedBalance  int64           `json:"derivedBalance"`
	Drift           bool            `json:"drift"`
	Applied         bool            `json:"applied"`
}

type service struct {
	repo       Repository
	ledgerRepo ledger.Repository
}

// NewService wires the accounts service.
func NewService(repo Repository, ledgerRepo ledger.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, ledgerRepo: ledgerRepo}, nil
}

func (s *service) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}
	account, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	account, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Recalculate re-derives the aggregate caches from the append-only history.
// Personal points come from purchases, group points from earning entries net
// of purge reversals, balance from the sum of all currency movements.
func (s *service) Recalculate(ctx context.Context, accountID uuid.UUID, apply bool) (*RecalculationReport, error) {
	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	personal, err := s.ledgerRepo.SumPointsByTypes(ctx, accountID, []enums.LedgerEntryType{enums.LedgerEntryTypePurchase})
	if err != nil {
		return nil, err
	}

	groupTypes := append(ledger.EarningTypes(), enums.LedgerEntryTypeCommissionPurge)
	group, err := s.ledgerRepo.SumPointsByTypes(ctx, accountID, groupTypes)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledgerRepo.SumAmount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &RecalculationReport{
		AccountID:       account.ID,
		Username:        account.Username,
		StoredPersonal:  account.PersonalPoints,
		DerivedPersonal: personal,
		StoredGroup:     account.GroupPoints,
		DerivedGroup:    group,
		StoredBalance:   account.Balance,
		DerivedBalance:  balance,
	}
	report.Drift = !account.PersonalPoints.Equal(personal) ||
		!account.GroupPoints.Equal(group) ||
		account.Balance != balance

	if apply && report.Drift {
		if err := s.repo.SetAggregates(ctx, accountID, personal, group, balance); err != nil {
			return nil, err
		}
		report.Applied = true
	}
	return report, nil
}
