package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

// Service defines the read side of the ledger plus entry recording for
// callers that do not manage their own transaction.
type Service interface {
	Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error)
	History(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error)
	PurchasePointsInMonth(ctx context.Context, accountID uuid.UUID, year, month int) (decimal.Decimal, error)
	EarnedInMonth(ctx context.Context, accountID uuid.UUID, year, month int) (decimal.Decimal, int64, error)
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	AccountID  uuid.UUID
	Type       enums.LedgerEntryType
	Amount     int64
	Points     decimal.Decimal
	OrderID    *uuid.UUID
	OccurredAt time.Time
	Action     string
	ActorID    *uuid.UUID
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// NewEntry builds a ledger row from the input without persisting it, for
// callers that append inside their own transaction.
func NewEntry(input RecordEntryInput) models.LedgerEntry {
	occurred := input.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: input.AccountID,
		Type:      input.Type,
		Amount:    input.Amount,
		Points:    input.Points,
		OrderID:   input.OrderID,
		OriginMs:  occurred.UnixMilli(),
		Action:    input.Action,
		ActorID:   input.ActorID,
	}
}

// EarningTypes lists the entry types the monthly purge reverses.
func EarningTypes() []enums.LedgerEntryType {
	return []enums.LedgerEntryType{
		enums.LedgerEntryTypeEarning,
		enums.LedgerEntryTypeGroupPoints,
		enums.LedgerEntryTypeQuickStartBonus,
		enums.LedgerEntryTypeQuickStartUpperLevel,
		enums.LedgerEntryTypeRestaurantCommission,
		enums.LedgerEntryTypeClientPriceDiff,
	}
}

// MonthWindow returns the UTC [fromMs, toMs) bounds of a calendar month.
func MonthWindow(year, month int) (int64, int64) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	return from.UnixMilli(), to.UnixMilli()
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.LedgerEntry, error) {
	if input.AccountID == uuid.Nil {
		return nil, fmt.Errorf("account id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger entry type %q", input.Type)
	}

	entry := NewEntry(input)
	if err := s.repo.Create(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	if accountID == uuid.Nil {
		return nil, "", fmt.Errorf("account id is required")
	}
	entries, next, err := s.repo.ListByAccount(ctx, accountID, params)
	if err != nil {
		return nil, "", err
	}
	for i := range entries {
		entries[i] = Normalize(entries[i])
	}
	return entries, next, nil
}

// PurchasePointsInMonth totals the account's own purchases inside the month,
// the quantity the activation rule compares against its threshold.
func (s *service) PurchasePointsInMonth(ctx context.Context, accountID uuid.UUID, year, month int) (decimal.Decimal, error) {
	if accountID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("account id is required")
	}
	if err := validateMonth(year, month); err != nil {
		return decimal.Zero, err
	}
	fromMs, toMs := MonthWindow(year, month)
	points, _, err := s.repo.SumInWindow(ctx, accountID, []enums.LedgerEntryType{enums.LedgerEntryTypePurchase}, fromMs, toMs)
	return points, err
}

// EarnedInMonth totals the commission points and currency the account earned
// inside the month. Purge reversal entries never count.
func (s *service) EarnedInMonth(ctx context.Context, accountID uuid.UUID, year, month int) (decimal.Decimal, int64, error) {
	if accountID == uuid.Nil {
		return decimal.Zero, 0, fmt.Errorf("account id is required")
	}
	if err := validateMonth(year, month); err != nil {
		return decimal.Zero, 0, err
	}
	fromMs, toMs := MonthWindow(year, month)
	return s.repo.SumInWindow(ctx, accountID, EarningTypes(), fromMs, toMs)
}

func validateMonth(year, month int) error {
	if year < 2000 || year > 2200 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("year %d out of range", year))
	}
	if month < 1 || month > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("month %d out of range", month))
	}
	return nil
}
