package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/ledger"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/points"
)

// Status is the activation verdict for one account and month. Activation is
// derived from the ledger on every call, never cached on the account row.
type Status struct {
	AccountID uuid.UUID       `json:"accountId"`
	Username  string          `json:"username"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Points    decimal.Decimal `json:"points"`
	Threshold decimal.Decimal `json:"threshold"`
	Active    bool            `json:"active"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Warning is one account that has not reached the threshold yet this month.
type Warning struct {
	AccountID uuid.UUID       `json:"accountId"`
	Username  string          `json:"username"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Points    decimal.Decimal `json:"points"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Service audits monthly activation.
type Service interface {
	Status(ctx context.Context, username string, year, month int) (*Status, error)
	StatusByID(ctx context.Context, accountID uuid.UUID, year, month int) (*Status, error)
	PendingWarnings(ctx context.Context, year, month int) ([]Warning, error)
}

type service struct {
	accounts accounts.Repository
	ledger   ledger.Service
	repo     Repository
	now      func() time.Time
}

func NewService(accountsRepo accounts.Repository, ledgerSvc ledger.Service, repo Repository) (Service, error) {
	if accountsRepo == nil || ledgerSvc == nil || repo == nil {
		return nil, fmt.Errorf("accounts repository, ledger service and activation repository required")
	}
	return &service{
		accounts: accountsRepo,
		ledger:   ledgerSvc,
		repo:     repo,
		now:      time.Now,
	}, nil
}

// Status resolves the account by username and audits the given month. A zero
// year and month mean the current UTC month.
func (s *service) Status(ctx context.Context, username string, year, month int) (*Status, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, err
	}
	return s.audit(ctx, account.ID, account.Username, year, month)
}

func (s *service) StatusByID(ctx context.Context, accountID uuid.UUID, year, month int) (*Status, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, err
	}
	return s.audit(ctx, account.ID, account.Username, year, month)
}

func (s *service) audit(ctx context.Context, accountID uuid.UUID, username string, year, month int) (*Status, error) {
	year, month = s.defaultMonth(year, month)

	pts, err := s.ledger.PurchasePointsInMonth(ctx, accountID, year, month)
	if err != nil {
		return nil, err
	}

	threshold := decimal.NewFromInt(points.MonthlyActivationThreshold)
	remaining := threshold.Sub(pts)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &Status{
		AccountID: accountID,
		Username:  username,
		Year:      year,
		Month:     month,
		Points:    pts,
		Threshold: threshold,
		Active:    pts.GreaterThanOrEqual(threshold),
		Remaining: remaining,
	}, nil
}

// PendingWarnings lists every commission-earning account still under the
// threshold for the month. Used by the end-of-month warning job.
func (s *service) PendingWarnings(ctx context.Context, year, month int) ([]Warning, error) {
	year, month = s.defaultMonth(year, month)
	if month < 1 || month > 12 || year < 2000 || year > 2200 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year or month out of range")
	}

	fromMs, toMs := ledger.MonthWindow(year, month)
	threshold := decimal.NewFromInt(points.MonthlyActivationThreshold)

	rows, err := s.repo.BelowThreshold(ctx, fromMs, toMs, threshold)
	if err != nil {
		return nil, err
	}

	warnings := make([]Warning, 0, len(rows))
	for _, row := range rows {
		warnings = append(warnings, Warning{
			AccountID: row.AccountID,
			Username:  row.Username,
			Year:      year,
			Month:     month,
			Points:    row.Points,
			Remaining: threshold.Sub(row.Points),
		})
	}
	return warnings, nil
}

func (s *service) defaultMonth(year, month int) (int, int) {
	if year == 0 && month == 0 {
		now := s.now().UTC()
		return now.Year(), int(now.Month())
	}
	return year, month
}
