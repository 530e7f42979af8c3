package coins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/outbox"
	"github.com/novavida/novavida-backend/pkg/points"
	"github.com/novavida/novavida-backend/pkg/types"
)

// TxRunner abstracts the transaction boundary.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Status is the coin-cap view for one account and the current month.
type Status struct {
	Month      string `json:"month"`
	Earned     int64  `json:"earned"`
	Cap        int64  `json:"cap"`
	Remaining  int64  `json:"remaining"`
	Multiplier int64  `json:"multiplier"`
}

// EarnInput is a server-validated coin earning request.
type EarnInput struct {
	Coins    int64
	GameType string
	Level    int
}

// EarnResult reports what the cap allowed of an earning request.
type EarnResult struct {
	Requested  int64  `json:"requested"`
	Approved   int64  `json:"approved"`
	Multiplier int64  `json:"multiplier"`
	Earned     int64  `json:"earned"`
	Remaining  int64  `json:"remaining"`
	Capped     bool   `json:"capped"`
	Month      string `json:"month"`
}

// Service is the authoritative enforcement point for the monthly coin cap.
// Clients may precompute the multiplier for display, but only Earn's
// transactional check records accrual.
type Service interface {
	Status(ctx context.Context, accountID uuid.UUID) (*Status, error)
	Earn(ctx context.Context, accountID uuid.UUID, input EarnInput) (*EarnResult, error)
}

type service struct {
	runner   TxRunner
	accounts accounts.Repository
	ledger   ledger.Repository
	outbox   *outbox.Service
	now      func() time.Time
}

// Config wires the coin service. Outbox is optional.
type Config struct {
	Runner   TxRunner
	Accounts accounts.Repository
	Ledger   ledger.Repository
	Outbox   *outbox.Service
	Now      func() time.Time
}

func NewService(cfg Config) (Service, error) {
	if cfg.Runner == nil || cfg.Accounts == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("runner, accounts and ledger repositories required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		runner:   cfg.Runner,
		accounts: cfg.Accounts,
		ledger:   cfg.Ledger,
		outbox:   cfg.Outbox,
		now:      now,
	}, nil
}

func (s *service) Status(ctx context.Context, accountID uuid.UUID) (*Status, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, err
	}

	month := MonthKey(s.now())
	earned := account.MonthlyCoins.EarnedIn(month)
	return &Status{
		Month:      month,
		Earned:     earned,
		Cap:        points.MonthlyCoinCap,
		Remaining:  points.MonthlyCoinCap - earned,
		Multiplier: MultiplierPercent(earned),
	}, nil
}

var errTrackerConflict = errors.New("coin tracker conflict")

// Earn approves what the cap allows of the request and records it. The
// tracker swap is a compare-and-swap on the previously read value, so two
// concurrent earns for the same account serialize through retries instead of
// both counting against the same starting accrual.
func (s *service) Earn(ctx context.Context, accountID uuid.UUID, input EarnInput) (*EarnResult, error) {
	if input.Coins <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coins must be positive")
	}

	var result *EarnResult
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.earnOnce(ctx, accountID, input)
		if err != nil {
			if errors.Is(err, errTrackerConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) earnOnce(ctx context.Context, accountID uuid.UUID, input EarnInput) (*EarnResult, error) {
	var result *EarnResult
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		accountsRepo := s.accounts.WithTx(tx)

		account, err := accountsRepo.GetByID(ctx, accountID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		if err != nil {
			return err
		}

		now := s.now()
		month := MonthKey(now)
		earned := account.MonthlyCoins.EarnedIn(month)
		multiplier := MultiplierPercent(earned)
		approved := Approve(input.Coins, earned)

		result = &EarnResult{
			Requested:  input.Coins,
			Approved:   approved,
			Multiplier: multiplier,
			Earned:     earned + approved,
			Remaining:  points.MonthlyCoinCap - earned - approved,
			Capped:     approved < input.Coins,
			Month:      month,
		}
		if approved == 0 {
			return nil
		}

		next := types.MonthlyCoinsTracker{Month: month, TotalCoinsEarned: earned + approved}
		won, err := accountsRepo.SwapMonthlyCoins(ctx, accountID, account.MonthlyCoins, next)
		if err != nil {
			return err
		}
		if !won {
			return errTrackerConflict
		}

		if err := accountsRepo.IncrementBalance(ctx, accountID, approved); err != nil {
			return err
		}

		entry := ledger.NewEntry(ledger.RecordEntryInput{
			AccountID:  accountID,
			Type:       enums.LedgerEntryTypeEarning,
			Amount:     approved,
			OccurredAt: now,
			Action:     fmt.Sprintf("Monedas ganadas: %s nivel %d", input.GameType, input.Level),
		})
		if err := s.ledger.WithTx(tx).Create(ctx, &entry); err != nil {
			return err
		}

		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCoinsEarned,
			AggregateType: enums.AggregateAccount,
			AggregateID:   accountID,
			Actor:         &outbox.ActorRef{AccountID: accountID, Role: string(enums.ActorRoleAccount)},
			Data: map[string]any{
				"accountId": accountID,
				"requested": input.Coins,
				"approved":  approved,
				"earned":    earned + approved,
				"gameType":  input.GameType,
				"level":     input.Level,
			},
			Version:    1,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
