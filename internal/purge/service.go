package purge

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
	dbpkg "github.com/novavida/novavida-backend/pkg/db"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/outbox"
	"github.com/novavida/novavida-backend/pkg/pagination"
	"github.com/novavida/novavida-backend/pkg/points"
)

// TxRunner abstracts the transaction boundary, mirroring the commission
// engine's shape so either can run against the shared client or a test DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RunRecorder receives finished purge runs for analytics.
type RunRecorder interface {
	RecordPurgeRun(ctx context.Context, run *models.PurgeRun) error
}

// Input selects the month to purge and how.
type Input struct {
	Year    int
	Month   int
	Mode    enums.PurgeMode
	ActorID uuid.UUID
}

// Service reverses a month's commission earnings for inactive accounts.
//
// Execute is re-runnable: each reversed account leaves a (account, year,
// month) marker, and a later run that hits the marker reports the account as
// already purged without touching it again. Reversal entries themselves are
// typed commission_purge and never counted as earnings, so the marker and the
// classification guard the same invariant from both sides.
type Service interface {
	Run(ctx context.Context, input Input) (*models.PurgeRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error)
	ListRuns(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error)
}

type service struct {
	runner   TxRunner
	accounts accounts.Repository
	ledger   ledger.Repository
	repo     Repository
	outbox   *outbox.Service
	recorder RunRecorder
	logg     *logger.Logger
	now      func() time.Time
}

// Config wires the purge service. Outbox, Recorder and Logger are optional.
type Config struct {
	Runner   TxRunner
	Accounts accounts.Repository
	Ledger   ledger.Repository
	Repo     Repository
	Outbox   *outbox.Service
	Recorder RunRecorder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(cfg Config) (Service, error) {
	if cfg.Runner == nil || cfg.Accounts == nil || cfg.Ledger == nil || cfg.Repo == nil {
		return nil, fmt.Errorf("runner, accounts, ledger and purge repositories required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		runner:   cfg.Runner,
		accounts: cfg.Accounts,
		ledger:   cfg.Ledger,
		repo:     cfg.Repo,
		outbox:   cfg.Outbox,
		recorder: cfg.Recorder,
		logg:     cfg.Logger,
		now:      now,
	}, nil
}

func (s *service) Run(ctx context.Context, input Input) (*models.PurgeRun, error) {
	if !input.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mode must be preview or execute")
	}
	if input.Month < 1 || input.Month > 12 || input.Year < 2000 || input.Year > 2200 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year or month out of range")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}

	fromMs, toMs := ledger.MonthWindow(input.Year, input.Month)
	threshold := decimal.NewFromInt(points.MonthlyActivationThreshold)

	earners, err := s.accounts.ListCommissionEarners(ctx)
	if err != nil {
		return nil, err
	}

	run := &models.PurgeRun{
		ID:                uuid.New(),
		Year:              input.Year,
		Month:             input.Month,
		Mode:              input.Mode,
		ActorID:           input.ActorID,
		AccountsScanned:   len(earners),
		TotalPointsPurged: decimal.Zero,
	}

	for i := range earners {
		account := &earners[i]

		monthlyPts, _, err := s.ledger.SumInWindow(ctx, account.ID,
			[]enums.LedgerEntryType{enums.LedgerEntryTypePurchase}, fromMs, toMs)
		if err != nil {
			return nil, err
		}
		if monthlyPts.GreaterThanOrEqual(threshold) {
			run.ActiveCount++
			continue
		}
		run.InactiveCount++

		earnedPts, earnedAmt, err := s.ledger.SumInWindow(ctx, account.ID, ledger.EarningTypes(), fromMs, toMs)
		if err != nil {
			return nil, err
		}
		if earnedPts.IsZero() && earnedAmt == 0 {
			continue
		}

		detail := models.PurgeRunDetail{
			ID:            uuid.New(),
			AccountID:     account.ID,
			Username:      account.Username,
			MonthlyPoints: monthlyPts,
			AmountPurged:  earnedAmt,
			PointsPurged:  earnedPts,
		}

		if input.Mode == enums.PurgeModeExecute {
			applied, err := s.reverseAccount(ctx, run, account, monthlyPts, earnedPts, earnedAmt)
			if err != nil {
				return nil, err
			}
			if applied == nil {
				detail.AlreadyPurged = true
				detail.AmountPurged = 0
				detail.PointsPurged = decimal.Zero
			} else {
				detail = *applied
			}
		}

		if !detail.AlreadyPurged {
			run.PurgedCount++
			run.TotalAmountPurged += detail.AmountPurged
			run.TotalPointsPurged = run.TotalPointsPurged.Add(detail.PointsPurged)
		}
		run.Details = append(run.Details, detail)
	}

	if err := s.persistRun(ctx, run, input); err != nil {
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordPurgeRun(ctx, run); err != nil && s.logg != nil {
			s.logg.Error(ctx, "purge.run_facts_failed", err)
		}
	}
	return run, nil
}

// reverseAccount applies one account's reversal in its own transaction. A nil
// detail with nil error means the month was already purged for the account.
func (s *service) reverseAccount(ctx context.Context, run *models.PurgeRun, account *models.Account, monthlyPts, earnedPts decimal.Decimal, earnedAmt int64) (*models.PurgeRunDetail, error) {
	var detail *models.PurgeRunDetail
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		marker := &models.PurgeMarker{
			ID:         uuid.New(),
			AccountID:  account.ID,
			Year:       run.Year,
			Month:      run.Month,
			PurgeRunID: run.ID,
		}
		if err := s.repo.WithTx(tx).InsertMarker(ctx, marker); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_purge_markers_account_month") {
				return nil
			}
			return err
		}

		accountsRepo := s.accounts.WithTx(tx)
		current, err := accountsRepo.GetByID(ctx, account.ID)
		if err != nil {
			return err
		}

		// Floor at zero: a reversal never drives an account negative.
		appliedAmt := earnedAmt
		if appliedAmt > current.Balance {
			appliedAmt = current.Balance
		}
		appliedPts := earnedPts
		if appliedPts.GreaterThan(current.GroupPoints) {
			appliedPts = current.GroupPoints
		}

		if err := accountsRepo.IncrementBalance(ctx, account.ID, -appliedAmt); err != nil {
			return err
		}
		if err := accountsRepo.IncrementGroupPoints(ctx, account.ID, appliedPts.Neg()); err != nil {
			return err
		}

		entry := ledger.NewEntry(ledger.RecordEntryInput{
			AccountID:  account.ID,
			Type:       enums.LedgerEntryTypeCommissionPurge,
			Amount:     -appliedAmt,
			Points:     appliedPts.Neg(),
			OccurredAt: s.now(),
			Action: fmt.Sprintf("Depuracion de comisiones %04d-%02d: %s de %d puntos requeridos",
				run.Year, run.Month, monthlyPts.String(), points.MonthlyActivationThreshold),
			ActorID: &run.ActorID,
		})
		if err := s.ledger.WithTx(tx).Create(ctx, &entry); err != nil {
			return err
		}

		detail = &models.PurgeRunDetail{
			ID:            uuid.New(),
			AccountID:     account.ID,
			Username:      account.Username,
			MonthlyPoints: monthlyPts,
			AmountPurged:  appliedAmt,
			PointsPurged:  appliedPts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// persistRun stores the report and, for executes, emits the audit event.
func (s *service) persistRun(ctx context.Context, run *models.PurgeRun, input Input) error {
	return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range run.Details {
			run.Details[i].PurgeRunID = run.ID
		}
		if err := s.repo.WithTx(tx).CreateRun(ctx, run); err != nil {
			return err
		}
		if s.outbox == nil || input.Mode != enums.PurgeModeExecute {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurgeExecuted,
			AggregateType: enums.AggregatePurgeRun,
			AggregateID:   run.ID,
			Actor:         &outbox.ActorRef{AccountID: input.ActorID, Role: string(enums.ActorRoleAdmin)},
			Data: map[string]any{
				"runId":             run.ID,
				"year":              run.Year,
				"month":             run.Month,
				"purgedCount":       run.PurgedCount,
				"totalAmountPurged": run.TotalAmountPurged,
				"totalPointsPurged": run.TotalPointsPurged,
			},
			Version:    1,
			OccurredAt: s.now(),
		})
	})
}

func (s *service) GetRun(ctx context.Context, id uuid.UUID) (*models.PurgeRun, error) {
	run, err := s.repo.GetRun(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purge run not found")
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *service) ListRuns(ctx context.Context, params pagination.Params) ([]models.PurgeRun, string, error) {
	return s.repo.ListRuns(ctx, params)
}
