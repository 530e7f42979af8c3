package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/activation"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/outbox"
)

const defaultWarningWindowDays = 5

// ActivationWarningJobParams configure the end-of-month activation warning job.
type ActivationWarningJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Activation activation.Service
	Outbox     *outbox.Service
	WindowDays int
}

// NewActivationWarningJob builds the job that emits activation_warning events
// for accounts still under the monthly threshold when the month is about to
// close.
func NewActivationWarningJob(params ActivationWarningJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Activation == nil {
		return nil, fmt.Errorf("activation service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	window := params.WindowDays
	if window <= 0 {
		window = defaultWarningWindowDays
	}
	return &activationWarningJob{
		logg:       params.Logger,
		db:         params.DB,
		activation: params.Activation,
		outbox:     params.Outbox,
		windowDays: window,
		now:        time.Now,
	}, nil
}

type activationWarningJob struct {
	logg       *logger.Logger
	db         txRunner
	activation activation.Service
	outbox     *outbox.Service
	windowDays int
	now        func() time.Time
}

func (j *activationWarningJob) Name() string { return "activation-warning" }

func (j *activationWarningJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	monthEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if monthEnd.Sub(now) > time.Duration(j.windowDays)*24*time.Hour {
		j.logg.Info(ctx, "activation warnings skipped, month end not close enough")
		return nil
	}

	warnings, err := j.activation.PendingWarnings(ctx, now.Year(), int(now.Month()))
	if err != nil {
		return fmt.Errorf("activation warnings: %w", err)
	}

	emitted := 0
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, warning := range warnings {
			err := j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventActivationWarning,
				AggregateType: enums.AggregateAccount,
				AggregateID:   warning.AccountID,
				Data: map[string]any{
					"accountId": warning.AccountID,
					"username":  warning.Username,
					"year":      warning.Year,
					"month":     warning.Month,
					"points":    warning.Points,
					"remaining": warning.Remaining,
				},
				Version:    1,
				OccurredAt: j.now(),
			})
			if err != nil {
				return err
			}
			emitted++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("emit activation warnings: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"year":     now.Year(),
		"month":    int(now.Month()),
		"warnings": emitted,
	})
	j.logg.Info(logCtx, "activation warnings emitted")
	return nil
}
