package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/novavida/novavida-backend/pkg/bigquery"
	"github.com/novavida/novavida-backend/pkg/db/models"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the reporting writer behavior.
type Config struct {
	PayoutsTable string
	PurgesTable  string
	RetryPolicy  RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams payout and purge facts into BigQuery with bounded retries.
// It satisfies the recorder interfaces of the commission engine and the purge
// service; both treat insert failures as observability loss, not data loss.
type Writer struct {
	client       tableInserter
	payoutsTable string
	purgesTable  string
	retry        RetryPolicy
	now          func() time.Time
}

// New creates a Writer backed by the shared BigQuery client.
func New(client *pkgbigquery.Client, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	payouts := strings.TrimSpace(cfg.PayoutsTable)
	if payouts == "" {
		return nil, errors.New("payouts table is required")
	}
	purges := strings.TrimSpace(cfg.PurgesTable)
	if purges == "" {
		return nil, errors.New("purges table is required")
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &Writer{
		client:       client,
		payoutsTable: payouts,
		purgesTable:  purges,
		retry:        retry,
		now:          time.Now,
	}, nil
}

// RecordPayouts inserts one fact row per credited payout level.
func (w *Writer) RecordPayouts(ctx context.Context, payouts []models.CommissionPayout) error {
	if len(payouts) == 0 {
		return nil
	}
	rows := make([]any, 0, len(payouts))
	for i := range payouts {
		payout := &payouts[i]
		occurred := payout.CreatedAt
		if occurred.IsZero() {
			occurred = w.now()
		}
		rows = append(rows, &PayoutFactRow{
			PayoutID:      payout.ID.String(),
			OrderID:       payout.OrderID.String(),
			Level:         payout.Level,
			BeneficiaryID: payout.BeneficiaryAccountID.String(),
			Path:          string(payout.Path),
			Points:        payout.Points.String(),
			Amount:        payout.Amount,
			OccurredAt:    occurred,
		})
	}
	return w.insertWithRetry(ctx, w.payoutsTable, rows)
}

// RecordPurgeRun inserts the aggregate fact row for one purge run, with the
// per-account details folded into a JSON column.
func (w *Writer) RecordPurgeRun(ctx context.Context, run *models.PurgeRun) error {
	if run == nil {
		return nil
	}
	details, err := EncodeJSON(run.Details)
	if err != nil {
		return err
	}
	occurred := run.CreatedAt
	if occurred.IsZero() {
		occurred = w.now()
	}
	row := &PurgeFactRow{
		RunID:             run.ID.String(),
		Year:              run.Year,
		Month:             run.Month,
		Mode:              string(run.Mode),
		ActorID:           run.ActorID.String(),
		AccountsScanned:   run.AccountsScanned,
		ActiveCount:       run.ActiveCount,
		InactiveCount:     run.InactiveCount,
		PurgedCount:       run.PurgedCount,
		TotalAmountPurged: run.TotalAmountPurged,
		TotalPointsPurged: run.TotalPointsPurged.String(),
		OccurredAt:        occurred,
		Details:           details,
	}
	return w.insertWithRetry(ctx, w.purgesTable, []any{row})
}

func (w *Writer) insertWithRetry(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, w.retry.MaximumBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil || len(rowErr.Errors) == 0 {
			return false
		}
		for _, inner := range rowErr.Errors {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}
