package reporting

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// PayoutFactRow mirrors the commission_payout_facts BigQuery schema.
type PayoutFactRow struct {
	PayoutID      string             `bigquery:"payout_id"`
	OrderID       string             `bigquery:"order_id"`
	Level         int                `bigquery:"level"`
	BeneficiaryID string             `bigquery:"beneficiary_id"`
	Path          string             `bigquery:"path"`
	Points        string             `bigquery:"points"`
	Amount        int64              `bigquery:"amount"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// PurgeFactRow mirrors the purge_run_facts BigQuery schema, one row per run.
type PurgeFactRow struct {
	RunID             string             `bigquery:"run_id"`
	Year              int                `bigquery:"year"`
	Month             int                `bigquery:"month"`
	Mode              string             `bigquery:"mode"`
	ActorID           string             `bigquery:"actor_id"`
	AccountsScanned   int                `bigquery:"accounts_scanned"`
	ActiveCount       int                `bigquery:"active_count"`
	InactiveCount     int                `bigquery:"inactive_count"`
	PurgedCount       int                `bigquery:"purged_count"`
	TotalAmountPurged int64              `bigquery:"total_amount_purged"`
	TotalPointsPurged string             `bigquery:"total_points_purged"`
	OccurredAt        time.Time          `bigquery:"occurred_at"`
	Details           cbigquery.NullJSON `bigquery:"details"`
}

// EncodeJSON wraps a value as a BigQuery JSON column, treating nil as NULL.
func EncodeJSON(value any) (cbigquery.NullJSON, error) {
	if value == nil {
		return cbigquery.NullJSON{}, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return cbigquery.NullJSON{JSONVal: string(raw), Valid: true}, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("encode json column: %w", err)
	}
	return cbigquery.NullJSON{JSONVal: string(encoded), Valid: true}, nil
}
