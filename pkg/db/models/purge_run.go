package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novavida/novavida-backend/pkg/enums"
)

// PurgeRun persists the aggregate report of one purge invocation, distinct
// from any per-account history.
type PurgeRun struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Year              int             `gorm:"column:year;not null" json:"year"`
	Month             int             `gorm:"column:month;not null" json:"month"`
	Mode              enums.PurgeMode `gorm:"column:mode;type:purge_mode;not null" json:"mode"`
	ActorID           uuid.UUID       `gorm:"column:actor_id;type:uuid;not null" json:"actorId"`
	AccountsScanned   int             `gorm:"column:accounts_scanned;not null" json:"accountsScanned"`
	ActiveCount       int             `gorm:"column:active_count;not null" json:"activeCount"`
	InactiveCount     int             `gorm:"column:inactive_count;not null" json:"inactiveCount"`
	PurgedCount       int             `gorm:"column:purged_count;not null" json:"purgedCount"`
	TotalAmountPurged int64           `gorm:"column:total_amount_purged;not null" json:"totalAmountPurged"`
	TotalPointsPurged decimal.Decimal `gorm:"column:total_points_purged;type:numeric(14,2);not null" json:"totalPointsPurged"`
	Details           []PurgeRunDetail `gorm:"foreignKey:PurgeRunID;constraint:OnDelete:CASCADE" json:"details,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// PurgeRunDetail is the per-account line of a purge report.
type PurgeRunDetail struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PurgeRunID    uuid.UUID       `gorm:"column:purge_run_id;type:uuid;not null;index" json:"purgeRunId"`
	AccountID     uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index" json:"accountId"`
	Username      string          `gorm:"column:username;not null" json:"usuario"`
	MonthlyPoints decimal.Decimal `gorm:"column:monthly_points;type:numeric(14,2);not null" json:"monthlyPoints"`
	AmountPurged  int64           `gorm:"column:amount_purged;not null" json:"amountPurged"`
	PointsPurged  decimal.Decimal `gorm:"column:points_purged;type:numeric(14,2);not null" json:"pointsPurged"`
	AlreadyPurged bool            `gorm:"column:already_purged;not null;default:false" json:"alreadyPurged"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// PurgeMarker is the structural re-run guard: one row per purged account per
// calendar month. A second execute for the same month hits the unique index
// and becomes a no-op for that account.
type PurgeMarker struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID  uuid.UUID `gorm:"column:account_id;type:uuid;not null;uniqueIndex:ux_purge_markers_account_month"`
	Year       int       `gorm:"column:year;not null;uniqueIndex:ux_purge_markers_account_month"`
	Month      int       `gorm:"column:month;not null;uniqueIndex:ux_purge_markers_account_month"`
	PurgeRunID uuid.UUID `gorm:"column:purge_run_id;type:uuid;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
