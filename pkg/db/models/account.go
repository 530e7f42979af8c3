package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/novavida/novavida-backend/pkg/db/types"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/types"
)

// Account is the per-distributor record. The JSON field names (`usuario`,
// `patrocinador`, `puntosGrupales`, ...) are contractual: other collaborators
// read them directly and must keep working against this service.
//
// PersonalPoints, GroupPoints and Balance are caches over the ledger; the
// recalculation operation re-derives them from history.
type Account struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username           string                    `gorm:"column:username;not null;uniqueIndex" json:"usuario"`
	SponsorUsername    *string                   `gorm:"column:sponsor_username" json:"patrocinador,omitempty"`
	Type               enums.AccountType         `gorm:"column:type;type:account_type;not null;default:'customer'" json:"type"`
	PersonalPoints     decimal.Decimal           `gorm:"column:personal_points;type:numeric(14,2);not null;default:0" json:"personalPoints"`
	GroupPoints        decimal.Decimal           `gorm:"column:group_points;type:numeric(14,2);not null;default:0" json:"puntosGrupales"`
	Balance            int64                     `gorm:"column:balance;not null;default:0" json:"balance"`
	IsMaster           bool                      `gorm:"column:is_master;not null;default:false" json:"isMaster"`
	QuickStartPaid     bool                      `gorm:"column:quick_start_paid;not null;default:false" json:"quickStartPaid"`
	QuickStartOrderIDs dbtypes.UUIDArray         `gorm:"column:quick_start_order_ids;type:uuid[];not null" json:"quickStartOrderIds"`
	MonthlyCoins       types.MonthlyCoinsTracker `gorm:"column:monthly_coins_tracker;type:jsonb;serializer:json" json:"monthlyCoinsTracker"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
