package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novavida/novavida-backend/pkg/enums"
)

// CommissionPayout is the per-order per-level completion record. The unique
// (order_id, level) index is what makes a retried chain walk skip levels that
// were already credited.
type CommissionPayout struct {
	ID                   uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID              uuid.UUID        `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_commission_payouts_order_level" json:"orderId"`
	Level                int              `gorm:"column:level;not null;uniqueIndex:ux_commission_payouts_order_level" json:"level"`
	BeneficiaryAccountID uuid.UUID        `gorm:"column:beneficiary_account_id;type:uuid;not null;index" json:"beneficiaryAccountId"`
	Path                 enums.PayoutPath `gorm:"column:path;type:payout_path;not null" json:"path"`
	Points               decimal.Decimal  `gorm:"column:points;type:numeric(14,2);not null" json:"points"`
	Amount               int64            `gorm:"column:amount;not null" json:"amount"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
