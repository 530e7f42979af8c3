package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novavida/novavida-backend/pkg/enums"
)

// Order is one purchase awaiting administrative confirmation. Status moves
// pending -> confirmed or pending -> rejected exactly once, and
// GroupPointsDistributed flips false -> true exactly once; both transitions
// are conditional UPDATEs, never read-then-write.
type Order struct {
	ID                     uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerAccountID         uuid.UUID         `gorm:"column:buyer_account_id;type:uuid;not null;index" json:"buyerId"`
	ProductName            string            `gorm:"column:product_name;not null" json:"productName"`
	Quantity               int               `gorm:"column:quantity;not null;default:1" json:"quantity"`
	TotalPoints            decimal.Decimal   `gorm:"column:total_points;type:numeric(14,2);not null" json:"totalPoints"`
	TotalPrice             int64             `gorm:"column:total_price;not null" json:"totalPrice"`
	Status                 enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'" json:"status"`
	GroupPointsDistributed bool              `gorm:"column:group_points_distributed;not null;default:false" json:"groupPointsDistributed"`
	DistributedAt          *time.Time        `gorm:"column:distributed_at" json:"distributedAt,omitempty"`
	ConfirmedAt            *time.Time        `gorm:"column:confirmed_at" json:"confirmedAt,omitempty"`
	ConfirmedBy            *uuid.UUID        `gorm:"column:confirmed_by;type:uuid" json:"confirmedBy,omitempty"`
	CreatedAt              time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt              time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
