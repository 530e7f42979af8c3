package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novavida/novavida-backend/pkg/enums"
)

// LedgerEntry is one element of an account's append-only history. Entries are
// immutable once written; corrections are new entries (commission_purge).
// OriginMs is the canonical field for time-window queries.
type LedgerEntry struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index" json:"accountId"`
	Type      enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type;not null" json:"type"`
	Amount    int64                 `gorm:"column:amount;not null;default:0" json:"amount"`
	Points    decimal.Decimal       `gorm:"column:points;type:numeric(14,2);not null;default:0" json:"points"`
	OrderID   *uuid.UUID            `gorm:"column:order_id;type:uuid;index" json:"orderId,omitempty"`
	OriginMs  int64                 `gorm:"column:origin_ms;not null;index" json:"originMs"`
	Action    string                `gorm:"column:action;not null" json:"action"`
	ActorID   *uuid.UUID            `gorm:"column:actor_id;type:uuid" json:"actorId,omitempty"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// OccurredAt converts the canonical epoch-millisecond field to a time.
func (e LedgerEntry) OccurredAt() time.Time {
	return time.UnixMilli(e.OriginMs).UTC()
}
