package ledger

import (
	"strings"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
)

// Legacy rows predate the type column and carry only free-form Spanish action
// text. All text classification lives in this file; nothing else in the
// codebase is allowed to sniff action strings.

var actionPatterns = []struct {
	needle string
	typ    enums.LedgerEntryType
}{
	{"depuraci", enums.LedgerEntryTypeCommissionPurge},
	{"purge", enums.LedgerEntryTypeCommissionPurge},
	{"inicio rapido", enums.LedgerEntryTypeQuickStartBonus},
	{"inicio rápido", enums.LedgerEntryTypeQuickStartBonus},
	{"quick start", enums.LedgerEntryTypeQuickStartBonus},
	{"puntos grupales", enums.LedgerEntryTypeGroupPoints},
	{"grupal", enums.LedgerEntryTypeGroupPoints},
	{"restaurante", enums.LedgerEntryTypeRestaurantCommission},
	{"restaurant", enums.LedgerEntryTypeRestaurantCommission},
	{"diferencia", enums.LedgerEntryTypeClientPriceDiff},
	{"pago aprobado", enums.LedgerEntryTypePaymentApproved},
	{"pago fallido", enums.LedgerEntryTypePaymentFailed},
	{"pago rechazado", enums.LedgerEntryTypePaymentFailed},
	{"retiro", enums.LedgerEntryTypeWithdraw},
	{"withdraw", enums.LedgerEntryTypeWithdraw},
	{"compra", enums.LedgerEntryTypePurchase},
}

// ClassifyAction maps legacy action text to an entry type. Unrecognized text
// falls back to earning, matching how historical rows were credited.
func ClassifyAction(action string) enums.LedgerEntryType {
	normalized := strings.ToLower(strings.TrimSpace(action))
	for _, pattern := range actionPatterns {
		if strings.Contains(normalized, pattern.needle) {
			return pattern.typ
		}
	}
	return enums.LedgerEntryTypeEarning
}

// Normalize fills the gaps legacy rows leave: a missing type is classified
// from action text and a missing origin timestamp falls back to created_at.
// The stored row is never mutated.
func Normalize(entry models.LedgerEntry) models.LedgerEntry {
	if !entry.Type.IsValid() {
		entry.Type = ClassifyAction(entry.Action)
	}
	if entry.OriginMs == 0 && !entry.CreatedAt.IsZero() {
		entry.OriginMs = entry.CreatedAt.UnixMilli()
	}
	return entry
}
