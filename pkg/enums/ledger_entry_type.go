package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypePurchase             LedgerEntryType = "purchase"
	LedgerEntryTypeGroupPoints          LedgerEntryType = "group_points"
	LedgerEntryTypeQuickStartBonus      LedgerEntryType = "quick_start_bonus"
	LedgerEntryTypeQuickStartUpperLevel LedgerEntryType = "quick_start_upper_level"
	LedgerEntryTypeEarning              LedgerEntryType = "earning"
	LedgerEntryTypeWithdraw             LedgerEntryType = "withdraw"
	LedgerEntryTypeCommissionPurge      LedgerEntryType = "commission_purge"
	LedgerEntryTypeRestaurantCommission LedgerEntryType = "restaurant_commission"
	LedgerEntryTypePaymentApproved      LedgerEntryType = "payment_approved"
	LedgerEntryTypePaymentFailed        LedgerEntryType = "payment_failed"
	LedgerEntryTypeClientPriceDiff      LedgerEntryType = "client_price_difference"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypePurchase,
	LedgerEntryTypeGroupPoints,
	LedgerEntryTypeQuickStartBonus,
	LedgerEntryTypeQuickStartUpperLevel,
	LedgerEntryTypeEarning,
	LedgerEntryTypeWithdraw,
	LedgerEntryTypeCommissionPurge,
	LedgerEntryTypeRestaurantCommission,
	LedgerEntryTypePaymentApproved,
	LedgerEntryTypePaymentFailed,
	LedgerEntryTypeClientPriceDiff,
}

// earningLedgerEntryTypes contribute to group points/balance and are the
// types the monthly purge reverses. commission_purge itself is deliberately
// not in this set so reversal entries are never re-summed as earnings.
var earningLedgerEntryTypes = map[LedgerEntryType]struct{}{
	LedgerEntryTypeEarning:              {},
	LedgerEntryTypeGroupPoints:          {},
	LedgerEntryTypeQuickStartBonus:      {},
	LedgerEntryTypeQuickStartUpperLevel: {},
	LedgerEntryTypeRestaurantCommission: {},
	LedgerEntryTypeClientPriceDiff:      {},
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsEarning reports whether entries of this type count as reversible earnings.
func (t LedgerEntryType) IsEarning() bool {
	_, ok := earningLedgerEntryTypes[t]
	return ok
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
