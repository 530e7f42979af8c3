package enums

import "fmt"

// AccountType maps to the account_type enum in Postgres.
type AccountType string

const (
	AccountTypeCustomer    AccountType = "customer"
	AccountTypeDistributor AccountType = "distributor"
	AccountTypeRestaurant  AccountType = "restaurant"
)

var validAccountTypes = []AccountType{
	AccountTypeCustomer,
	AccountTypeDistributor,
	AccountTypeRestaurant,
}

// IsValid reports whether the value matches the canonical account enum.
func (t AccountType) IsValid() bool {
	for _, candidate := range validAccountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDistributor reports whether the account participates in the commission
// plan and is therefore subject to monthly activation and purge.
func (t AccountType) IsDistributor() bool {
	return t == AccountTypeDistributor || t == AccountTypeRestaurant
}

// ParseAccountType converts raw input into AccountType.
func ParseAccountType(value string) (AccountType, error) {
	for _, candidate := range validAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account type %q", value)
}
