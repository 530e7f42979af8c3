package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateAccount  OutboxAggregateType = "account"
	AggregatePurgeRun OutboxAggregateType = "purge_run"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateAccount,
	AggregatePurgeRun,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderConfirmed        OutboxEventType = "order_confirmed"
	EventOrderRejected         OutboxEventType = "order_rejected"
	EventCommissionDistributed OutboxEventType = "commission_distributed"
	EventQuickStartPaid        OutboxEventType = "quick_start_paid"
	EventPurgeExecuted         OutboxEventType = "purge_executed"
	EventActivationWarning     OutboxEventType = "activation_warning"
	EventCoinsEarned           OutboxEventType = "coins_earned"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderConfirmed,
	EventOrderRejected,
	EventCommissionDistributed,
	EventQuickStartPaid,
	EventPurgeExecuted,
	EventActivationWarning,
	EventCoinsEarned,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
