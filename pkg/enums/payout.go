package enums

import "fmt"

// PayoutPath maps to the payout_path enum in Postgres. Exactly one path
// applies per confirmed order.
type PayoutPath string

const (
	PayoutPathQuickStart PayoutPath = "quick_start"
	PayoutPathNormal     PayoutPath = "normal"
)

// IsValid reports whether the value matches the canonical payout path enum.
func (p PayoutPath) IsValid() bool {
	return p == PayoutPathQuickStart || p == PayoutPathNormal
}

// PurgeMode selects between a dry run and an applied purge.
type PurgeMode string

const (
	PurgeModePreview PurgeMode = "preview"
	PurgeModeExecute PurgeMode = "execute"
)

// IsValid reports whether the value matches the canonical purge mode enum.
func (m PurgeMode) IsValid() bool {
	return m == PurgeModePreview || m == PurgeModeExecute
}

// ParsePurgeMode converts raw input into PurgeMode.
func ParsePurgeMode(value string) (PurgeMode, error) {
	switch PurgeMode(value) {
	case PurgeModePreview:
		return PurgeModePreview, nil
	case PurgeModeExecute:
		return PurgeModeExecute, nil
	default:
		return "", fmt.Errorf("invalid purge mode %q", value)
	}
}
