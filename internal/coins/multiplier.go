package coins

import (
	"time"

	"github.com/novavida/novavida-backend/pkg/points"
)

// MultiplierPercent returns the earning multiplier, in percent, for an
// account that has already accrued `earned` coins this month. The decay steps
// down as the account approaches the monthly ceiling and hits zero at it.
func MultiplierPercent(earned int64) int64 {
	if earned >= points.MonthlyCoinCap {
		return 0
	}
	consumed := earned * 100 / points.MonthlyCoinCap
	switch {
	case consumed < 20:
		return 100
	case consumed < 40:
		return 75
	case consumed < 60:
		return 60
	case consumed < 80:
		return 50
	case consumed < 90:
		return 30
	default:
		return 15
	}
}

// Approve applies the multiplier to a raw coin request and clamps the result
// so cumulative accrual never exceeds the ceiling.
func Approve(raw, earned int64) int64 {
	if raw <= 0 {
		return 0
	}
	approved := raw * MultiplierPercent(earned) / 100
	remaining := points.MonthlyCoinCap - earned
	if remaining < 0 {
		remaining = 0
	}
	if approved > remaining {
		approved = remaining
	}
	return approved
}

// MonthKey formats the calendar month the coin tracker is scoped to.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
