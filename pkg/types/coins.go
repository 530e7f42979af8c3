package types

// MonthlyCoinsTracker is persisted on accounts as jsonb and mirrors the field
// names external collaborators read directly. The tracker rolls over
// implicitly: a stored month different from the current calendar month is
// treated as zero accrual.
type MonthlyCoinsTracker struct {
	Month            string `json:"month"`
	TotalCoinsEarned int64  `json:"totalCoinsEarned"`
}

// For reports whether the tracker's stored accrual applies to the given
// YYYY-MM month key.
func (t MonthlyCoinsTracker) For(month string) bool {
	return t.Month == month
}

// EarnedIn returns the accrual counted for the given month key, zero when the
// tracker belongs to a prior month.
func (t MonthlyCoinsTracker) EarnedIn(month string) int64 {
	if t.For(month) {
		return t.TotalCoinsEarned
	}
	return 0
}
