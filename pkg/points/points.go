package points

import "github.com/shopspring/decimal"

// Contractual constants shared by the commission engine, the activation
// auditor, the purge, the coin cap, and external collaborators. They live in
// one place so the values cannot drift between consumers.
const (
	// PointValue converts one commission point into currency units.
	PointValue = 2800

	// QuickStartThreshold is the minimum first-purchase point total that
	// qualifies for the Quick Start Bonus.
	QuickStartThreshold = 50

	// MonthlyActivationThreshold is the personal points an account must earn
	// in a calendar month to stay active.
	MonthlyActivationThreshold = 10

	// MonthlyCoinCap bounds in-game coin accrual per account per month.
	MonthlyCoinCap = 20000

	// MaxChainLevels bounds every sponsor-chain walk.
	MaxChainLevels = 5

	// QuickStartDirectRate is paid per package to the direct sponsor.
	QuickStartDirectRate = 21

	// QuickStartUpperRate is paid per package to each upper level.
	QuickStartUpperRate = 1

	// NormalLevelPoints is the per-level credit for standard buyers.
	NormalLevelPoints = 1

	// RestaurantLevelRate is the per-level fraction of order points credited
	// when the buyer is a restaurant account.
	RestaurantLevelRate = "0.05"
)

// ToCurrency converts a point quantity into currency units, rounded to the
// nearest whole unit. Fractional currency is never credited.
func ToCurrency(pts decimal.Decimal) int64 {
	return pts.Mul(decimal.NewFromInt(PointValue)).Round(0).IntPart()
}

// QuickStartPackages returns how many 50-point packages an order total buys.
func QuickStartPackages(orderPoints decimal.Decimal) int64 {
	return orderPoints.Div(decimal.NewFromInt(QuickStartThreshold)).Floor().IntPart()
}

// RestaurantLevelPoints computes the 5%-per-level credit for restaurant
// buyers, kept to two decimal places.
func RestaurantLevelPoints(orderPoints decimal.Decimal) decimal.Decimal {
	rate, _ := decimal.NewFromString(RestaurantLevelRate)
	return orderPoints.Mul(rate).Round(2)
}
