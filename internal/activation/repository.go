package activation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShortfallRow is one account below the monthly activation threshold.
type ShortfallRow struct {
	AccountID uuid.UUID       `gorm:"column:account_id"`
	Username  string          `gorm:"column:username"`
	Points    decimal.Decimal `gorm:"column:points"`
}

// Repository answers the one aggregate question the auditor cannot ask
// per-account: which commission-earning accounts are short this month.
type Repository interface {
	BelowThreshold(ctx context.Context, fromMs, toMs int64, threshold decimal.Decimal) ([]ShortfallRow, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// BelowThreshold sums confirmed purchase points per distributor and restaurant
// account inside [fromMs, toMs) and returns those under the threshold. The
// threshold binds as a float so the HAVING comparison is numeric on every
// driver; a decimal binds as text and sqlite would compare lexically.
func (r *repository) BelowThreshold(ctx context.Context, fromMs, toMs int64, threshold decimal.Decimal) ([]ShortfallRow, error) {
	var rows []ShortfallRow
	err := r.db.WithContext(ctx).Raw(`
SELECT a.id AS account_id, a.username AS username, COALESCE(SUM(l.points), 0) AS points
FROM accounts a
LEFT JOIN ledger_entries l
  ON l.account_id = a.id
 AND l.type = 'purchase'
 AND l.origin_ms >= ?
 AND l.origin_ms < ?
WHERE a.type IN ('distributor', 'restaurant')
GROUP BY a.id, a.username
HAVING COALESCE(SUM(l.points), 0) < ?
ORDER BY a.username`, fromMs, toMs, threshold.InexactFloat64()).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
