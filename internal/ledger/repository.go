package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries. Entries are append-only;
// there are no update or delete operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	SumPointsByTypes(ctx context.Context, accountID uuid.UUID, types []enums.LedgerEntryType) (decimal.Decimal, error)
	SumAmount(ctx context.Context, accountID uuid.UUID) (int64, error)
	SumInWindow(ctx context.Context, accountID uuid.UUID, types []enums.LedgerEntryType, fromMs, toMs int64) (decimal.Decimal, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByAccount pages newest-first over origin_ms, the canonical time field.
func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("origin_ms DESC").
		Order("id DESC").
		Limit(limit + 1)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		ms := cursor.CreatedAt.UnixMilli()
		query = query.Where("origin_ms < ? OR (origin_ms = ? AND id < ?)", ms, ms, cursor.ID)
	}

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.OccurredAt(),
			ID:        last.ID,
		})
	}
	return entries, next, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("origin_ms ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) SumPointsByTypes(ctx context.Context, accountID uuid.UUID, types []enums.LedgerEntryType) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(points), 0)").
		Where("account_id = ? AND type IN ?", accountID, types).
		Scan(&total).Error
	return total, err
}

func (r *repository) SumAmount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ?", accountID).
		Scan(&total).Error
	return total, err
}

// SumInWindow totals points and currency amounts for the given types inside
// [fromMs, toMs).
func (r *repository) SumInWindow(ctx context.Context, accountID uuid.UUID, types []enums.LedgerEntryType, fromMs, toMs int64) (decimal.Decimal, int64, error) {
	var row struct {
		Points decimal.Decimal
		Amount int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(points), 0) AS points, COALESCE(SUM(amount), 0) AS amount").
		Where("account_id = ? AND type IN ? AND origin_ms >= ? AND origin_ms < ?", accountID, types, fromMs, toMs).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	return row.Points, row.Amount, nil
}
