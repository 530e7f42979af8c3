package commission

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
)

// PayoutRepository manages the per-order per-level completion records.
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository
	Insert(ctx context.Context, payout *models.CommissionPayout) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionPayout, error)
	CompletedLevels(ctx context.Context, orderID uuid.UUID) (map[int]bool, error)
}

type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository builds a payout repository bound to the provided DB.
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &payoutRepository{db: tx}
}

func (r *payoutRepository) Insert(ctx context.Context, payout *models.CommissionPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *payoutRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionPayout, error) {
	var payouts []models.CommissionPayout
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("level ASC").
		Find(&payouts).Error
	return payouts, err
}

func (r *payoutRepository) CompletedLevels(ctx context.Context, orderID uuid.UUID) (map[int]bool, error) {
	var levels []int
	err := r.db.WithContext(ctx).
		Model(&models.CommissionPayout{}).
		Where("order_id = ?", orderID).
		Pluck("level", &levels).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(levels))
	for _, level := range levels {
		out[level] = true
	}
	return out, nil
}
