package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
)

// Repository manages persistence for orders. Both state transitions are
// compare-and-swap updates: the WHERE clause carries the expected prior
// state and RowsAffected tells the caller whether it won.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListPendingByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	CASConfirm(ctx context.Context, id uuid.UUID, adminID uuid.UUID, now time.Time) (bool, error)
	CASReject(ctx context.Context, id uuid.UUID, adminID uuid.UUID, now time.Time) (bool, error)
	CASMarkDistributed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListPendingByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("buyer_account_id = ? AND status = ?", buyerID, enums.OrderStatusPending).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) CASConfirm(ctx context.Context, id uuid.UUID, adminID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":       enums.OrderStatusConfirmed,
			"confirmed_at": now,
			"confirmed_by": adminID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CASReject(ctx context.Context, id uuid.UUID, adminID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":       enums.OrderStatusRejected,
			"confirmed_at": now,
			"confirmed_by": adminID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CASMarkDistributed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND group_points_distributed = ?", id, false).
		Updates(map[string]any{
			"group_points_distributed": true,
			"distributed_at":           now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
