package accounts

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	dbtypes "github.com/novavida/novavida-backend/pkg/db/types"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/types"
)

// Repository manages persistence for accounts. Aggregate columns are only
// ever changed through atomic increments or compare-and-swap updates; plain
// read-modify-write is not offered.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	IncrementPersonalPoints(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	IncrementGroupPoints(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	IncrementBalance(ctx context.Context, id uuid.UUID, delta int64) error
	LatchQuickStartPaid(ctx context.Context, id uuid.UUID, orderIDs []uuid.UUID) (bool, error)
	ListCommissionEarners(ctx context.Context) ([]models.Account, error)
	SwapMonthlyCoins(ctx context.Context, id uuid.UUID, old, next types.MonthlyCoinsTracker) (bool, error)
	SetAggregates(ctx context.Context, id uuid.UUID, personal, group decimal.Decimal, balance int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) IncrementPersonalPoints(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("personal_points", gorm.Expr("personal_points + ?", delta)).Error
}

func (r *repository) IncrementGroupPoints(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("group_points", gorm.Expr("group_points + ?", delta)).Error
}

func (r *repository) IncrementBalance(ctx context.Context, id uuid.UUID, delta int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", delta)).Error
}

// ListCommissionEarners returns every account that participates in monthly
// activation, ordered by username for stable reports.
func (r *repository) ListCommissionEarners(ctx context.Context) ([]models.Account, error) {
	var rows []models.Account
	err := r.db.WithContext(ctx).
		Where("type IN ?", []enums.AccountType{enums.AccountTypeDistributor, enums.AccountTypeRestaurant}).
		Order("username asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LatchQuickStartPaid flips the one-way quick start latch and promotes the
// buyer to master. Returns false when another confirmation already claimed it.
func (r *repository) LatchQuickStartPaid(ctx context.Context, id uuid.UUID, orderIDs []uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND quick_start_paid = ?", id, false).
		Updates(map[string]any{
			"quick_start_paid":      true,
			"is_master":             true,
			"quick_start_order_ids": dbtypes.UUIDArray(orderIDs),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SwapMonthlyCoins replaces the coin tracker only if it still matches the
// previously read value, so concurrent earns serialize through retries.
func (r *repository) SwapMonthlyCoins(ctx context.Context, id uuid.UUID, old, next types.MonthlyCoinsTracker) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND monthly_coins_tracker = ?", id, jsonValue(old)).
		Update("monthly_coins_tracker", jsonValue(next))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// jsonValue serializes the tracker the same way the model serializer does so
// the compare-and-swap predicate matches the stored column.
func jsonValue(t types.MonthlyCoinsTracker) string {
	b, _ := json.Marshal(t)
	return string(b)
}

func (r *repository) SetAggregates(ctx context.Context, id uuid.UUID, personal, group decimal.Decimal, balance int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"personal_points": personal,
			"group_points":    group,
			"balance":         balance,
		}).Error
}
