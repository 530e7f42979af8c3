package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_account_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  total_points NUMERIC NOT NULL DEFAULT 0,
  total_price INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  group_points_distributed INTEGER NOT NULL DEFAULT 0,
  distributed_at DATETIME,
  confirmed_at DATETIME,
  confirmed_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, buyerID uuid.UUID, points string) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:             uuid.New(),
		BuyerAccountID: buyerID,
		ProductName:    "pack nutricional",
		Quantity:       1,
		TotalPoints:    decimal.RequireFromString(points),
		TotalPrice:     168000,
		Status:         enums.OrderStatusPending,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRepository_CASConfirmWinsOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	adminID := uuid.New()
	now := time.Now().UTC()

	order := seedOrder(t, db, uuid.New(), "60")

	won, err := repo.CASConfirm(ctx, order.ID, adminID, now)
	require.NoError(t, err)
	assert.True(t, won)

	// Replays and concurrent losers see RowsAffected 0.
	won, err = repo.CASConfirm(ctx, order.ID, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedBy)
	assert.Equal(t, adminID, *got.ConfirmedBy)
	require.NotNil(t, got.ConfirmedAt)
}

func TestRepository_CASRejectOnlyFromPending(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	order := seedOrder(t, db, uuid.New(), "10")
	won, err := repo.CASConfirm(ctx, order.ID, uuid.New(), now)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.CASReject(ctx, order.ID, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, won, "confirmed order must not be rejectable")
}

func TestRepository_CASMarkDistributedIsOneWay(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	order := seedOrder(t, db, uuid.New(), "60")

	flipped, err := repo.CASMarkDistributed(ctx, order.ID, now)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.CASMarkDistributed(ctx, order.ID, now)
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.GroupPointsDistributed)
	require.NotNil(t, got.DistributedAt)
}

func TestRepository_ListPendingByBuyer(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	buyerID := uuid.New()

	first := seedOrder(t, db, buyerID, "30")
	second := seedOrder(t, db, buyerID, "25")
	confirmed := seedOrder(t, db, buyerID, "10")
	seedOrder(t, db, uuid.New(), "99")

	won, err := repo.CASConfirm(ctx, confirmed.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	pending, err := repo.ListPendingByBuyer(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []uuid.UUID{pending[0].ID, pending[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}
