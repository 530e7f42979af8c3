package activation

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

	"github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
)

func setupActivationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  sponsor_username TEXT,
  type TEXT NOT NULL DEFAULT 'customer',
  personal_points NUMERIC NOT NULL DEFAULT 0,
  group_points NUMERIC NOT NULL DEFAULT 0,
  balance INTEGER NOT NULL DEFAULT 0,
  is_master INTEGER NOT NULL DEFAULT 0,
  quick_start_paid INTEGER NOT NULL DEFAULT 0,
  quick_start_order_ids TEXT NOT NULL DEFAULT '{}',
  monthly_coins_tracker TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL DEFAULT 0,
  points NUMERIC NOT NULL DEFAULT 0,
  order_id TEXT,
  origin_ms INTEGER NOT NULL DEFAULT 0,
  action TEXT NOT NULL DEFAULT '',
  actor_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)
	svc, err := NewService(accounts.NewRepository(db), ledgerSvc, NewRepository(db))
	require.NoError(t, err)
	return svc
}

func seedActivationAccount(t *testing.T, db *gorm.DB, username string, typ enums.AccountType) *models.Account {
	t.Helper()
	account := &models.Account{ID: uuid.New(), Username: username, Type: typ}
	require.NoError(t, db.Create(account).Error)
	return account
}

func seedPurchase(t *testing.T, db *gorm.DB, accountID uuid.UUID, pts string, occurred time.Time) {
	t.Helper()
	entry := models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      enums.LedgerEntryTypePurchase,
		Points:    decimal.RequireFromString(pts),
		OriginMs:  occurred.UnixMilli(),
		Action:    "Compra confirmada",
	}
	require.NoError(t, db.Create(&entry).Error)
}

func TestService_StatusActiveAndInactive(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	account := seedActivationAccount(t, db, "maria.g", enums.AccountTypeDistributor)
	seedPurchase(t, db, account.ID, "6", time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))
	seedPurchase(t, db, account.ID, "4.5", time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC))
	// Outside the audited month.
	seedPurchase(t, db, account.ID, "50", time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC))

	status, err := svc.Status(ctx, "maria.g", 2026, 3)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.True(t, status.Points.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, status.Remaining.IsZero())

	status, err = svc.Status(ctx, "maria.g", 2026, 4)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.True(t, status.Points.IsZero())
	assert.True(t, status.Remaining.Equal(decimal.NewFromInt(10)))
}

func TestService_StatusExactThreshold(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)

	account := seedActivationAccount(t, db, "justo", enums.AccountTypeDistributor)
	seedPurchase(t, db, account.ID, "10", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	status, err := svc.StatusByID(context.Background(), account.ID, 2026, 5)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.True(t, status.Remaining.IsZero())
}

func TestService_StatusOnlyPurchasesCount(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)

	account := seedActivationAccount(t, db, "grupal", enums.AccountTypeDistributor)
	// Group points earned from the downline do not keep an account active.
	entry := models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: account.ID,
		Type:      enums.LedgerEntryTypeGroupPoints,
		Points:    decimal.NewFromInt(40),
		OriginMs:  time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC).UnixMilli(),
		Action:    "Puntos grupales nivel 1",
	}
	require.NoError(t, db.Create(&entry).Error)

	status, err := svc.Status(context.Background(), "grupal", 2026, 5)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.True(t, status.Points.IsZero())
}

func TestService_StatusUnknownAccount(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Status(context.Background(), "nadie", 2026, 5)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestService_StatusInvalidMonth(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)

	seedActivationAccount(t, db, "raro", enums.AccountTypeDistributor)

	_, err := svc.Status(context.Background(), "raro", 2026, 13)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestService_PendingWarnings(t *testing.T) {
	db := setupActivationTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	active := seedActivationAccount(t, db, "activa", enums.AccountTypeDistributor)
	short := seedActivationAccount(t, db, "corta", enums.AccountTypeDistributor)
	resto := seedActivationAccount(t, db, "resto", enums.AccountTypeRestaurant)
	// Customers are not commission earners and never get warned.
	customer := seedActivationAccount(t, db, "cliente", enums.AccountTypeCustomer)

	inMonth := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	seedPurchase(t, db, active.ID, "12", inMonth)
	seedPurchase(t, db, short.ID, "4", inMonth)
	seedPurchase(t, db, customer.ID, "1", inMonth)
	_ = resto

	warnings, err := svc.PendingWarnings(ctx, 2026, 6)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	assert.Equal(t, "corta", warnings[0].Username)
	assert.True(t, warnings[0].Points.Equal(decimal.NewFromInt(4)))
	assert.True(t, warnings[0].Remaining.Equal(decimal.NewFromInt(6)))

	assert.Equal(t, "resto", warnings[1].Username)
	assert.True(t, warnings[1].Points.IsZero())
	assert.True(t, warnings[1].Remaining.Equal(decimal.NewFromInt(10)))
}
