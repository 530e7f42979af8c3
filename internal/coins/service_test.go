package coins

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/enums"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCoinsTestDB(t *testing.T) *gorm.DB {
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

func newTestCoinService(t *testing.T, db *gorm.DB, now time.Time) Service {
	t.Helper()
	svc, err := NewService(Config{
		Runner:   testTxRunner{db: db},
		Accounts: accounts.NewRepository(db),
		Ledger:   ledger.NewRepository(db),
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func seedCoinAccount(t *testing.T, db *gorm.DB, tracker types.MonthlyCoinsTracker) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:           uuid.New(),
		Username:     fmt.Sprintf("jugador-%s", uuid.NewString()[:8]),
		Type:         enums.AccountTypeDistributor,
		MonthlyCoins: tracker,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestMultiplierPercent(t *testing.T) {
	cases := []struct {
		earned int64
		want   int64
	}{
		{0, 100},
		{3999, 100},
		{4000, 75},
		{7999, 75},
		{8000, 60},
		{11999, 60},
		{12000, 50},
		{15999, 50},
		{16000, 30},
		{17999, 30},
		{18000, 15},
		{19999, 15},
		{20000, 0},
		{25000, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MultiplierPercent(tc.earned), "earned=%d", tc.earned)
	}
}

func TestApproveClampsToRemaining(t *testing.T) {
	// 19990 earned leaves 10 remaining; 15% of 100 is 15, clamped to 10.
	assert.Equal(t, int64(10), Approve(100, 19990))
	assert.Equal(t, int64(0), Approve(100, 20000))
	assert.Equal(t, int64(0), Approve(0, 0))
	assert.Equal(t, int64(0), Approve(-5, 0))
	// Flooring: 75% of 3 coins is 2.25, approved 2.
	assert.Equal(t, int64(2), Approve(3, 5000))
}

func TestService_StatusFreshMonth(t *testing.T) {
	db := setupCoinsTestDB(t)
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestCoinService(t, db, now)

	// The tracker still holds June accrual; July reads as zero.
	account := seedCoinAccount(t, db, types.MonthlyCoinsTracker{Month: "2026-06", TotalCoinsEarned: 18000})

	status, err := svc.Status(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-07", status.Month)
	assert.Zero(t, status.Earned)
	assert.Equal(t, int64(20000), status.Remaining)
	assert.Equal(t, int64(100), status.Multiplier)
}

func TestService_EarnRecordsApproval(t *testing.T) {
	db := setupCoinsTestDB(t)
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestCoinService(t, db, now)
	ctx := context.Background()

	account := seedCoinAccount(t, db, types.MonthlyCoinsTracker{})

	result, err := svc.Earn(ctx, account.ID, EarnInput{Coins: 500, GameType: "trivia", Level: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.Approved)
	assert.Equal(t, int64(100), result.Multiplier)
	assert.False(t, result.Capped)

	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, "2026-07", got.MonthlyCoins.Month)
	assert.Equal(t, int64(500), got.MonthlyCoins.TotalCoinsEarned)
	assert.Equal(t, int64(500), got.Balance)

	var entry models.LedgerEntry
	require.NoError(t, db.First(&entry, "account_id = ?", account.ID).Error)
	assert.Equal(t, enums.LedgerEntryTypeEarning, entry.Type)
	assert.Equal(t, int64(500), entry.Amount)
	assert.Contains(t, entry.Action, "trivia")
}

func TestService_EarnDecaysNearCap(t *testing.T) {
	db := setupCoinsTestDB(t)
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestCoinService(t, db, now)
	ctx := context.Background()

	account := seedCoinAccount(t, db, types.MonthlyCoinsTracker{Month: "2026-07", TotalCoinsEarned: 12000})

	result, err := svc.Earn(ctx, account.ID, EarnInput{Coins: 1000, GameType: "memoria", Level: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.Approved)
	assert.Equal(t, int64(50), result.Multiplier)
	assert.True(t, result.Capped)
	assert.Equal(t, int64(12500), result.Earned)
}

func TestService_EarnAtCapApprovesNothing(t *testing.T) {
	db := setupCoinsTestDB(t)
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestCoinService(t, db, now)
	ctx := context.Background()

	account := seedCoinAccount(t, db, types.MonthlyCoinsTracker{Month: "2026-07", TotalCoinsEarned: 20000})

	result, err := svc.Earn(ctx, account.ID, EarnInput{Coins: 1000, GameType: "trivia", Level: 1})
	require.NoError(t, err)
	assert.Zero(t, result.Approved)
	assert.True(t, result.Capped)

	// No tracker write, no balance credit, no ledger entry.
	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, int64(20000), got.MonthlyCoins.TotalCoinsEarned)
	assert.Zero(t, got.Balance)

	var entries int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, entries)
}

func TestService_EarnNeverExceedsCap(t *testing.T) {
	db := setupCoinsTestDB(t)
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestCoinService(t, db, now)
	ctx := context.Background()

	account := seedCoinAccount(t, db, types.MonthlyCoinsTracker{Month: "2026-07", TotalCoinsEarned: 19990})

	result, err := svc.Earn(ctx, account.ID, EarnInput{Coins: 1000, GameType: "trivia", Level: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Approved)
	assert.Equal(t, int64(20000), result.Earned)
	assert.Zero(t, result.Remaining)
}

func TestService_EarnValidatesInput(t *testing.T) {
	db := setupCoinsTestDB(t)
	svc := newTestCoinService(t, db, time.Now())

	_, err := svc.Earn(context.Background(), uuid.New(), EarnInput{Coins: 0})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = svc.Earn(context.Background(), uuid.New(), EarnInput{Coins: 100})
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
