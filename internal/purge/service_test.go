package purge

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
	"github.com/novavida/novavida-backend/pkg/pagination"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupPurgeTestDB(t *testing.T) *gorm.DB {
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
);
CREATE TABLE IF NOT EXISTS purge_runs (
  id TEXT PRIMARY KEY,
  year INTEGER NOT NULL,
  month INTEGER NOT NULL,
  mode TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  accounts_scanned INTEGER NOT NULL,
  active_count INTEGER NOT NULL,
  inactive_count INTEGER NOT NULL,
  purged_count INTEGER NOT NULL,
  total_amount_purged INTEGER NOT NULL,
  total_points_purged NUMERIC NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS purge_run_details (
  id TEXT PRIMARY KEY,
  purge_run_id TEXT NOT NULL,
  account_id TEXT NOT NULL,
  username TEXT NOT NULL,
  monthly_points NUMERIC NOT NULL,
  amount_purged INTEGER NOT NULL,
  points_purged NUMERIC NOT NULL,
  already_purged INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS purge_markers (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  year INTEGER NOT NULL,
  month INTEGER NOT NULL,
  purge_run_id TEXT NOT NULL,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_purge_markers_account_month
  ON purge_markers (account_id, year, month);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newTestPurgeService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(Config{
		Runner:   testTxRunner{db: db},
		Accounts: accounts.NewRepository(db),
		Ledger:   ledger.NewRepository(db),
		Repo:     NewRepository(db),
	})
	require.NoError(t, err)
	return svc
}

func seedPurgeAccount(t *testing.T, db *gorm.DB, username string, groupPoints string, balance int64) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:          uuid.New(),
		Username:    username,
		Type:        enums.AccountTypeDistributor,
		GroupPoints: decimal.RequireFromString(groupPoints),
		Balance:     balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func seedPurgeEntry(t *testing.T, db *gorm.DB, accountID uuid.UUID, typ enums.LedgerEntryType, pts string, amount int64, occurred time.Time) {
	t.Helper()
	entry := models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Points:    decimal.RequireFromString(pts),
		Amount:    amount,
		OriginMs:  occurred.UnixMilli(),
	}
	require.NoError(t, db.Create(&entry).Error)
}

func TestService_PreviewDoesNotMutate(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	inactive := seedPurgeAccount(t, db, "inactiva", "5", 14000)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "5", 14000, inMonth)

	run, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModePreview, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, run.AccountsScanned)
	assert.Equal(t, 1, run.InactiveCount)
	assert.Equal(t, 1, run.PurgedCount)
	assert.Equal(t, int64(14000), run.TotalAmountPurged)
	assert.True(t, run.TotalPointsPurged.Equal(decimal.NewFromInt(5)))

	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", inactive.ID).Error)
	assert.Equal(t, int64(14000), got.Balance)
	assert.True(t, got.GroupPoints.Equal(decimal.NewFromInt(5)))

	var markers int64
	require.NoError(t, db.Model(&models.PurgeMarker{}).Count(&markers).Error)
	assert.Zero(t, markers)

	// The preview report is still persisted for audit.
	var runs int64
	require.NoError(t, db.Model(&models.PurgeRun{}).Count(&runs).Error)
	assert.Equal(t, int64(1), runs)
}

func TestService_ExecuteReversesInactiveOnly(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()
	actorID := uuid.New()

	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	active := seedPurgeAccount(t, db, "activa", "8", 22400)
	seedPurgeEntry(t, db, active.ID, enums.LedgerEntryTypePurchase, "15", 0, inMonth)
	seedPurgeEntry(t, db, active.ID, enums.LedgerEntryTypeGroupPoints, "8", 22400, inMonth)

	inactive := seedPurgeAccount(t, db, "inactiva", "6", 16800)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypePurchase, "4", 0, inMonth)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "2", 5600, inMonth)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeQuickStartBonus, "4", 11200, inMonth)
	// Earnings from another month survive.
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "3", 8400,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	run, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModeExecute, ActorID: actorID})
	require.NoError(t, err)
	assert.Equal(t, 2, run.AccountsScanned)
	assert.Equal(t, 1, run.ActiveCount)
	assert.Equal(t, 1, run.InactiveCount)
	assert.Equal(t, 1, run.PurgedCount)
	assert.Equal(t, int64(16800), run.TotalAmountPurged)
	assert.True(t, run.TotalPointsPurged.Equal(decimal.NewFromInt(6)))

	var gotActive models.Account
	require.NoError(t, db.First(&gotActive, "id = ?", active.ID).Error)
	assert.Equal(t, int64(22400), gotActive.Balance)

	var gotInactive models.Account
	require.NoError(t, db.First(&gotInactive, "id = ?", inactive.ID).Error)
	assert.Zero(t, gotInactive.Balance)
	assert.True(t, gotInactive.GroupPoints.IsZero())

	// The reversal leaves an audit entry with negative values.
	var reversal models.LedgerEntry
	require.NoError(t, db.First(&reversal, "account_id = ? AND type = ?",
		inactive.ID, enums.LedgerEntryTypeCommissionPurge).Error)
	assert.Equal(t, int64(-16800), reversal.Amount)
	assert.True(t, reversal.Points.Equal(decimal.NewFromInt(-6)))
	require.NotNil(t, reversal.ActorID)
	assert.Equal(t, actorID, *reversal.ActorID)
}

func TestService_ExecuteTwiceIsNoOp(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	inactive := seedPurgeAccount(t, db, "inactiva", "2", 5600)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "2", 5600, inMonth)

	first, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModeExecute, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, first.PurgedCount)

	second, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModeExecute, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Zero(t, second.PurgedCount)
	assert.Zero(t, second.TotalAmountPurged)
	require.Len(t, second.Details, 1)
	assert.True(t, second.Details[0].AlreadyPurged)

	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", inactive.ID).Error)
	assert.Zero(t, got.Balance)
}

func TestService_ReversalFloorsAtZero(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	// A withdrawal already drained part of the balance; the reversal cannot
	// take more than what remains.
	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	inactive := seedPurgeAccount(t, db, "retirada", "1", 2000)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "4", 11200, inMonth)

	run, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModeExecute, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), run.TotalAmountPurged)
	assert.True(t, run.TotalPointsPurged.Equal(decimal.NewFromInt(1)))

	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", inactive.ID).Error)
	assert.Zero(t, got.Balance)
	assert.True(t, got.GroupPoints.IsZero())
}

func TestService_PurgeEntriesAreNotReEarnings(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	inactive := seedPurgeAccount(t, db, "inactiva", "2", 5600)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "2", 5600, inMonth)
	// A reversal entry from an earlier run of a different month.
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeCommissionPurge, "-3", -8400, inMonth)

	run, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModePreview, ActorID: uuid.New()})
	require.NoError(t, err)
	// Only the group_points entry counts as reversible earnings.
	assert.Equal(t, int64(5600), run.TotalAmountPurged)
	assert.True(t, run.TotalPointsPurged.Equal(decimal.NewFromInt(2)))
}

func TestService_ValidatesInput(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	cases := []Input{
		{Year: 2026, Month: 4, Mode: "dry-run", ActorID: uuid.New()},
		{Year: 2026, Month: 13, Mode: enums.PurgeModePreview, ActorID: uuid.New()},
		{Year: 1990, Month: 4, Mode: enums.PurgeModePreview, ActorID: uuid.New()},
		{Year: 2026, Month: 4, Mode: enums.PurgeModePreview},
	}
	for _, input := range cases {
		_, err := svc.Run(ctx, input)
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestService_ListRunsPaginates(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &models.PurgeRun{
			ID:                uuid.New(),
			Year:              2026,
			Month:             i + 1,
			Mode:              enums.PurgeModePreview,
			ActorID:           uuid.New(),
			TotalPointsPurged: decimal.Zero,
			CreatedAt:         time.Date(2026, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, db.Create(run).Error)
	}

	page, next, err := svc.ListRuns(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 3, page[0].Month)
	require.NotEmpty(t, next)

	rest, next, err := svc.ListRuns(ctx, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 1, rest[0].Month)
	assert.Empty(t, next)
}

func TestService_GetRunIncludesDetails(t *testing.T) {
	db := setupPurgeTestDB(t)
	svc := newTestPurgeService(t, db)
	ctx := context.Background()

	inMonth := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	inactive := seedPurgeAccount(t, db, "inactiva", "2", 5600)
	seedPurgeEntry(t, db, inactive.ID, enums.LedgerEntryTypeGroupPoints, "2", 5600, inMonth)

	run, err := svc.Run(ctx, Input{Year: 2026, Month: 4, Mode: enums.PurgeModeExecute, ActorID: uuid.New()})
	require.NoError(t, err)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "inactiva", got.Details[0].Username)

	_, err = svc.GetRun(ctx, uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
