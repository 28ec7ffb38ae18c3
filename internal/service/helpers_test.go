package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/config"
	"github.com/jask/ledgerkeep/internal/database"
	"github.com/jask/ledgerkeep/internal/database/repository"
)

type services struct {
	db        *sql.DB
	store     *repository.Store
	ledger    *LedgerService
	recurring *RecurringService
	imports   *ImportService
	backup    *BackupService
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.OpenAndMigrate(ctx, dbPath, "EUR")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, ctx
}

func newServices(t *testing.T, today time.Time) (*services, context.Context) {
	t.Helper()
	db, ctx := openTestDB(t)
	log := zerolog.Nop()
	ledger := &LedgerService{DB: db, BatchSize: 3, Log: log}
	rec := &RecurringService{
		DB:        db,
		Detection: config.DetectionConfig{LookbackMonths: 12, MinMonths: 3, MinOccurrences: 5, AmountTolerancePct: 5, SpikeFactor: 1.5, SyncMinConfidence: 0.8, MerchantSimilarity: 0.8},
		Log:       log,
		Today:     func() time.Time { return today },
	}
	return &services{
		db:        db,
		store:     repository.NewStore(db),
		ledger:    ledger,
		recurring: rec,
		imports: &ImportService{
			DB: db, Ledger: ledger, Recurring: rec, BatchSize: 2, DefaultCurrency: "EUR", AutoDetect: true, Log: log,
		},
		backup: &BackupService{
			DB: db, Ledger: ledger, Dir: filepath.Join(t.TempDir(), "backups"), Gzip: true, Keep: 2, Log: log,
		},
	}, ctx
}

func insertAccount(t *testing.T, ctx context.Context, st *repository.Store, id string, initial *int64, initialDate *time.Time) {
	t.Helper()
	require.NoError(t, st.Accounts.Insert(ctx, repository.Account{
		ID: id, Name: id, Currency: "EUR", AccountType: "checking", InitialBalance: initial, InitialBalanceDate: initialDate, IsActive: true,
	}))
}

func insertTxn(t *testing.T, ctx context.Context, st *repository.Store, id, accountID string, d time.Time, amount int64, merchant string) {
	t.Helper()
	require.NoError(t, st.Transactions.Insert(ctx, repository.Transaction{
		ID: id, AccountID: accountID, Date: d, Amount: amount, Merchant: merchant, Category: repository.CategoryOther,
	}))
}

func ptr[T any](v T) *T { return &v }
