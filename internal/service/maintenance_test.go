package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

func TestResetWipesAndReseeds(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 6, 1))
	seedSample(t, s)

	m := &MaintenanceService{DB: s.db, DefaultCurrency: "USD", Log: zerolog.Nop()}
	require.NoError(t, m.Reset(ctx))

	accounts, err := s.store.Accounts.List(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)
	n, err := s.store.Transactions.Count(ctx, "")
	require.NoError(t, err)
	require.Zero(t, n)
	series, err := s.store.Recurring.List(ctx, repository.RecurringFilters{})
	require.NoError(t, err)
	require.Empty(t, series)

	v, ok, err := s.store.Settings.Get(ctx, repository.SettingDefaultCurrency)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "USD", v)
}

func TestResetWithoutDB(t *testing.T) {
	t.Parallel()
	require.Error(t, (&MaintenanceService{}).Reset(t.Context()))
}
