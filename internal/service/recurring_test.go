package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/recurring"
)

// seedSubscriptions writes four monthly Netflix and Spotify charges, Jan to Apr 2024.
func seedSubscriptions(t *testing.T, ctx context.Context, s *services) {
	t.Helper()
	insertAccount(t, ctx, s.store, "acc", ptr(int64(100000)), ptr(day(2024, 1, 1)))
	for m := time.January; m <= time.April; m++ {
		insertTxn(t, ctx, s.store, fmt.Sprintf("nf-%d", m), "acc", day(2024, m, 15), -1599, "Netflix")
		insertTxn(t, ctx, s.store, fmt.Sprintf("sp-%d", m), "acc", day(2024, m, 20), -999, "Spotify")
	}
	n := 0
	s.recurring.NewID = func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
}

func seriesNamed(t *testing.T, ctx context.Context, s *services, name string) repository.RecurringTransaction {
	t.Helper()
	all, err := s.recurring.List(ctx, repository.RecurringFilters{AccountID: "acc"})
	require.NoError(t, err)
	for _, r := range all {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no series named %s", name)
	return repository.RecurringTransaction{}
}

func linkOf(t *testing.T, ctx context.Context, s *services, id string) *string {
	t.Helper()
	txn, err := s.store.Transactions.Get(ctx, id)
	require.NoError(t, err)
	return txn.RecurringID
}

func TestAutoDetectCreatesAndLinks(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)

	rep, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, 2, rep.Created)
	require.Equal(t, 8, rep.Linked)

	nf := seriesNamed(t, ctx, s, "Netflix")
	require.Equal(t, repository.Monthly, nf.Frequency)
	require.Equal(t, repository.StatusActive, nf.Status)
	require.Equal(t, int64(-1599), nf.Amount)
	require.Len(t, nf.Occurrences, 4)
	require.Equal(t, day(2024, 5, 15), *nf.NextExpected)
	require.Equal(t, nf.ID, *linkOf(t, ctx, s, "nf-3"))

	v, ok, err := s.store.Settings.Get(ctx, repository.SettingLastDetectAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2024-05-01", v)

	again, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	require.Zero(t, again.Created)

	reps, err := s.recurring.AutoDetectAll(ctx)
	require.NoError(t, err)
	require.Len(t, reps, 1)

	_, err = s.recurring.AutoDetect(ctx, "missing")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRecurringLifecycleThroughService(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")

	paused, err := s.recurring.Pause(ctx, nf.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaused, paused.Status)

	resumed, err := s.recurring.Resume(ctx, nf.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusActive, resumed.Status)
	require.Equal(t, day(2024, 5, 15), *resumed.NextExpected)

	cancelled, err := s.recurring.Cancel(ctx, nf.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusCancelled, cancelled.Status)
	require.Equal(t, day(2024, 5, 1), *cancelled.EndDate)
	require.Nil(t, cancelled.NextExpected)

	_, err = s.recurring.Pause(ctx, nf.ID)
	require.ErrorIs(t, err, recurring.ErrTerminal)

	stored, err := s.recurring.Get(ctx, nf.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusCancelled, stored.Status)

	_, err = s.recurring.Pause(ctx, "missing")
	require.ErrorIs(t, err, ErrRecurringNotFound)
}

func TestCompleteRequiresLoan(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	sp := seriesNamed(t, ctx, s, "Spotify")

	_, err = s.recurring.Complete(ctx, sp.ID)
	require.ErrorIs(t, err, recurring.ErrNotLoan)

	loan, err := s.recurring.ChangeType(ctx, sp.ID, repository.Loan)
	require.NoError(t, err)
	require.Equal(t, repository.Loan, loan.Type)
	require.Equal(t, int64(-999), loan.Amount)

	done, err := s.recurring.Complete(ctx, sp.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusCompleted, done.Status)
	require.Equal(t, day(2024, 5, 1), *done.EndDate)
}

func TestExcludeClearsLinksAndSuppressesDetection(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")

	excluded, err := s.recurring.SetExcluded(ctx, nf.ID, true)
	require.NoError(t, err)
	require.True(t, excluded.IsExcluded)
	require.Nil(t, linkOf(t, ctx, s, "nf-1"))

	rep, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	require.Zero(t, rep.Created)
	require.Nil(t, linkOf(t, ctx, s, "nf-1"))

	sum, err := s.recurring.Summary(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, 1, sum.Active)
	require.Equal(t, 1, sum.Excluded)
}

func TestMergeRelinksAndDeletesSource(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")
	sp := seriesNamed(t, ctx, s, "Spotify")

	merged, err := s.recurring.Merge(ctx, nf.ID, sp.ID)
	require.NoError(t, err)
	require.Len(t, merged.Occurrences, 8)
	require.Equal(t, day(2024, 5, 20), *merged.NextExpected)

	_, err = s.recurring.Get(ctx, sp.ID)
	require.ErrorIs(t, err, ErrRecurringNotFound)
	require.Equal(t, nf.ID, *linkOf(t, ctx, s, "sp-2"))

	_, err = s.recurring.Merge(ctx, nf.ID, nf.ID)
	require.ErrorIs(t, err, recurring.ErrSelfMerge)
	_, err = s.recurring.Merge(ctx, nf.ID, sp.ID)
	require.ErrorIs(t, err, ErrRecurringNotFound)
}

func TestDeleteUnlinksTransactions(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")

	require.NoError(t, s.recurring.Delete(ctx, nf.ID))
	require.Nil(t, linkOf(t, ctx, s, "nf-4"))
	require.ErrorIs(t, s.recurring.Delete(ctx, nf.ID), ErrRecurringNotFound)
}

func TestCreateManualSchedulesNextOccurrence(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 10))
	insertAccount(t, ctx, s.store, "acc", nil, nil)

	r, err := s.recurring.CreateManual(ctx, repository.RecurringTransaction{
		AccountID: "acc",
		Name:      "Mortgage",
		Amount:    -85000,
		Frequency: repository.Monthly,
		Type:      repository.Loan,
		StartDate: day(2024, 1, 31),
	})
	require.NoError(t, err)
	require.True(t, r.IsManual)
	require.Equal(t, repository.DefaultCategory(repository.Loan), r.Category)
	require.False(t, r.NextExpected.Before(day(2024, 5, 10)))

	stored, err := s.recurring.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "Mortgage", stored.Name)

	_, err = s.recurring.CreateManual(ctx, repository.RecurringTransaction{AccountID: "acc", Name: "Broken", Frequency: repository.Monthly, StartDate: day(2024, 1, 1)})
	require.Error(t, err)

	_, err = s.recurring.CreateManual(ctx, repository.RecurringTransaction{AccountID: "ghost", Name: "Gym", Amount: -1200, Frequency: repository.Weekly, StartDate: day(2024, 1, 1)})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSyncAndRepairRelinks(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")
	sp := seriesNamed(t, ctx, s, "Spotify")

	ghost := "ghost"
	require.NoError(t, s.store.Transactions.SetRecurring(ctx, "nf-2", nil))
	require.NoError(t, s.store.Transactions.SetRecurring(ctx, "sp-3", &ghost))

	res, err := s.recurring.SyncAndRepair(ctx, "")
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Unlinked)
	require.Equal(t, 2, res.TransactionsLinked)
	require.Zero(t, res.NewRecurringCreated)
	require.Equal(t, nf.ID, *linkOf(t, ctx, s, "nf-2"))
	require.Equal(t, sp.ID, *linkOf(t, ctx, s, "sp-3"))

	_, err = s.recurring.SyncAndRepair(ctx, "missing")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAutoDetectAfterTypeChangeKeepsOneSeries(t *testing.T) {
	t.Parallel()
	s, ctx := newServices(t, day(2024, 5, 1))
	seedSubscriptions(t, ctx, s)
	_, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	nf := seriesNamed(t, ctx, s, "Netflix")

	changed, err := s.recurring.ChangeType(ctx, nf.ID, repository.Income)
	require.NoError(t, err)
	require.Equal(t, int64(1599), changed.Amount)

	rep, err := s.recurring.AutoDetect(ctx, "acc")
	require.NoError(t, err)
	require.Zero(t, rep.Created)

	all, err := s.recurring.List(ctx, repository.RecurringFilters{AccountID: "acc"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	stored := seriesNamed(t, ctx, s, "Netflix")
	require.Equal(t, nf.ID, stored.ID)
	require.Equal(t, repository.Income, stored.Type)
	require.Len(t, stored.Occurrences, 4)
	require.Equal(t, nf.ID, *linkOf(t, ctx, s, "nf-4"))

	res, err := s.recurring.SyncAndRepair(ctx, "acc")
	require.NoError(t, err)
	require.Zero(t, res.NewRecurringCreated)
	require.Zero(t, res.Unlinked)
}
