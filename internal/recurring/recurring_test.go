package recurring

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txn(id, merchant string, d time.Time, amount int64) repository.Transaction {
	return repository.Transaction{
		ID: id, AccountID: "acct", Date: d, Amount: amount, Merchant: merchant,
		Direction: repository.DirectionOf(amount), Category: repository.CategoryOther,
	}
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
}

func opts(asOf time.Time) Options {
	o := DefaultOptions(asOf)
	o.NewID = seqIDs()
	return o
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		gaps []int
		want repository.Frequency
		conf float64
	}{
		{[]int{28, 31, 29}, repository.Monthly, 1},
		{[]int{6, 8, 7}, repository.Weekly, 1},
		{[]int{14, 14, 13}, repository.Biweekly, 1},
		{[]int{90, 92}, repository.Quarterly, 1},
		{[]int{365}, repository.Yearly, 1},
		{[]int{30, 31, 60, 29}, repository.Monthly, 0.75},
		{[]int{7, 30}, repository.Monthly, 0.5},
		{[]int{0, 0, 7}, repository.Weekly, 1},
	}
	for _, tt := range tests {
		got, conf, ok := Classify(tt.gaps)
		require.True(t, ok, "%v", tt.gaps)
		require.Equal(t, tt.want, got, "%v", tt.gaps)
		require.InDelta(t, tt.conf, conf, 1e-9, "%v", tt.gaps)
	}
	_, _, ok := Classify([]int{0, 0})
	require.False(t, ok)
}

func TestAdvanceClampsMonthEnd(t *testing.T) {
	t.Parallel()

	require.Equal(t, date(2024, 2, 29), Advance(date(2024, 1, 31), repository.Monthly))
	require.Equal(t, date(2024, 4, 30), Advance(date(2024, 1, 31), repository.Quarterly))
	require.Equal(t, date(2025, 2, 28), Advance(date(2024, 2, 29), repository.Yearly))
	require.Equal(t, date(2024, 1, 15), Advance(date(2024, 1, 1), repository.Biweekly))
}

func monthly(prefix, merchant string, amount int64, months ...time.Month) []repository.Transaction {
	var out []repository.Transaction
	for _, m := range months {
		out = append(out, txn(fmt.Sprintf("%s-%d", prefix, m), merchant, date(2024, m, 3), amount))
	}
	return out
}

func TestDetectPromotesMonthlySubscription(t *testing.T) {
	t.Parallel()

	history := monthly("nf", "Netflix.com", -1599, time.January, time.February, time.March)
	plan := Detect(history, nil, opts(date(2024, 4, 1)))

	require.Len(t, plan.Create, 1)
	s := plan.Create[0]
	require.Equal(t, "rec-1", s.ID)
	require.Equal(t, repository.Monthly, s.Frequency)
	require.Equal(t, repository.Subscription, s.Type)
	require.Equal(t, repository.StatusActive, s.Status)
	require.Equal(t, repository.CategorySubscriptions, s.Category)
	require.Equal(t, int64(-1599), s.Amount)
	require.Equal(t, date(2024, 1, 3), s.StartDate)
	require.Equal(t, date(2024, 4, 3), *s.NextExpected)
	require.Len(t, s.Occurrences, 3)
	require.Len(t, plan.Links, 3)
}

func TestDetectNeverPromotesSparseSeries(t *testing.T) {
	t.Parallel()

	// two months, four charges: neither threshold reached
	history := []repository.Transaction{
		txn("1", "Gym", date(2024, 1, 1), -3000),
		txn("2", "Gym", date(2024, 1, 8), -3000),
		txn("3", "Gym", date(2024, 2, 1), -3000),
		txn("4", "Gym", date(2024, 2, 8), -3000),
	}
	plan := Detect(history, nil, opts(date(2024, 3, 1)))
	require.Empty(t, plan.Create)

	// a fifth occurrence is enough even within two months
	history = append(history, txn("5", "Gym", date(2024, 2, 15), -3000))
	plan = Detect(history, nil, opts(date(2024, 3, 1)))
	require.Len(t, plan.Create, 1)
	require.Equal(t, repository.Weekly, plan.Create[0].Frequency)
}

func TestDetectSplitsAmountBands(t *testing.T) {
	t.Parallel()

	history := append(
		monthly("a", "Amazon", -999, time.January, time.February, time.March),
		monthly("b", "Amazon", -4999, time.January, time.February, time.March)...,
	)
	plan := Detect(history, nil, opts(date(2024, 4, 1)))
	require.Len(t, plan.Create, 2)
	require.Equal(t, int64(-999), plan.Create[0].Amount)
	require.Equal(t, int64(-4999), plan.Create[1].Amount)
}

func TestDetectIncomeAndDominantCategory(t *testing.T) {
	t.Parallel()

	history := monthly("pay", "Acme Payroll", 250000, time.January, time.February, time.March)
	for i := range history {
		history[i].Category = repository.CategoryIncome
	}
	history[0].Category = repository.CategoryTransfers
	plan := Detect(history, nil, opts(date(2024, 4, 1)))
	require.Len(t, plan.Create, 1)
	require.Equal(t, repository.Income, plan.Create[0].Type)
	require.Equal(t, repository.CategoryIncome, plan.Create[0].Category)
}

func TestDetectRefreshesExistingWithoutTouchingStatus(t *testing.T) {
	t.Parallel()

	history := monthly("sp", "Spotify", -999, time.January, time.February, time.March, time.April)
	old := date(2024, 3, 10)
	existing := repository.RecurringTransaction{
		ID: "sp-series", AccountID: "acct", Name: "SPOTIFY", Amount: -999, Frequency: repository.Monthly,
		Type: repository.Subscription, Status: repository.StatusPaused, StartDate: date(2024, 1, 3),
		LastDetected: &old,
		Occurrences: []repository.Occurrence{
			{TransactionID: "sp-1", Date: date(2024, 1, 3)},
			{TransactionID: "sp-2", Date: date(2024, 2, 3)},
		},
	}
	for i := range history[:2] {
		id := "sp-series"
		history[i].RecurringID = &id
	}

	plan := Detect(history, []repository.RecurringTransaction{existing}, opts(date(2024, 5, 1)))
	require.Empty(t, plan.Create)
	require.Len(t, plan.Update, 1)
	u := plan.Update[0]
	require.Equal(t, repository.StatusPaused, u.Status)
	require.Len(t, u.Occurrences, 4)
	require.Equal(t, date(2024, 5, 1), *u.LastDetected)
	require.Equal(t, date(2024, 5, 3), *u.NextExpected)
	require.Len(t, plan.Links, 2)
}

func TestDetectRespectsExclusionAndEndDate(t *testing.T) {
	t.Parallel()

	history := monthly("x", "Lottery", -500, time.January, time.February, time.March)
	excluded := repository.RecurringTransaction{ID: "ex", AccountID: "acct", Name: "Lottery", Amount: -500,
		Frequency: repository.Monthly, Type: repository.Subscription, Status: repository.StatusActive, IsExcluded: true}
	plan := Detect(history, []repository.RecurringTransaction{excluded}, opts(date(2024, 4, 1)))
	require.Empty(t, plan.Create)
	require.Empty(t, plan.Update)
	require.Empty(t, plan.Links)

	end := date(2024, 2, 10)
	cancelled := excluded
	cancelled.IsExcluded = false
	cancelled.Status = repository.StatusCancelled
	cancelled.EndDate, cancelled.CancelledAt = &end, &end
	plan = Detect(history, []repository.RecurringTransaction{cancelled}, opts(date(2024, 4, 1)))
	require.Empty(t, plan.Create)
	require.Len(t, plan.Update, 1)
	require.Equal(t, repository.StatusCancelled, plan.Update[0].Status)
	require.Len(t, plan.Update[0].Occurrences, 2)
	require.Nil(t, plan.Update[0].NextExpected)
}

func TestDetectReportsSpikes(t *testing.T) {
	t.Parallel()

	history := monthly("e", "Enel Energia", -6000, time.January, time.February, time.March, time.April)
	history = append(history, txn("e-spike", "Enel Energia", date(2024, 5, 3), -9500))
	plan := Detect(history, nil, opts(date(2024, 6, 1)))
	require.Len(t, plan.Create, 1)
	require.Len(t, plan.Spikes, 1)
	require.Equal(t, "e-spike", plan.Spikes[0].TransactionID)
	require.Equal(t, int64(6000), plan.Spikes[0].Average)
}

func TestDetectIgnoresHistoryOutsideLookback(t *testing.T) {
	t.Parallel()

	history := monthly("old", "Magazine", -500, time.January, time.February, time.March)
	o := opts(date(2025, 6, 1))
	plan := Detect(history, nil, o)
	require.Empty(t, plan.Create)
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	r := &repository.RecurringTransaction{ID: "r", Type: repository.Subscription, Status: repository.StatusActive, Amount: -100}
	require.NoError(t, Pause(r))
	require.Equal(t, repository.StatusPaused, r.Status)
	require.NoError(t, Pause(r))
	require.Equal(t, repository.StatusPaused, r.Status)
	require.NoError(t, Resume(r))
	require.Equal(t, repository.StatusActive, r.Status)

	require.ErrorIs(t, Complete(r, date(2024, 6, 1)), ErrNotLoan)

	at := date(2024, 6, 1)
	require.NoError(t, Cancel(r, at))
	require.Equal(t, repository.StatusCancelled, r.Status)
	require.Equal(t, at, *r.EndDate)
	require.Equal(t, at, *r.CancelledAt)

	for name, fn := range map[string]func() error{
		"pause":    func() error { return Pause(r) },
		"resume":   func() error { return Resume(r) },
		"cancel":   func() error { return Cancel(r, at) },
		"exclude":  func() error { return SetExcluded(r, true) },
		"complete": func() error { return Complete(r, at) },
	} {
		require.ErrorIs(t, fn(), ErrTerminal, name)
	}
	require.Equal(t, repository.StatusCancelled, r.Status)
	require.NoError(t, SetExcluded(r, false))
}

func TestCompleteLoan(t *testing.T) {
	t.Parallel()

	next := date(2024, 7, 1)
	r := &repository.RecurringTransaction{ID: "loan", Type: repository.Loan, Status: repository.StatusPaused, Amount: -25000, NextExpected: &next}
	require.NoError(t, Complete(r, date(2024, 6, 15)))
	require.Equal(t, repository.StatusCompleted, r.Status)
	require.NotNil(t, r.EndDate)
	require.Nil(t, r.NextExpected)
	require.ErrorIs(t, ChangeType(r, repository.Bill), ErrTerminal)
}

func TestChangeType(t *testing.T) {
	t.Parallel()

	r := &repository.RecurringTransaction{ID: "r", Type: repository.Subscription, Category: repository.CategoryEntertainment,
		Status: repository.StatusActive, Amount: -1500}

	require.NoError(t, ChangeType(r, repository.Bill))
	require.Equal(t, int64(-1500), r.Amount)
	require.Equal(t, repository.CategoryEntertainment, r.Category)

	require.NoError(t, ChangeType(r, repository.Income))
	require.Equal(t, int64(1500), r.Amount)
	require.Equal(t, repository.CategoryIncome, r.Category)

	require.NoError(t, ChangeType(r, repository.Loan))
	require.Equal(t, int64(-1500), r.Amount)
	require.Equal(t, repository.CategoryLoans, r.Category)

	require.NoError(t, ChangeType(r, repository.Bill))
	require.Equal(t, repository.CategoryBills, r.Category)

	require.Error(t, ChangeType(r, repository.RecurringType("gift")))
}

func TestMergeConservesOccurrences(t *testing.T) {
	t.Parallel()

	target := &repository.RecurringTransaction{
		ID: "t", AccountID: "acct", Status: repository.StatusPaused, Type: repository.Bill, Frequency: repository.Monthly,
		StartDate: date(2024, 2, 1),
		Occurrences: []repository.Occurrence{
			{TransactionID: "a", Date: date(2024, 2, 1)},
			{TransactionID: "b", Date: date(2024, 3, 1)},
		},
	}
	source := &repository.RecurringTransaction{
		ID: "s", AccountID: "acct", Status: repository.StatusActive, Type: repository.Subscription, Frequency: repository.Monthly,
		StartDate: date(2024, 1, 1),
		Occurrences: []repository.Occurrence{
			{TransactionID: "z", Date: date(2024, 1, 1)},
			{TransactionID: "b", Date: date(2024, 3, 1)},
			{TransactionID: "c", Date: date(2024, 4, 1)},
		},
	}
	require.NoError(t, Merge(target, source))
	var ids []string
	for _, o := range target.Occurrences {
		ids = append(ids, o.TransactionID)
	}
	require.Equal(t, []string{"z", "a", "b", "c"}, ids)
	require.Equal(t, repository.StatusPaused, target.Status)
	require.Equal(t, repository.Bill, target.Type)
	require.Equal(t, date(2024, 1, 1), target.StartDate)
	require.Equal(t, date(2024, 5, 1), *target.NextExpected)

	require.ErrorIs(t, Merge(target, target), ErrSelfMerge)
	other := &repository.RecurringTransaction{ID: "o", AccountID: "other"}
	require.True(t, errors.Is(Merge(target, other), ErrAccountMismatch))
}

func TestValidateManual(t *testing.T) {
	t.Parallel()

	ok := repository.RecurringTransaction{AccountID: "a", Name: "Rent", Amount: -90000, Frequency: repository.Monthly,
		Type: repository.Bill, StartDate: date(2024, 1, 1)}
	require.NoError(t, ValidateManual(ok))

	bad := ok
	bad.Amount = 90000
	require.Error(t, ValidateManual(bad))

	income := ok
	income.Type = repository.Income
	require.Error(t, ValidateManual(income))
	income.Amount = 90000
	require.NoError(t, ValidateManual(income))

	noFreq := ok
	noFreq.Frequency = "daily"
	require.Error(t, ValidateManual(noFreq))
}

func TestFindMergeCandidates(t *testing.T) {
	t.Parallel()

	series := []repository.RecurringTransaction{
		{ID: "1", AccountID: "a", Name: "Netflix.com", Amount: -1599, Frequency: repository.Monthly, StartDate: date(2023, 1, 1)},
		{ID: "2", AccountID: "a", Name: "Netflix com", Amount: -1599, Frequency: repository.Monthly, StartDate: date(2024, 1, 1)},
		{ID: "3", AccountID: "a", Name: "Netflix.com", Amount: -1599, Frequency: repository.Yearly, StartDate: date(2024, 1, 1)},
		{ID: "4", AccountID: "b", Name: "Netflix.com", Amount: -1599, Frequency: repository.Monthly, StartDate: date(2024, 1, 1)},
		{ID: "5", AccountID: "a", Name: "Spotify", Amount: -1599, Frequency: repository.Monthly, StartDate: date(2024, 1, 1)},
	}
	got := FindMergeCandidates(series, DefaultOptions(date(2024, 6, 1)))
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].TargetID)
	require.Equal(t, "2", got[0].SourceID)
	require.InDelta(t, 1.0, got[0].Similarity, 1e-9)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, Similarity("netflix", "netflix"), 1e-9)
	require.InDelta(t, 1-1.0/7, Similarity("netflix", "netflx"), 1e-9)
	require.Less(t, Similarity("netflix", "spotify"), 0.5)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	end := date(2024, 3, 15)
	series := []repository.RecurringTransaction{
		{ID: "gym", AccountID: "acct", Name: "City Gym", Amount: -4000, Frequency: repository.Monthly,
			Type: repository.Subscription, Status: repository.StatusCancelled, StartDate: date(2024, 1, 5), EndDate: &end, CancelledAt: &end},
		{ID: "junk", AccountID: "acct", Name: "Coffee", Amount: -300, Frequency: repository.Weekly,
			Type: repository.Subscription, Status: repository.StatusActive, StartDate: date(2024, 1, 1), IsExcluded: true},
	}
	gone, junk := "deleted-series", "junk"
	history := []repository.Transaction{
		txn("g1", "CITY GYM", date(2024, 1, 5), -4000),
		txn("g2", "City Gym.", date(2024, 2, 5), -4000),
		txn("g3", "City Gym", date(2024, 4, 5), -4000),
		txn("orphan", "Bakery", date(2024, 1, 9), -250),
		txn("c1", "Coffee", date(2024, 1, 10), -300),
	}
	history[3].RecurringID = &gone
	history[4].RecurringID = &junk
	for i, m := range []time.Month{time.January, time.February, time.March, time.April} {
		history = append(history, txn(fmt.Sprintf("ins-%d", i), "Allianz", date(2024, m, 20), -5500))
	}

	plan := Repair(history, series, opts(date(2024, 5, 1)))
	require.ElementsMatch(t, []string{"orphan", "c1"}, plan.Unlink)
	require.Empty(t, plan.Errors)

	linked := map[string]string{}
	for _, l := range plan.Links {
		linked[l.TransactionID] = l.RecurringID
	}
	require.Equal(t, "gym", linked["g1"])
	require.Equal(t, "gym", linked["g2"])
	require.NotContains(t, linked, "g3")
	require.NotContains(t, linked, "c1")

	require.Len(t, plan.Update, 1)
	require.Equal(t, "gym", plan.Update[0].ID)
	require.Len(t, plan.Update[0].Occurrences, 2)
	require.Nil(t, plan.Update[0].NextExpected)

	require.Len(t, plan.Create, 1)
	require.Equal(t, "Allianz", plan.Create[0].Name)
	require.Equal(t, "rec-1", linked["ins-0"])
}

func TestRepairKeepsGoingPastBrokenSeries(t *testing.T) {
	t.Parallel()

	series := []repository.RecurringTransaction{
		{ID: "water", AccountID: "acct", Name: "Water Co", Amount: -3000,
			Type: repository.Bill, Status: repository.StatusActive, StartDate: date(2024, 1, 7)},
		{ID: "nf", AccountID: "acct", Name: "Netflix", Amount: -1599, Frequency: repository.Monthly,
			Type: repository.Subscription, Status: repository.StatusActive, StartDate: date(2024, 1, 15)},
	}
	history := []repository.Transaction{
		txn("w1", "Water Co", date(2024, 1, 7), -3000),
		txn("n1", "Netflix", date(2024, 1, 15), -1599),
		txn("n2", "NETFLIX.", date(2024, 2, 15), -1599),
	}

	plan := Repair(history, series, opts(date(2024, 3, 1)))
	require.Len(t, plan.Errors, 1)
	require.Contains(t, plan.Errors[0], "water")

	require.Len(t, plan.Update, 1)
	require.Equal(t, "nf", plan.Update[0].ID)
	require.Len(t, plan.Update[0].Occurrences, 2)
	require.Equal(t, date(2024, 3, 15), *plan.Update[0].NextExpected)

	linked := map[string]string{}
	for _, l := range plan.Links {
		linked[l.TransactionID] = l.RecurringID
	}
	require.Equal(t, map[string]string{"n1": "nf", "n2": "nf"}, linked)
	require.Empty(t, plan.Create)
}

func TestDetectFollowsLinkedDirectionAfterTypeChange(t *testing.T) {
	t.Parallel()

	history := monthly("nf", "Netflix", -1599, time.January, time.February, time.March, time.April, time.May)
	plan := Detect(history, nil, opts(date(2024, 6, 1)))
	require.Len(t, plan.Create, 1)

	s := plan.Create[0]
	require.NoError(t, ChangeType(&s, repository.Income))
	require.Equal(t, int64(1599), s.Amount)

	history = append(history, txn("nf-6", "Netflix", date(2024, 6, 3), -1599))
	again := Detect(history, []repository.RecurringTransaction{s}, opts(date(2024, 6, 10)))
	require.Empty(t, again.Create)
	require.Len(t, again.Update, 1)
	require.Equal(t, s.ID, again.Update[0].ID)
	require.Len(t, again.Update[0].Occurrences, 6)
	require.Equal(t, []Link{{TransactionID: "nf-6", RecurringID: s.ID}}, onlyNew(again.Links, history[:5]))

	repair := Repair(history, []repository.RecurringTransaction{s}, opts(date(2024, 6, 10)))
	require.Empty(t, repair.Create)
	require.Empty(t, repair.Unlink)
}

// onlyNew drops links of transactions already in seen.
func onlyNew(links []Link, seen []repository.Transaction) []Link {
	old := map[string]bool{}
	for _, t := range seen {
		old[t.ID] = true
	}
	var out []Link
	for _, l := range links {
		if !old[l.TransactionID] {
			out = append(out, l)
		}
	}
	return out
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	asOf := date(2024, 6, 1)
	soon, later, overdue := date(2024, 6, 10), date(2024, 8, 1), date(2024, 5, 25)
	series := []repository.RecurringTransaction{
		{ID: "rent", Name: "Rent", Amount: -100000, Frequency: repository.Monthly, Status: repository.StatusActive, NextExpected: &soon},
		{ID: "gym", Name: "Gym", Amount: -1000, Frequency: repository.Weekly, Status: repository.StatusActive, NextExpected: &overdue},
		{ID: "pay", Name: "Salary", Amount: 300000, Frequency: repository.Monthly, Status: repository.StatusActive, NextExpected: &later},
		{ID: "ins", Name: "Insurance", Amount: -120000, Frequency: repository.Yearly, Status: repository.StatusPaused},
		{ID: "fp", Name: "Noise", Amount: -500, Frequency: repository.Monthly, Status: repository.StatusActive, IsExcluded: true},
	}
	s := Summarize(series, asOf)
	require.Equal(t, 3, s.Active)
	require.Equal(t, 1, s.Paused)
	require.Equal(t, 1, s.Excluded)
	require.Equal(t, int64(100000+4333), s.MonthlyOutflow)
	require.Equal(t, int64(300000), s.MonthlyInflow)
	require.Len(t, s.DueSoon, 2)
	require.Equal(t, "gym", s.DueSoon[0].ID)
	require.Equal(t, date(2024, 6, 1), s.DueSoon[0].Date)
	require.Equal(t, "rent", s.DueSoon[1].ID)
}
