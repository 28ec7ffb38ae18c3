package recurring

import (
	"sort"
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// Due is one expected charge or income.
type Due struct {
	ID     string
	Name   string
	Amount int64
	Date   time.Time
}

// Summary aggregates the shown-active series.
type Summary struct {
	Active         int
	Paused         int
	Ended          int
	Excluded       int
	MonthlyOutflow int64
	MonthlyInflow  int64
	DueSoon        []Due
}

// DueWindowDays is how far ahead Summarize looks for upcoming items.
const DueWindowDays = 30

// Summarize counts series by state and projects the shown-active ones. Excluded series are
// never counted as active.
func Summarize(series []repository.RecurringTransaction, asOf time.Time) Summary {
	var s Summary
	horizon := asOf.AddDate(0, 0, DueWindowDays)
	for _, r := range series {
		switch {
		case r.IsExcluded:
			s.Excluded++
			continue
		case r.Status.Ended():
			s.Ended++
			continue
		case r.Status == repository.StatusPaused:
			s.Paused++
			continue
		}
		s.Active++
		monthly := MonthlyEquivalent(r.Amount, r.Frequency)
		if monthly < 0 {
			s.MonthlyOutflow += -monthly
		} else {
			s.MonthlyInflow += monthly
		}
		if r.NextExpected == nil {
			continue
		}
		next := *r.NextExpected
		for next.Before(asOf) {
			next = Advance(next, r.Frequency)
		}
		if !next.After(horizon) {
			s.DueSoon = append(s.DueSoon, Due{ID: r.ID, Name: r.Name, Amount: r.Amount, Date: next})
		}
	}
	sort.SliceStable(s.DueSoon, func(i, j int) bool { return s.DueSoon[i].Date.Before(s.DueSoon[j].Date) })
	return s
}
