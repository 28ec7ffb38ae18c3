package ingest

import (
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// DateRange is an inclusive span of calendar days. Zero values mean empty.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Empty reports whether no date was seen.
func (r DateRange) Empty() bool { return r.From.IsZero() }

// Extend widens the range to include d.
func (r *DateRange) Extend(d time.Time) {
	if r.From.IsZero() || d.Before(r.From) {
		r.From = d
	}
	if r.To.IsZero() || d.After(r.To) {
		r.To = d
	}
}

// ParseResult is the annotated import preview.
type ParseResult struct {
	Transactions   []Candidate
	TotalRows      int
	NewCount       int
	DuplicateCount int
	SkippedCount   int
	Skipped        []RowSkipped
	DateRange      DateRange
}

// SpanOf returns the date range covered by candidates.
func SpanOf(candidates []Candidate) DateRange {
	var r DateRange
	for _, c := range candidates {
		r.Extend(c.Txn.Date)
	}
	return r
}

// Resolve flags candidates whose fingerprint already exists. Only exact matches count.
func Resolve(candidates []Candidate, existing []repository.Transaction) ParseResult {
	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		fp := e.Fingerprint
		if fp == "" {
			fp = FingerprintOf(e)
		}
		known[fp] = struct{}{}
	}

	res := ParseResult{Transactions: make([]Candidate, len(candidates)), TotalRows: len(candidates)}
	for i, c := range candidates {
		_, dup := known[c.Txn.Fingerprint]
		c.IsDuplicate = dup
		if dup {
			res.DuplicateCount++
		} else {
			res.NewCount++
		}
		res.DateRange.Extend(c.Txn.Date)
		res.Transactions[i] = c
	}
	return res
}

// New returns the non-duplicate candidates in file order.
func (r ParseResult) New() []Candidate {
	out := make([]Candidate, 0, r.NewCount)
	for _, c := range r.Transactions {
		if !c.IsDuplicate {
			out = append(out, c)
		}
	}
	return out
}
