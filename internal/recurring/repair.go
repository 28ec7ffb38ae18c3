package recurring

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/merchant"
)

// RepairPlan is the outcome of a sync & repair pass before persistence.
type RepairPlan struct {
	Unlink []string
	Links  []Link
	Update []repository.RecurringTransaction
	Create []repository.RecurringTransaction
	Errors []string
}

// Repair re-links history against existing series. Back-references to missing or excluded
// series are cleared, unlinked transactions are matched by signature (fuzzy merchant allowed)
// without crossing a series' end date, and only promoted clusters of leftovers with high
// confidence create new series.
func Repair(history []repository.Transaction, existing []repository.RecurringTransaction, opts Options) RepairPlan {
	opts = opts.withDefaults()
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var plan RepairPlan
	byID := make(map[string]int, len(existing))
	series := make([]repository.RecurringTransaction, len(existing))
	for i, s := range existing {
		series[i] = s
		byID[s.ID] = i
	}
	occ := make([]map[string]struct{}, len(series))
	for i, s := range series {
		occ[i] = map[string]struct{}{}
		for _, o := range s.Occurrences {
			occ[i][o.TransactionID] = struct{}{}
		}
	}
	dirs := linkedDirections(series, history)
	touched := map[int]bool{}
	addOccurrence := func(i int, t repository.Transaction) {
		if _, ok := occ[i][t.ID]; ok {
			return
		}
		occ[i][t.ID] = struct{}{}
		series[i].Occurrences = append(series[i].Occurrences, repository.Occurrence{TransactionID: t.ID, Date: t.Date})
		touched[i] = true
	}

	var leftovers []repository.Transaction
	for _, t := range history {
		if t.RecurringID != nil {
			i, ok := byID[*t.RecurringID]
			switch {
			case !ok || series[i].IsExcluded:
				plan.Unlink = append(plan.Unlink, t.ID)
				t.RecurringID = nil
			default:
				addOccurrence(i, t)
				continue
			}
		}
		if t.Amount == 0 {
			continue
		}
		if i := bestSeries(series, dirs, t, opts); i >= 0 {
			plan.Links = append(plan.Links, Link{TransactionID: t.ID, RecurringID: series[i].ID})
			addOccurrence(i, t)
			continue
		}
		leftovers = append(leftovers, t)
	}

	idx := make([]int, 0, len(touched))
	for i := range touched {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	broken := map[string]bool{}
	for _, i := range idx {
		s := series[i]
		s.Occurrences = sortedOccurrences(occurrenceSet(s.Occurrences))
		if s.Frequency == "" {
			plan.Errors = append(plan.Errors, fmt.Sprintf("recurring %s: missing frequency", s.ID))
			broken[s.ID] = true
			continue
		}
		if s.StartDate.IsZero() || s.Occurrences[0].Date.Before(s.StartDate) {
			s.StartDate = s.Occurrences[0].Date
		}
		asOf := opts.AsOf
		s.LastDetected = &asOf
		if !s.Status.Ended() {
			next := Advance(s.Occurrences[len(s.Occurrences)-1].Date, s.Frequency)
			s.NextExpected = &next
		}
		plan.Update = append(plan.Update, s)
	}
	if len(broken) > 0 {
		links := plan.Links[:0]
		for _, l := range plan.Links {
			if !broken[l.RecurringID] {
				links = append(links, l)
			}
		}
		plan.Links = links
	}

	for _, c := range Clusters(leftovers, opts) {
		if !c.Promoted || c.Confidence < opts.SyncMinConfidence {
			continue
		}
		// excluded or ended series with this signature suppress re-creation
		if matchSeries(series, dirs, c, opts) >= 0 {
			continue
		}
		s := newSeries(newID(), c, opts)
		plan.Create = append(plan.Create, s)
		for _, t := range c.Transactions {
			plan.Links = append(plan.Links, Link{TransactionID: t.ID, RecurringID: s.ID})
		}
	}
	return plan
}

// bestSeries picks the non-excluded series that best matches t, or -1.
func bestSeries(series []repository.RecurringTransaction, dirs directions, t repository.Transaction, opts Options) int {
	key := merchant.Key(t.Merchant)
	dir := repository.DirectionOf(t.Amount)
	amount := abs64(t.Amount)
	best, bestSim := -1, 0.0
	for i, s := range series {
		if s.IsExcluded || s.AccountID != t.AccountID || dirs.of(s) != dir {
			continue
		}
		if s.EndDate != nil && t.Date.After(*s.EndDate) {
			continue
		}
		if !opts.SameAmount(abs64(s.Amount), amount) {
			continue
		}
		sim := Similarity(merchant.Key(s.Name), key)
		if sim < opts.MerchantSimilarity {
			continue
		}
		if sim > bestSim || (sim == bestSim && best >= 0 && abs64(abs64(s.Amount)-amount) < abs64(abs64(series[best].Amount)-amount)) {
			best, bestSim = i, sim
		}
	}
	return best
}
