package recurring

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// Link ties a transaction to a series.
type Link struct {
	TransactionID string
	RecurringID   string
}

// Spike is an occurrence priced well above its series average.
type Spike struct {
	RecurringID   string
	Name          string
	TransactionID string
	Date          time.Time
	Amount        int64
	Average       int64
}

// Plan is what one detection pass wants written. Nothing is persisted by Detect.
type Plan struct {
	Create []repository.RecurringTransaction
	Update []repository.RecurringTransaction
	Links  []Link
	Spikes []Spike
}

// Detect scans the lookback window for promoted clusters. Clusters matching an existing series
// refresh it; the rest become new active series. Status of existing series is never changed.
func Detect(history []repository.Transaction, existing []repository.RecurringTransaction, opts Options) Plan {
	opts = opts.withDefaults()
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var plan Plan
	updated := map[string]int{}
	series := make([]repository.RecurringTransaction, len(existing))
	copy(series, existing)

	groups, _ := groupBySignature(history, opts.windowStart(), opts.AsOf)
	dirs := linkedDirections(series, history)

	for _, c := range Clusters(history, opts) {
		if !c.Promoted {
			continue
		}
		idx := matchSeries(series, dirs, c, opts)
		var target repository.RecurringTransaction
		switch {
		case idx >= 0 && series[idx].IsExcluded:
			// marked as a false positive; stays suppressed
			continue
		case idx >= 0:
			target = series[idx]
			if !refresh(&target, c, opts) {
				continue
			}
			series[idx] = target
			if pos, ok := updated[target.ID]; ok {
				plan.Update[pos] = target
			} else {
				updated[target.ID] = len(plan.Update)
				plan.Update = append(plan.Update, target)
			}
		default:
			target = newSeries(newID(), c, opts)
			series = append(series, target)
			plan.Create = append(plan.Create, target)
		}

		for _, t := range c.Transactions {
			if target.EndDate != nil && t.Date.After(*target.EndDate) {
				continue
			}
			if t.RecurringID == nil || *t.RecurringID != target.ID {
				plan.Links = append(plan.Links, Link{TransactionID: t.ID, RecurringID: target.ID})
			}
		}
		plan.Spikes = append(plan.Spikes, spikes(target, c, groups[c.Signature], opts)...)
	}
	return plan
}

// matchSeries finds an existing series with the cluster's signature and amount band. Amounts
// compare by magnitude since direction is already part of the signature.
func matchSeries(series []repository.RecurringTransaction, dirs directions, c Cluster, opts Options) int {
	ref := abs64(c.Last().Amount)
	for i, s := range series {
		if dirs.signature(s) == c.Signature && opts.SameAmount(abs64(s.Amount), ref) {
			return i
		}
	}
	return -1
}

// refresh merges the cluster into an existing series. It reports false when nothing applies,
// e.g. every occurrence falls after the series ended.
func refresh(s *repository.RecurringTransaction, c Cluster, opts Options) bool {
	occ := occurrenceSet(s.Occurrences)
	added := false
	for _, t := range c.Transactions {
		if s.EndDate != nil && t.Date.After(*s.EndDate) {
			continue
		}
		if _, ok := occ[t.ID]; !ok {
			occ[t.ID] = t.Date
			added = true
		}
	}
	if !added && s.LastDetected != nil && !s.LastDetected.Before(opts.AsOf) {
		return false
	}
	s.Occurrences = sortedOccurrences(occ)
	if len(s.Occurrences) == 0 {
		return false
	}
	asOf := opts.AsOf
	s.LastDetected = &asOf
	if freq, conf, ok := Classify(Gaps(occurrenceDates(s.Occurrences))); ok {
		s.Frequency, s.Confidence = freq, conf
	}
	if s.StartDate.IsZero() || s.Occurrences[0].Date.Before(s.StartDate) {
		s.StartDate = s.Occurrences[0].Date
	}
	if !s.Status.Ended() {
		next := Advance(s.Occurrences[len(s.Occurrences)-1].Date, s.Frequency)
		s.NextExpected = &next
	}
	return true
}

func newSeries(id string, c Cluster, opts Options) repository.RecurringTransaction {
	last := c.Last()
	typ := repository.Subscription
	if c.Signature.Direction == repository.Credit {
		typ = repository.Income
	}
	asOf := opts.AsOf
	next := Advance(last.Date, c.Frequency)
	occ := make([]repository.Occurrence, len(c.Transactions))
	for i, t := range c.Transactions {
		occ[i] = repository.Occurrence{TransactionID: t.ID, Date: t.Date}
	}
	return repository.RecurringTransaction{
		ID:           id,
		AccountID:    c.Signature.AccountID,
		Name:         last.Merchant,
		Category:     dominantCategory(c.Transactions, typ),
		Amount:       last.Amount,
		Frequency:    c.Frequency,
		Type:         typ,
		Status:       repository.StatusActive,
		Occurrences:  occ,
		LastDetected: &asOf,
		NextExpected: &next,
		StartDate:    c.Transactions[0].Date,
		Confidence:   c.Confidence,
	}
}

// dominantCategory is the most frequent non-Other category, else the type default.
func dominantCategory(txns []repository.Transaction, typ repository.RecurringType) repository.Category {
	counts := map[repository.Category]int{}
	for _, t := range txns {
		if t.Category != "" && t.Category != repository.CategoryOther {
			counts[t.Category]++
		}
	}
	best, top := repository.Category(""), 0
	for _, c := range repository.Categories {
		if counts[c] > top {
			best, top = c, counts[c]
		}
	}
	if best == "" {
		return repository.DefaultCategory(typ)
	}
	return best
}

// spikes reports same-merchant charges since the series started that exceed the spike factor
// times the series average.
func spikes(s repository.RecurringTransaction, c Cluster, group []repository.Transaction, opts Options) []Spike {
	avg := c.AverageAbs()
	if avg == 0 {
		return nil
	}
	limit := float64(avg) * opts.SpikeFactor
	var out []Spike
	for _, t := range group {
		if t.Date.Before(s.StartDate) || float64(abs64(t.Amount)) <= limit {
			continue
		}
		out = append(out, Spike{
			RecurringID:   s.ID,
			Name:          s.Name,
			TransactionID: t.ID,
			Date:          t.Date,
			Amount:        t.Amount,
			Average:       avg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func occurrenceSet(occ []repository.Occurrence) map[string]time.Time {
	m := make(map[string]time.Time, len(occ))
	for _, o := range occ {
		m[o.TransactionID] = o.Date
	}
	return m
}

func sortedOccurrences(m map[string]time.Time) []repository.Occurrence {
	out := make([]repository.Occurrence, 0, len(m))
	for id, d := range m {
		out = append(out, repository.Occurrence{TransactionID: id, Date: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out
}

func occurrenceDates(occ []repository.Occurrence) []time.Time {
	out := make([]time.Time, len(occ))
	for i, o := range occ {
		out[i] = o.Date
	}
	return out
}
