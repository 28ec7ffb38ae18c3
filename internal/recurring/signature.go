package recurring

import (
	"math"
	"sort"
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/merchant"
)

// Options tunes detection. Zero fields take the defaults from DefaultOptions.
type Options struct {
	AsOf               time.Time
	LookbackMonths     int
	MinMonths          int
	MinOccurrences     int
	AmountTolerancePct float64
	SpikeFactor        float64
	SyncMinConfidence  float64
	MerchantSimilarity float64
	// MajorUnit is one whole currency unit in minor units.
	MajorUnit int64
	NewID     func() string
}

// DefaultOptions returns the documented thresholds.
func DefaultOptions(asOf time.Time) Options {
	return Options{
		AsOf:               asOf,
		LookbackMonths:     12,
		MinMonths:          3,
		MinOccurrences:     5,
		AmountTolerancePct: 5,
		SpikeFactor:        1.5,
		SyncMinConfidence:  0.8,
		MerchantSimilarity: 0.8,
		MajorUnit:          100,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions(o.AsOf)
	if o.LookbackMonths <= 0 {
		o.LookbackMonths = def.LookbackMonths
	}
	if o.MinMonths <= 0 {
		o.MinMonths = def.MinMonths
	}
	if o.MinOccurrences <= 0 {
		o.MinOccurrences = def.MinOccurrences
	}
	if o.AmountTolerancePct <= 0 {
		o.AmountTolerancePct = def.AmountTolerancePct
	}
	if o.SpikeFactor <= 1 {
		o.SpikeFactor = def.SpikeFactor
	}
	if o.SyncMinConfidence <= 0 {
		o.SyncMinConfidence = def.SyncMinConfidence
	}
	if o.MerchantSimilarity <= 0 {
		o.MerchantSimilarity = def.MerchantSimilarity
	}
	if o.MajorUnit <= 0 {
		o.MajorUnit = def.MajorUnit
	}
	if o.AsOf.IsZero() {
		n := time.Now()
		o.AsOf = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	}
	return o
}

// windowStart is the first day inside the lookback window.
func (o Options) windowStart() time.Time {
	return o.AsOf.AddDate(0, -o.LookbackMonths, 0)
}

// SameAmount reports whether two signed amounts fall in one tolerance band:
// max(one major unit, pct of the larger magnitude).
func (o Options) SameAmount(a, b int64) bool {
	if (a < 0) != (b < 0) {
		return false
	}
	ref := abs64(a)
	if abs64(b) > ref {
		ref = abs64(b)
	}
	tol := int64(math.Round(float64(ref) * o.AmountTolerancePct / 100))
	if tol < o.MajorUnit {
		tol = o.MajorUnit
	}
	return abs64(abs64(a)-abs64(b)) <= tol
}

// Signature identifies a merchant stream within an account.
type Signature struct {
	AccountID   string
	Direction   repository.Direction
	MerchantKey string
}

// SignatureOf derives the signature of a transaction.
func SignatureOf(t repository.Transaction) Signature {
	return Signature{AccountID: t.AccountID, Direction: repository.DirectionOf(t.Amount), MerchantKey: merchant.Key(t.Merchant)}
}

// SeriesSignature derives the signature of a recurring series.
func SeriesSignature(r repository.RecurringTransaction) Signature {
	return Signature{AccountID: r.AccountID, Direction: repository.DirectionOf(r.Amount), MerchantKey: merchant.Key(r.Name)}
}

// directions holds the money-flow direction of each series as seen in its linked history.
type directions map[string]repository.Direction

// linkedDirections derives each series' direction from the majority of its occurrence
// transactions. A type change flips the stored amount sign, not the underlying flow.
func linkedDirections(series []repository.RecurringTransaction, history []repository.Transaction) directions {
	byTxn := make(map[string]repository.Direction, len(history))
	for _, t := range history {
		if t.Amount != 0 {
			byTxn[t.ID] = repository.DirectionOf(t.Amount)
		}
	}
	out := directions{}
	for _, s := range series {
		var debit, credit int
		for _, o := range s.Occurrences {
			switch byTxn[o.TransactionID] {
			case repository.Debit:
				debit++
			case repository.Credit:
				credit++
			}
		}
		switch {
		case debit > credit:
			out[s.ID] = repository.Debit
		case credit > debit:
			out[s.ID] = repository.Credit
		}
	}
	return out
}

// of falls back to the amount sign for series with no linked history.
func (d directions) of(s repository.RecurringTransaction) repository.Direction {
	if dir, ok := d[s.ID]; ok {
		return dir
	}
	return repository.DirectionOf(s.Amount)
}

// signature is SeriesSignature with the direction taken from linked history.
func (d directions) signature(s repository.RecurringTransaction) Signature {
	sig := SeriesSignature(s)
	sig.Direction = d.of(s)
	return sig
}

func (s Signature) less(o Signature) bool {
	if s.AccountID != o.AccountID {
		return s.AccountID < o.AccountID
	}
	if s.Direction != o.Direction {
		return s.Direction < o.Direction
	}
	return s.MerchantKey < o.MerchantKey
}

// Cluster is a set of same-signature transactions within one amount band, sorted by date.
type Cluster struct {
	Signature    Signature
	Transactions []repository.Transaction
	Months       int
	Frequency    repository.Frequency
	Confidence   float64
	Promoted     bool
}

// Dates returns the occurrence dates in order.
func (c Cluster) Dates() []time.Time {
	out := make([]time.Time, len(c.Transactions))
	for i, t := range c.Transactions {
		out[i] = t.Date
	}
	return out
}

// Last is the newest transaction of the cluster.
func (c Cluster) Last() repository.Transaction {
	return c.Transactions[len(c.Transactions)-1]
}

// AverageAbs is the mean magnitude of the cluster's amounts.
func (c Cluster) AverageAbs() int64 {
	var sum int64
	for _, t := range c.Transactions {
		sum += abs64(t.Amount)
	}
	return roundDiv(sum, int64(len(c.Transactions)))
}

// groupBySignature buckets transactions inside the window, skipping zero amounts.
func groupBySignature(history []repository.Transaction, from, to time.Time) (map[Signature][]repository.Transaction, []Signature) {
	groups := map[Signature][]repository.Transaction{}
	for _, t := range history {
		if t.Amount == 0 || t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		sig := SignatureOf(t)
		if sig.MerchantKey == "" {
			continue
		}
		groups[sig] = append(groups[sig], t)
	}
	keys := make([]Signature, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return groups, keys
}

// Clusters splits each signature group into amount bands and classifies them.
func Clusters(history []repository.Transaction, opts Options) []Cluster {
	opts = opts.withDefaults()
	groups, keys := groupBySignature(history, opts.windowStart(), opts.AsOf)
	var out []Cluster
	for _, sig := range keys {
		for _, txns := range bandByAmount(groups[sig], opts) {
			out = append(out, classifyCluster(sig, txns, opts))
		}
	}
	return out
}

// bandByAmount sorts by magnitude and opens a new band whenever an amount leaves the
// tolerance of the band's first amount.
func bandByAmount(txns []repository.Transaction, opts Options) [][]repository.Transaction {
	sorted := make([]repository.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if abs64(sorted[i].Amount) != abs64(sorted[j].Amount) {
			return abs64(sorted[i].Amount) < abs64(sorted[j].Amount)
		}
		return sorted[i].ID < sorted[j].ID
	})
	var bands [][]repository.Transaction
	for _, t := range sorted {
		n := len(bands)
		if n > 0 && opts.SameAmount(bands[n-1][0].Amount, t.Amount) {
			bands[n-1] = append(bands[n-1], t)
			continue
		}
		bands = append(bands, []repository.Transaction{t})
	}
	return bands
}

func classifyCluster(sig Signature, txns []repository.Transaction, opts Options) Cluster {
	sortByDate(txns)
	c := Cluster{Signature: sig, Transactions: txns, Months: distinctMonths(txns)}
	freq, conf, ok := Classify(Gaps(c.Dates()))
	if ok {
		c.Frequency, c.Confidence = freq, conf
	}
	c.Promoted = ok && (c.Months >= opts.MinMonths || len(txns) >= opts.MinOccurrences)
	return c
}

func sortByDate(txns []repository.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		if txns[i].Seq != txns[j].Seq {
			return txns[i].Seq < txns[j].Seq
		}
		return txns[i].ID < txns[j].ID
	})
}

func distinctMonths(txns []repository.Transaction) int {
	seen := map[[2]int]struct{}{}
	for _, t := range txns {
		seen[[2]int{t.Date.Year(), int(t.Date.Month())}] = struct{}{}
	}
	return len(seen)
}
