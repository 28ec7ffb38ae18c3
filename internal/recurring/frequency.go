package recurring

import (
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// bucket is a frequency with its centre interval and the gap window that "looks like" it.
type bucket struct {
	freq   repository.Frequency
	centre int
	min    int
	max    int
}

var buckets = []bucket{
	{repository.Weekly, 7, 5, 9},
	{repository.Biweekly, 14, 12, 16},
	{repository.Monthly, 30, 25, 35},
	{repository.Quarterly, 91, 80, 100},
	{repository.Yearly, 365, 350, 380},
}

// votePriority breaks ties in favour of monthly, then shorter intervals.
var votePriority = []repository.Frequency{
	repository.Monthly, repository.Weekly, repository.Biweekly, repository.Quarterly, repository.Yearly,
}

func bucketOf(f repository.Frequency) bucket {
	for _, b := range buckets {
		if b.freq == f {
			return b
		}
	}
	return buckets[2]
}

// IntervalDays is the nominal length of one period.
func IntervalDays(f repository.Frequency) int {
	return bucketOf(f).centre
}

// Classify picks the dominant frequency from inter-occurrence gaps in days. Each non-zero
// gap votes for its nearest bucket; confidence is the share of gaps inside the winner's window.
func Classify(gaps []int) (repository.Frequency, float64, bool) {
	votes := map[repository.Frequency]int{}
	n := 0
	for _, g := range gaps {
		if g <= 0 {
			continue
		}
		n++
		best, dist := buckets[0], absInt(g-buckets[0].centre)
		for _, b := range buckets[1:] {
			if d := absInt(g - b.centre); d < dist {
				best, dist = b, d
			}
		}
		votes[best.freq]++
	}
	if n == 0 {
		return "", 0, false
	}
	winner, top := repository.Frequency(""), 0
	for _, f := range votePriority {
		if votes[f] > top {
			winner, top = f, votes[f]
		}
	}
	b := bucketOf(winner)
	inside := 0
	for _, g := range gaps {
		if g > 0 && g >= b.min && g <= b.max {
			inside++
		}
	}
	return winner, float64(inside) / float64(n), true
}

// Gaps returns day gaps between consecutive sorted dates.
func Gaps(dates []time.Time) []int {
	if len(dates) < 2 {
		return nil
	}
	out := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		out = append(out, int(dates[i].Sub(dates[i-1]).Hours()/24))
	}
	return out
}

// Advance returns the next expected date after t. Month-based steps clamp to the last day of
// the target month.
func Advance(t time.Time, f repository.Frequency) time.Time {
	switch f {
	case repository.Weekly:
		return t.AddDate(0, 0, 7)
	case repository.Biweekly:
		return t.AddDate(0, 0, 14)
	case repository.Quarterly:
		return addMonths(t, 3)
	case repository.Yearly:
		return addMonths(t, 12)
	default:
		return addMonths(t, 1)
	}
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// MonthlyEquivalent scales an amount per period to an average month.
func MonthlyEquivalent(amount int64, f repository.Frequency) int64 {
	switch f {
	case repository.Weekly:
		return roundDiv(amount*52, 12)
	case repository.Biweekly:
		return roundDiv(amount*26, 12)
	case repository.Quarterly:
		return roundDiv(amount, 3)
	case repository.Yearly:
		return roundDiv(amount, 12)
	default:
		return amount
	}
}

func roundDiv(a, b int64) int64 {
	if a < 0 {
		return -roundDiv(-a, b)
	}
	return (a + b/2) / b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
