package recurring

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/merchant"
)

// Similarity is 1 minus the normalized edit distance between two merchant keys.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// MergeCandidate suggests folding Source into Target.
type MergeCandidate struct {
	TargetID   string
	SourceID   string
	TargetName string
	SourceName string
	Similarity float64
}

// FindMergeCandidates pairs non-excluded series of one account that share direction and
// frequency, have similar names and amounts in the same band. The older series is the target.
func FindMergeCandidates(series []repository.RecurringTransaction, opts Options) []MergeCandidate {
	opts = opts.withDefaults()
	var out []MergeCandidate
	for i := 0; i < len(series); i++ {
		a := series[i]
		if a.IsExcluded {
			continue
		}
		for j := i + 1; j < len(series); j++ {
			b := series[j]
			if b.IsExcluded || a.AccountID != b.AccountID || a.Frequency != b.Frequency {
				continue
			}
			if repository.DirectionOf(a.Amount) != repository.DirectionOf(b.Amount) || !opts.SameAmount(a.Amount, b.Amount) {
				continue
			}
			sim := Similarity(merchant.Key(a.Name), merchant.Key(b.Name))
			if sim < opts.MerchantSimilarity {
				continue
			}
			target, source := a, b
			if olderFirst(b, a) {
				target, source = b, a
			}
			out = append(out, MergeCandidate{
				TargetID: target.ID, SourceID: source.ID,
				TargetName: target.Name, SourceName: source.Name,
				Similarity: sim,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

func olderFirst(a, b repository.RecurringTransaction) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.Before(b.StartDate)
	}
	if len(a.Occurrences) != len(b.Occurrences) {
		return len(a.Occurrences) > len(b.Occurrences)
	}
	return a.ID < b.ID
}
