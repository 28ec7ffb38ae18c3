// Package ledger replays an account's running balance from an anchor and checkpoints.
package ledger

import (
	"fmt"
	"sort"
	"time"
)

// Entry is one transaction as the replayer sees it.
type Entry struct {
	ID     string
	Date   time.Time
	Seq    int64
	Amount int64
}

// Checkpoint asserts the account balance at the start of Date. Checkpoints sharing a date
// must be passed in creation order.
type Checkpoint struct {
	ID      string
	Date    time.Time
	Balance int64
}

// Input is everything needed to replay one account.
type Input struct {
	InitialBalance *int64
	InitialDate    *time.Time
	Entries        []Entry
	Checkpoints    []Checkpoint
}

// BalanceAfter is the replayed balance immediately after one entry.
type BalanceAfter struct {
	ID      string
	Balance int64
}

// Drift records what a checkpoint absorbed.
type Drift struct {
	CheckpointID string
	Date         time.Time
	Replayed     int64
	Asserted     int64
}

// Delta is asserted minus replayed.
func (d Drift) Delta() int64 { return d.Asserted - d.Replayed }

// WarningKind classifies a ReconciliationWarning.
type WarningKind string

const (
	MissingInitialBalance    WarningKind = "missing_initial_balance"
	CheckpointBeforeInitial  WarningKind = "checkpoint_before_initial"
	TransactionBeforeInitial WarningKind = "transaction_before_initial"
	DuplicateCheckpoint      WarningKind = "duplicate_checkpoint"
)

// Warning is a non-fatal reconciliation problem. Replay always completes.
type Warning struct {
	Kind    WarningKind
	Ref     string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Result is the deterministic outcome of a replay.
type Result struct {
	Balances []BalanceAfter
	Final    int64
	Drifts   []Drift
	Warnings []Warning
}

// Replay walks entries in (date, seq) order from the initial balance, resetting the running
// balance to each checkpoint before the first entry dated on or after the checkpoint date.
func Replay(in Input) Result {
	var res Result

	entries := make([]Entry, len(in.Entries))
	copy(entries, in.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Seq < entries[j].Seq
	})

	balance := int64(0)
	if in.InitialBalance != nil {
		balance = *in.InitialBalance
	} else if len(entries) > 0 {
		res.Warnings = append(res.Warnings, Warning{
			Kind:    MissingInitialBalance,
			Message: "no initial balance set, replaying from 0",
		})
	}

	checkpoints := usableCheckpoints(in, &res)

	ci := 0
	apply := func(cp Checkpoint) {
		if cp.Balance != balance {
			res.Drifts = append(res.Drifts, Drift{CheckpointID: cp.ID, Date: cp.Date, Replayed: balance, Asserted: cp.Balance})
		}
		balance = cp.Balance
	}

	early := 0
	res.Balances = make([]BalanceAfter, 0, len(entries))
	for _, e := range entries {
		for ci < len(checkpoints) && !checkpoints[ci].Date.After(e.Date) {
			apply(checkpoints[ci])
			ci++
		}
		if in.InitialDate != nil && e.Date.Before(*in.InitialDate) {
			early++
		}
		balance += e.Amount
		res.Balances = append(res.Balances, BalanceAfter{ID: e.ID, Balance: balance})
	}
	for ; ci < len(checkpoints); ci++ {
		apply(checkpoints[ci])
	}
	if early > 0 {
		res.Warnings = append(res.Warnings, Warning{
			Kind:    TransactionBeforeInitial,
			Message: fmt.Sprintf("%d transaction(s) dated before the initial balance date %s were included", early, in.InitialDate.Format(time.DateOnly)),
		})
	}

	res.Final = balance
	return res
}

// usableCheckpoints drops checkpoints before the initial date and collapses same-date
// duplicates to the last one, sorted by date.
func usableCheckpoints(in Input, res *Result) []Checkpoint {
	kept := make([]Checkpoint, 0, len(in.Checkpoints))
	for _, cp := range in.Checkpoints {
		if in.InitialDate != nil && cp.Date.Before(*in.InitialDate) {
			res.Warnings = append(res.Warnings, Warning{
				Kind: CheckpointBeforeInitial,
				Ref:  cp.ID,
				Message: fmt.Sprintf("checkpoint on %s precedes the initial balance date %s and was ignored",
					cp.Date.Format(time.DateOnly), in.InitialDate.Format(time.DateOnly)),
			})
			continue
		}
		kept = append(kept, cp)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })

	out := kept[:0]
	for _, cp := range kept {
		if n := len(out); n > 0 && out[n-1].Date.Equal(cp.Date) {
			res.Warnings = append(res.Warnings, Warning{
				Kind:    DuplicateCheckpoint,
				Ref:     out[n-1].ID,
				Message: fmt.Sprintf("two checkpoints on %s; the later one wins", cp.Date.Format(time.DateOnly)),
			})
			out[n-1] = cp
			continue
		}
		out = append(out, cp)
	}
	return out
}
