package recurring

import (
	"errors"
	"fmt"
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

var (
	// ErrTerminal is returned for transitions out of cancelled or completed.
	ErrTerminal = errors.New("recurring series has ended")
	// ErrNotLoan is returned when completing a series that is not a loan.
	ErrNotLoan = errors.New("only loans can be completed")
	// ErrSelfMerge is returned when merging a series into itself.
	ErrSelfMerge = errors.New("cannot merge a series into itself")
	// ErrAccountMismatch is returned when merging series of different accounts.
	ErrAccountMismatch = errors.New("series belong to different accounts")
)

// Pause moves an active series to paused. Pausing a paused series is a no-op.
func Pause(r *repository.RecurringTransaction) error {
	if r.Status.Ended() {
		return fmt.Errorf("pause %s: %w", r.ID, ErrTerminal)
	}
	r.Status = repository.StatusPaused
	return nil
}

// Resume moves a paused series back to active.
func Resume(r *repository.RecurringTransaction) error {
	if r.Status.Ended() {
		return fmt.Errorf("resume %s: %w", r.ID, ErrTerminal)
	}
	r.Status = repository.StatusActive
	return nil
}

// Cancel ends the series at the given day.
func Cancel(r *repository.RecurringTransaction, at time.Time) error {
	if r.Status.Ended() {
		return fmt.Errorf("cancel %s: %w", r.ID, ErrTerminal)
	}
	r.Status = repository.StatusCancelled
	r.CancelledAt = &at
	r.EndDate = &at
	r.NextExpected = nil
	return nil
}

// Complete marks a loan as paid off at the given day.
func Complete(r *repository.RecurringTransaction, at time.Time) error {
	if r.Status.Ended() {
		return fmt.Errorf("complete %s: %w", r.ID, ErrTerminal)
	}
	if r.Type != repository.Loan {
		return fmt.Errorf("complete %s (%s): %w", r.ID, r.Type, ErrNotLoan)
	}
	r.Status = repository.StatusCompleted
	r.EndDate = &at
	r.NextExpected = nil
	return nil
}

// SetExcluded flags or unflags a false positive. Flagging an ended series is refused.
func SetExcluded(r *repository.RecurringTransaction, excluded bool) error {
	if excluded && r.Status.Ended() {
		return fmt.Errorf("exclude %s: %w", r.ID, ErrTerminal)
	}
	r.IsExcluded = excluded
	return nil
}

// ChangeType switches the series type. Income is stored positive and every other type
// negative. The category resets to the new type's default when the type crosses the income
// boundary or when the category was still the old type's default.
func ChangeType(r *repository.RecurringTransaction, t repository.RecurringType) error {
	if _, err := repository.ParseRecurringType(string(t)); err != nil || t == "" {
		return fmt.Errorf("change type of %s: unknown type %q", r.ID, t)
	}
	if r.Type == t {
		return nil
	}
	if r.Status == repository.StatusCompleted {
		return fmt.Errorf("change type of %s: %w", r.ID, ErrTerminal)
	}
	crossesIncome := (r.Type == repository.Income) != (t == repository.Income)
	if crossesIncome || r.Category == repository.DefaultCategory(r.Type) {
		r.Category = repository.DefaultCategory(t)
	}
	r.Amount = signFor(t, r.Amount)
	r.Type = t
	return nil
}

// signFor applies the sign convention of a type to an amount.
func signFor(t repository.RecurringType, amount int64) int64 {
	if t == repository.Income {
		return abs64(amount)
	}
	return -abs64(amount)
}

// Merge folds source into target: occurrences are unioned, target status and type are kept.
// The caller re-points transactions and deletes source.
func Merge(target, source *repository.RecurringTransaction) error {
	if target.ID == source.ID {
		return ErrSelfMerge
	}
	if target.AccountID != source.AccountID {
		return fmt.Errorf("merge %s into %s: %w", source.ID, target.ID, ErrAccountMismatch)
	}
	occ := occurrenceSet(target.Occurrences)
	for _, o := range source.Occurrences {
		if _, ok := occ[o.TransactionID]; !ok {
			occ[o.TransactionID] = o.Date
		}
	}
	target.Occurrences = sortedOccurrences(occ)

	if !source.StartDate.IsZero() && (target.StartDate.IsZero() || source.StartDate.Before(target.StartDate)) {
		target.StartDate = source.StartDate
	}
	if source.LastDetected != nil && (target.LastDetected == nil || source.LastDetected.After(*target.LastDetected)) {
		last := *source.LastDetected
		target.LastDetected = &last
	}
	if !target.Status.Ended() && len(target.Occurrences) > 0 {
		next := Advance(target.Occurrences[len(target.Occurrences)-1].Date, target.Frequency)
		target.NextExpected = &next
	}
	return nil
}

// ValidateManual checks a user-declared series before it is stored.
func ValidateManual(r repository.RecurringTransaction) error {
	if r.AccountID == "" {
		return errors.New("account is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Amount == 0 {
		return errors.New("amount must not be zero")
	}
	if _, err := repository.ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	if _, err := repository.ParseRecurringType(string(r.Type)); err != nil {
		return err
	}
	if r.Type == repository.Income && r.Amount < 0 {
		return errors.New("income amounts must be positive")
	}
	if r.Type != repository.Income && r.Amount > 0 {
		return fmt.Errorf("%s amounts must be negative", r.Type)
	}
	if r.StartDate.IsZero() {
		return errors.New("start date is required")
	}
	return nil
}
