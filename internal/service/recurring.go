package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/config"
	"github.com/jask/ledgerkeep/internal/database"
	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/money"
	"github.com/jask/ledgerkeep/internal/recurring"
)

// RecurringService applies detection plans and lifecycle transitions to stored series.
type RecurringService struct {
	DB        *sql.DB
	Detection config.DetectionConfig
	Log       zerolog.Logger
	// Today defaults to database.Today.
	Today func() time.Time
	// NewID defaults to uuid.NewString.
	NewID func() string
}

// DetectReport summarizes one detection pass.
type DetectReport struct {
	AccountID string
	Created   int
	Updated   int
	Linked    int
	Spikes    []recurring.Spike
}

// SyncResult summarizes a sync & repair pass. Errors holds per-item failures.
type SyncResult struct {
	RecurringUpdated    int
	TransactionsLinked  int
	NewRecurringCreated int
	Unlinked            int
	Errors              []string
}

func (s *RecurringService) store() *repository.Store {
	return repository.NewStore(s.DB)
}

func (s *RecurringService) today() time.Time {
	if s.Today != nil {
		return s.Today()
	}
	return database.Today()
}

func (s *RecurringService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *RecurringService) options(currency string) recurring.Options {
	d := s.Detection
	return recurring.Options{
		AsOf:               s.today(),
		LookbackMonths:     d.LookbackMonths,
		MinMonths:          d.MinMonths,
		MinOccurrences:     d.MinOccurrences,
		AmountTolerancePct: d.AmountTolerancePct,
		SpikeFactor:        d.SpikeFactor,
		SyncMinConfidence:  d.SyncMinConfidence,
		MerchantSimilarity: d.MerchantSimilarity,
		MajorUnit:          money.MajorUnit(currency),
		NewID:              s.newID,
	}
}

func (s *RecurringService) account(ctx context.Context, st *repository.Store, id string) (repository.Account, error) {
	acct, err := st.Accounts.Get(ctx, id)
	if err != nil {
		return repository.Account{}, err
	}
	if acct == nil {
		return repository.Account{}, fmt.Errorf("account %s: %w", id, ErrAccountNotFound)
	}
	return *acct, nil
}

// AutoDetect runs detection over one account and applies the plan atomically.
func (s *RecurringService) AutoDetect(ctx context.Context, accountID string) (DetectReport, error) {
	rep := DetectReport{AccountID: accountID}
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		acct, err := s.account(ctx, st, accountID)
		if err != nil {
			return err
		}
		history, err := st.Transactions.ListByAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		existing, err := st.Recurring.List(ctx, repository.RecurringFilters{AccountID: accountID})
		if err != nil {
			return fmt.Errorf("load series: %w", err)
		}
		plan := recurring.Detect(history, existing, s.options(acct.Currency))

		for _, r := range plan.Create {
			if err := st.Recurring.Save(ctx, r); err != nil {
				return fmt.Errorf("create series %s: %w", r.Name, err)
			}
		}
		for _, r := range plan.Update {
			if err := st.Recurring.Save(ctx, r); err != nil {
				return fmt.Errorf("update series %s: %w", r.ID, err)
			}
		}
		for _, l := range plan.Links {
			rid := l.RecurringID
			if err := st.Transactions.SetRecurring(ctx, l.TransactionID, &rid); err != nil {
				return fmt.Errorf("link %s: %w", l.TransactionID, err)
			}
		}
		if err := st.Settings.Set(ctx, repository.SettingLastDetectAt, s.today().Format(time.DateOnly)); err != nil {
			return err
		}
		rep.Created, rep.Updated, rep.Linked, rep.Spikes = len(plan.Create), len(plan.Update), len(plan.Links), plan.Spikes
		return nil
	})
	if err != nil {
		return DetectReport{AccountID: accountID}, err
	}
	s.Log.Info().
		Str("account_id", accountID).
		Int("created", rep.Created).
		Int("updated", rep.Updated).
		Int("linked", rep.Linked).
		Int("spikes", len(rep.Spikes)).
		Msg("recurring detection applied")
	return rep, nil
}

// AutoDetectAll runs AutoDetect for every active account.
func (s *RecurringService) AutoDetectAll(ctx context.Context) ([]DetectReport, error) {
	accounts, err := s.store().Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []DetectReport
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := s.AutoDetect(ctx, a.ID)
		if err != nil {
			return out, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// List returns stored series.
func (s *RecurringService) List(ctx context.Context, f repository.RecurringFilters) ([]repository.RecurringTransaction, error) {
	return s.store().Recurring.List(ctx, f)
}

// Get returns one series or ErrRecurringNotFound.
func (s *RecurringService) Get(ctx context.Context, id string) (repository.RecurringTransaction, error) {
	r, err := s.store().Recurring.Get(ctx, id)
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	if r == nil {
		return repository.RecurringTransaction{}, fmt.Errorf("%s: %w", id, ErrRecurringNotFound)
	}
	return *r, nil
}

// mutate loads a series, applies fn and saves the result in one transaction.
func (s *RecurringService) mutate(ctx context.Context, id string, fn func(st *repository.Store, r *repository.RecurringTransaction) error) (repository.RecurringTransaction, error) {
	var out repository.RecurringTransaction
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		r, err := st.Recurring.Get(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%s: %w", id, ErrRecurringNotFound)
		}
		if err := fn(st, r); err != nil {
			return err
		}
		if err := st.Recurring.Save(ctx, *r); err != nil {
			return err
		}
		out = *r
		return nil
	})
	return out, err
}

func (s *RecurringService) Pause(ctx context.Context, id string) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(_ *repository.Store, r *repository.RecurringTransaction) error {
		return recurring.Pause(r)
	})
}

func (s *RecurringService) Resume(ctx context.Context, id string) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(_ *repository.Store, r *repository.RecurringTransaction) error {
		if err := recurring.Resume(r); err != nil {
			return err
		}
		if len(r.Occurrences) > 0 {
			next := recurring.Advance(r.Occurrences[len(r.Occurrences)-1].Date, r.Frequency)
			r.NextExpected = &next
		}
		return nil
	})
}

// Cancel ends the series today.
func (s *RecurringService) Cancel(ctx context.Context, id string) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(_ *repository.Store, r *repository.RecurringTransaction) error {
		return recurring.Cancel(r, s.today())
	})
}

// Complete marks a loan as paid off today.
func (s *RecurringService) Complete(ctx context.Context, id string) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(_ *repository.Store, r *repository.RecurringTransaction) error {
		return recurring.Complete(r, s.today())
	})
}

// SetExcluded flags a false positive. Excluding also clears transaction back-references.
func (s *RecurringService) SetExcluded(ctx context.Context, id string, excluded bool) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(st *repository.Store, r *repository.RecurringTransaction) error {
		if err := recurring.SetExcluded(r, excluded); err != nil {
			return err
		}
		if excluded {
			return st.Transactions.ClearRecurring(ctx, r.ID)
		}
		return nil
	})
}

func (s *RecurringService) ChangeType(ctx context.Context, id string, t repository.RecurringType) (repository.RecurringTransaction, error) {
	return s.mutate(ctx, id, func(_ *repository.Store, r *repository.RecurringTransaction) error {
		return recurring.ChangeType(r, t)
	})
}

// CreateManual stores a user-declared series. Category defaults from the type.
func (s *RecurringService) CreateManual(ctx context.Context, r repository.RecurringTransaction) (repository.RecurringTransaction, error) {
	if r.Type == "" {
		r.Type = repository.Subscription
	}
	if err := recurring.ValidateManual(r); err != nil {
		return repository.RecurringTransaction{}, fmt.Errorf("create recurring: %w", err)
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.Category == "" {
		r.Category = repository.DefaultCategory(r.Type)
	}
	r.Status = repository.StatusActive
	r.IsManual = true
	r.Confidence = 1
	today := s.today()
	next := r.StartDate
	for next.Before(today) {
		next = recurring.Advance(next, r.Frequency)
	}
	r.NextExpected = &next

	err := s.store().Tx(ctx, func(st *repository.Store) error {
		if _, err := s.account(ctx, st, r.AccountID); err != nil {
			return err
		}
		return st.Recurring.Save(ctx, r)
	})
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	return r, nil
}

// Delete removes a series and unlinks its transactions.
func (s *RecurringService) Delete(ctx context.Context, id string) error {
	return s.store().Tx(ctx, func(st *repository.Store) error {
		if err := st.Transactions.ClearRecurring(ctx, id); err != nil {
			return err
		}
		if err := st.Recurring.Delete(ctx, id); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%s: %w", id, ErrRecurringNotFound)
			}
			return err
		}
		return nil
	})
}

// Merge folds source into target, re-points source transactions and deletes source.
func (s *RecurringService) Merge(ctx context.Context, targetID, sourceID string) (repository.RecurringTransaction, error) {
	var out repository.RecurringTransaction
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		target, err := st.Recurring.Get(ctx, targetID)
		if err != nil {
			return err
		}
		source, err := st.Recurring.Get(ctx, sourceID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("merge target %s: %w", targetID, ErrRecurringNotFound)
		}
		if source == nil {
			return fmt.Errorf("merge source %s: %w", sourceID, ErrRecurringNotFound)
		}
		if err := recurring.Merge(target, source); err != nil {
			return err
		}
		if err := st.Recurring.Save(ctx, *target); err != nil {
			return err
		}
		if err := st.Transactions.RelinkRecurring(ctx, source.ID, target.ID); err != nil {
			return err
		}
		if err := st.Recurring.Delete(ctx, source.ID); err != nil {
			return err
		}
		out = *target
		return nil
	})
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	s.Log.Info().Str("target", targetID).Str("source", sourceID).Int("occurrences", len(out.Occurrences)).Msg("recurring series merged")
	return out, nil
}

// FindMergeCandidates suggests duplicate series for one account, or all when accountID is empty.
func (s *RecurringService) FindMergeCandidates(ctx context.Context, accountID string) ([]recurring.MergeCandidate, error) {
	series, err := s.store().Recurring.List(ctx, repository.RecurringFilters{AccountID: accountID})
	if err != nil {
		return nil, err
	}
	return recurring.FindMergeCandidates(series, s.options("")), nil
}

// SyncAndRepair re-links history to series for one account, or all when accountID is empty.
// Per-item write failures are collected in SyncResult.Errors and do not stop the pass.
func (s *RecurringService) SyncAndRepair(ctx context.Context, accountID string) (SyncResult, error) {
	var res SyncResult
	var accounts []repository.Account
	if accountID != "" {
		acct, err := s.account(ctx, s.store(), accountID)
		if err != nil {
			return res, err
		}
		accounts = []repository.Account{acct}
	} else {
		all, err := s.store().Accounts.List(ctx)
		if err != nil {
			return res, err
		}
		accounts = all
	}

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := s.store().Tx(ctx, func(st *repository.Store) error {
			return s.repairAccount(ctx, st, acct, &res)
		})
		if err != nil {
			return res, err
		}
	}
	s.Log.Info().
		Int("updated", res.RecurringUpdated).
		Int("linked", res.TransactionsLinked).
		Int("created", res.NewRecurringCreated).
		Int("unlinked", res.Unlinked).
		Int("errors", len(res.Errors)).
		Msg("recurring sync and repair finished")
	return res, nil
}

func (s *RecurringService) repairAccount(ctx context.Context, st *repository.Store, acct repository.Account, res *SyncResult) error {
	history, err := st.Transactions.ListByAccount(ctx, acct.ID)
	if err != nil {
		return err
	}
	series, err := st.Recurring.List(ctx, repository.RecurringFilters{AccountID: acct.ID})
	if err != nil {
		return err
	}
	plan := recurring.Repair(history, series, s.options(acct.Currency))
	res.Errors = append(res.Errors, plan.Errors...)

	fail := func(format string, args ...interface{}) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	for _, id := range plan.Unlink {
		if err := st.Transactions.SetRecurring(ctx, id, nil); err != nil {
			fail("unlink %s: %v", id, err)
			continue
		}
		res.Unlinked++
	}
	for _, r := range plan.Update {
		if err := st.Recurring.Save(ctx, r); err != nil {
			fail("update %s: %v", r.ID, err)
			continue
		}
		res.RecurringUpdated++
	}
	failed := map[string]bool{}
	for _, r := range plan.Create {
		if err := st.Recurring.Save(ctx, r); err != nil {
			fail("create %s: %v", r.Name, err)
			failed[r.ID] = true
			continue
		}
		res.NewRecurringCreated++
	}
	for _, l := range plan.Links {
		if failed[l.RecurringID] {
			continue
		}
		rid := l.RecurringID
		if err := st.Transactions.SetRecurring(ctx, l.TransactionID, &rid); err != nil {
			fail("link %s: %v", l.TransactionID, err)
			continue
		}
		res.TransactionsLinked++
	}
	return nil
}

// Summary aggregates shown-active series for one account, or all when accountID is empty.
func (s *RecurringService) Summary(ctx context.Context, accountID string) (recurring.Summary, error) {
	series, err := s.store().Recurring.List(ctx, repository.RecurringFilters{AccountID: accountID})
	if err != nil {
		return recurring.Summary{}, err
	}
	return recurring.Summarize(series, s.today()), nil
}
