package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/ingest"
)

// ImportService turns statement files into committed, deduplicated transactions.
type ImportService struct {
	DB        *sql.DB
	Ledger    *LedgerService
	Recurring *RecurringService
	Profiles  ingest.ProfileSet
	// BatchSize rows are committed per SQL transaction.
	BatchSize       int
	DefaultCurrency string
	AutoDetect      bool
	Log             zerolog.Logger
}

// PreviewRequest names the target account by id, or by name for a possibly new account.
type PreviewRequest struct {
	AccountID   string
	AccountName string
	FileName    string
	Reader      io.Reader
	// Profile overrides the profile matched by file name.
	Profile *ingest.Profile
}

// Preview is a parsed and resolved file. Nothing has been written yet.
type Preview struct {
	Account    repository.Account
	NewAccount bool
	Output     *ingest.ParseOutput
	Result     ingest.ParseResult
}

// CommitOptions tunes Commit.
type CommitOptions struct {
	// Progress is called after each committed batch.
	Progress func(committed, total int)
}

// ImportSummary is what Commit did.
type ImportSummary struct {
	AccountID             string
	Inserted              int
	Duplicates            int
	Skipped               int
	Batches               int
	InitialBalanceDerived bool
	Recalc                RecalcReport
	Detect                *DetectReport
}

func (s *ImportService) store() *repository.Store {
	return repository.NewStore(s.DB)
}

// Preview parses the file for the account and flags duplicates against stored history.
func (s *ImportService) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	acct, isNew, err := s.resolveAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	var profile ingest.Profile
	if req.Profile != nil {
		profile = *req.Profile
	} else if p, ok := s.Profiles.Match(req.FileName); ok {
		profile = p
		s.Log.Debug().Str("profile", p.Name).Str("file", req.FileName).Msg("import profile matched")
	}
	if isNew && profile.Currency != "" {
		acct.Currency = strings.ToUpper(profile.Currency)
	}

	out, err := ingest.Parse(req.FileName, req.Reader, ingest.Options{
		AccountID: acct.ID,
		Currency:  acct.Currency,
		Profile:   profile,
	})
	if err != nil {
		return nil, err
	}

	var existing []repository.Transaction
	if span := ingest.SpanOf(out.Candidates); !isNew && !span.Empty() {
		existing, err = s.store().Transactions.List(ctx, repository.TransactionFilters{
			AccountID: acct.ID, From: span.From, To: span.To,
		})
		if err != nil {
			return nil, fmt.Errorf("load existing transactions: %w", err)
		}
	}
	res := ingest.Resolve(out.Candidates, existing)
	res.Skipped = out.Skipped
	res.SkippedCount = len(out.Skipped)

	s.Log.Info().
		Str("file", req.FileName).
		Str("account_id", acct.ID).
		Int("rows", res.TotalRows).
		Int("new", res.NewCount).
		Int("duplicates", res.DuplicateCount).
		Int("skipped", res.SkippedCount).
		Msg("import previewed")
	return &Preview{Account: acct, NewAccount: isNew, Output: out, Result: res}, nil
}

func (s *ImportService) resolveAccount(ctx context.Context, req PreviewRequest) (repository.Account, bool, error) {
	accounts := s.store().Accounts
	id := strings.TrimSpace(req.AccountID)
	name := strings.TrimSpace(req.AccountName)
	if id == "" {
		if name == "" {
			return repository.Account{}, false, errors.New("account id or name required")
		}
		id = deterministicAccountID(name)
	}
	acct, err := accounts.Get(ctx, id)
	if err != nil {
		return repository.Account{}, false, err
	}
	if acct != nil {
		return *acct, false, nil
	}
	if name == "" {
		return repository.Account{}, false, fmt.Errorf("import into %s: %w", id, ErrAccountNotFound)
	}
	currency := strings.ToUpper(strings.TrimSpace(s.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}
	return repository.Account{
		ID:          id,
		Name:        name,
		Institution: name,
		AccountType: "checking",
		Currency:    currency,
		IsActive:    true,
	}, true, nil
}

func (s *ImportService) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// Commit writes the non-duplicate rows in batches, then derives a missing initial balance,
// recalculates the account and optionally runs recurring detection. On a batch failure the
// earlier batches stay committed and an *ImportBatchError is returned.
func (s *ImportService) Commit(ctx context.Context, p *Preview, opts CommitOptions) (ImportSummary, error) {
	sum := ImportSummary{
		AccountID:  p.Account.ID,
		Duplicates: p.Result.DuplicateCount,
		Skipped:    p.Result.SkippedCount,
	}
	if p.NewAccount {
		if err := s.store().Accounts.Upsert(ctx, p.Account); err != nil {
			return sum, fmt.Errorf("create account: %w", err)
		}
		p.NewAccount = false
	}

	rows := chronological(p.Result.New())
	size := s.batchSize()
	for start := 0; start < len(rows); start += size {
		batch := sum.Batches
		if err := ctx.Err(); err != nil {
			return sum, s.abort(ctx, &sum, rows, &ImportBatchError{Batch: batch, Committed: sum.Inserted, Err: err})
		}
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		err := s.store().Tx(ctx, func(st *repository.Store) error {
			for i := start; i < end; i++ {
				t := rows[i].Txn
				t.ID = uuid.NewString()
				if err := st.Transactions.Insert(ctx, t); err != nil {
					return fmt.Errorf("line %d: %w", rows[i].Line, err)
				}
			}
			return nil
		})
		if err != nil {
			s.Log.Error().Err(err).Int("batch", batch).Int("committed", sum.Inserted).Msg("import batch failed")
			return sum, s.abort(ctx, &sum, rows, &ImportBatchError{Batch: batch, Committed: sum.Inserted, Err: err})
		}
		sum.Inserted += end - start
		sum.Batches++
		if opts.Progress != nil {
			opts.Progress(sum.Inserted, len(rows))
		}
	}

	derived, err := s.deriveInitialBalance(ctx, p.Account.ID, rows)
	if err != nil {
		return sum, err
	}
	sum.InitialBalanceDerived = derived

	if sum.Recalc, err = s.Ledger.Recalculate(ctx, p.Account.ID); err != nil {
		return sum, fmt.Errorf("recalculate after import: %w", err)
	}
	if s.AutoDetect && s.Recurring != nil && sum.Inserted > 0 {
		rep, err := s.Recurring.AutoDetect(ctx, p.Account.ID)
		if err != nil {
			return sum, fmt.Errorf("detect after import: %w", err)
		}
		sum.Detect = &rep
	}

	s.Log.Info().
		Str("account_id", sum.AccountID).
		Int("inserted", sum.Inserted).
		Int("duplicates", sum.Duplicates).
		Int("skipped", sum.Skipped).
		Int("batches", sum.Batches).
		Bool("initial_balance_derived", sum.InitialBalanceDerived).
		Msg("import committed")
	return sum, nil
}

// abort settles the account when earlier batches were committed, so their balances are set
// even though the import stopped. It ignores ctx cancellation.
func (s *ImportService) abort(ctx context.Context, sum *ImportSummary, rows []ingest.Candidate, batchErr *ImportBatchError) error {
	if sum.Inserted == 0 {
		return batchErr
	}
	ctx = context.WithoutCancel(ctx)
	derived, err := s.deriveInitialBalance(ctx, sum.AccountID, rows[:sum.Inserted])
	if err != nil {
		return errors.Join(batchErr, err)
	}
	sum.InitialBalanceDerived = derived
	rep, err := s.Ledger.Recalculate(ctx, sum.AccountID)
	if err != nil {
		s.Log.Error().Err(err).Str("account_id", sum.AccountID).Msg("recalculate after failed import")
		return errors.Join(batchErr, fmt.Errorf("recalculate after failed import: %w", err))
	}
	sum.Recalc = rep
	return batchErr
}

// Import previews and commits in one call.
func (s *ImportService) Import(ctx context.Context, req PreviewRequest, opts CommitOptions) (*Preview, ImportSummary, error) {
	p, err := s.Preview(ctx, req)
	if err != nil {
		return nil, ImportSummary{}, err
	}
	sum, err := s.Commit(ctx, p, opts)
	return p, sum, err
}

// chronological orders rows by date. Newest-first statements are reversed first so rows of
// one day keep their booking order, which is the order seq is assigned in.
func chronological(rows []ingest.Candidate) []ingest.Candidate {
	out := make([]ingest.Candidate, len(rows))
	copy(out, rows)
	if n := len(out); n > 1 && out[0].Txn.Date.After(out[n-1].Txn.Date) {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Txn.Date.Before(out[j].Txn.Date) })
	return out
}

// deriveInitialBalance anchors an account without one at the date of the earliest committed
// row. The opening balance is the first statement balance found minus every amount up to and
// including that row.
func (s *ImportService) deriveInitialBalance(ctx context.Context, accountID string, rows []ingest.Candidate) (bool, error) {
	accounts := s.store().Accounts
	acct, err := accounts.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if acct == nil || acct.InitialBalance != nil || len(rows) == 0 {
		return false, nil
	}
	var moved int64
	for _, c := range rows {
		moved += c.Txn.Amount
		if c.Txn.BankBalance == nil {
			continue
		}
		opening := *c.Txn.BankBalance - moved
		day := rows[0].Txn.Date.Format(time.DateOnly)
		if err := accounts.SetInitialBalance(ctx, accountID, &opening, &day); err != nil {
			return false, fmt.Errorf("derive initial balance: %w", err)
		}
		s.Log.Info().Str("account_id", accountID).Int64("balance", opening).Str("date", day).Msg("initial balance derived from statement")
		return true, nil
	}
	return false, nil
}

func deterministicAccountID(name string) string {
	key := strings.ToLower(strings.TrimSpace(filepath.Base(name)))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
