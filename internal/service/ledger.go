package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/ledger"
)

// DefaultBatchSize is used when a service is configured with a non-positive batch size.
const DefaultBatchSize = 500

// LedgerService owns the single recalculation entry point and every mutation that must be
// followed by one.
type LedgerService struct {
	DB        *sql.DB
	BatchSize int
	Log       zerolog.Logger
}

// RecalcReport summarizes one account recalculation.
type RecalcReport struct {
	AccountID    string
	Transactions int
	FinalBalance int64
	Drifts       []ledger.Drift
	Warnings     []ledger.Warning
}

func (s *LedgerService) store() *repository.Store {
	return repository.NewStore(s.DB)
}

func (s *LedgerService) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// Recalculate replays one account and persists balance_after and the account balance.
func (s *LedgerService) Recalculate(ctx context.Context, accountID string) (RecalcReport, error) {
	var rep RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		var err error
		rep, err = s.recalculate(ctx, st, accountID)
		return err
	})
	return rep, err
}

// RecalculateAll replays every account.
func (s *LedgerService) RecalculateAll(ctx context.Context) ([]RecalcReport, error) {
	var reps []RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		var err error
		reps, err = s.recalculateAll(ctx, st)
		return err
	})
	return reps, err
}

func (s *LedgerService) recalculateAll(ctx context.Context, st *repository.Store) ([]RecalcReport, error) {
	accounts, err := st.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	reps := make([]RecalcReport, 0, len(accounts))
	for _, a := range accounts {
		rep, err := s.recalculate(ctx, st, a.ID)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, nil
}

// recalculate runs inside the caller's store, joining its transaction if any.
func (s *LedgerService) recalculate(ctx context.Context, st *repository.Store, accountID string) (RecalcReport, error) {
	acct, err := st.Accounts.Get(ctx, accountID)
	if err != nil {
		return RecalcReport{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if acct == nil {
		return RecalcReport{}, fmt.Errorf("recalculate %s: %w", accountID, ErrAccountNotFound)
	}
	txns, err := st.Transactions.ListByAccount(ctx, accountID)
	if err != nil {
		return RecalcReport{}, fmt.Errorf("load transactions: %w", err)
	}
	cps, err := st.Checkpoints.ListByAccount(ctx, accountID)
	if err != nil {
		return RecalcReport{}, fmt.Errorf("load checkpoints: %w", err)
	}

	in := ledger.Input{InitialBalance: acct.InitialBalance, InitialDate: acct.InitialBalanceDate}
	in.Entries = make([]ledger.Entry, len(txns))
	for i, t := range txns {
		in.Entries[i] = ledger.Entry{ID: t.ID, Date: t.Date, Seq: t.Seq, Amount: t.Amount}
	}
	in.Checkpoints = make([]ledger.Checkpoint, len(cps))
	for i, c := range cps {
		in.Checkpoints[i] = ledger.Checkpoint{ID: c.ID, Date: c.Date, Balance: c.Balance}
	}
	res := ledger.Replay(in)

	updates := make([]repository.BalanceUpdate, len(res.Balances))
	for i, b := range res.Balances {
		updates[i] = repository.BalanceUpdate{ID: b.ID, BalanceAfter: b.Balance}
	}
	size := s.batchSize()
	for start := 0; start < len(updates); start += size {
		if err := ctx.Err(); err != nil {
			return RecalcReport{}, err
		}
		end := start + size
		if end > len(updates) {
			end = len(updates)
		}
		if err := st.Transactions.UpdateBalances(ctx, updates[start:end]); err != nil {
			return RecalcReport{}, fmt.Errorf("write balances: %w", err)
		}
	}
	if err := st.Accounts.SetBalance(ctx, accountID, res.Final); err != nil {
		return RecalcReport{}, fmt.Errorf("write account balance: %w", err)
	}

	rep := RecalcReport{
		AccountID:    accountID,
		Transactions: len(res.Balances),
		FinalBalance: res.Final,
		Drifts:       res.Drifts,
		Warnings:     res.Warnings,
	}
	ev := s.Log.Info()
	if len(rep.Warnings) > 0 {
		ev = s.Log.Warn()
	}
	ev.Str("account_id", accountID).
		Int("transactions", rep.Transactions).
		Int64("balance", rep.FinalBalance).
		Int("drifts", len(rep.Drifts)).
		Int("warnings", len(rep.Warnings)).
		Msg("ledger recalculated")
	return rep, nil
}

// SetInitialBalance sets or (with nil balance) clears the anchor and recalculates.
func (s *LedgerService) SetInitialBalance(ctx context.Context, accountID string, balance *int64, date *time.Time) (RecalcReport, error) {
	var rep RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		var day *string
		if balance != nil && date != nil {
			d := date.Format(time.DateOnly)
			day = &d
		}
		if err := st.Accounts.SetInitialBalance(ctx, accountID, balance, day); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("set initial balance of %s: %w", accountID, ErrAccountNotFound)
			}
			return err
		}
		var err error
		rep, err = s.recalculate(ctx, st, accountID)
		return err
	})
	return rep, err
}

// AddCheckpoint stores a checkpoint (assigning an id when empty) and recalculates.
func (s *LedgerService) AddCheckpoint(ctx context.Context, cp repository.BalanceCheckpoint) (repository.BalanceCheckpoint, RecalcReport, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	var rep RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		acct, err := st.Accounts.Get(ctx, cp.AccountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("add checkpoint to %s: %w", cp.AccountID, ErrAccountNotFound)
		}
		if err := st.Checkpoints.Insert(ctx, cp); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		rep, err = s.recalculate(ctx, st, cp.AccountID)
		return err
	})
	return cp, rep, err
}

// UpdateCheckpoint changes date, balance and note of an existing checkpoint and recalculates.
func (s *LedgerService) UpdateCheckpoint(ctx context.Context, cp repository.BalanceCheckpoint) (RecalcReport, error) {
	var rep RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		cur, err := st.Checkpoints.Get(ctx, cp.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("update checkpoint %s: %w", cp.ID, ErrCheckpointNotFound)
		}
		if err := st.Checkpoints.Update(ctx, cp); err != nil {
			return err
		}
		rep, err = s.recalculate(ctx, st, cur.AccountID)
		return err
	})
	return rep, err
}

// DeleteCheckpoint removes a checkpoint and recalculates its account.
func (s *LedgerService) DeleteCheckpoint(ctx context.Context, id string) (RecalcReport, error) {
	var rep RecalcReport
	err := s.store().Tx(ctx, func(st *repository.Store) error {
		cur, err := st.Checkpoints.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("delete checkpoint %s: %w", id, ErrCheckpointNotFound)
		}
		if err := st.Checkpoints.Delete(ctx, id); err != nil {
			return err
		}
		rep, err = s.recalculate(ctx, st, cur.AccountID)
		return err
	})
	return rep, err
}

// Accounts lists every account with its stored balance.
func (s *LedgerService) Accounts(ctx context.Context) ([]repository.Account, error) {
	return s.store().Accounts.List(ctx)
}

// Account returns one account or ErrAccountNotFound.
func (s *LedgerService) Account(ctx context.Context, id string) (repository.Account, error) {
	a, err := s.store().Accounts.Get(ctx, id)
	if err != nil {
		return repository.Account{}, err
	}
	if a == nil {
		return repository.Account{}, fmt.Errorf("%s: %w", id, ErrAccountNotFound)
	}
	return *a, nil
}

// Checkpoints lists the checkpoints of one account in replay order.
func (s *LedgerService) Checkpoints(ctx context.Context, accountID string) ([]repository.BalanceCheckpoint, error) {
	return s.store().Checkpoints.ListByAccount(ctx, accountID)
}
