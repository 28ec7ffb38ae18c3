package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store bundles every repository over the same connection or transaction.
type Store struct {
	q DBTX

	Accounts     *AccountRepo
	Transactions *TransactionRepo
	Checkpoints  *CheckpointRepo
	Recurring    *RecurringRepo
	Budgets      *BudgetRepo
	Goals        *GoalRepo
	Settings     *SettingRepo
	Tags         *TagRepo
}

func NewStore(q DBTX) *Store {
	return &Store{
		q:            q,
		Accounts:     NewAccountRepo(q),
		Transactions: NewTransactionRepo(q),
		Checkpoints:  NewCheckpointRepo(q),
		Recurring:    NewRecurringRepo(q),
		Budgets:      NewBudgetRepo(q),
		Goals:        NewGoalRepo(q),
		Settings:     NewSettingRepo(q),
		Tags:         NewTagRepo(q),
	}
}

// Tx runs fn with a Store bound to a transaction. When the Store already wraps a
// transaction, fn joins it and commit/rollback is left to the outer caller.
func (s *Store) Tx(ctx context.Context, fn func(*Store) error) error {
	db, ok := s.q.(*sql.DB)
	if !ok {
		return fn(s)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(NewStore(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// userTables lists every user-data table, children first.
var userTables = []string{
	"transaction_tags",
	"recurring_occurrences",
	"transactions",
	"recurring",
	"balance_checkpoints",
	"budgets",
	"goals",
	"tags",
	"accounts",
	"settings",
}

// WipeUserData deletes every user row while keeping the schema. Call it inside Tx.
func (s *Store) WipeUserData(ctx context.Context) error {
	for _, table := range userTables {
		if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t, nil
}

func parseNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
