package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

// Upsert writes identity fields. Balances are left to SetBalance and SetInitialBalance.
func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, name, institution, account_type, currency, color, balance,
	 initial_balance, initial_balance_date, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 institution=excluded.institution,
	 account_type=excluded.account_type,
	 currency=excluded.currency,
	 color=excluded.color,
	 is_active=excluded.is_active,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.Name, a.Institution, a.AccountType, a.Currency, a.Color, a.Balance,
		a.InitialBalance, formatDatePtr(a.InitialBalanceDate), boolInt(a.IsActive))
	return err
}

// Insert writes every column as given, used by snapshot restore.
func (r *AccountRepo) Insert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, name, institution, account_type, currency, color, balance,
	 initial_balance, initial_balance_date, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, a.ID, a.Name, a.Institution, a.AccountType, a.Currency, a.Color, a.Balance,
		a.InitialBalance, formatDatePtr(a.InitialBalanceDate), boolInt(a.IsActive))
	return err
}

func (r *AccountRepo) SetInitialBalance(ctx context.Context, id string, balance *int64, date *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET initial_balance = ?, initial_balance_date = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, balance, date, id)
	if err != nil {
		return err
	}
	return expectOne(res, "account", id)
}

func (r *AccountRepo) SetBalance(ctx context.Context, id string, balance int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, balance, id)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, accountSelect+` WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, accountSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const accountSelect = `SELECT id, name, institution, account_type, currency, color, balance,
 initial_balance, initial_balance_date, is_active, created_at, updated_at FROM accounts`

func scanAccount(row scanner) (Account, error) {
	var a Account
	var initial sql.NullInt64
	var initialDate sql.NullString
	var active int
	if err := row.Scan(&a.ID, &a.Name, &a.Institution, &a.AccountType, &a.Currency, &a.Color,
		&a.Balance, &initial, &initialDate, &active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	a.InitialBalance = nullInt(initial)
	d, err := parseNullDate(initialDate)
	if err != nil {
		return Account{}, err
	}
	a.InitialBalanceDate = d
	a.IsActive = active != 0
	return a, nil
}

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
