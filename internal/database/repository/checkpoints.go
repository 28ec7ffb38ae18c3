package repository

import (
	"context"
	"database/sql"
)

// CheckpointRepo handles balance checkpoints.
type CheckpointRepo struct {
	db DBTX
}

func NewCheckpointRepo(db DBTX) *CheckpointRepo { return &CheckpointRepo{db: db} }

func (r *CheckpointRepo) Insert(ctx context.Context, c BalanceCheckpoint) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO balance_checkpoints(id, account_id, date, balance, note, created_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, c.ID, c.AccountID, formatDate(c.Date), c.Balance, c.Note)
	return err
}

func (r *CheckpointRepo) Update(ctx context.Context, c BalanceCheckpoint) error {
	res, err := r.db.ExecContext(ctx, `UPDATE balance_checkpoints SET date = ?, balance = ?, note = ? WHERE id = ?`,
		formatDate(c.Date), c.Balance, c.Note, c.ID)
	if err != nil {
		return err
	}
	return expectOne(res, "checkpoint", c.ID)
}

func (r *CheckpointRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM balance_checkpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "checkpoint", id)
}

func (r *CheckpointRepo) Get(ctx context.Context, id string) (*BalanceCheckpoint, error) {
	c, err := scanCheckpoint(r.db.QueryRowContext(ctx, checkpointSelect+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListByAccount returns checkpoints ordered by date then creation, so a later
// checkpoint on the same date sorts last.
func (r *CheckpointRepo) ListByAccount(ctx context.Context, accountID string) ([]BalanceCheckpoint, error) {
	return r.list(ctx, checkpointSelect+` WHERE account_id = ? ORDER BY date, created_at, rowid`, accountID)
}

func (r *CheckpointRepo) ListAll(ctx context.Context) ([]BalanceCheckpoint, error) {
	return r.list(ctx, checkpointSelect+` ORDER BY account_id, date, created_at, rowid`)
}

func (r *CheckpointRepo) list(ctx context.Context, q string, args ...interface{}) ([]BalanceCheckpoint, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceCheckpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const checkpointSelect = `SELECT id, account_id, date, balance, note, created_at FROM balance_checkpoints`

func scanCheckpoint(row scanner) (BalanceCheckpoint, error) {
	var c BalanceCheckpoint
	var date string
	if err := row.Scan(&c.ID, &c.AccountID, &date, &c.Balance, &c.Note, &c.CreatedAt); err != nil {
		return BalanceCheckpoint{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return BalanceCheckpoint{}, err
	}
	c.Date = d
	return c, nil
}
