package repository

import (
	"context"
	"database/sql"
)

// BudgetRepo handles budgets.
type BudgetRepo struct {
	db DBTX
}

func NewBudgetRepo(db DBTX) *BudgetRepo { return &BudgetRepo{db: db} }

func (r *BudgetRepo) Upsert(ctx context.Context, b Budget) error {
	if b.Period == "" {
		b.Period = "monthly"
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budgets(id, category, amount, period, account_id, created_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 category=excluded.category,
	 amount=excluded.amount,
	 period=excluded.period,
	 account_id=excluded.account_id;
	`, b.ID, string(b.Category), b.Amount, b.Period, b.AccountID)
	return err
}

func (r *BudgetRepo) List(ctx context.Context) ([]Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, category, amount, period, account_id, created_at FROM budgets ORDER BY category, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		var b Budget
		var category string
		var account sql.NullString
		if err := rows.Scan(&b.ID, &category, &b.Amount, &b.Period, &account, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Category = Category(category)
		b.AccountID = nullStr(account)
		out = append(out, b)
	}
	return out, rows.Err()
}
