package repository

import (
	"context"
	"database/sql"
)

// GoalRepo handles savings goals.
type GoalRepo struct {
	db DBTX
}

func NewGoalRepo(db DBTX) *GoalRepo { return &GoalRepo{db: db} }

func (r *GoalRepo) Upsert(ctx context.Context, g Goal) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO goals(id, name, target, saved, target_date, account_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 target=excluded.target,
	 saved=excluded.saved,
	 target_date=excluded.target_date,
	 account_id=excluded.account_id;
	`, g.ID, g.Name, g.Target, g.Saved, formatDatePtr(g.TargetDate), g.AccountID)
	return err
}

func (r *GoalRepo) List(ctx context.Context) ([]Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, target, saved, target_date, account_id, created_at FROM goals ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Goal
	for rows.Next() {
		var g Goal
		var targetDate, account sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.Target, &g.Saved, &targetDate, &account, &g.CreatedAt); err != nil {
			return nil, err
		}
		d, err := parseNullDate(targetDate)
		if err != nil {
			return nil, err
		}
		g.TargetDate = d
		g.AccountID = nullStr(account)
		out = append(out, g)
	}
	return out, rows.Err()
}
