package repository

import (
	"context"
	"database/sql"
	"strings"
)

// RecurringRepo handles recurring series and their occurrence lists.
type RecurringRepo struct {
	db DBTX
}

func NewRecurringRepo(db DBTX) *RecurringRepo { return &RecurringRepo{db: db} }

// Save inserts or fully replaces a series, including its occurrences.
func (r *RecurringRepo) Save(ctx context.Context, rt RecurringTransaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recurring(id, account_id, name, category, amount, frequency, type, status,
	 last_detected, next_expected, start_date, end_date, cancelled_at, is_excluded, is_manual,
	 confidence, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 account_id=excluded.account_id,
	 name=excluded.name,
	 category=excluded.category,
	 amount=excluded.amount,
	 frequency=excluded.frequency,
	 type=excluded.type,
	 status=excluded.status,
	 last_detected=excluded.last_detected,
	 next_expected=excluded.next_expected,
	 start_date=excluded.start_date,
	 end_date=excluded.end_date,
	 cancelled_at=excluded.cancelled_at,
	 is_excluded=excluded.is_excluded,
	 is_manual=excluded.is_manual,
	 confidence=excluded.confidence,
	 updated_at=CURRENT_TIMESTAMP;
	`, rt.ID, rt.AccountID, rt.Name, string(rt.Category), rt.Amount, string(rt.Frequency), string(rt.Type),
		string(rt.Status), formatDatePtr(rt.LastDetected), formatDatePtr(rt.NextExpected), formatDate(rt.StartDate),
		formatDatePtr(rt.EndDate), formatDatePtr(rt.CancelledAt), boolInt(rt.IsExcluded), boolInt(rt.IsManual),
		rt.Confidence)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recurring_occurrences WHERE recurring_id = ?`, rt.ID); err != nil {
		return err
	}
	for _, o := range rt.Occurrences {
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO recurring_occurrences(recurring_id, transaction_id, date) VALUES (?, ?, ?)`,
			rt.ID, o.TransactionID, formatDate(o.Date)); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a series; occurrences cascade.
func (r *RecurringRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "recurring", id)
}

func (r *RecurringRepo) Get(ctx context.Context, id string) (*RecurringTransaction, error) {
	rt, err := scanRecurring(r.db.QueryRowContext(ctx, recurringSelect+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	items := []RecurringTransaction{rt}
	if err := r.loadOccurrences(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// RecurringFilters narrows List.
type RecurringFilters struct {
	AccountID string
	Status    RecurringStatus
}

func (r *RecurringRepo) List(ctx context.Context, f RecurringFilters) ([]RecurringTransaction, error) {
	var where []string
	var args []interface{}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := recurringSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY name, id"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringTransaction
	for rows.Next() {
		rt, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadOccurrences(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecurringRepo) loadOccurrences(ctx context.Context, items []RecurringTransaction) error {
	if len(items) == 0 {
		return nil
	}
	idx := make(map[string]int, len(items))
	placeholders := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items))
	for i := range items {
		idx[items[i].ID] = i
		placeholders = append(placeholders, "?")
		args = append(args, items[i].ID)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT recurring_id, transaction_id, date FROM recurring_occurrences
	 WHERE recurring_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY date, transaction_id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rid, txID, date string
		if err := rows.Scan(&rid, &txID, &date); err != nil {
			return err
		}
		d, err := parseDate(date)
		if err != nil {
			return err
		}
		i := idx[rid]
		items[i].Occurrences = append(items[i].Occurrences, Occurrence{TransactionID: txID, Date: d})
	}
	return rows.Err()
}

const recurringSelect = `SELECT id, account_id, name, category, amount, frequency, type, status, last_detected,
 next_expected, start_date, end_date, cancelled_at, is_excluded, is_manual, confidence, created_at, updated_at
 FROM recurring`

func scanRecurring(row scanner) (RecurringTransaction, error) {
	var rt RecurringTransaction
	var category, frequency, typ, status, start string
	var last, next, end, cancelled sql.NullString
	var excluded, manual int
	if err := row.Scan(&rt.ID, &rt.AccountID, &rt.Name, &category, &rt.Amount, &frequency, &typ, &status,
		&last, &next, &start, &end, &cancelled, &excluded, &manual, &rt.Confidence, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return RecurringTransaction{}, err
	}
	rt.Category = Category(category)
	rt.Frequency = Frequency(frequency)
	rt.Type = RecurringType(typ)
	rt.Status = RecurringStatus(status)
	rt.IsExcluded = excluded != 0
	rt.IsManual = manual != 0
	var err error
	if rt.StartDate, err = parseDate(start); err != nil {
		return RecurringTransaction{}, err
	}
	if rt.LastDetected, err = parseNullDate(last); err != nil {
		return RecurringTransaction{}, err
	}
	if rt.NextExpected, err = parseNullDate(next); err != nil {
		return RecurringTransaction{}, err
	}
	if rt.EndDate, err = parseNullDate(end); err != nil {
		return RecurringTransaction{}, err
	}
	if rt.CancelledAt, err = parseNullDate(cancelled); err != nil {
		return RecurringTransaction{}, err
	}
	return rt, nil
}
