package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID   string
	From        time.Time // inclusive; zero = open
	To          time.Time // inclusive; zero = open
	Search      string
	RecurringID string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

// Insert stores t. A zero Seq is assigned the next insertion order value and
// Direction is always re-derived from the amount sign.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	t.Direction = DirectionOf(t.Amount)
	var seq interface{} = t.Seq
	if t.Seq == 0 {
		seq = nil
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, seq, date, value_date, amount, direction, merchant, description,
	 category, subcategory, balance_after, bank_balance, is_recurring, recurring_id,
	 fingerprint, created_at, updated_at)
	VALUES(?, ?, COALESCE(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions)), ?, ?, ?, ?, ?, ?,
	 ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, seq, formatDate(t.Date), formatDatePtr(t.ValueDate), t.Amount, string(t.Direction),
		t.Merchant, t.Description, string(t.Category), t.Subcategory, t.BalanceAfter, t.BankBalance,
		boolInt(t.IsRecurring), t.RecurringID, t.Fingerprint)
	if err != nil {
		return err
	}
	for _, tag := range t.Tags {
		if err := attachTagName(ctx, r.db, t.ID, tag); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionRepo) UpdateCategory(ctx context.Context, id string, c Category, sub string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET category = ?, subcategory = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, string(c), sub, id)
	if err != nil {
		return err
	}
	return expectOne(res, "transaction", id)
}

// UpdateAmount changes the amount and keeps direction consistent with the new sign.
func (r *TransactionRepo) UpdateAmount(ctx context.Context, id string, amount int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET amount = ?, direction = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`,
		amount, string(DirectionOf(amount)), id)
	if err != nil {
		return err
	}
	return expectOne(res, "transaction", id)
}

// BalanceUpdate is one replayed balance_after value.
type BalanceUpdate struct {
	ID           string
	BalanceAfter int64
}

// UpdateBalances writes replayed balances. Callers batch and wrap in a transaction.
func (r *TransactionRepo) UpdateBalances(ctx context.Context, updates []BalanceUpdate) error {
	for _, u := range updates {
		if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET balance_after = ? WHERE id = ?`, u.BalanceAfter, u.ID); err != nil {
			return err
		}
	}
	return nil
}

// SetRecurring links (or with nil unlinks) a transaction to a recurring series.
func (r *TransactionRepo) SetRecurring(ctx context.Context, id string, recurringID *string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET is_recurring = ?, recurring_id = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(recurringID != nil), recurringID, id)
	return err
}

// RelinkRecurring moves every back-reference from one series to another.
func (r *TransactionRepo) RelinkRecurring(ctx context.Context, fromID, toID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET recurring_id = ?, is_recurring = 1, updated_at=CURRENT_TIMESTAMP WHERE recurring_id = ?`, toID, fromID)
	return err
}

// ClearRecurring drops every back-reference to a series.
func (r *TransactionRepo) ClearRecurring(ctx context.Context, recurringID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET recurring_id = NULL, is_recurring = 0, updated_at=CURRENT_TIMESTAMP WHERE recurring_id = ?`, recurringID)
	return err
}

func (r *TransactionRepo) AttachTag(ctx context.Context, transactionID, tag string) error {
	return attachTagName(ctx, r.db, transactionID, tag)
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, transactionSelect+` WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	tags, err := r.fetchTags(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return &t, nil
}

// List returns matching transactions in replay order (date, seq).
func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(f.To))
	}
	if f.Search != "" {
		where = append(where, "(merchant LIKE ? OR description LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}
	if f.RecurringID != "" {
		where = append(where, "recurring_id = ?")
		args = append(args, f.RecurringID)
	}

	query := transactionSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByAccount returns every transaction of an account in replay order.
func (r *TransactionRepo) ListByAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	return r.List(ctx, TransactionFilters{AccountID: accountID})
}

// ListAll returns every transaction, used by snapshot export.
func (r *TransactionRepo) ListAll(ctx context.Context) ([]Transaction, error) {
	return r.List(ctx, TransactionFilters{})
}

func (r *TransactionRepo) Count(ctx context.Context, accountID string) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM transactions`
	var args []interface{}
	if accountID != "" {
		q += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// loadTags fills Tags for a batch with a single query.
func (r *TransactionRepo) loadTags(ctx context.Context, txns []Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	idx := make(map[string]int, len(txns))
	for i := range txns {
		idx[txns[i].ID] = i
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tt.transaction_id, t.name FROM tags t JOIN transaction_tags tt ON tt.tag_id = t.id ORDER BY t.name`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var txID, name string
		if err := rows.Scan(&txID, &name); err != nil {
			return err
		}
		if i, ok := idx[txID]; ok {
			txns[i].Tags = append(txns[i].Tags, name)
		}
	}
	return rows.Err()
}

func (r *TransactionRepo) fetchTags(ctx context.Context, transactionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT t.name FROM tags t JOIN transaction_tags tt ON tt.tag_id = t.id WHERE tt.transaction_id = ? ORDER BY t.name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

const transactionSelect = `SELECT id, account_id, seq, date, value_date, amount, direction, merchant, description,
 category, subcategory, balance_after, bank_balance, is_recurring, recurring_id, fingerprint, created_at, updated_at
 FROM transactions`

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var date string
	var valueDate, recurringID sql.NullString
	var balanceAfter, bankBalance sql.NullInt64
	var direction, category string
	var recurring int
	if err := row.Scan(&t.ID, &t.AccountID, &t.Seq, &date, &valueDate, &t.Amount, &direction, &t.Merchant,
		&t.Description, &category, &t.Subcategory, &balanceAfter, &bankBalance, &recurring, &recurringID,
		&t.Fingerprint, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return Transaction{}, err
	}
	t.Date = d
	if t.ValueDate, err = parseNullDate(valueDate); err != nil {
		return Transaction{}, err
	}
	t.Direction = Direction(direction)
	t.Category = Category(category)
	t.BalanceAfter = nullInt(balanceAfter)
	t.BankBalance = nullInt(bankBalance)
	t.IsRecurring = recurring != 0
	t.RecurringID = nullStr(recurringID)
	return t, nil
}
