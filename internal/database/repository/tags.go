package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
)

// Tag is a free-form label attached to transactions.
type Tag struct {
	ID   string
	Name string
}

// TagID derives a stable id from the normalized tag name.
func TagID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("tag:"+strings.ToLower(strings.TrimSpace(name)))).String()
}

// TagRepo handles tags.
type TagRepo struct {
	db DBTX
}

func NewTagRepo(db DBTX) *TagRepo { return &TagRepo{db: db} }

func (r *TagRepo) Upsert(ctx context.Context, t Tag) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO tags(id, name) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET name=excluded.name;
	`, t.ID, t.Name)
	return err
}

func (r *TagRepo) ByName(ctx context.Context, name string) (*Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name = ?`, name)
	var t Tag
	if err := row.Scan(&t.ID, &t.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TagRepo) List(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func attachTagName(ctx context.Context, db DBTX, transactionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	id := TagID(name)
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO tags(id, name) VALUES (?, ?)`, id, name); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO transaction_tags(transaction_id, tag_id) VALUES(?, ?)`, transactionID, id)
	return err
}
