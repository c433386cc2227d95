package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// listColumns must match the scan order in scanList.
const listColumns = `id, name, description, icon, color, is_inbox, sort_order, created_at, updated_at`

func scanList(scanner interface{ Scan(dest ...any) error }) (*domain.List, error) {
	var l domain.List

	var (
		description sql.NullString
		color       sql.NullString
		isInbox     int
		createdAt   string
		updatedAt   string
	)

	err := scanner.Scan(
		&l.ID,
		&l.Name,
		&description,
		&l.Icon,
		&color,
		&isInbox,
		&l.SortOrder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Description = stringPtr(description)
	l.Color = stringPtr(color)
	l.IsInbox = isInbox != 0

	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &l, nil
}

// GetList returns store.ErrNotFound if the list does not exist.
func (t *txn) GetList(id string) (*domain.List, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id)

	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.IOError("get list", err)
	}
	return l, nil
}

// PutList inserts the list or replaces every column of an existing row.
func (t *txn) PutList(l *domain.List) error {
	return t.exec("put list", `
		INSERT INTO lists (`+listColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			icon = excluded.icon,
			color = excluded.color,
			is_inbox = excluded.is_inbox,
			sort_order = excluded.sort_order,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		l.ID,
		l.Name,
		nullableString(l.Description),
		l.Icon,
		nullableString(l.Color),
		boolToInt(l.IsInbox),
		l.SortOrder,
		formatTime(l.CreatedAt),
		formatTime(l.UpdatedAt),
	)
}

// DeleteList removes the list row if present.
func (t *txn) DeleteList(id string) error {
	return t.exec("delete list", `DELETE FROM lists WHERE id = ?`, id)
}

// ListsSince returns lists with updated_at after since, ordered by id.
func (t *txn) ListsSince(since *time.Time) ([]domain.List, error) {
	where, args := sinceClause("updated_at", since)
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+listColumns+` FROM lists`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, store.IOError("query lists", err)
	}
	defer rows.Close()

	lists := []domain.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, store.IOError("scan list", err)
		}
		lists = append(lists, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("query lists", err)
	}
	return lists, nil
}
