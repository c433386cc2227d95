package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// tagColumns must match the scan order in scanTag.
const tagColumns = `id, name, color, created_at, updated_at`

func scanTag(scanner interface{ Scan(dest ...any) error }) (*domain.Tag, error) {
	var tg domain.Tag

	var (
		createdAt string
		updatedAt sql.NullString
	)

	err := scanner.Scan(
		&tg.ID,
		&tg.Name,
		&tg.Color,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tg.UpdatedAt, err = parseNullableTime(updatedAt); err != nil {
		return nil, err
	}

	return &tg, nil
}

// GetTag returns store.ErrNotFound if the tag does not exist.
func (t *txn) GetTag(id string) (*domain.Tag, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)

	tg, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.IOError("get tag", err)
	}
	return tg, nil
}

// PutTag replaces the tag unconditionally.
func (t *txn) PutTag(tg *domain.Tag) error {
	return t.exec("put tag", `
		INSERT OR REPLACE INTO tags (`+tagColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		tg.ID,
		tg.Name,
		tg.Color,
		formatTime(tg.CreatedAt),
		nullTimeString(tg.UpdatedAt),
	)
}

// DeleteTag removes the tag row if present. Links that reference the tag
// are left alone.
func (t *txn) DeleteTag(id string) error {
	return t.exec("delete tag", `DELETE FROM tags WHERE id = ?`, id)
}

// TagsSince filters on updated_at, falling back to created_at for tags
// that were never given a modification time.
func (t *txn) TagsSince(since *time.Time) ([]domain.Tag, error) {
	where, args := sinceClause("COALESCE(updated_at, created_at)", since)
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+tagColumns+` FROM tags`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, store.IOError("query tags", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		tg, err := scanTag(rows)
		if err != nil {
			return nil, store.IOError("scan tag", err)
		}
		tags = append(tags, *tg)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("query tags", err)
	}
	return tags, nil
}
