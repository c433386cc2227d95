package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// taskColumns must match the scan order in scanTask.
const taskColumns = `id, title, description, url, priority, completed, list_id,
	created_at, updated_at, completed_at, due_date`

func scanTask(scanner interface{ Scan(dest ...any) error }) (*domain.Task, error) {
	var tk domain.Task

	var (
		description sql.NullString
		url         sql.NullString
		priority    string
		completed   int
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
		dueDate     sql.NullString
	)

	err := scanner.Scan(
		&tk.ID,
		&tk.Title,
		&description,
		&url,
		&priority,
		&completed,
		&tk.ListID,
		&createdAt,
		&updatedAt,
		&completedAt,
		&dueDate,
	)
	if err != nil {
		return nil, err
	}

	tk.Description = stringPtr(description)
	tk.URL = stringPtr(url)
	tk.Priority = domain.Priority(priority).OrDefault()
	tk.Completed = completed != 0

	if tk.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tk.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if tk.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	if tk.DueDate, err = parseNullableTime(dueDate); err != nil {
		return nil, err
	}

	return &tk, nil
}

// GetTask returns store.ErrNotFound if the task does not exist.
func (t *txn) GetTask(id string) (*domain.Task, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	tk, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.IOError("get task", err)
	}
	return tk, nil
}

// PutTask inserts the task or replaces every column of an existing row.
// Tag links are not touched.
func (t *txn) PutTask(tk *domain.Task) error {
	return t.exec("put task", `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			url = excluded.url,
			priority = excluded.priority,
			completed = excluded.completed,
			list_id = excluded.list_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			due_date = excluded.due_date`,
		tk.ID,
		tk.Title,
		nullableString(tk.Description),
		nullableString(tk.URL),
		string(tk.Priority.OrDefault()),
		boolToInt(tk.Completed),
		tk.ListID,
		formatTime(tk.CreatedAt),
		formatTime(tk.UpdatedAt),
		nullTimeString(tk.CompletedAt),
		nullTimeString(tk.DueDate),
	)
}

// DeleteTask removes the task row if present.
func (t *txn) DeleteTask(id string) error {
	return t.exec("delete task", `DELETE FROM tasks WHERE id = ?`, id)
}

// TasksSince returns tasks with updated_at after since, ordered by id.
func (t *txn) TasksSince(since *time.Time) ([]domain.Task, error) {
	where, args := sinceClause("updated_at", since)
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+taskColumns+` FROM tasks`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, store.IOError("query tasks", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, store.IOError("scan task", err)
		}
		tasks = append(tasks, *tk)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("query tasks", err)
	}
	return tasks, nil
}
