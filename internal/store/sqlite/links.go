package sqlite

import (
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// AddTaskTag inserts the link unless the pair already exists.
func (t *txn) AddTaskTag(link domain.TaskTagLink) error {
	return t.exec("add task tag", `
		INSERT OR IGNORE INTO task_tags (task_id, tag_id, created_at)
		VALUES (?, ?, ?)`,
		link.TaskID,
		link.TagID,
		formatTime(link.CreatedAt),
	)
}

// ClearTaskTags removes every link whose task_id is taskID.
func (t *txn) ClearTaskTags(taskID string) error {
	return t.exec("clear task tags", `DELETE FROM task_tags WHERE task_id = ?`, taskID)
}

// TaskTagIDs returns the tag ids linked to taskID in link creation order.
func (t *txn) TaskTagIDs(taskID string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT tag_id FROM task_tags WHERE task_id = ? ORDER BY created_at, tag_id`, taskID)
	if err != nil {
		return nil, store.IOError("query task tags", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.IOError("scan task tag", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("query task tags", err)
	}
	return ids, nil
}

// PutTombstone writes or replaces the tombstone for (ID, RecordType).
func (t *txn) PutTombstone(ts domain.Tombstone) error {
	return t.exec("put tombstone", `
		INSERT OR REPLACE INTO tombstones (id, record_type, deleted_at)
		VALUES (?, ?, ?)`,
		ts.ID,
		string(ts.RecordType),
		formatTime(ts.DeletedAt),
	)
}

// TombstonesSince returns tombstones with deleted_at after since.
func (t *txn) TombstonesSince(since *time.Time) ([]domain.Tombstone, error) {
	where, args := sinceClause("deleted_at", since)
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, record_type, deleted_at FROM tombstones`+where+` ORDER BY id, record_type`, args...)
	if err != nil {
		return nil, store.IOError("query tombstones", err)
	}
	defer rows.Close()

	tombstones := []domain.Tombstone{}
	for rows.Next() {
		var (
			ts         domain.Tombstone
			recordType string
			deletedAt  string
		)
		if err := rows.Scan(&ts.ID, &recordType, &deletedAt); err != nil {
			return nil, store.IOError("scan tombstone", err)
		}
		ts.RecordType = domain.RecordType(recordType)
		if ts.DeletedAt, err = parseTime(deletedAt); err != nil {
			return nil, store.IOError("scan tombstone", err)
		}
		tombstones = append(tombstones, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, store.IOError("query tombstones", err)
	}
	return tombstones, nil
}
