package domain

import (
	"slices"
	"time"
)

// Task is a single to-do item. TagIDs is derived from TaskTagLink rows and
// is only authoritative on the wire; the store keeps links separately.
type Task struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	URL         *string    `json:"url"`
	Priority    Priority   `json:"priority" validate:"omitempty,priority"`
	Completed   bool       `json:"completed"`
	ListID      string     `json:"list_id"`
	TagIDs      []string   `json:"tag_ids" validate:"dive,required"`
	CreatedAt   time.Time  `json:"created_at" validate:"required"`
	UpdatedAt   time.Time  `json:"updated_at" validate:"required"`
	CompletedAt *time.Time `json:"completed_at"`
	DueDate     *time.Time `json:"due_date"`
}

// ModifiedAt implements Versioned.
func (t Task) ModifiedAt() time.Time { return t.UpdatedAt }

// Kind implements Change.
func (Task) Kind() ChangeKind { return KindTask }

// RecordID implements Change.
func (t Task) RecordID() string { return t.ID }

func (Task) isChange() {}

// MergeInto returns stored overwritten with t's mutable fields, keeping the
// first-seen CreatedAt. TagIDs are handled by the link table, not here.
func (t Task) MergeInto(stored Task) Task {
	stored.Title = t.Title
	stored.Description = t.Description
	stored.URL = t.URL
	stored.Priority = t.Priority
	stored.Completed = t.Completed
	stored.ListID = t.ListID
	stored.UpdatedAt = t.UpdatedAt
	stored.CompletedAt = t.CompletedAt
	stored.DueDate = t.DueDate
	stored.TagIDs = nil
	return stored
}

// UniqueTagIDs returns TagIDs with duplicates removed, first occurrence wins.
func (t Task) UniqueTagIDs() []string {
	out := make([]string, 0, len(t.TagIDs))
	for _, id := range t.TagIDs {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// TaskTagLink attaches a tag to a task. The pair is the identity; links are
// only ever added individually and are removed in bulk per task.
type TaskTagLink struct {
	TaskID    string    `json:"task_id" validate:"required"`
	TagID     string    `json:"tag_id" validate:"required"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
}

// Kind implements Change.
func (TaskTagLink) Kind() ChangeKind { return KindTaskTag }

// RecordID implements Change.
func (l TaskTagLink) RecordID() string { return l.TaskID }

func (TaskTagLink) isChange() {}
