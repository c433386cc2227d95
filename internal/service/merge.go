package service

import (
	"errors"
	"log/slog"

	"github.com/tickitapp/tickit-sync/internal/domain"
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// MergeEngine applies an incoming batch to the store using whole-record
// last-writer-wins. It holds no state; callers supply the transaction.
type MergeEngine struct {
	logger *slog.Logger
}

// NewMergeEngine creates a merge engine.
func NewMergeEngine(logger *slog.Logger) *MergeEngine {
	return &MergeEngine{logger: logger}
}

// batch is a change set split by kind, each kind keeping batch order.
type batch struct {
	lists     []domain.List
	tags      []domain.Tag
	links     []domain.TaskTagLink
	tasks     []domain.Task
	deletions []domain.Tombstone
}

func partition(changes domain.Changes) (batch, error) {
	var b batch
	for i, c := range changes {
		switch v := c.(type) {
		case domain.List:
			b.lists = append(b.lists, v)
		case domain.Tag:
			b.tags = append(b.tags, v)
		case domain.TaskTagLink:
			b.links = append(b.links, v)
		case domain.Task:
			b.tasks = append(b.tasks, v)
		case domain.Tombstone:
			b.deletions = append(b.deletions, v)
		default:
			return batch{}, domainerrors.MalformedRecordf("changes[%d]: unsupported change %T", i, c)
		}
	}
	return b, nil
}

// Apply writes changes through tx in the order lists, tags, task-tag links,
// tasks, deletions and returns the ids of list and task upserts rejected
// because the stored copy was at least as new. Any error leaves the
// transaction in an undefined state; the caller must roll back.
func (m *MergeEngine) Apply(tx store.Tx, changes domain.Changes) ([]string, error) {
	b, err := partition(changes)
	if err != nil {
		return nil, err
	}

	conflicts := []string{}

	for i := range b.lists {
		rejected, err := m.upsertList(tx, &b.lists[i])
		if err != nil {
			return nil, err
		}
		if rejected {
			conflicts = append(conflicts, b.lists[i].ID)
		}
	}

	for i := range b.tags {
		if err := tx.PutTag(&b.tags[i]); err != nil {
			return nil, err
		}
	}

	for _, link := range b.links {
		if err := tx.AddTaskTag(link); err != nil {
			return nil, err
		}
	}

	for i := range b.tasks {
		rejected, err := m.upsertTask(tx, &b.tasks[i])
		if err != nil {
			return nil, err
		}
		if rejected {
			conflicts = append(conflicts, b.tasks[i].ID)
		}
	}

	for _, ts := range b.deletions {
		if err := m.applyDelete(tx, ts); err != nil {
			return nil, err
		}
	}

	return conflicts, nil
}

func (m *MergeEngine) upsertList(tx store.Tx, l *domain.List) (bool, error) {
	stored, err := tx.GetList(l.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, tx.PutList(l)
	}
	if err != nil {
		return false, err
	}

	if !domain.Supersedes(l.UpdatedAt, stored.UpdatedAt) {
		m.logger.Debug("list update rejected",
			"id", l.ID,
			"incoming", l.UpdatedAt,
			"stored", stored.UpdatedAt,
		)
		return true, nil
	}

	merged := l.MergeInto(*stored)
	return false, tx.PutList(&merged)
}

// upsertTask applies LWW to the task row and, when the task is accepted,
// replaces its tag links with the incoming set.
func (m *MergeEngine) upsertTask(tx store.Tx, t *domain.Task) (bool, error) {
	stored, err := tx.GetTask(t.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := tx.PutTask(t); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	case !domain.Supersedes(t.UpdatedAt, stored.UpdatedAt):
		m.logger.Debug("task update rejected",
			"id", t.ID,
			"incoming", t.UpdatedAt,
			"stored", stored.UpdatedAt,
		)
		return true, nil
	default:
		merged := t.MergeInto(*stored)
		if err := tx.PutTask(&merged); err != nil {
			return false, err
		}
	}

	if err := tx.ClearTaskTags(t.ID); err != nil {
		return false, err
	}
	for _, tagID := range t.UniqueTagIDs() {
		link := domain.TaskTagLink{TaskID: t.ID, TagID: tagID, CreatedAt: t.UpdatedAt}
		if err := tx.AddTaskTag(link); err != nil {
			return false, err
		}
	}
	return false, nil
}

// applyDelete records the tombstone and then removes the target. The inbox
// list survives deletion, but its tombstone is still written.
func (m *MergeEngine) applyDelete(tx store.Tx, ts domain.Tombstone) error {
	if err := tx.PutTombstone(ts); err != nil {
		return err
	}

	switch ts.RecordType {
	case domain.RecordTask:
		return tx.DeleteTask(ts.ID)
	case domain.RecordTag:
		return tx.DeleteTag(ts.ID)
	case domain.RecordTaskTag:
		// The id of a task_tag tombstone is the task id.
		return tx.ClearTaskTags(ts.ID)
	case domain.RecordList:
		stored, err := tx.GetList(ts.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stored.IsInbox {
			m.logger.Info("inbox list kept despite deletion", "id", ts.ID)
			return nil
		}
		return tx.DeleteList(ts.ID)
	default:
		return domainerrors.MalformedRecordf("tombstone %s: unknown record type %q", ts.ID, ts.RecordType)
	}
}
