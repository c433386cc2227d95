package service

import (
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// ChangeExtractor reads everything a device has not seen yet.
type ChangeExtractor struct{}

// Since returns, in order, lists, tags, tasks (with their current tag ids)
// and tombstones modified after since. A nil since yields a full snapshot.
func (ChangeExtractor) Since(tx store.Tx, since *time.Time) (domain.Changes, error) {
	lists, err := tx.ListsSince(since)
	if err != nil {
		return nil, err
	}
	tags, err := tx.TagsSince(since)
	if err != nil {
		return nil, err
	}
	tasks, err := tx.TasksSince(since)
	if err != nil {
		return nil, err
	}
	tombstones, err := tx.TombstonesSince(since)
	if err != nil {
		return nil, err
	}

	out := make(domain.Changes, 0, len(lists)+len(tags)+len(tasks)+len(tombstones))
	for _, l := range lists {
		out = append(out, l)
	}
	for _, tg := range tags {
		out = append(out, tg)
	}
	for _, tk := range tasks {
		ids, err := tx.TaskTagIDs(tk.ID)
		if err != nil {
			return nil, err
		}
		tk.TagIDs = ids
		out = append(out, tk)
	}
	for _, ts := range tombstones {
		out = append(out, ts)
	}
	return out, nil
}
