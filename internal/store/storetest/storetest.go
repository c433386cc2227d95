// Package storetest holds the behavioural test suite every store.Store
// backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

// Base is the reference instant used by the suite.
var Base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// Run executes the full contract suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ListRoundTrip", testListRoundTrip},
		{"PutListReplaces", testPutListReplaces},
		{"GetMissingReturnsNotFound", testGetMissing},
		{"TagRoundTripWithOptionalUpdatedAt", testTagRoundTrip},
		{"TaskRoundTrip", testTaskRoundTrip},
		{"TaskTagLinks", testTaskTagLinks},
		{"TombstoneReplacedByKey", testTombstoneReplacedByKey},
		{"SinceFiltersStrictlyAfter", testSinceFilters},
		{"TagsSinceUsesModificationTime", testTagsSinceModification},
		{"DeletesAreIdempotent", testDeletes},
		{"DeviceWatermark", testDeviceWatermark},
		{"UpdateRollsBackOnError", testRollback},
		{"SubSecondOrdering", testSubSecondOrdering},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func update(t *testing.T, s store.Store, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func view(t *testing.T, s store.Store, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func testListRoundTrip(t *testing.T, s store.Store) {
	want := domain.List{
		ID:          "list-1",
		Name:        "Groceries",
		Description: strPtr("weekly shop"),
		Icon:        "cart",
		Color:       nil,
		IsInbox:     true,
		SortOrder:   3,
		CreatedAt:   Base,
		UpdatedAt:   Base.Add(time.Minute),
	}
	update(t, s, func(tx store.Tx) error { return tx.PutList(&want) })

	view(t, s, func(tx store.Tx) error {
		got, err := tx.GetList("list-1")
		require.NoError(t, err)
		assert.Equal(t, want.Name, got.Name)
		require.NotNil(t, got.Description)
		assert.Equal(t, "weekly shop", *got.Description)
		assert.Nil(t, got.Color)
		assert.True(t, got.IsInbox)
		assert.Equal(t, 3, got.SortOrder)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
		return nil
	})
}

func testPutListReplaces(t *testing.T, s store.Store) {
	l := domain.List{ID: "l", Name: "before", CreatedAt: Base, UpdatedAt: Base}
	update(t, s, func(tx store.Tx) error { return tx.PutList(&l) })

	l.Name = "after"
	l.Color = strPtr("#00ff00")
	l.UpdatedAt = Base.Add(time.Hour)
	update(t, s, func(tx store.Tx) error { return tx.PutList(&l) })

	view(t, s, func(tx store.Tx) error {
		got, err := tx.GetList("l")
		require.NoError(t, err)
		assert.Equal(t, "after", got.Name)
		require.NotNil(t, got.Color)
		assert.Equal(t, "#00ff00", *got.Color)

		all, err := tx.ListsSince(nil)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	})
}

func testGetMissing(t *testing.T, s store.Store) {
	view(t, s, func(tx store.Tx) error {
		_, err := tx.GetList("nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetTag("nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetTask("nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetDeviceWatermark("nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testTagRoundTrip(t *testing.T, s store.Store) {
	updated := Base.Add(time.Hour)
	update(t, s, func(tx store.Tx) error {
		if err := tx.PutTag(&domain.Tag{ID: "a", Name: "work", Color: "#f00", CreatedAt: Base}); err != nil {
			return err
		}
		return tx.PutTag(&domain.Tag{ID: "b", Name: "home", Color: "#0f0", CreatedAt: Base, UpdatedAt: &updated})
	})

	view(t, s, func(tx store.Tx) error {
		a, err := tx.GetTag("a")
		require.NoError(t, err)
		assert.Nil(t, a.UpdatedAt)
		assert.Equal(t, "work", a.Name)

		b, err := tx.GetTag("b")
		require.NoError(t, err)
		require.NotNil(t, b.UpdatedAt)
		assert.True(t, updated.Equal(*b.UpdatedAt))
		return nil
	})
}

func testTaskRoundTrip(t *testing.T, s store.Store) {
	due := Base.Add(48 * time.Hour)
	want := domain.Task{
		ID:          "task-1",
		Title:       "Call plumber",
		Description: nil,
		URL:         strPtr("https://example.com"),
		Priority:    domain.PriorityUrgent,
		Completed:   false,
		ListID:      "list-1",
		CreatedAt:   Base,
		UpdatedAt:   Base.Add(time.Second),
		DueDate:     &due,
	}
	update(t, s, func(tx store.Tx) error { return tx.PutTask(&want) })

	view(t, s, func(tx store.Tx) error {
		got, err := tx.GetTask("task-1")
		require.NoError(t, err)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, domain.PriorityUrgent, got.Priority)
		assert.Equal(t, "list-1", got.ListID)
		assert.Nil(t, got.Description)
		require.NotNil(t, got.URL)
		assert.Equal(t, "https://example.com", *got.URL)
		assert.Nil(t, got.CompletedAt)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))
		return nil
	})
}

func testTaskTagLinks(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		for _, tag := range []string{"t1", "t2", "t1"} {
			if err := tx.AddTaskTag(domain.TaskTagLink{TaskID: "k", TagID: tag, CreatedAt: Base}); err != nil {
				return err
			}
		}
		return tx.AddTaskTag(domain.TaskTagLink{TaskID: "other", TagID: "t1", CreatedAt: Base})
	})

	view(t, s, func(tx store.Tx) error {
		ids, err := tx.TaskTagIDs("k")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
		return nil
	})

	update(t, s, func(tx store.Tx) error { return tx.ClearTaskTags("k") })

	view(t, s, func(tx store.Tx) error {
		ids, err := tx.TaskTagIDs("k")
		require.NoError(t, err)
		assert.Empty(t, ids)

		other, err := tx.TaskTagIDs("other")
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, other)
		return nil
	})
}

func testTombstoneReplacedByKey(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		if err := tx.PutTombstone(domain.Tombstone{ID: "x", RecordType: domain.RecordTask, DeletedAt: Base}); err != nil {
			return err
		}
		if err := tx.PutTombstone(domain.Tombstone{ID: "x", RecordType: domain.RecordTaskTag, DeletedAt: Base}); err != nil {
			return err
		}
		return tx.PutTombstone(domain.Tombstone{ID: "x", RecordType: domain.RecordTask, DeletedAt: Base.Add(time.Hour)})
	})

	view(t, s, func(tx store.Tx) error {
		all, err := tx.TombstonesSince(nil)
		require.NoError(t, err)
		require.Len(t, all, 2)

		byType := map[domain.RecordType]time.Time{}
		for _, ts := range all {
			byType[ts.RecordType] = ts.DeletedAt
		}
		assert.True(t, Base.Add(time.Hour).Equal(byType[domain.RecordTask]))
		assert.True(t, Base.Equal(byType[domain.RecordTaskTag]))
		return nil
	})
}

func testSinceFilters(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			at := Base.Add(time.Duration(i) * time.Hour)
			if err := tx.PutList(&domain.List{ID: id, CreatedAt: at, UpdatedAt: at}); err != nil {
				return err
			}
			if err := tx.PutTask(&domain.Task{ID: id, ListID: "a", CreatedAt: at, UpdatedAt: at}); err != nil {
				return err
			}
			if err := tx.PutTombstone(domain.Tombstone{ID: id, RecordType: domain.RecordTag, DeletedAt: at}); err != nil {
				return err
			}
		}
		return nil
	})

	since := Base.Add(time.Hour)
	view(t, s, func(tx store.Tx) error {
		lists, err := tx.ListsSince(&since)
		require.NoError(t, err)
		require.Len(t, lists, 1)
		assert.Equal(t, "c", lists[0].ID)

		tasks, err := tx.TasksSince(&since)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "c", tasks[0].ID)

		tombs, err := tx.TombstonesSince(&since)
		require.NoError(t, err)
		require.Len(t, tombs, 1)
		assert.Equal(t, "c", tombs[0].ID)

		all, err := tx.TasksSince(nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		return nil
	})
}

func testTagsSinceModification(t *testing.T, s store.Store) {
	renamed := Base.Add(2 * time.Hour)
	update(t, s, func(tx store.Tx) error {
		if err := tx.PutTag(&domain.Tag{ID: "old", CreatedAt: Base}); err != nil {
			return err
		}
		return tx.PutTag(&domain.Tag{ID: "renamed", CreatedAt: Base, UpdatedAt: &renamed})
	})

	since := Base.Add(time.Hour)
	view(t, s, func(tx store.Tx) error {
		tags, err := tx.TagsSince(&since)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, "renamed", tags[0].ID)
		return nil
	})
}

func testDeletes(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		if err := tx.PutList(&domain.List{ID: "l", CreatedAt: Base, UpdatedAt: Base}); err != nil {
			return err
		}
		if err := tx.PutTag(&domain.Tag{ID: "g", CreatedAt: Base}); err != nil {
			return err
		}
		return tx.PutTask(&domain.Task{ID: "k", CreatedAt: Base, UpdatedAt: Base})
	})

	for range 2 {
		update(t, s, func(tx store.Tx) error {
			if err := tx.DeleteList("l"); err != nil {
				return err
			}
			if err := tx.DeleteTag("g"); err != nil {
				return err
			}
			return tx.DeleteTask("k")
		})
	}

	view(t, s, func(tx store.Tx) error {
		_, err := tx.GetList("l")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetTag("g")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetTask("k")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testDeviceWatermark(t *testing.T, s store.Store) {
	update(t, s, func(tx store.Tx) error {
		return tx.PutDeviceWatermark(domain.DeviceWatermark{DeviceID: "phone", LastSync: Base})
	})
	update(t, s, func(tx store.Tx) error {
		return tx.PutDeviceWatermark(domain.DeviceWatermark{DeviceID: "phone", LastSync: Base.Add(time.Minute)})
	})

	view(t, s, func(tx store.Tx) error {
		w, err := tx.GetDeviceWatermark("phone")
		require.NoError(t, err)
		assert.True(t, Base.Add(time.Minute).Equal(w.LastSync))
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	boom := assert.AnError
	err := s.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.PutList(&domain.List{ID: "ghost", CreatedAt: Base, UpdatedAt: Base}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	view(t, s, func(tx store.Tx) error {
		_, err := tx.GetList("ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

// Watermarks carry nanoseconds; a record one nanosecond newer must still be
// returned and one at exactly the watermark must not.
func testSubSecondOrdering(t *testing.T, s store.Store) {
	mark := Base.Add(500 * time.Millisecond)
	update(t, s, func(tx store.Tx) error {
		if err := tx.PutTask(&domain.Task{ID: "equal", CreatedAt: mark, UpdatedAt: mark}); err != nil {
			return err
		}
		later := mark.Add(time.Nanosecond)
		if err := tx.PutTask(&domain.Task{ID: "later", CreatedAt: later, UpdatedAt: later}); err != nil {
			return err
		}
		whole := Base.Add(time.Second)
		return tx.PutTask(&domain.Task{ID: "whole", CreatedAt: whole, UpdatedAt: whole})
	})

	view(t, s, func(tx store.Tx) error {
		tasks, err := tx.TasksSince(&mark)
		require.NoError(t, err)
		ids := make([]string, 0, len(tasks))
		for _, tk := range tasks {
			ids = append(ids, tk.ID)
		}
		assert.ElementsMatch(t, []string{"later", "whole"}, ids)
		return nil
	})
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
