package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/domain"
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
	"github.com/tickitapp/tickit-sync/internal/store"
)

func TestApplyChanges_NewTaskThenOlderUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()

		conflicts, err := svc.ApplyChanges(ctx, domain.Changes{newTask("T1", 10)})
		require.NoError(t, err)
		assert.Empty(t, conflicts)

		stale := newTask("T1", 5)
		stale.Title = "X"
		conflicts, err = svc.ApplyChanges(ctx, domain.Changes{stale})
		require.NoError(t, err)
		assert.Equal(t, []string{"T1"}, conflicts)

		task, _ := getTask(t, st, "T1")
		assert.True(t, at(10).Equal(task.UpdatedAt))
		assert.Equal(t, "Task T1", task.Title)
	})
}

func TestApplyChanges_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, _ store.Store, _ *fakeClock) {
		ctx := context.Background()
		batch := domain.Changes{
			newList("L1", 3),
			newTag("G1", 1),
			domain.TaskTagLink{TaskID: "T1", TagID: "G1", CreatedAt: at(1)},
			newTask("T1", 4, "G1"),
			newTask("T2", 4),
			deletion("T9", domain.RecordTask, 5),
		}

		conflicts, err := svc.ApplyChanges(ctx, batch)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
		first := snapshot(t, svc)

		conflicts, err = svc.ApplyChanges(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, []string{"L1", "T1", "T2"}, conflicts)
		assert.Equal(t, first, snapshot(t, svc))
	})
}

func TestApplyChanges_LWWIndependentOfOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ *SyncService, st store.Store, _ *fakeClock) {
		older := newList("L", 10)
		older.Name = "older"
		newer := newList("L", 20)
		newer.Name = "newer"

		for _, order := range [][]domain.List{{older, newer}, {newer, older}} {
			svc := NewSyncService(st, discardLogger())
			ctx := context.Background()
			require.NoError(t, st.Update(ctx, func(tx store.Tx) error { return tx.DeleteList("L") }))

			for _, l := range order {
				_, err := svc.ApplyChanges(ctx, domain.Changes{l})
				require.NoError(t, err)
			}

			got, err := getList(t, st, "L")
			require.NoError(t, err)
			assert.Equal(t, "newer", got.Name)
			assert.True(t, at(20).Equal(got.UpdatedAt))
		}
	})
}

func TestApplyChanges_EqualTimestampIsConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		_, err := svc.ApplyChanges(ctx, domain.Changes{newTask("T", 7, "a")})
		require.NoError(t, err)

		same := newTask("T", 7, "b")
		same.Title = "other device"
		conflicts, err := svc.ApplyChanges(ctx, domain.Changes{same})
		require.NoError(t, err)
		assert.Equal(t, []string{"T"}, conflicts)

		task, tags := getTask(t, st, "T")
		assert.Equal(t, "Task T", task.Title)
		assert.Equal(t, []string{"a"}, tags, "a rejected task must not touch its tags")
	})
}

func TestApplyChanges_UpdateKeepsCreatedAtAndInboxFlag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		inbox := newList("inbox", 1)
		inbox.IsInbox = true
		_, err := svc.ApplyChanges(ctx, domain.Changes{inbox})
		require.NoError(t, err)

		rename := newList("inbox", 2)
		rename.Name = "Renamed"
		rename.IsInbox = false
		rename.CreatedAt = at(99)
		_, err = svc.ApplyChanges(ctx, domain.Changes{rename})
		require.NoError(t, err)

		got, err := getList(t, st, "inbox")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.True(t, got.IsInbox)
		assert.True(t, at(0).Equal(got.CreatedAt))
	})
}

func TestApplyChanges_TagSetReplace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()

		_, err := svc.ApplyChanges(ctx, domain.Changes{newTask("T", 1, "a", "b", "a")})
		require.NoError(t, err)
		_, tags := getTask(t, st, "T")
		assert.ElementsMatch(t, []string{"a", "b"}, tags)

		_, err = svc.ApplyChanges(ctx, domain.Changes{newTask("T", 2, "b", "c")})
		require.NoError(t, err)
		_, tags = getTask(t, st, "T")
		assert.ElementsMatch(t, []string{"b", "c"}, tags)

		_, err = svc.ApplyChanges(ctx, domain.Changes{newTask("T", 3)})
		require.NoError(t, err)
		_, tags = getTask(t, st, "T")
		assert.Empty(t, tags)
	})
}

func TestApplyChanges_LinkBeforeTaskInSameBatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		// Tasks are applied after links, so the task's own tag set wins.
		batch := domain.Changes{
			newTask("T", 1, "from-task"),
			domain.TaskTagLink{TaskID: "T", TagID: "from-link", CreatedAt: at(1)},
		}
		_, err := svc.ApplyChanges(context.Background(), batch)
		require.NoError(t, err)

		_, tags := getTask(t, st, "T")
		assert.Equal(t, []string{"from-task"}, tags)
	})
}

func TestApplyChanges_TagsAlwaysReplace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		newer := newTag("G", 50)
		newer.Name = "newer"
		older := newTag("G", 10)
		older.Name = "older"

		_, err := svc.ApplyChanges(ctx, domain.Changes{newer})
		require.NoError(t, err)
		conflicts, err := svc.ApplyChanges(ctx, domain.Changes{older})
		require.NoError(t, err)
		assert.Empty(t, conflicts)

		require.NoError(t, st.View(ctx, func(tx store.Tx) error {
			g, err := tx.GetTag("G")
			require.NoError(t, err)
			assert.Equal(t, "older", g.Name)
			return nil
		}))
	})
}

func TestApplyChanges_DeleteRemovesAndTombstones(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		_, err := svc.ApplyChanges(ctx, domain.Changes{
			newList("L", 1), newTag("G", 1), newTask("T", 1, "G"), newTask("U", 1, "G"),
		})
		require.NoError(t, err)

		_, err = svc.ApplyChanges(ctx, domain.Changes{
			deletion("L", domain.RecordList, 5),
			deletion("G", domain.RecordTag, 5),
			deletion("T", domain.RecordTask, 5),
			deletion("U", domain.RecordTaskTag, 5),
		})
		require.NoError(t, err)

		_, err = getList(t, st, "L")
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, st.View(ctx, func(tx store.Tx) error {
			_, err := tx.GetTag("G")
			assert.ErrorIs(t, err, store.ErrNotFound)
			_, err = tx.GetTask("T")
			assert.ErrorIs(t, err, store.ErrNotFound)

			u, err := tx.GetTask("U")
			require.NoError(t, err, "task_tag deletion keeps the task")
			ids, err := tx.TaskTagIDs(u.ID)
			require.NoError(t, err)
			assert.Empty(t, ids)
			return nil
		}))

		changes, err := svc.ChangesSince(ctx, atPtr(4))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"G", "L", "T", "U"}, tombstoneIDs(changes))
	})
}

func TestApplyChanges_DeleteUnknownRecordStillTombstones(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, _ store.Store, _ *fakeClock) {
		ctx := context.Background()
		_, err := svc.ApplyChanges(ctx, domain.Changes{deletion("ghost", domain.RecordList, 3)})
		require.NoError(t, err)

		changes, err := svc.ChangesSince(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ghost"}, tombstoneIDs(changes))
	})
}

func TestApplyChanges_InboxProtection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		inbox := newList("L1", 1)
		inbox.IsInbox = true
		_, err := svc.ApplyChanges(ctx, domain.Changes{inbox})
		require.NoError(t, err)

		_, err = svc.ApplyChanges(ctx, domain.Changes{deletion("L1", domain.RecordList, 2)})
		require.NoError(t, err)

		got, err := getList(t, st, "L1")
		require.NoError(t, err)
		assert.True(t, got.IsInbox)

		changes, err := svc.ChangesSince(ctx, &t0)
		require.NoError(t, err)
		assert.Contains(t, tombstoneIDs(changes), "L1")
	})
}

func TestApplyChanges_MalformedBatchWritesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, _ store.Store, _ *fakeClock) {
		ctx := context.Background()
		bad := newTask("", 3)

		_, err := svc.ApplyChanges(ctx, domain.Changes{newList("L", 1), bad})
		require.Error(t, err)
		assert.True(t, domainerrors.Is(err, domainerrors.ErrMalformedRecord))

		changes, err := svc.ChangesSince(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, changes)
	})
}

func TestApplyChanges_StoreFailureRollsBackBatch(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)
			t.Cleanup(func() { _ = st.Close() })

			svc := NewSyncService(failingStore{Store: st}, discardLogger())
			batch := domain.Changes{
				newList("L", 1),
				newTag("G", 1),
				newTask("T", 1, "G"),
				deletion("old", domain.RecordTask, 2),
			}

			_, err := svc.ApplyChanges(ctx, batch)
			require.Error(t, err)
			assert.Equal(t, domainerrors.CodeStoreIO, domainerrors.CodeOf(err))
			assert.ErrorIs(t, err, errDiskFull)

			_, err = svc.Sync(ctx, SyncRequest{DeviceID: "phone", Changes: batch})
			assert.Equal(t, domainerrors.CodeStoreIO, domainerrors.CodeOf(err))

			// Nothing from either call was committed, including the watermark.
			clean := NewSyncService(st, discardLogger())
			changes, err := clean.ChangesSince(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, changes)

			require.NoError(t, st.View(ctx, func(tx store.Tx) error {
				_, err := tx.GetDeviceWatermark("phone")
				assert.ErrorIs(t, err, store.ErrNotFound)
				return nil
			}))
		})
	}
}

func TestApplyChanges_CanonicalizesUUIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, st store.Store, _ *fakeClock) {
		ctx := context.Background()
		upper := "A3BB189E-8BF9-3888-9912-ACE4E6543002"
		lower := "a3bb189e-8bf9-3888-9912-ace4e6543002"

		_, err := svc.ApplyChanges(ctx, domain.Changes{newTask(upper, 1)})
		require.NoError(t, err)

		conflicts, err := svc.ApplyChanges(ctx, domain.Changes{newTask(lower, 1)})
		require.NoError(t, err)
		assert.Equal(t, []string{lower}, conflicts)

		task, _ := getTask(t, st, lower)
		assert.Equal(t, lower, task.ID)
	})
}

func TestApplyChanges_CanceledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *SyncService, _ store.Store, _ *fakeClock) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.ApplyChanges(ctx, domain.Changes{newTask("T", 1)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
