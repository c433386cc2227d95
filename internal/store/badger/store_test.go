package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/domain"
	domainerrors "github.com/tickitapp/tickit-sync/internal/errors"
	"github.com/tickitapp/tickit-sync/internal/store"
	"github.com/tickitapp/tickit-sync/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "badger"), nil)
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestClearTaskTags_DoesNotMatchLongerTaskID(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		if err := tx.AddTaskTag(domain.TaskTagLink{TaskID: "task", TagID: "a", CreatedAt: storetest.Base}); err != nil {
			return err
		}
		return tx.AddTaskTag(domain.TaskTagLink{TaskID: "task-2", TagID: "b", CreatedAt: storetest.Base})
	}))

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.ClearTaskTags("task") }))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		ids, err := tx.TaskTagIDs("task-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids)
		return nil
	}))
}

func TestPing_AfterClose(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.Ping(context.Background()))
}

func TestView_RejectsWrites(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { s.Close() })

	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.PutList(&domain.List{ID: "x"})
	})
	assert.Error(t, err)
}

func TestUpdate_OversizedBatchIsRejected(t *testing.T) {
	opts := badger.DefaultOptions(filepath.Join(t.TempDir(), "badger"))
	opts.Logger = nil
	opts.MemTableSize = 1 << 20
	opts.ValueThreshold = 1 << 10
	s, err := open(opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	title := strings.Repeat("x", 512)
	err = s.Update(ctx, func(tx store.Tx) error {
		for i := range 2000 {
			task := &domain.Task{
				ID: fmt.Sprintf("task-%d", i), Title: title, ListID: "inbox",
				CreatedAt: storetest.Base, UpdatedAt: storetest.Base,
			}
			if err := tx.PutTask(task); err != nil {
				return err
			}
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, domainerrors.CodeStoreIO, domainerrors.CodeOf(err))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		tasks, err := tx.TasksSince(nil)
		require.NoError(t, err)
		assert.Empty(t, tasks)
		return nil
	}))
}
