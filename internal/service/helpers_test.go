package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
	badgerstore "github.com/tickitapp/tickit-sync/internal/store/badger"
	"github.com/tickitapp/tickit-sync/internal/store/sqlite"
)

// t0 is the epoch used by tests; at(n) is n seconds after it.
var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }

func atPtr(n int) *time.Time {
	t := at(n)
	return &t
}

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

func backends() []backend {
	return []backend{
		{"sqlite", func(t *testing.T) store.Store {
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "sync.db"), nil)
			require.NoError(t, err)
			return s
		}},
		{"badger", func(t *testing.T) store.Store {
			s, err := badgerstore.Open(filepath.Join(t.TempDir(), "badger"), nil)
			require.NoError(t, err)
			return s
		}},
	}
}

// forEachBackend runs fn once per store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, svc *SyncService, st store.Store, clock *fakeClock)) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st := b.open(t)
			t.Cleanup(func() { _ = st.Close() })

			clock := &fakeClock{now: at(1000)}
			svc := NewSyncService(st, discardLogger(), WithClock(clock.Now))
			fn(t, svc, st, clock)
		})
	}
}

var errDiskFull = errors.New("disk full")

// failingStore hands Update callbacks a Tx whose PutTombstone fails, so a
// batch breaks after its upserts have been written.
type failingStore struct {
	store.Store
}

func (s failingStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Update(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) PutTombstone(domain.Tombstone) error { return errDiskFull }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingNotifier captures ChangesAvailable calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (n *recordingNotifier) ChangesAvailable(_ string, _ time.Time, accepted int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, accepted)
}

func newList(id string, updated int) domain.List {
	return domain.List{ID: id, Name: "List " + id, Icon: "list", CreatedAt: at(0), UpdatedAt: at(updated)}
}

func newTask(id string, updated int, tags ...string) domain.Task {
	if tags == nil {
		tags = []string{}
	}
	return domain.Task{
		ID:        id,
		Title:     "Task " + id,
		Priority:  domain.PriorityMedium,
		ListID:    "inbox",
		TagIDs:    tags,
		CreatedAt: at(0),
		UpdatedAt: at(updated),
	}
}

func newTag(id string, created int) domain.Tag {
	return domain.Tag{ID: id, Name: "tag " + id, Color: "#999", CreatedAt: at(created)}
}

func deletion(id string, rt domain.RecordType, when int) domain.Tombstone {
	return domain.Tombstone{ID: id, RecordType: rt, DeletedAt: at(when)}
}

func getTask(t *testing.T, st store.Store, id string) (*domain.Task, []string) {
	t.Helper()
	var (
		task *domain.Task
		tags []string
	)
	require.NoError(t, st.View(context.Background(), func(tx store.Tx) error {
		var err error
		if task, err = tx.GetTask(id); err != nil {
			return err
		}
		tags, err = tx.TaskTagIDs(id)
		return err
	}))
	return task, tags
}

func getList(t *testing.T, st store.Store, id string) (*domain.List, error) {
	t.Helper()
	var l *domain.List
	err := st.View(context.Background(), func(tx store.Tx) error {
		var err error
		l, err = tx.GetList(id)
		return err
	})
	return l, err
}

// snapshot is a comparable dump of everything a full resync returns.
func snapshot(t *testing.T, svc *SyncService) string {
	t.Helper()
	changes, err := svc.ChangesSince(context.Background(), nil)
	require.NoError(t, err)
	data, err := changes.MarshalJSON()
	require.NoError(t, err)
	return string(data)
}

func tombstoneIDs(changes domain.Changes) []string {
	var ids []string
	for _, c := range changes {
		if ts, ok := c.(domain.Tombstone); ok {
			ids = append(ids, ts.ID)
		}
	}
	return ids
}

func kinds(changes domain.Changes) []domain.ChangeKind {
	out := make([]domain.ChangeKind, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Kind())
	}
	return out
}
