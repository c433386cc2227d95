// Package badger implements store.Store on an embedded Badger key-value
// database. Records are JSON documents under per-kind key prefixes.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// Key prefixes. Link and tombstone keys join their parts with a NUL byte so
// that a per-task prefix scan cannot match a longer task id.
const (
	prefixList    = "list:"
	prefixTag     = "tag:"
	prefixTask    = "task:"
	prefixTaskTag = "tasktag:"
	prefixTomb    = "tomb:"
	prefixDevice  = "device:"
	keySep        = "\x00"
)

// ErrBatchTooLarge is returned when one Update writes more than Badger
// accepts in a single transaction. Nothing from the batch is committed.
var ErrBatchTooLarge = errors.New("batch exceeds badger transaction size limit")

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a Badger database in the directory path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Every sync batch is durable once acknowledged
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("badger database opened", "path", opts.Dir)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("closing badger database")
	}
	return s.db.Close()
}

// Ping fails once the database has been closed.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return store.IOError("ping", errors.New("database closed"))
	}
	return nil
}

// Update runs fn in a read-write Badger transaction.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	btx := s.db.NewTransaction(true)
	defer btx.Discard()

	if err := fn(&txn{btx: btx}); err != nil {
		return err
	}

	if err := btx.Commit(); err != nil {
		return writeError("commit", err)
	}
	return nil
}

// View runs fn in a read-only Badger transaction.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	btx := s.db.NewTransaction(false)
	defer btx.Discard()

	return fn(&txn{btx: btx})
}

// txn implements store.Tx over a *badger.Txn.
type txn struct {
	btx *badger.Txn
}

// get decodes the value at key into dest.
func (t *txn) get(op string, key []byte, dest any) error {
	item, err := t.btx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return store.IOError(op, err)
	}

	return store.IOError(op, item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	}))
}

// set stores value as JSON at key.
func (t *txn) set(op string, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return store.IOError(op, fmt.Errorf("failed to marshal value: %w", err))
	}
	return writeError(op, t.btx.Set(key, data))
}

// delete removes key. Missing keys are not an error.
func (t *txn) delete(op string, key []byte) error {
	return writeError(op, t.btx.Delete(key))
}

// writeError wraps a write failure, naming the transaction size limit
// when that is the cause.
func writeError(op string, err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		err = fmt.Errorf("%w: %w", ErrBatchTooLarge, err)
	}
	return store.IOError(op, err)
}

// scan decodes every value under prefix, calling visit for each.
func scan[T any](t *txn, op, prefix string, visit func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := t.btx.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return store.IOError(op, err)
		}
		visit(v)
	}
	return nil
}

// since collects every record under prefix modified after the watermark.
func since[T domain.Versioned](t *txn, op, prefix string, w *time.Time) ([]T, error) {
	out := []T{}
	err := scan(t, op, prefix, func(v T) {
		if domain.ModifiedSince(v, w) {
			out = append(out, v)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func key(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// GetList returns store.ErrNotFound if the list does not exist.
func (t *txn) GetList(id string) (*domain.List, error) {
	var l domain.List
	if err := t.get("get list", key(prefixList, id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// PutList inserts or replaces the list.
func (t *txn) PutList(l *domain.List) error {
	return t.set("put list", key(prefixList, l.ID), l)
}

// DeleteList removes the list if present.
func (t *txn) DeleteList(id string) error {
	return t.delete("delete list", key(prefixList, id))
}

// ListsSince returns lists in id order; key order is id order.
func (t *txn) ListsSince(w *time.Time) ([]domain.List, error) {
	return since[domain.List](t, "scan lists", prefixList, w)
}

// GetTag returns store.ErrNotFound if the tag does not exist.
func (t *txn) GetTag(id string) (*domain.Tag, error) {
	var tg domain.Tag
	if err := t.get("get tag", key(prefixTag, id), &tg); err != nil {
		return nil, err
	}
	return &tg, nil
}

// PutTag replaces the tag unconditionally.
func (t *txn) PutTag(tg *domain.Tag) error {
	return t.set("put tag", key(prefixTag, tg.ID), tg)
}

// DeleteTag removes the tag if present.
func (t *txn) DeleteTag(id string) error {
	return t.delete("delete tag", key(prefixTag, id))
}

// TagsSince filters on Tag.ModifiedAt.
func (t *txn) TagsSince(w *time.Time) ([]domain.Tag, error) {
	return since[domain.Tag](t, "scan tags", prefixTag, w)
}

// GetTask returns store.ErrNotFound if the task does not exist.
func (t *txn) GetTask(id string) (*domain.Task, error) {
	var tk domain.Task
	if err := t.get("get task", key(prefixTask, id), &tk); err != nil {
		return nil, err
	}
	return &tk, nil
}

// PutTask inserts or replaces the task. TagIDs is not persisted here.
func (t *txn) PutTask(tk *domain.Task) error {
	stored := *tk
	stored.TagIDs = nil
	stored.Priority = stored.Priority.OrDefault()
	return t.set("put task", key(prefixTask, tk.ID), &stored)
}

// DeleteTask removes the task if present.
func (t *txn) DeleteTask(id string) error {
	return t.delete("delete task", key(prefixTask, id))
}

// TasksSince returns tasks in id order.
func (t *txn) TasksSince(w *time.Time) ([]domain.Task, error) {
	return since[domain.Task](t, "scan tasks", prefixTask, w)
}

// AddTaskTag writes the link unless the pair already exists, so the first
// CreatedAt is kept.
func (t *txn) AddTaskTag(link domain.TaskTagLink) error {
	k := key(prefixTaskTag, link.TaskID, keySep, link.TagID)
	_, err := t.btx.Get(k)
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return store.IOError("add task tag", err)
	}
	return t.set("add task tag", k, link)
}

// ClearTaskTags removes every link whose task id is taskID.
func (t *txn) ClearTaskTags(taskID string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = key(prefixTaskTag, taskID, keySep)

	var keys [][]byte
	it := t.btx.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := t.delete("clear task tags", k); err != nil {
			return err
		}
	}
	return nil
}

// TaskTagIDs returns the linked tag ids ordered by link creation time.
func (t *txn) TaskTagIDs(taskID string) ([]string, error) {
	var links []domain.TaskTagLink
	err := scan(t, "scan task tags", string(key(prefixTaskTag, taskID, keySep)), func(l domain.TaskTagLink) {
		links = append(links, l)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})

	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.TagID)
	}
	return ids, nil
}

// PutTombstone writes or replaces the tombstone for (ID, RecordType).
func (t *txn) PutTombstone(ts domain.Tombstone) error {
	return t.set("put tombstone", key(prefixTomb, string(ts.RecordType), keySep, ts.ID), ts)
}

// TombstonesSince returns tombstones ordered by id, then record type.
func (t *txn) TombstonesSince(w *time.Time) ([]domain.Tombstone, error) {
	out, err := since[domain.Tombstone](t, "scan tombstones", prefixTomb, w)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].RecordType < out[j].RecordType
	})
	return out, nil
}

// PutDeviceWatermark records the last sync time for a device.
func (t *txn) PutDeviceWatermark(w domain.DeviceWatermark) error {
	return t.set("put device watermark", key(prefixDevice, w.DeviceID), w)
}

// GetDeviceWatermark returns store.ErrNotFound for devices that never synced.
func (t *txn) GetDeviceWatermark(deviceID string) (*domain.DeviceWatermark, error) {
	var w domain.DeviceWatermark
	if err := t.get("get device watermark", key(prefixDevice, deviceID), &w); err != nil {
		return nil, err
	}
	return &w, nil
}
