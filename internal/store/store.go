// Package store defines the persistence contract used by the sync engine.
//
// Backends live in subpackages (sqlite, badger). Every read and write happens
// inside a transaction handed out by Store.Update or Store.View, so a whole
// sync batch commits or rolls back as a unit.
package store

import (
	"context"
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
)

// Store is a transactional entity store.
type Store interface {
	// Update runs fn in a read-write transaction. A nil return commits;
	// anything else rolls back and is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Tx exposes typed operations on the five record kinds and the device
// watermark table. Get methods return ErrNotFound for absent records.
// Since methods return everything when since is nil and otherwise only
// records modified strictly after since.
type Tx interface {
	// Lists
	GetList(id string) (*domain.List, error)
	PutList(l *domain.List) error
	DeleteList(id string) error
	ListsSince(since *time.Time) ([]domain.List, error)

	// Tags
	GetTag(id string) (*domain.Tag, error)
	PutTag(t *domain.Tag) error
	DeleteTag(id string) error
	TagsSince(since *time.Time) ([]domain.Tag, error)

	// Tasks. TagIDs on returned tasks is not populated; use TaskTagIDs.
	GetTask(id string) (*domain.Task, error)
	PutTask(t *domain.Task) error
	DeleteTask(id string) error
	TasksSince(since *time.Time) ([]domain.Task, error)

	// Task-tag links
	AddTaskTag(link domain.TaskTagLink) error
	ClearTaskTags(taskID string) error
	TaskTagIDs(taskID string) ([]string, error)

	// Tombstones
	PutTombstone(t domain.Tombstone) error
	TombstonesSince(since *time.Time) ([]domain.Tombstone, error)

	// Devices
	PutDeviceWatermark(w domain.DeviceWatermark) error
	GetDeviceWatermark(deviceID string) (*domain.DeviceWatermark, error)
}
