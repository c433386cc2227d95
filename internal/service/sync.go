// Package service implements the sync engine: merging device batches into
// the store and computing what each device has not seen yet.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
	"github.com/tickitapp/tickit-sync/internal/validation"
)

// SyncRequest is one device's sync call.
type SyncRequest struct {
	DeviceID string         `json:"device_id" validate:"required"`
	LastSync *time.Time     `json:"last_sync"`
	Changes  domain.Changes `json:"changes"`
}

// SyncResult is returned to the device. ServerTime is the watermark the
// device should send on its next call.
type SyncResult struct {
	ServerTime time.Time      `json:"server_time"`
	Changes    domain.Changes `json:"changes"`
	Conflicts  []string       `json:"conflicts"`
}

// ChangeNotifier is told when a sync committed at least one accepted change.
type ChangeNotifier interface {
	ChangesAvailable(deviceID string, serverTime time.Time, accepted int)
}

// NoopNotifier discards notifications.
type NoopNotifier struct{}

// ChangesAvailable implements ChangeNotifier.
func (NoopNotifier) ChangesAvailable(string, time.Time, int) {}

// SyncService serializes every sync operation behind one lock.
type SyncService struct {
	mu sync.Mutex

	store      store.Store
	merge      *MergeEngine
	extractor  ChangeExtractor
	watermarks WatermarkTracker
	validator  *validation.Validator
	notifier   ChangeNotifier
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a SyncService.
type Option func(*SyncService)

// WithClock overrides the source of server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SyncService) { s.now = now }
}

// WithNotifier sets the receiver of change notifications.
func WithNotifier(n ChangeNotifier) Option {
	return func(s *SyncService) { s.notifier = n }
}

// NewSyncService creates a new sync service.
func NewSyncService(st store.Store, logger *slog.Logger, opts ...Option) *SyncService {
	s := &SyncService{
		store:     st,
		merge:     NewMergeEngine(logger),
		validator: validation.New(),
		notifier:  NoopNotifier{},
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepare canonicalizes and validates a batch. A malformed record rejects
// the whole batch before anything is written.
func (s *SyncService) prepare(changes domain.Changes) (domain.Changes, error) {
	out := make(domain.Changes, len(changes))
	for i, c := range changes {
		out[i] = domain.Canonicalize(c)
	}
	if err := s.validator.ValidateChanges(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyChanges merges a batch and returns the ids rejected as conflicts.
// The batch commits atomically.
func (s *SyncService) ApplyChanges(ctx context.Context, changes domain.Changes) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, err := s.prepare(changes)
	if err != nil {
		return nil, err
	}

	var conflicts []string
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		conflicts, err = s.merge.Apply(tx, batch)
		return err
	})
	if err != nil {
		return nil, store.IOError("apply changes", err)
	}
	return conflicts, nil
}

// ChangesSince returns every change after since; nil means everything.
func (s *SyncService) ChangesSince(ctx context.Context, since *time.Time) (domain.Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var changes domain.Changes
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		changes, err = s.extractor.Since(tx, since)
		return err
	})
	if err != nil {
		return nil, store.IOError("read changes", err)
	}
	return changes, nil
}

// RecordDeviceWatermark stores the last server time given to a device.
func (s *SyncService) RecordDeviceWatermark(ctx context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		return s.watermarks.Record(tx, deviceID, at)
	})
	return store.IOError("record device watermark", err)
}

// Sync merges the device's batch, collects everything newer than the
// device's watermark and records a fresh server time for the device. The
// three steps share one transaction and run under the service lock.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	batch, err := s.prepare(req.Changes)
	if err != nil {
		return nil, err
	}

	var since *time.Time
	if req.LastSync != nil {
		t := req.LastSync.UTC()
		since = &t
	}

	result := &SyncResult{}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		conflicts, err := s.merge.Apply(tx, batch)
		if err != nil {
			return err
		}

		changes, err := s.extractor.Since(tx, since)
		if err != nil {
			return err
		}

		serverTime := s.now().UTC()
		if err := s.watermarks.Record(tx, req.DeviceID, serverTime); err != nil {
			return err
		}

		result.ServerTime = serverTime
		result.Changes = changes
		result.Conflicts = conflicts
		return nil
	})
	if err != nil {
		return nil, store.IOError("sync", err)
	}

	s.logger.Info("sync completed",
		"device_id", req.DeviceID,
		"full_sync", since == nil,
		"incoming", len(batch),
		"conflicts", len(result.Conflicts),
		"outgoing", len(result.Changes),
	)

	if accepted := len(batch) - len(result.Conflicts); accepted > 0 {
		s.notifier.ChangesAvailable(req.DeviceID, result.ServerTime, accepted)
	}

	return result, nil
}
