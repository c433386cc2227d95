// Package backup writes the whole sync dataset to a zip archive and merges
// an archive back into a store.
//
// An archive holds manifest.json and changes.jsonl, one tagged change per
// line in the same shape the sync endpoint uses. Restoring replays the
// changes through the merge engine, so restoring into a populated store
// keeps whichever copy of each record is newer.
package backup

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tickitapp/tickit-sync/internal/backup/stream"
	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/service"
)

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

const (
	manifestFile = "manifest.json"
	changesFile  = "changes.jsonl"
)

var (
	// ErrInvalidManifest indicates the manifest is missing or malformed.
	ErrInvalidManifest = errors.New("invalid or missing manifest")

	// ErrVersionMismatch indicates the backup version is not supported.
	ErrVersionMismatch = errors.New("backup version not supported")

	// ErrCorruptedBackup indicates the archive content does not match its manifest.
	ErrCorruptedBackup = errors.New("backup integrity check failed")
)

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version       string    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	ServerVersion string    `json:"server_version"`
	Counts        Counts    `json:"counts"`
}

// Counts tracks records per kind for validation and reporting.
type Counts struct {
	Lists      int `json:"lists"`
	Tags       int `json:"tags"`
	Tasks      int `json:"tasks"`
	Tombstones int `json:"tombstones"`
}

// Total returns the number of records.
func (c Counts) Total() int {
	return c.Lists + c.Tags + c.Tasks + c.Tombstones
}

func (c *Counts) add(change domain.Change) {
	switch change.Kind() {
	case domain.KindList:
		c.Lists++
	case domain.KindTag:
		c.Tags++
	case domain.KindTask:
		c.Tasks++
	case domain.KindDeleted:
		c.Tombstones++
	}
}

// Result contains the outcome of a backup.
type Result struct {
	Path     string
	Size     int64
	Counts   Counts
	Duration time.Duration
	Checksum string
}

// RestoreOptions configures restoration.
type RestoreOptions struct {
	DryRun bool // Validate without writing
}

// RestoreResult contains the outcome of a restore.
type RestoreResult struct {
	Manifest   Manifest
	Counts     Counts
	Conflicts  []string
	// Superseded counts tombstones skipped because the archive also holds
	// the live record, which was re-created after the deletion.
	Superseded int
	DryRun     bool
	Duration   time.Duration
}

// Service creates and restores backups through the sync service, so it
// shares the service lock with live sync traffic.
type Service struct {
	sync    *service.SyncService
	version string
	logger  *slog.Logger
}

// NewService creates a backup Service.
func NewService(sync *service.SyncService, version string, logger *slog.Logger) *Service {
	return &Service{sync: sync, version: version, logger: logger}
}

// Create writes a full snapshot to outputPath.
func (s *Service) Create(ctx context.Context, outputPath string) (*Result, error) {
	start := time.Now()

	changes, err := s.sync.ChangesSince(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	// Write to temp file, rename on success (atomic)
	tmpPath := outputPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()
	defer f.Close()

	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, hash))

	manifest := Manifest{
		Version:       FormatVersion,
		CreatedAt:     time.Now().UTC(),
		ServerVersion: s.version,
	}

	w, err := stream.NewWriter(zw, changesFile)
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		line, err := domain.MarshalChange(c)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.Kind(), err)
		}
		if err := w.WriteRaw(line); err != nil {
			return nil, fmt.Errorf("write changes: %w", err)
		}
		manifest.Counts.add(c)
	}

	// Manifest last, it carries the final counts.
	mw, err := stream.NewWriter(zw, manifestFile)
	if err != nil {
		return nil, err
	}
	if err := mw.Write(manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}
	tmpPath = ""

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Path:     outputPath,
		Size:     info.Size(),
		Counts:   manifest.Counts,
		Duration: time.Since(start),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}

	s.logger.Info("backup complete",
		"path", result.Path,
		"records", result.Counts.Total(),
		"size", result.Size,
		"duration", result.Duration,
		"checksum", result.Checksum)

	return result, nil
}

// Restore merges the archive at path into the store as one batch. Records
// that are older than the stored copy come back as conflicts.
func (s *Service) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	start := time.Now()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer zr.Close()

	manifest, err := readManifest(&zr.Reader)
	if err != nil {
		return nil, err
	}

	rc, err := stream.OpenFile(&zr.Reader, changesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedBackup, err)
	}

	var (
		batch  domain.Changes
		counts Counts
		line   int
	)
	for raw, err := range stream.NewReader[json.RawMessage](rc).All() {
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrCorruptedBackup, line, err)
		}
		c, err := domain.UnmarshalChange(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrCorruptedBackup, line, err)
		}
		batch = append(batch, c)
		counts.add(c)
	}

	if counts != manifest.Counts {
		return nil, fmt.Errorf("%w: manifest lists %d records, archive has %d",
			ErrCorruptedBackup, manifest.Counts.Total(), counts.Total())
	}

	batch, superseded := dropSupersededTombstones(batch)

	result := &RestoreResult{
		Manifest:   *manifest,
		Counts:     counts,
		Superseded: superseded,
		DryRun:     opts.DryRun,
	}

	if !opts.DryRun {
		conflicts, err := s.sync.ApplyChanges(ctx, batch)
		if err != nil {
			return nil, err
		}
		result.Conflicts = conflicts
	}
	result.Duration = time.Since(start)

	s.logger.Info("restore complete",
		"path", path,
		"records", counts.Total(),
		"conflicts", len(result.Conflicts),
		"superseded", superseded,
		"dry_run", opts.DryRun,
		"duration", result.Duration)

	return result, nil
}

// dropSupersededTombstones removes tombstones whose record is also live in
// the archive. A snapshot only holds both when the record was re-created
// after it was deleted, and the merge applies deletions after upserts.
func dropSupersededTombstones(batch domain.Changes) (domain.Changes, int) {
	live := make(map[string]bool)
	for _, c := range batch {
		switch c.Kind() {
		case domain.KindList, domain.KindTag, domain.KindTask:
			live[string(c.Kind())+"/"+c.RecordID()] = true
		}
	}

	kept := batch[:0]
	dropped := 0
	for _, c := range batch {
		if ts, ok := c.(domain.Tombstone); ok && live[string(ts.RecordType)+"/"+ts.ID] {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	rc, err := stream.OpenFile(zr, manifestFile)
	if err != nil {
		return nil, ErrInvalidManifest
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	major, _, _ := strings.Cut(m.Version, ".")
	wantMajor, _, _ := strings.Cut(FormatVersion, ".")
	if major != wantMajor {
		return nil, fmt.Errorf("%w: %q", ErrVersionMismatch, m.Version)
	}
	return &m, nil
}
