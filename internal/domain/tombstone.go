package domain

import "time"

// Tombstone records that a record was deleted so that replicas which missed
// the delete still converge. Tombstones are keyed by (ID, RecordType) and
// are never pruned.
type Tombstone struct {
	ID         string     `json:"id" validate:"required"`
	RecordType RecordType `json:"record_type" validate:"record_type"`
	DeletedAt  time.Time  `json:"deleted_at" validate:"required"`
}

// ModifiedAt implements Versioned.
func (t Tombstone) ModifiedAt() time.Time { return t.DeletedAt }

// Kind implements Change.
func (Tombstone) Kind() ChangeKind { return KindDeleted }

// RecordID implements Change.
func (t Tombstone) RecordID() string { return t.ID }

func (Tombstone) isChange() {}

// DeviceWatermark is the last server time handed to a device.
// It is bookkeeping only; sync decisions use the watermark the client sends.
type DeviceWatermark struct {
	DeviceID string    `json:"device_id"`
	LastSync time.Time `json:"last_sync"`
}
