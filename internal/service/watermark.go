package service

import (
	"time"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// WatermarkTracker records the server time last handed to each device.
// The value is bookkeeping only and is never read back by the merge path.
type WatermarkTracker struct{}

// Record upserts the device's watermark.
func (WatermarkTracker) Record(tx store.Tx, deviceID string, at time.Time) error {
	return tx.PutDeviceWatermark(domain.DeviceWatermark{DeviceID: deviceID, LastSync: at.UTC()})
}
