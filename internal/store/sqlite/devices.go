package sqlite

import (
	"database/sql"
	"errors"

	"github.com/tickitapp/tickit-sync/internal/domain"
	"github.com/tickitapp/tickit-sync/internal/store"
)

// PutDeviceWatermark records the last sync time for a device.
func (t *txn) PutDeviceWatermark(w domain.DeviceWatermark) error {
	return t.exec("put device watermark", `
		INSERT OR REPLACE INTO device_sync (device_id, last_sync)
		VALUES (?, ?)`,
		w.DeviceID,
		formatTime(w.LastSync),
	)
}

// GetDeviceWatermark returns store.ErrNotFound for devices that never synced.
func (t *txn) GetDeviceWatermark(deviceID string) (*domain.DeviceWatermark, error) {
	var lastSync string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT last_sync FROM device_sync WHERE device_id = ?`, deviceID).Scan(&lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.IOError("get device watermark", err)
	}

	w := &domain.DeviceWatermark{DeviceID: deviceID}
	if w.LastSync, err = parseTime(lastSync); err != nil {
		return nil, store.IOError("get device watermark", err)
	}
	return w, nil
}
