package sampledb

import (
	"github.com/synchlab/pvlogger/pkg/types"
)

// Record inserts one row per reading, all within a single transaction so a
// sample is mirrored completely or not at all.
func (m *Mirror) Record(sample *types.Sample) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	captureTime := float64(sample.CaptureTime.UnixNano()) / 1e9
	for _, r := range sample.Readings {
		_, err := tx.Exec(
			"INSERT INTO sample_rows (capture_time, pv_name, value) "+
				"VALUES (?, ?, ?)",
			captureTime,
			string(r.Name),
			r.Value.Render(),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
