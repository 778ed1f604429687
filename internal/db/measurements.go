package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moto-data/yard.report/internal/monitoring"
)

// Measurement is one tag-to-anchor ranging sample. Rows are immutable.
type Measurement struct {
	ID           int64   `json:"id"`
	TagID        int64   `json:"tag_id"`
	AnchorID     int64   `json:"anchor_id"`
	Distance     float64 `json:"distance"`
	RSSI         float64 `json:"rssi"`
	RecordedUnix float64 `json:"recorded_unix"`
}

// InsertMeasurements writes all measurements in one transaction so a ranging
// payload's resolved entries land together.
func (db *DB) InsertMeasurements(ctx context.Context, measurements []Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback measurement transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO uwb_measurements (tag_id, anchor_id, distance, rssi, recorded_unix)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range measurements {
		if _, err := stmt.ExecContext(ctx, m.TagID, m.AnchorID, m.Distance, m.RSSI, m.RecordedUnix); err != nil {
			return fmt.Errorf("failed to insert measurement for anchor %d: %w", m.AnchorID, err)
		}
	}
	return tx.Commit()
}

// MeasurementsForTag returns the tag's most recent limit measurements ordered
// by time descending.
func (db *DB) MeasurementsForTag(ctx context.Context, tagID int64, limit int) ([]Measurement, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tag_id, anchor_id, distance, rssi, recorded_unix
		 FROM uwb_measurements
		 WHERE tag_id = ?
		 ORDER BY recorded_unix DESC
		 LIMIT ?`,
		tagID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.TagID, &m.AnchorID, &m.Distance, &m.RSSI, &m.RecordedUnix); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
