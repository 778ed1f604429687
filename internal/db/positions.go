package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moto-data/yard.report/internal/monitoring"
)

// PositionRecord is one timestamped (x, y) fix for a vehicle. Rows are
// immutable once written; the history is append-only.
type PositionRecord struct {
	ID           int64   `json:"id"`
	VehicleID    int64   `json:"vehicle_id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	RecordedUnix float64 `json:"recorded_unix"`
}

// RecordPosition appends a position-history row and updates the vehicle's
// cached last-known position in the same transaction: the record insert and
// the cache update land together or not at all. The cache update is
// last-write-wins; an out-of-order message overwrites a newer cached fix.
func (db *DB) RecordPosition(ctx context.Context, vehicleID int64, x, y, recordedUnix float64) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback position transaction: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO position_records (vehicle_id, x, y, recorded_unix) VALUES (?, ?, ?, ?)`,
		vehicleID, x, y, recordedUnix,
	); err != nil {
		return fmt.Errorf("failed to insert position record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE vehicles
		 SET last_x = ?, last_y = ?, last_seen_unix = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		x, y, recordedUnix, vehicleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cached position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// RecentPositions returns the vehicle's most recent limit fixes ordered by
// time ascending.
func (db *DB) RecentPositions(ctx context.Context, vehicleID int64, limit int) ([]PositionRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, vehicle_id, x, y, recorded_unix
		 FROM (
		     SELECT id, vehicle_id, x, y, recorded_unix
		     FROM position_records
		     WHERE vehicle_id = ?
		     ORDER BY recorded_unix DESC
		     LIMIT ?
		 )
		 ORDER BY recorded_unix ASC`,
		vehicleID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// PositionHistory returns the vehicle's full position history ordered by time
// ascending.
func (db *DB) PositionHistory(ctx context.Context, vehicleID int64) ([]PositionRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, vehicle_id, x, y, recorded_unix
		 FROM position_records
		 WHERE vehicle_id = ?
		 ORDER BY recorded_unix ASC`,
		vehicleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// VehicleIDsWithHistory returns ids of vehicles with at least minRecords
// position rows. Used to find training-eligible vehicles.
func (db *DB) VehicleIDsWithHistory(ctx context.Context, minRecords int) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT vehicle_id FROM position_records
		 GROUP BY vehicle_id
		 HAVING COUNT(*) >= ?
		 ORDER BY vehicle_id`,
		minRecords,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPositions(rows *sql.Rows) ([]PositionRecord, error) {
	var records []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(&p.ID, &p.VehicleID, &p.X, &p.Y, &p.RecordedUnix); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}
