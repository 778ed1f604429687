package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// Tag activity statuses.
const (
	TagActive      = "active"
	TagInactive    = "inactive"
	TagMaintenance = "maintenance"
)

// Tag is a UWB beacon mounted on exactly one vehicle, identified on the wire
// by its 16-hex-character hardware address.
type Tag struct {
	ID           int64  `json:"id"`
	HardwareAddr string `json:"hardware_addr"`
	Status       string `json:"status"`
	VehicleID    int64  `json:"vehicle_id"`
}

// CreateTag inserts a tag and sets its ID. The hardware address is unique, as
// is the vehicle association (one tag per vehicle).
func (db *DB) CreateTag(t *Tag) error {
	if t.Status == "" {
		t.Status = TagInactive
	}
	res, err := db.Exec(
		`INSERT INTO uwb_tags (hardware_addr, status, vehicle_id) VALUES (?, ?, ?)`,
		t.HardwareAddr, t.Status, t.VehicleID,
	)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTagByAddr looks up a tag by its hardware address. Returns ErrNotFound
// when no tag carries that address.
func (db *DB) GetTagByAddr(addr string) (*Tag, error) {
	t := &Tag{}
	err := db.QueryRow(
		`SELECT id, hardware_addr, status, vehicle_id FROM uwb_tags WHERE hardware_addr = ?`,
		addr,
	).Scan(&t.ID, &t.HardwareAddr, &t.Status, &t.VehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetTagStatus updates a tag's activity status.
func (db *DB) SetTagStatus(id int64, status string) error {
	res, err := db.Exec(`UPDATE uwb_tags SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update tag status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
