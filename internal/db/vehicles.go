package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// Vehicle lifecycle statuses.
const (
	VehicleAvailable     = "available"
	VehicleReserved      = "reserved"
	VehicleInMaintenance = "in_maintenance"
)

// Vehicle is a tracked motorcycle. LastX/LastY/LastSeenUnix form the cached
// last-known position and stay nil until the first position fix arrives.
type Vehicle struct {
	ID           int64    `json:"id"`
	Plate        string   `json:"plate"`
	Chassis      string   `json:"chassis"`
	Model        string   `json:"model"`
	Status       string   `json:"status"`
	LastX        *float64 `json:"last_x"`
	LastY        *float64 `json:"last_y"`
	LastSeenUnix *float64 `json:"last_seen_unix"`
}

// CreateVehicle inserts a vehicle and sets its ID. Plate and chassis are
// unique; violations surface as errors from the driver.
func (db *DB) CreateVehicle(v *Vehicle) error {
	if v.Status == "" {
		v.Status = VehicleAvailable
	}
	res, err := db.Exec(
		`INSERT INTO vehicles (plate, chassis, model, status) VALUES (?, ?, ?, ?)`,
		v.Plate, v.Chassis, v.Model, v.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// GetVehicle fetches a vehicle by id.
func (db *DB) GetVehicle(id int64) (*Vehicle, error) {
	v := &Vehicle{}
	err := db.QueryRow(
		`SELECT id, plate, chassis, model, status, last_x, last_y, last_seen_unix
		 FROM vehicles WHERE id = ?`, id,
	).Scan(&v.ID, &v.Plate, &v.Chassis, &v.Model, &v.Status, &v.LastX, &v.LastY, &v.LastSeenUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVehicles returns all vehicles ordered by id.
func (db *DB) ListVehicles() ([]Vehicle, error) {
	rows, err := db.Query(
		`SELECT id, plate, chassis, model, status, last_x, last_y, last_seen_unix
		 FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.Plate, &v.Chassis, &v.Model, &v.Status,
			&v.LastX, &v.LastY, &v.LastSeenUnix); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}
