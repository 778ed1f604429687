package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// Anchor is a fixed-position UWB receiver. Name is the routing key used
// inside ranging payloads.
type Anchor struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// CreateAnchor inserts an anchor and sets its ID. Names are unique.
func (db *DB) CreateAnchor(a *Anchor) error {
	res, err := db.Exec(
		`INSERT INTO uwb_anchors (name, x, y, z) VALUES (?, ?, ?, ?)`,
		a.Name, a.X, a.Y, a.Z,
	)
	if err != nil {
		return fmt.Errorf("failed to create anchor: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetAnchorByName looks up an anchor by name. Returns ErrNotFound when no
// anchor carries that name.
func (db *DB) GetAnchorByName(name string) (*Anchor, error) {
	a := &Anchor{}
	err := db.QueryRow(
		`SELECT id, name, x, y, z FROM uwb_anchors WHERE name = ?`, name,
	).Scan(&a.ID, &a.Name, &a.X, &a.Y, &a.Z)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
