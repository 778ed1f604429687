package db

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a fresh migrated database under t.TempDir. The file is
// removed with the temp dir when the test finishes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// createTestFleet creates a vehicle with an attached tag and a pair of
// anchors, the minimal setup most ingestion tests need.
func createTestFleet(t *testing.T, db *DB, tagAddr string) (*Vehicle, *Tag, []*Anchor) {
	t.Helper()

	vehicle := &Vehicle{
		Plate:   "PLT-" + tagAddr[:6],
		Chassis: "CHS-" + tagAddr[:6],
		Model:   "sport_110i",
	}
	if err := db.CreateVehicle(vehicle); err != nil {
		t.Fatalf("CreateVehicle failed: %v", err)
	}

	tag := &Tag{HardwareAddr: tagAddr, VehicleID: vehicle.ID}
	if err := db.CreateTag(tag); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	anchors := []*Anchor{
		{Name: "A1", X: 0, Y: 0, Z: 2.5},
		{Name: "A2", X: 10, Y: 0, Z: 2.5},
	}
	for _, a := range anchors {
		if err := db.CreateAnchor(a); err != nil {
			t.Fatalf("CreateAnchor failed: %v", err)
		}
	}
	return vehicle, tag, anchors
}
