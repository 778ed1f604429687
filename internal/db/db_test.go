package db

import (
	"context"
	"errors"
	"testing"
)

func TestMigrateUpIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// NewDB already migrated; a second run must be a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("expected clean migration state")
	}
	if version == 0 {
		t.Error("expected a non-zero schema version after migration")
	}
}

func TestCreateVehicle_Success(t *testing.T) {
	db := setupTestDB(t)

	v := &Vehicle{Plate: "ABC1234", Chassis: "9C2KC0850", Model: "sport_110i"}
	if err := db.CreateVehicle(v); err != nil {
		t.Fatalf("CreateVehicle failed: %v", err)
	}
	if v.ID == 0 {
		t.Error("expected vehicle ID to be set after creation")
	}

	got, err := db.GetVehicle(v.ID)
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if got.Status != VehicleAvailable {
		t.Errorf("expected default status %q, got %q", VehicleAvailable, got.Status)
	}
	if got.LastX != nil || got.LastY != nil || got.LastSeenUnix != nil {
		t.Error("expected cached position to be nil before first fix")
	}
}

func TestCreateVehicle_DuplicatePlate(t *testing.T) {
	db := setupTestDB(t)

	v1 := &Vehicle{Plate: "DUP0001", Chassis: "CHS0001", Model: "sport_110i"}
	if err := db.CreateVehicle(v1); err != nil {
		t.Fatalf("first CreateVehicle failed: %v", err)
	}

	v2 := &Vehicle{Plate: "DUP0001", Chassis: "CHS0002", Model: "sport_110i"}
	if err := db.CreateVehicle(v2); err == nil {
		t.Error("expected duplicate plate to be rejected")
	}
}

func TestGetTagByAddr(t *testing.T) {
	db := setupTestDB(t)
	vehicle, tag, _ := createTestFleet(t, db, "a1b2c3d4e5f60718")

	got, err := db.GetTagByAddr("a1b2c3d4e5f60718")
	if err != nil {
		t.Fatalf("GetTagByAddr failed: %v", err)
	}
	if got.ID != tag.ID || got.VehicleID != vehicle.ID {
		t.Errorf("unexpected tag: %+v", got)
	}
	if got.Status != TagInactive {
		t.Errorf("expected default status %q, got %q", TagInactive, got.Status)
	}

	if _, err := db.GetTagByAddr("ffffffffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown address, got %v", err)
	}
}

func TestSetTagStatus(t *testing.T) {
	db := setupTestDB(t)
	_, tag, _ := createTestFleet(t, db, "a1b2c3d4e5f60718")

	if err := db.SetTagStatus(tag.ID, TagActive); err != nil {
		t.Fatalf("SetTagStatus failed: %v", err)
	}
	got, err := db.GetTagByAddr(tag.HardwareAddr)
	if err != nil {
		t.Fatalf("GetTagByAddr failed: %v", err)
	}
	if got.Status != TagActive {
		t.Errorf("expected status %q, got %q", TagActive, got.Status)
	}

	if err := db.SetTagStatus(9999, TagActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown tag, got %v", err)
	}
}

func TestGetAnchorByName(t *testing.T) {
	db := setupTestDB(t)
	createTestFleet(t, db, "a1b2c3d4e5f60718")

	a, err := db.GetAnchorByName("A1")
	if err != nil {
		t.Fatalf("GetAnchorByName failed: %v", err)
	}
	if a.Z != 2.5 {
		t.Errorf("expected anchor height 2.5, got %v", a.Z)
	}

	if _, err := db.GetAnchorByName("A9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown anchor, got %v", err)
	}
}

func TestRecordPosition_AppendsAndCaches(t *testing.T) {
	db := setupTestDB(t)
	vehicle, _, _ := createTestFleet(t, db, "a1b2c3d4e5f60718")
	ctx := context.Background()

	if err := db.RecordPosition(ctx, vehicle.ID, 3.5, 7.25, 1700000000); err != nil {
		t.Fatalf("RecordPosition failed: %v", err)
	}

	history, err := db.PositionHistory(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("PositionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 position record, got %d", len(history))
	}
	if history[0].X != 3.5 || history[0].Y != 7.25 || history[0].RecordedUnix != 1700000000 {
		t.Errorf("unexpected record: %+v", history[0])
	}

	got, err := db.GetVehicle(vehicle.ID)
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if got.LastX == nil || *got.LastX != 3.5 ||
		got.LastY == nil || *got.LastY != 7.25 ||
		got.LastSeenUnix == nil || *got.LastSeenUnix != 1700000000 {
		t.Errorf("cached position not updated: %+v", got)
	}
}

func TestRecordPosition_UnknownVehicle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.RecordPosition(ctx, 42, 1, 2, 1700000000)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// the rolled-back transaction must not leave an orphan history row
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM position_records`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 position records after rollback, got %d", count)
	}
}

func TestRecentPositions_OrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	vehicle, _, _ := createTestFleet(t, db, "a1b2c3d4e5f60718")
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		ts := 1700000000 + float64(i)
		if err := db.RecordPosition(ctx, vehicle.ID, float64(i), float64(2*i), ts); err != nil {
			t.Fatalf("RecordPosition %d failed: %v", i, err)
		}
	}

	recent, err := db.RecentPositions(ctx, vehicle.ID, 5)
	if err != nil {
		t.Fatalf("RecentPositions failed: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recent))
	}
	// most recent five, ascending: i = 3..7
	for i, p := range recent {
		want := float64(i + 3)
		if p.X != want {
			t.Errorf("record %d: expected x=%v, got %v", i, want, p.X)
		}
		if i > 0 && recent[i-1].RecordedUnix >= p.RecordedUnix {
			t.Errorf("records not ascending at index %d", i)
		}
	}
}

func TestVehicleIDsWithHistory(t *testing.T) {
	db := setupTestDB(t)
	v1, _, _ := createTestFleet(t, db, "a1b2c3d4e5f60718")
	v2 := &Vehicle{Plate: "XYZ9876", Chassis: "CHSXYZ98", Model: "cargo_160"}
	if err := db.CreateVehicle(v2); err != nil {
		t.Fatalf("CreateVehicle failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := db.RecordPosition(ctx, v1.ID, float64(i), 0, 1700000000+float64(i)); err != nil {
			t.Fatalf("RecordPosition failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := db.RecordPosition(ctx, v2.ID, float64(i), 0, 1700000000+float64(i)); err != nil {
			t.Fatalf("RecordPosition failed: %v", err)
		}
	}

	ids, err := db.VehicleIDsWithHistory(ctx, 6)
	if err != nil {
		t.Fatalf("VehicleIDsWithHistory failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != v1.ID {
		t.Errorf("expected only vehicle %d, got %v", v1.ID, ids)
	}
}

func TestInsertMeasurements_Transactional(t *testing.T) {
	db := setupTestDB(t)
	_, tag, anchors := createTestFleet(t, db, "a1b2c3d4e5f60718")
	ctx := context.Background()

	measurements := []Measurement{
		{TagID: tag.ID, AnchorID: anchors[0].ID, Distance: 3.2, RSSI: -70, RecordedUnix: 1700000000},
		{TagID: tag.ID, AnchorID: anchors[1].ID, Distance: 5.1, RecordedUnix: 1700000000},
	}
	if err := db.InsertMeasurements(ctx, measurements); err != nil {
		t.Fatalf("InsertMeasurements failed: %v", err)
	}

	got, err := db.MeasurementsForTag(ctx, tag.ID, 10)
	if err != nil {
		t.Fatalf("MeasurementsForTag failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(got))
	}

	// empty slice is a no-op, not an error
	if err := db.InsertMeasurements(ctx, nil); err != nil {
		t.Errorf("InsertMeasurements(nil) failed: %v", err)
	}
}
