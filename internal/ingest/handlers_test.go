package ingest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/moto-data/yard.report/internal/db"
	"github.com/moto-data/yard.report/internal/live"
)

const testTagAddr = "a1b2c3d4e5f60718"

func newTestHandler(t *testing.T) (*Handler, *db.DB, <-chan live.Update) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	hub := live.NewHub()
	t.Cleanup(hub.Close)
	_, updates := hub.Subscribe()

	h := NewHandler(database, hub)
	h.now = func() time.Time { return time.Unix(1700000500, 0) }
	return h, database, updates
}

func seedFleet(t *testing.T, database *db.DB) (*db.Vehicle, *db.Tag) {
	t.Helper()
	vehicle := &db.Vehicle{Plate: "ABC1234", Chassis: "9C2KC0850", Model: "sport_110i"}
	if err := database.CreateVehicle(vehicle); err != nil {
		t.Fatalf("CreateVehicle failed: %v", err)
	}
	tag := &db.Tag{HardwareAddr: testTagAddr, VehicleID: vehicle.ID}
	if err := database.CreateTag(tag); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := database.CreateAnchor(&db.Anchor{Name: "A1", X: 0, Y: 0, Z: 2.5}); err != nil {
		t.Fatalf("CreateAnchor failed: %v", err)
	}
	return vehicle, tag
}

func expectUpdate(t *testing.T, updates <-chan live.Update, wantEvent string) live.Update {
	t.Helper()
	select {
	case u := <-updates:
		if u.Event != wantEvent {
			t.Fatalf("expected event %q, got %q", wantEvent, u.Event)
		}
		return u
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s broadcast", wantEvent)
		return live.Update{}
	}
}

func expectNoUpdate(t *testing.T, updates <-chan live.Update) {
	t.Helper()
	select {
	case u := <-updates:
		t.Fatalf("unexpected broadcast: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePosition_KnownTag(t *testing.T) {
	h, database, updates := newTestHandler(t)
	vehicle, _ := seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/position", []byte(`{"x": 3.5, "y": 7.25, "ts": 1700000000}`))

	history, err := database.PositionHistory(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("PositionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly 1 position record, got %d", len(history))
	}

	got, err := database.GetVehicle(vehicle.ID)
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if got.LastX == nil || *got.LastX != 3.5 ||
		got.LastY == nil || *got.LastY != 7.25 ||
		got.LastSeenUnix == nil || *got.LastSeenUnix != 1700000000 {
		t.Errorf("cached position does not match message: %+v", got)
	}

	u := expectUpdate(t, updates, live.EventPositionUpdate)
	if u.TagID != testTagAddr {
		t.Errorf("unexpected tag id %q", u.TagID)
	}
	msg, ok := u.Data.(positionMessage)
	if !ok {
		t.Fatalf("unexpected data type %T", u.Data)
	}
	if msg.X != 3.5 || msg.Y != 7.25 || msg.Timestamp != 1700000000 {
		t.Errorf("unexpected broadcast data: %+v", msg)
	}
}

func TestHandlePosition_UnknownTag(t *testing.T) {
	h, database, updates := newTestHandler(t)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/ffffffffffffffff/position", []byte(`{"x": 1, "y": 2, "ts": 1700000000}`))

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM position_records`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no position records for unknown tag, got %d", count)
	}

	// broadcast still fires with the raw fix
	u := expectUpdate(t, updates, live.EventPositionUpdate)
	if u.TagID != "ffffffffffffffff" {
		t.Errorf("unexpected tag id %q", u.TagID)
	}
}

func TestHandlePosition_MalformedPayload(t *testing.T) {
	h, database, updates := newTestHandler(t)
	seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/position", []byte(`{"y": 2}`))
	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/position", []byte(`not json`))

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM position_records`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no records from malformed payloads, got %d", count)
	}
	expectNoUpdate(t, updates)
}

// TestHandlePosition_StaleOverwrite documents the accepted last-write-wins
// race: a message processed out of order overwrites a newer cached position
// with an older one. The history keeps both fixes.
func TestHandlePosition_StaleOverwrite(t *testing.T) {
	h, database, _ := newTestHandler(t)
	vehicle, _ := seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/position", []byte(`{"x": 10, "y": 10, "ts": 1700000060}`))
	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/position", []byte(`{"x": 1, "y": 1, "ts": 1700000000}`))

	got, err := database.GetVehicle(vehicle.ID)
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if *got.LastX != 1 || *got.LastSeenUnix != 1700000000 {
		t.Errorf("expected stale fix to win the cache, got %+v", got)
	}

	history, err := database.PositionHistory(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("PositionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected both fixes in history, got %d", len(history))
	}
}

func TestHandleRanging_PartialResolution(t *testing.T) {
	h, database, updates := newTestHandler(t)
	_, tag := seedFleet(t, database)
	ctx := context.Background()

	payload := `{"ranges": {"A1": 3.2, "A9": 1.0}, "ts": 1700000000}`
	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/ranging", []byte(payload))

	measurements, err := database.MeasurementsForTag(ctx, tag.ID, 10)
	if err != nil {
		t.Fatalf("MeasurementsForTag failed: %v", err)
	}
	if len(measurements) != 1 {
		t.Fatalf("expected exactly 1 measurement (A9 unknown), got %d", len(measurements))
	}
	if measurements[0].Distance != 3.2 || measurements[0].RSSI != 0 {
		t.Errorf("unexpected measurement: %+v", measurements[0])
	}

	// the raw payload is broadcast unfiltered
	u := expectUpdate(t, updates, live.EventRangingUpdate)
	raw, ok := u.Data.(json.RawMessage)
	if !ok {
		t.Fatalf("unexpected data type %T", u.Data)
	}
	if string(raw) != payload {
		t.Errorf("expected raw payload broadcast, got %s", raw)
	}
}

func TestHandleRanging_ObjectEntryWithRSSI(t *testing.T) {
	h, database, _ := newTestHandler(t)
	_, tag := seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/"+testTagAddr+"/ranging",
		[]byte(`{"ranges": {"A1": {"distance": 5.5, "rssi": -68}}, "ts": 1700000000}`))

	measurements, err := database.MeasurementsForTag(ctx, tag.ID, 10)
	if err != nil {
		t.Fatalf("MeasurementsForTag failed: %v", err)
	}
	if len(measurements) != 1 || measurements[0].Distance != 5.5 || measurements[0].RSSI != -68 {
		t.Errorf("unexpected measurements: %+v", measurements)
	}
}

func TestHandleRanging_UnknownTag(t *testing.T) {
	h, database, updates := newTestHandler(t)
	seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/uwb/ffffffffffffffff/ranging", []byte(`{"ranges": {"A1": 2.0}}`))

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM uwb_measurements`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no measurements for unknown tag, got %d", count)
	}
	expectUpdate(t, updates, live.EventRangingUpdate)
}

func TestHandleStatus_ActivatesTag(t *testing.T) {
	h, database, updates := newTestHandler(t)
	seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/status/"+testTagAddr, []byte(`{"battery": 87}`))

	tag, err := database.GetTagByAddr(testTagAddr)
	if err != nil {
		t.Fatalf("GetTagByAddr failed: %v", err)
	}
	if tag.Status != db.TagActive {
		t.Errorf("expected tag promoted to %q, got %q", db.TagActive, tag.Status)
	}
	expectUpdate(t, updates, live.EventStatusUpdate)
}

func TestHandleMotion_BroadcastOnly(t *testing.T) {
	h, database, updates := newTestHandler(t)
	seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/motion/"+testTagAddr, []byte(`{"moving": true}`))

	expectUpdate(t, updates, live.EventMotion)

	for _, table := range []string{"position_records", "uwb_measurements"} {
		var count int
		if err := database.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if count != 0 {
			t.Errorf("motion handler wrote to %s", table)
		}
	}
}

func TestHandleEvent_Classification(t *testing.T) {
	h, database, updates := newTestHandler(t)
	seedFleet(t, database)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/event/"+testTagAddr, []byte(`{"reason": "geofence_breach", "zone": "exit-gate"}`))
	expectUpdate(t, updates, live.EventGeofence)

	h.HandleMessage(ctx, "yard/event/"+testTagAddr, []byte(`{"reason": "offline"}`))
	expectUpdate(t, updates, live.EventOffline)

	// unrecognized reasons are dropped, not rebroadcast
	h.HandleMessage(ctx, "yard/event/"+testTagAddr, []byte(`{"reason": "low_battery"}`))
	expectNoUpdate(t, updates)
}

func TestHandleMessage_UnknownTopic(t *testing.T) {
	h, _, updates := newTestHandler(t)
	ctx := context.Background()

	h.HandleMessage(ctx, "yard/telemetry/"+testTagAddr, []byte(`{"x": 1}`))
	expectNoUpdate(t, updates)
}
