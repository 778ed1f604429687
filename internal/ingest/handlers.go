package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/moto-data/yard.report/internal/db"
	"github.com/moto-data/yard.report/internal/live"
	"github.com/moto-data/yard.report/internal/monitoring"
)

// Event payload reasons with dedicated outbound events.
const (
	reasonGeofenceBreach = "geofence_breach"
	reasonOffline        = "offline"
)

// Handler dispatches classified broker messages. Per-message failures are
// logged and the message dropped; nothing propagates back to the broker
// client, so one bad message can never stop the consumption loop.
type Handler struct {
	db  *db.DB
	hub *live.Hub
	now func() time.Time
}

func NewHandler(database *db.DB, hub *live.Hub) *Handler {
	return &Handler{db: database, hub: hub, now: time.Now}
}

// HandleMessage routes one (topic, payload) pair to the matching handler.
func (h *Handler) HandleMessage(ctx context.Context, topic string, payload []byte) {
	kind, tagAddr := ParseTopic(topic)

	var err error
	switch kind {
	case KindPosition:
		err = h.handlePosition(ctx, tagAddr, payload)
	case KindRanging:
		err = h.handleRanging(ctx, tagAddr, payload)
	case KindMotion:
		err = h.handleMotion(tagAddr, payload)
	case KindStatus:
		err = h.handleStatus(ctx, tagAddr, payload)
	case KindEvent:
		err = h.handleEvent(tagAddr, payload)
	default:
		monitoring.Logf("dropping message on unrecognized topic %q", topic)
		return
	}

	if err != nil {
		monitoring.Logf("error handling %s message for tag %s: %v", kind, tagAddr, err)
	}
}

// handlePosition appends a history row and refreshes the vehicle's cached
// position in one transaction, then broadcasts the update. An unresolvable
// tag skips persistence but still broadcasts the raw fix.
func (h *Handler) handlePosition(ctx context.Context, tagAddr string, payload []byte) error {
	msg, err := parsePositionPayload(payload, h.now())
	if err != nil {
		return err
	}

	tag, err := h.db.GetTagByAddr(tagAddr)
	switch {
	case errors.Is(err, db.ErrNotFound):
		monitoring.Logf("position update for unknown tag %s, broadcast only", tagAddr)
	case err != nil:
		return fmt.Errorf("tag lookup failed: %w", err)
	default:
		// the cache update is last-write-wins: a late message overwrites a
		// newer cached fix (see the stale-overwrite test)
		if err := h.db.RecordPosition(ctx, tag.VehicleID, msg.X, msg.Y, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to record position: %w", err)
		}
	}

	h.hub.Publish(live.Update{Event: live.EventPositionUpdate, TagID: tagAddr, Data: msg})
	return nil
}

// handleRanging writes one measurement per resolvable anchor, all in one
// transaction, and broadcasts the raw payload regardless of resolution.
func (h *Handler) handleRanging(ctx context.Context, tagAddr string, payload []byte) error {
	msg, err := parseRangingPayload(payload, h.now())
	if err != nil {
		return err
	}

	// the raw payload goes out whatever happens below
	defer h.hub.Publish(live.Update{Event: live.EventRangingUpdate, TagID: tagAddr, Data: json.RawMessage(payload)})

	tag, err := h.db.GetTagByAddr(tagAddr)
	if errors.Is(err, db.ErrNotFound) {
		monitoring.Logf("ranging update for unknown tag %s, broadcast only", tagAddr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("tag lookup failed: %w", err)
	}

	var measurements []db.Measurement
	for name, raw := range msg.Ranges {
		anchor, err := h.db.GetAnchorByName(name)
		if errors.Is(err, db.ErrNotFound) {
			monitoring.Logf("skipping range entry for unknown anchor %q", name)
			continue
		}
		if err != nil {
			return fmt.Errorf("anchor lookup failed: %w", err)
		}
		distance, rssi, err := parseRangeEntry(raw)
		if err != nil {
			monitoring.Logf("skipping malformed range entry for anchor %q: %v", name, err)
			continue
		}
		measurements = append(measurements, db.Measurement{
			TagID:        tag.ID,
			AnchorID:     anchor.ID,
			Distance:     distance,
			RSSI:         rssi,
			RecordedUnix: msg.Timestamp,
		})
	}

	if err := h.db.InsertMeasurements(ctx, measurements); err != nil {
		return fmt.Errorf("failed to insert measurements: %w", err)
	}
	return nil
}

// handleMotion broadcasts the raw motion payload; nothing is persisted.
func (h *Handler) handleMotion(tagAddr string, payload []byte) error {
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("invalid motion payload: %w", err)
	}
	h.hub.Publish(live.Update{Event: live.EventMotion, TagID: tagAddr, Data: data})
	return nil
}

// handleStatus promotes the tag to active on heartbeat and broadcasts the raw
// payload.
func (h *Handler) handleStatus(ctx context.Context, tagAddr string, payload []byte) error {
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("invalid status payload: %w", err)
	}

	tag, err := h.db.GetTagByAddr(tagAddr)
	switch {
	case errors.Is(err, db.ErrNotFound):
		monitoring.Logf("status update for unknown tag %s, broadcast only", tagAddr)
	case err != nil:
		return fmt.Errorf("tag lookup failed: %w", err)
	default:
		if err := h.db.SetTagStatus(tag.ID, db.TagActive); err != nil {
			return fmt.Errorf("failed to activate tag: %w", err)
		}
	}

	h.hub.Publish(live.Update{Event: live.EventStatusUpdate, TagID: tagAddr, Data: data})
	return nil
}

// handleEvent broadcasts geofence and offline events under their dedicated
// names. Other reasons are dropped; the drop is logged so unknown reasons are
// at least visible to operators.
func (h *Handler) handleEvent(tagAddr string, payload []byte) error {
	var msg struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}

	switch msg.Reason {
	case reasonGeofenceBreach:
		monitoring.Logf("geofence breach: %s", tagAddr)
		h.hub.Publish(live.Update{Event: live.EventGeofence, TagID: tagAddr, Data: data})
	case reasonOffline:
		monitoring.Logf("tag offline: %s", tagAddr)
		h.hub.Publish(live.Update{Event: live.EventOffline, TagID: tagAddr, Data: data})
	default:
		monitoring.Logf("dropping event with unrecognized reason %q for tag %s", msg.Reason, tagAddr)
	}
	return nil
}
