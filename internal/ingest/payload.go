package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// positionMessage is the decoded body of a position topic.
type positionMessage struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"ts"`
}

// parsePositionPayload decodes {"x": n, "y": n, "ts"?: unix-seconds}. The x
// and y fields are required; a missing or unparseable ts falls back to the
// ingestion time.
func parsePositionPayload(payload []byte, now time.Time) (positionMessage, error) {
	var raw struct {
		X  *float64        `json:"x"`
		Y  *float64        `json:"y"`
		Ts json.RawMessage `json:"ts"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return positionMessage{}, fmt.Errorf("invalid position payload: %w", err)
	}
	if raw.X == nil || raw.Y == nil {
		return positionMessage{}, fmt.Errorf("position payload missing x or y")
	}
	return positionMessage{
		X:         *raw.X,
		Y:         *raw.Y,
		Timestamp: parseUnixSeconds(raw.Ts, now),
	}, nil
}

// rangingMessage is the decoded body of a ranging topic. Ranges maps anchor
// name to either a bare distance or a {distance, rssi} object.
type rangingMessage struct {
	Ranges    map[string]json.RawMessage
	Timestamp float64
}

func parseRangingPayload(payload []byte, now time.Time) (rangingMessage, error) {
	var raw struct {
		Ranges map[string]json.RawMessage `json:"ranges"`
		Ts     json.RawMessage            `json:"ts"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return rangingMessage{}, fmt.Errorf("invalid ranging payload: %w", err)
	}
	return rangingMessage{
		Ranges:    raw.Ranges,
		Timestamp: parseUnixSeconds(raw.Ts, now),
	}, nil
}

// parseRangeEntry decodes a single ranging value: either a bare number or a
// {"distance": n, "rssi"?: n} object. RSSI defaults to 0 when absent.
func parseRangeEntry(raw json.RawMessage) (distance, rssi float64, err error) {
	if err = json.Unmarshal(raw, &distance); err == nil {
		return distance, 0, nil
	}
	var obj struct {
		Distance *float64 `json:"distance"`
		RSSI     *float64 `json:"rssi"`
	}
	if err = json.Unmarshal(raw, &obj); err != nil {
		return 0, 0, fmt.Errorf("invalid range entry: %w", err)
	}
	if obj.Distance == nil {
		return 0, 0, fmt.Errorf("range entry missing distance")
	}
	if obj.RSSI != nil {
		rssi = *obj.RSSI
	}
	return *obj.Distance, rssi, nil
}

// parseUnixSeconds returns the unix-seconds value of a raw ts field, or the
// fallback time when the field is absent or not a number.
func parseUnixSeconds(raw json.RawMessage, fallback time.Time) float64 {
	if len(raw) > 0 {
		var ts float64
		if err := json.Unmarshal(raw, &ts); err == nil {
			return ts
		}
	}
	return float64(fallback.Unix())
}
