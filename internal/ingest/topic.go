// Package ingest consumes tag telemetry from the MQTT broker, routes each
// message by topic to the matching handler, persists what needs persisting
// and fans updates out to the live hub.
package ingest

import "strings"

// MessageKind classifies an inbound topic. Every topic maps to exactly one
// kind; KindUnknown messages are dropped.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindPosition
	KindRanging
	KindMotion
	KindStatus
	KindEvent
)

func (k MessageKind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindRanging:
		return "ranging"
	case KindMotion:
		return "motion"
	case KindStatus:
		return "status"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ParseTopic classifies a topic and extracts the tag hardware address.
// Recognized shapes:
//
//	.../uwb/<addr>/position
//	.../uwb/<addr>/ranging
//	.../motion/<addr>
//	.../status/<addr>
//	.../event/<addr>
//
// Anything else is KindUnknown with an empty address.
func ParseTopic(topic string) (MessageKind, string) {
	segments := strings.Split(topic, "/")
	n := len(segments)

	if n >= 4 && segments[n-3] == "uwb" && segments[n-2] != "" {
		switch segments[n-1] {
		case "position":
			return KindPosition, segments[n-2]
		case "ranging":
			return KindRanging, segments[n-2]
		}
	}

	if n >= 3 && segments[n-1] != "" {
		switch segments[n-2] {
		case "motion":
			return KindMotion, segments[n-1]
		case "status":
			return KindStatus, segments[n-1]
		case "event":
			return KindEvent, segments[n-1]
		}
	}

	return KindUnknown, ""
}
