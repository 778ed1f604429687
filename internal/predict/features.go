// Package predict trains and serves next-position forecasts from the
// append-only position history. Two independent linear regressors (one per
// axis) are fit over fixed-length windows of consecutive fixes; the active
// model lives in a lock-guarded registry and is swapped whole on retrain.
package predict

import (
	"math"

	"github.com/moto-data/yard.report/internal/db"
)

const (
	// windowSize is the number of consecutive fixes per training window:
	// five historical points plus the label point.
	windowSize = 6
	// featurePoints is the number of points the feature vector is derived
	// from (the window minus the label).
	featurePoints = 5
)

// Sample is one training or inference row: the feature vector derived from
// five consecutive fixes plus, for training, the next fix as label.
// Point indexing follows window order: Pos4 is the oldest fix, Current the
// newest of the five.
type Sample struct {
	CurrentX, CurrentY   float64
	PrevX, PrevY         float64
	Pos2X, Pos2Y         float64
	Pos3X, Pos3Y         float64
	Pos4X, Pos4Y         float64
	VelocityX, VelocityY float64
	AvgDelta             float64
	Speed                float64
	NextX, NextY         float64
}

// features returns the 14-element feature vector shared by training and
// inference.
func (s *Sample) features() []float64 {
	return []float64{
		s.CurrentX, s.CurrentY,
		s.PrevX, s.PrevY,
		s.Pos2X, s.Pos2Y,
		s.Pos3X, s.Pos3Y,
		s.Pos4X, s.Pos4Y,
		s.VelocityX, s.VelocityY,
		s.AvgDelta, s.Speed,
	}
}

// sampleFromPoints derives the feature part of a sample from exactly five
// chronological fixes. Returns false when any of the four inter-point time
// deltas is not strictly positive (clock anomalies, duplicate timestamps).
func sampleFromPoints(points []db.PositionRecord) (Sample, bool) {
	if len(points) != featurePoints {
		return Sample{}, false
	}

	var deltaSum float64
	for i := 1; i < featurePoints; i++ {
		delta := points[i].RecordedUnix - points[i-1].RecordedUnix
		if delta <= 0 {
			return Sample{}, false
		}
		deltaSum += delta
	}
	avgDelta := deltaSum / 4

	velocityX := (points[4].X - points[0].X) / (avgDelta * 4)
	velocityY := (points[4].Y - points[0].Y) / (avgDelta * 4)

	return Sample{
		CurrentX: points[4].X, CurrentY: points[4].Y,
		PrevX: points[3].X, PrevY: points[3].Y,
		Pos2X: points[2].X, Pos2Y: points[2].Y,
		Pos3X: points[1].X, Pos3Y: points[1].Y,
		Pos4X: points[0].X, Pos4Y: points[0].Y,
		VelocityX: velocityX, VelocityY: velocityY,
		AvgDelta: avgDelta,
		Speed:    math.Hypot(velocityX, velocityY),
	}, true
}

// BuildSamples produces every labeled training sample from a vehicle's
// chronologically sorted history: one candidate per overlapping 6-point
// window, minus windows failing the delta check. A history shorter than 6
// points yields nothing.
func BuildSamples(history []db.PositionRecord) []Sample {
	if len(history) < windowSize {
		return nil
	}
	var samples []Sample
	for i := 0; i+windowSize <= len(history); i++ {
		window := history[i : i+windowSize]
		s, ok := sampleFromPoints(window[:featurePoints])
		if !ok {
			continue
		}
		s.NextX = window[5].X
		s.NextY = window[5].Y
		samples = append(samples, s)
	}
	return samples
}
