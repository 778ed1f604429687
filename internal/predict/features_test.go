package predict

import (
	"math"
	"testing"

	"github.com/moto-data/yard.report/internal/db"
)

func linearHistory(n int, startUnix, dt, x0, vx, y0, vy float64) []db.PositionRecord {
	history := make([]db.PositionRecord, n)
	for i := 0; i < n; i++ {
		history[i] = db.PositionRecord{
			VehicleID:    1,
			X:            x0 + vx*float64(i),
			Y:            y0 + vy*float64(i),
			RecordedUnix: startUnix + dt*float64(i),
		}
	}
	return history
}

func TestBuildSamples_SingleWindow(t *testing.T) {
	history := linearHistory(6, 1700000000, 1, 0, 2, 0, 3)

	samples := BuildSamples(history)
	if len(samples) != 1 {
		t.Fatalf("expected exactly 1 sample from 6 points, got %d", len(samples))
	}
	s := samples[0]

	if s.AvgDelta != 1 {
		t.Errorf("expected avg delta 1, got %v", s.AvgDelta)
	}
	// velocity = (p4 - p0) / (4 * avgDelta), componentwise
	if s.VelocityX != 2 || s.VelocityY != 3 {
		t.Errorf("expected velocity (2, 3), got (%v, %v)", s.VelocityX, s.VelocityY)
	}
	if want := math.Hypot(2, 3); s.Speed != want {
		t.Errorf("expected speed %v, got %v", want, s.Speed)
	}
	// label is the 6th point
	if s.NextX != 10 || s.NextY != 15 {
		t.Errorf("expected label (10, 15), got (%v, %v)", s.NextX, s.NextY)
	}
	if s.CurrentX != 8 || s.Pos4X != 0 {
		t.Errorf("unexpected point ordering: current=%v oldest=%v", s.CurrentX, s.Pos4X)
	}
}

func TestBuildSamples_EqualTimestamps(t *testing.T) {
	history := linearHistory(6, 1700000000, 1, 0, 1, 0, 1)
	// duplicate timestamp inside the feature run
	history[3].RecordedUnix = history[2].RecordedUnix

	if samples := BuildSamples(history); len(samples) != 0 {
		t.Errorf("expected 0 samples with a duplicate timestamp, got %d", len(samples))
	}
}

func TestBuildSamples_BackwardsClock(t *testing.T) {
	history := linearHistory(6, 1700000000, 1, 0, 1, 0, 1)
	history[2].RecordedUnix = history[1].RecordedUnix - 5

	if samples := BuildSamples(history); len(samples) != 0 {
		t.Errorf("expected 0 samples with a backwards clock step, got %d", len(samples))
	}
}

func TestBuildSamples_WindowCount(t *testing.T) {
	for _, tt := range []struct {
		points int
		want   int
	}{
		{0, 0},
		{5, 0},
		{6, 1},
		{10, 5},
		{20, 15},
	} {
		history := linearHistory(tt.points, 1700000000, 1, 0, 1, 0, 1)
		if got := len(BuildSamples(history)); got != tt.want {
			t.Errorf("%d points: expected %d samples, got %d", tt.points, tt.want, got)
		}
	}
}

func TestSampleFromPoints_RequiresFive(t *testing.T) {
	history := linearHistory(4, 1700000000, 1, 0, 1, 0, 1)
	if _, ok := sampleFromPoints(history); ok {
		t.Error("expected failure for fewer than 5 points")
	}
}

func TestSampleFeatures_Order(t *testing.T) {
	history := linearHistory(6, 1700000000, 2, 1, 1, 0, 0)
	samples := BuildSamples(history)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	f := samples[0].features()
	if len(f) != 14 {
		t.Fatalf("expected 14 features, got %d", len(f))
	}
	// layout: current, prev, pos2, pos3, pos4 pairs, then velocity, avg
	// delta, speed
	if f[0] != samples[0].CurrentX || f[8] != samples[0].Pos4X || f[12] != samples[0].AvgDelta || f[13] != samples[0].Speed {
		t.Errorf("feature layout mismatch: %v", f)
	}
}
