package predict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	artifactFileX = "model_x.json"
	artifactFileY = "model_y.json"
)

// artifact is one serialized axis regressor plus the bundle metadata it was
// trained with. Both axis files carry the metadata so either can validate
// the pair on reload.
type artifact struct {
	Coeffs      []float64   `json:"coeffs"`
	Metrics     AxisMetrics `json:"metrics"`
	TrainedAt   time.Time   `json:"trained_at"`
	SampleCount int         `json:"sample_count"`
}

// saveArtifacts writes both axis blobs to dir, creating it if needed.
func saveArtifacts(dir string, model *Model) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models dir: %w", err)
	}

	write := func(name string, r *regressor, metrics AxisMetrics) error {
		blob, err := json.MarshalIndent(artifact{
			Coeffs:      r.Coeffs,
			Metrics:     metrics,
			TrainedAt:   model.TrainedAt,
			SampleCount: model.SampleCount,
		}, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, name), blob, 0o644)
	}

	if err := write(artifactFileX, model.X, model.MetricsX); err != nil {
		return fmt.Errorf("failed to write X artifact: %w", err)
	}
	if err := write(artifactFileY, model.Y, model.MetricsY); err != nil {
		return fmt.Errorf("failed to write Y artifact: %w", err)
	}
	return nil
}

// loadArtifacts reloads a persisted bundle. Returns (nil, nil) when no
// artifacts exist; a bundle is valid only when both axis blobs load, so a
// half-written pair is treated as absent.
func loadArtifacts(dir string) (*Model, error) {
	read := func(name string) (*artifact, error) {
		blob, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var a artifact
		if err := json.Unmarshal(blob, &a); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return &a, nil
	}

	ax, errX := read(artifactFileX)
	ay, errY := read(artifactFileY)
	if os.IsNotExist(errX) && os.IsNotExist(errY) {
		return nil, nil
	}
	if errX != nil {
		return nil, errX
	}
	if errY != nil {
		return nil, errY
	}

	modelX := &regressor{Coeffs: ax.Coeffs}
	modelY := &regressor{Coeffs: ay.Coeffs}
	if !modelX.valid() || !modelY.valid() {
		return nil, fmt.Errorf("stored artifacts carry empty coefficient vectors")
	}

	return &Model{
		X:           modelX,
		Y:           modelY,
		MetricsX:    ax.Metrics,
		MetricsY:    ay.Metrics,
		TrainedAt:   ax.TrainedAt,
		SampleCount: ax.SampleCount,
	}, nil
}
