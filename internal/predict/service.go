package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/moto-data/yard.report/internal/db"
	"github.com/moto-data/yard.report/internal/monitoring"
)

// DefaultMinSamples is the training threshold used when the caller does not
// specify one.
const DefaultMinSamples = 50

// DefaultHistoryLength is the number of recent fixes Predict loads when the
// caller does not specify one.
const DefaultHistoryLength = 5

// splitSeed makes the train/test shuffle reproducible across runs.
const splitSeed = 42

// ErrNotTrained is returned by Predict while no model is active.
var ErrNotTrained = errors.New("predict: model not trained")

// ErrInsufficientHistory is returned by Predict when the vehicle has too few
// usable fixes. It is a normal outcome, not a fault.
var ErrInsufficientHistory = errors.New("predict: insufficient position history")

// Model is one complete trained bundle. It is immutable once published;
// retraining swaps in a fresh bundle, so readers always see matching axis
// models, metrics and metadata.
type Model struct {
	X           *regressor
	Y           *regressor
	MetricsX    AxisMetrics
	MetricsY    AxisMetrics
	TrainedAt   time.Time
	SampleCount int
}

// Service is the model registry plus the train and predict operations around
// it. Train is the single writer; Predict and Metrics are concurrent readers
// that grab the active bundle under a brief read lock and work outside it.
type Service struct {
	db  *db.DB
	dir string

	mu    sync.RWMutex
	model *Model
}

// NewService creates the prediction service and reloads persisted model
// artifacts from modelsDir when both axis blobs are present.
func NewService(database *db.DB, modelsDir string) *Service {
	s := &Service{db: database, dir: modelsDir}
	if model, err := loadArtifacts(modelsDir); err != nil {
		monitoring.Logf("no stored prediction model loaded: %v", err)
	} else if model != nil {
		s.model = model
		monitoring.Logf("loaded prediction model trained at %s (%d samples)",
			model.TrainedAt.Format(time.RFC3339), model.SampleCount)
	}
	return s
}

// IsTrained reports whether a model is active.
func (s *Service) IsTrained() bool {
	return s.snapshot() != nil
}

func (s *Service) snapshot() *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// TrainResult is the structured outcome of a training run. Failures are
// reported here, never as a raw error to the caller.
type TrainResult struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	Samples         int     `json:"samples"`
	MAEX            float64 `json:"mae_x"`
	MAEY            float64 `json:"mae_y"`
	R2X             float64 `json:"r2_x"`
	R2Y             float64 `json:"r2_y"`
	TrainingSeconds float64 `json:"training_seconds"`
}

// Train extracts windowed samples across all eligible vehicles, fits both
// axis regressors on an 80/20 split, and on full success atomically replaces
// the active bundle and its persisted artifacts. Any failure leaves the
// previous model authoritative.
func (s *Service) Train(ctx context.Context, minSamples int) TrainResult {
	start := time.Now()
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	samples, err := s.gatherSamples(ctx)
	if err != nil {
		return TrainResult{
			Success: false,
			Message: fmt.Sprintf("failed to extract training data: %v", err),
		}
	}
	if len(samples) < minSamples {
		return TrainResult{
			Success: false,
			Message: fmt.Sprintf("insufficient training data: found %d samples, need at least %d", len(samples), minSamples),
			Samples: len(samples),
		}
	}

	trainSet, testSet := splitSamples(samples)
	trainFeatures, trainX, trainY := sampleMatrix(trainSet)
	testFeatures, testX, testY := sampleMatrix(testSet)

	// exclusive section: fit, evaluate, persist, publish. A concurrent
	// Predict never sees a half-updated registry.
	s.mu.Lock()
	defer s.mu.Unlock()

	modelX, err := fitRegressor(trainFeatures, trainX)
	if err != nil {
		return TrainResult{Success: false, Message: fmt.Sprintf("training failed on X axis: %v", err), Samples: len(samples)}
	}
	modelY, err := fitRegressor(trainFeatures, trainY)
	if err != nil {
		return TrainResult{Success: false, Message: fmt.Sprintf("training failed on Y axis: %v", err), Samples: len(samples)}
	}

	model := &Model{
		X:           modelX,
		Y:           modelY,
		MetricsX:    evaluateRegressor(modelX, testFeatures, testX),
		MetricsY:    evaluateRegressor(modelY, testFeatures, testY),
		TrainedAt:   time.Now().UTC(),
		SampleCount: len(samples),
	}

	if err := saveArtifacts(s.dir, model); err != nil {
		return TrainResult{Success: false, Message: fmt.Sprintf("failed to persist model artifacts: %v", err), Samples: len(samples)}
	}

	s.model = model

	return TrainResult{
		Success:         true,
		Message:         "model trained successfully",
		Samples:         len(samples),
		MAEX:            model.MetricsX.MAE,
		MAEY:            model.MetricsY.MAE,
		R2X:             model.MetricsX.R2,
		R2Y:             model.MetricsY.R2,
		TrainingSeconds: time.Since(start).Seconds(),
	}
}

// gatherSamples windows the history of every vehicle with at least 6 fixes.
func (s *Service) gatherSamples(ctx context.Context) ([]Sample, error) {
	ids, err := s.db.VehicleIDsWithHistory(ctx, windowSize)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, id := range ids {
		history, err := s.db.PositionHistory(ctx, id)
		if err != nil {
			return nil, err
		}
		samples = append(samples, BuildSamples(history)...)
	}
	return samples, nil
}

// splitSamples shuffles deterministically and holds out 20% for evaluation.
func splitSamples(samples []Sample) (train, test []Sample) {
	rng := rand.New(rand.NewSource(splitSeed))
	shuffled := make([]Sample, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testCount := len(shuffled) / 5
	if testCount == 0 && len(shuffled) > 1 {
		testCount = 1
	}
	return shuffled[testCount:], shuffled[:testCount]
}

func sampleMatrix(samples []Sample) (features [][]float64, labelsX, labelsY []float64) {
	features = make([][]float64, len(samples))
	labelsX = make([]float64, len(samples))
	labelsY = make([]float64, len(samples))
	for i := range samples {
		features[i] = samples[i].features()
		labelsX[i] = samples[i].NextX
		labelsY[i] = samples[i].NextY
	}
	return features, labelsX, labelsY
}

// Prediction is a next-position forecast for one vehicle.
type Prediction struct {
	VehicleID        int64   `json:"vehicle_id"`
	CurrentX         float64 `json:"current_x"`
	CurrentY         float64 `json:"current_y"`
	PredictedX       float64 `json:"predicted_x"`
	PredictedY       float64 `json:"predicted_y"`
	Distance         float64 `json:"distance"`
	DirectionDegrees float64 `json:"direction_degrees"`
	EtaSeconds       float64 `json:"eta_seconds"`
	PointsUsed       int     `json:"points_used"`
}

// Predict forecasts the vehicle's next position from its most recent
// historyLength fixes. Returns ErrNotTrained while no model is active and
// ErrInsufficientHistory when fewer than 5 usable fixes exist.
func (s *Service) Predict(ctx context.Context, vehicleID int64, historyLength int) (*Prediction, error) {
	model := s.snapshot()
	if model == nil {
		return nil, ErrNotTrained
	}

	if historyLength < DefaultHistoryLength {
		historyLength = DefaultHistoryLength
	}
	positions, err := s.db.RecentPositions(ctx, vehicleID, historyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to load position history: %w", err)
	}
	if len(positions) < featurePoints {
		return nil, ErrInsufficientHistory
	}

	sample, ok := sampleFromPoints(positions[len(positions)-featurePoints:])
	if !ok {
		return nil, fmt.Errorf("%w: non-increasing timestamps in recent fixes", ErrInsufficientHistory)
	}

	features := sample.features()
	predictedX := model.X.predict(features)
	predictedY := model.Y.predict(features)

	direction := math.Atan2(predictedY-sample.CurrentY, predictedX-sample.CurrentX) * 180 / math.Pi
	if direction < 0 {
		direction += 360
	}

	return &Prediction{
		VehicleID:        vehicleID,
		CurrentX:         sample.CurrentX,
		CurrentY:         sample.CurrentY,
		PredictedX:       predictedX,
		PredictedY:       predictedY,
		Distance:         math.Hypot(predictedX-sample.CurrentX, predictedY-sample.CurrentY),
		DirectionDegrees: direction,
		EtaSeconds:       sample.AvgDelta,
		PointsUsed:       len(positions),
	}, nil
}

// ModelMetrics is the externally visible state of the registry.
type ModelMetrics struct {
	Trained       bool       `json:"trained"`
	LastTrainedAt *time.Time `json:"last_trained_at,omitempty"`
	SampleCount   int        `json:"sample_count"`
	MAEX          float64    `json:"mae_x"`
	MAEY          float64    `json:"mae_y"`
	RMSEX         float64    `json:"rmse_x"`
	RMSEY         float64    `json:"rmse_y"`
	R2X           float64    `json:"r2_x"`
	R2Y           float64    `json:"r2_y"`
	QualityLabel  string     `json:"quality_label,omitempty"`
}

// Metrics reports the active model's evaluation. All fields come from one
// bundle snapshot, so they are mutually consistent even during retraining.
func (s *Service) Metrics() ModelMetrics {
	model := s.snapshot()
	if model == nil {
		return ModelMetrics{Trained: false}
	}
	trainedAt := model.TrainedAt
	return ModelMetrics{
		Trained:       true,
		LastTrainedAt: &trainedAt,
		SampleCount:   model.SampleCount,
		MAEX:          model.MetricsX.MAE,
		MAEY:          model.MetricsY.MAE,
		RMSEX:         model.MetricsX.RMSE,
		RMSEY:         model.MetricsY.RMSE,
		R2X:           model.MetricsX.R2,
		R2Y:           model.MetricsY.R2,
		QualityLabel:  qualityLabel((model.MetricsX.R2 + model.MetricsY.R2) / 2),
	}
}

// qualityLabel buckets average R² the way operators read it.
func qualityLabel(avgR2 float64) string {
	switch {
	case avgR2 > 0.9:
		return "Excellent"
	case avgR2 > 0.7:
		return "Good"
	case avgR2 > 0.5:
		return "Fair"
	default:
		return "Poor"
	}
}
