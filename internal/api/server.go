// Package api exposes the fleet, prediction and live-stream endpoints over
// HTTP. All handlers speak JSON; errors come back as {"error": msg}.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/moto-data/yard.report/internal/db"
	"github.com/moto-data/yard.report/internal/live"
	"github.com/moto-data/yard.report/internal/monitoring"
	"github.com/moto-data/yard.report/internal/predict"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// BrokerStatus reports the MQTT consumer's connection state for health
// checks.
type BrokerStatus interface {
	IsConnected() bool
}

type Server struct {
	db         *db.DB
	hub        *live.Hub
	predictor  *predict.Service
	broker     BrokerStatus
	minSamples int
}

func NewServer(database *db.DB, hub *live.Hub, predictor *predict.Service, broker BrokerStatus, minSamples int) *Server {
	if minSamples <= 0 {
		minSamples = predict.DefaultMinSamples
	}
	return &Server{
		db:         database,
		hub:        hub,
		predictor:  predictor,
		broker:     broker,
		minSamples: minSamples,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/vehicles", s.listVehicles)
	mux.HandleFunc("/vehicles/", s.vehicleSubresource)
	mux.HandleFunc("/predictions/train", s.trainModel)
	mux.HandleFunc("/predictions/next/", s.predictNext)
	mux.HandleFunc("/predictions/metrics", s.modelMetrics)
	mux.HandleFunc("/live", s.streamLive)
	mux.HandleFunc("/healthz", s.health)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	vehicles, err := s.db.ListVehicles()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve vehicles: %v", err))
		return
	}
	if vehicles == nil {
		vehicles = []db.Vehicle{}
	}

	if err := json.NewEncoder(w).Encode(vehicles); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write vehicles")
		return
	}
}

// vehicleSubresource dispatches /vehicles/{id}/history.
func (s *Server) vehicleSubresource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rest := strings.TrimPrefix(r.URL.Path, "/vehicles/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "history" {
		s.writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	vehicleID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}
	s.vehicleHistory(w, r, vehicleID)
}

func (s *Server) vehicleHistory(w http.ResponseWriter, r *http.Request, vehicleID int64) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	if _, err := s.db.GetVehicle(vehicleID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "Vehicle not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve vehicle: %v", err))
		return
	}

	history, err := s.db.RecentPositions(r.Context(), vehicleID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve history: %v", err))
		return
	}
	if history == nil {
		history = []db.PositionRecord{}
	}

	if err := json.NewEncoder(w).Encode(history); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write history")
		return
	}
}

func (s *Server) trainModel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	minSamples := s.minSamples
	if m := r.URL.Query().Get("min_samples"); m != "" {
		parsed, err := strconv.Atoi(m)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'min_samples' parameter")
			return
		}
		minSamples = parsed
	}

	result := s.predictor.Train(r.Context(), minSamples)

	// failed runs still report structured diagnostics, not an HTTP fault
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write training result")
		return
	}
}

func (s *Server) predictNext(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/predictions/next/")
	vehicleID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid vehicle id")
		return
	}

	historyLength := predict.DefaultHistoryLength
	if h := r.URL.Query().Get("history"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'history' parameter")
			return
		}
		historyLength = parsed
	}

	prediction, err := s.predictor.Predict(r.Context(), vehicleID, historyLength)
	switch {
	case errors.Is(err, predict.ErrNotTrained):
		s.writeJSONError(w, http.StatusConflict, "Model not trained; POST /predictions/train first")
		return
	case errors.Is(err, predict.ErrInsufficientHistory):
		s.writeJSONError(w, http.StatusUnprocessableEntity, "Not enough position history for this vehicle")
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Prediction failed: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(prediction); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write prediction")
		return
	}
}

func (s *Server) modelMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.predictor.Metrics()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write metrics")
		return
	}
}

func (s *Server) streamLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.hub.ServeSSE(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := map[string]interface{}{
		"database": "ok",
		"broker":   "disconnected",
		"trained":  s.predictor.IsTrained(),
	}
	healthy := true

	if err := s.db.PingContext(r.Context()); err != nil {
		status["database"] = fmt.Sprintf("error: %v", err)
		healthy = false
	}
	if s.broker != nil && s.broker.IsConnected() {
		status["broker"] = "connected"
	}

	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
