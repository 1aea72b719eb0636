package riskmodel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var inferenceLogHeader = []string{
	"timestamp",
	"model_available",
	"routing_cost",
	"risk_level",
	"recommended_speed_kph",
	"flood_depth_5yr",
	"rainfall_mm",
	"is_raining",
	"bridge",
	"road_priority",
	"feature_order",
}

// InferenceLog appends scored rows to a CSV file
type InferenceLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenInferenceLog opens path for appending, writing the header when the
// file is new.
func OpenInferenceLog(path string) (*InferenceLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open inference log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat inference log: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		w.Write(inferenceLogHeader)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write inference log header: %w", err)
		}
	}

	return &InferenceLog{file: f}, nil
}

// Append writes one line per row
func (l *InferenceLog) Append(at time.Time, rows []Features, predictions []Prediction, featureOrder []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := at.UTC().Format(time.RFC3339Nano)
	order := strings.Join(featureOrder, "|")

	w := csv.NewWriter(l.file)
	for i := range rows {
		if i >= len(predictions) {
			break
		}
		r, p := rows[i], predictions[i]
		w.Write([]string{
			ts,
			"1",
			formatFixed(p.RoutingCost),
			string(p.RiskLevel),
			strconv.Itoa(p.RecommendedSpeedKPH),
			formatFixed(r.FloodDepth5yr),
			formatFixed(r.RainfallMM),
			strconv.Itoa(int(r.IsRaining)),
			strconv.Itoa(int(r.Bridge)),
			strconv.Itoa(int(r.RoadPriority)),
			order,
		})
	}
	w.Flush()
	return w.Error()
}

// Close closes the underlying file
func (l *InferenceLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
