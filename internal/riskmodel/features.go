package riskmodel

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"lifeline-router/internal/directions"
	"lifeline-router/internal/geo"
)

// MaxStepsPerRoute bounds the maneuvers scanned for road classes
const MaxStepsPerRoute = 1000

// DefaultRoadPriority is used when a route carries no road class tags
const DefaultRoadPriority = 2

// featureOrder is the column order the trained model expects
var featureOrder = []string{
	"flood_depth_5yr",
	"rainfall_mm",
	"is_raining",
	"bridge",
	"road_priority",
}

// FeatureOrder returns a copy of the model's input column order
func FeatureOrder() []string {
	return slices.Clone(featureOrder)
}

// ErrTooManySteps is returned for routes with more than MaxStepsPerRoute steps
var ErrTooManySteps = errors.New("route contains too many steps")

// Features is one model input row
type Features struct {
	FloodDepth5yr float64 `json:"flood_depth_5yr"`
	RainfallMM    float64 `json:"rainfall_mm"`
	IsRaining     float64 `json:"is_raining"`
	Bridge        float64 `json:"bridge"`
	RoadPriority  float64 `json:"road_priority"`
}

// Vector returns the row in FeatureOrder() column order
func (f Features) Vector() []float32 {
	return []float32{
		float32(f.FloodDepth5yr),
		float32(f.RainfallMM),
		float32(f.IsRaining),
		float32(f.Bridge),
		float32(f.RoadPriority),
	}
}

// Sanitize clamps the row into the ranges the model was trained on
func (f Features) Sanitize() Features {
	return Features{
		FloodDepth5yr: geo.Clamp(finiteOr(f.FloodDepth5yr, 0), 0, 10),
		RainfallMM:    geo.Clamp(finiteOr(f.RainfallMM, 0), 0, 500),
		IsRaining:     binaryFlag(f.IsRaining),
		Bridge:        binaryFlag(f.Bridge),
		RoadPriority:  math.Round(geo.Clamp(finiteOr(f.RoadPriority, 0), 0, 3)),
	}
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func binaryFlag(v float64) float64 {
	if finiteOr(v, 0) >= 1 {
		return 1
	}
	return 0
}

// RoadSignals derives the bridge flag and road priority from the road class
// tags of a route's steps.
func RoadSignals(steps []directions.Step) (bridge, priority float64, err error) {
	if len(steps) > MaxStepsPerRoute {
		return 0, 0, fmt.Errorf("%w (max %d)", ErrTooManySteps, MaxStepsPerRoute)
	}

	var classes []string
	for _, step := range steps {
		for _, in := range step.Intersections {
			for _, c := range in.Classes {
				c = strings.ToLower(strings.TrimSpace(c))
				if c != "" {
					classes = append(classes, c)
				}
			}
		}
	}

	if len(classes) == 0 {
		return 0, DefaultRoadPriority, nil
	}

	for _, c := range classes {
		priority = math.Max(priority, roadPriority(c))
		if strings.Contains(c, "bridge") {
			bridge = 1
		}
	}
	return bridge, priority, nil
}

func roadPriority(class string) float64 {
	switch {
	case strings.Contains(class, "motorway"), strings.Contains(class, "trunk"), strings.Contains(class, "primary"):
		return 3
	case strings.Contains(class, "secondary"), strings.Contains(class, "tertiary"):
		return 2
	case strings.Contains(class, "residential"), strings.Contains(class, "service"):
		return 1
	default:
		return 0
	}
}
