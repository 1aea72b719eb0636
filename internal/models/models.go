package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns the coordinates in longitude, latitude order
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// Valid reports whether the coordinates are finite and inside WGS84 bounds
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// CoordinatesFromPoint converts an orb point (lng, lat) to Coordinates
func CoordinatesFromPoint(p orb.Point) Coordinates {
	return Coordinates{Lat: p.Lat(), Lng: p.Lon()}
}

// RoundCoordinate rounds a coordinate component to 6 decimal places (~0.1m)
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// HazardType classifies an administrator-declared hazard zone
type HazardType string

const (
	HazardFlooded    HazardType = "FLOODED"
	HazardRoadClosed HazardType = "ROAD_CLOSED"
	HazardFireRisk   HazardType = "FIRE_RISK"
	HazardLandslide  HazardType = "LANDSLIDE"
	HazardUnsafe     HazardType = "UNSAFE"
)

// HazardTypes lists every known hazard type
var HazardTypes = []HazardType{
	HazardFlooded,
	HazardRoadClosed,
	HazardFireRisk,
	HazardLandslide,
	HazardUnsafe,
}

// ParseHazardType normalizes and validates a hazard type name
func ParseHazardType(s string) (HazardType, error) {
	t := HazardType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case HazardFlooded, HazardRoadClosed, HazardFireRisk, HazardLandslide, HazardUnsafe:
		return t, nil
	}
	return "", fmt.Errorf("unknown hazard type %q", s)
}

// PenaltySeconds returns the fixed travel-time penalty for a route crossing this hazard
func (t HazardType) PenaltySeconds() float64 {
	switch t {
	case HazardLandslide:
		return 15 * 60
	case HazardFireRisk:
		return 12 * 60
	case HazardUnsafe:
		return 6 * 60
	case HazardFlooded, HazardRoadClosed:
		return 0
	}
	return 0
}

// BlocksRoute reports whether crossing this hazard disqualifies a route
func (t HazardType) BlocksRoute() bool {
	switch t {
	case HazardRoadClosed:
		return true
	case HazardFlooded, HazardFireRisk, HazardLandslide, HazardUnsafe:
		return false
	}
	return false
}

// HazardZone is an administrator-declared hazard polygon
type HazardZone struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	HazardType HazardType   `json:"hazard_type"`
	Geometry   orb.Geometry `json:"-"` // orb.Polygon or orb.MultiPolygon
	IsActive   bool         `json:"is_active"`
	DeletedAt  *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// FloodRoad is a road segment carrying historical flood estimates
type FloodRoad struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Geometry orb.LineString `json:"-"`
	Depth5yr *float64       `json:"depth_5yr,omitempty"`
	Passable *bool          `json:"passable,omitempty"`
}

// Impassable reports whether the segment is explicitly flagged as not passable
func (f *FloodRoad) Impassable() bool {
	return f.Passable != nil && !*f.Passable
}

// WeatherInput is the point-in-time weather snapshot used for a routing call
type WeatherInput struct {
	RainfallMM float64 `json:"rainfall_mm"`
	IsRaining  int     `json:"is_raining"`
}

// Raining reports whether the snapshot flags active rain
func (w WeatherInput) Raining() bool {
	return w.IsRaining == 1
}

// WeatherSource identifies where the routing weather came from
type WeatherSource string

const (
	WeatherSourceRequest  WeatherSource = "request"
	WeatherSourceExternal WeatherSource = "external"
)

// UsedWeather is the weather snapshot echoed back with a routing result
type UsedWeather struct {
	RainfallMM float64       `json:"rainfall_mm"`
	IsRaining  int           `json:"is_raining"`
	Source     WeatherSource `json:"source"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// RouteProfile is the directions profile requested from the provider
type RouteProfile string

const (
	ProfileDriving RouteProfile = "driving"
	ProfileWalking RouteProfile = "walking"
)

// RouteMode selects between optimization and baseline evaluation
type RouteMode string

const (
	RouteModeOptimize RouteMode = "optimize"
	RouteModeEvaluate RouteMode = "evaluate"
)

// RiskLevel is the coarse band of a model routing cost
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ChosenRoute is the recommended candidate of an optimization call
type ChosenRoute struct {
	Geometry            *geojson.Geometry `json:"geometry"`
	DistanceMeters      float64           `json:"distance_m"`
	DurationSecs        float64           `json:"duration_s"`
	RoutingCost         float64           `json:"routing_cost"`
	FinalScore          float64           `json:"finalScore"`
	Blocked             bool              `json:"blocked"`
	RiskLevel           RiskLevel         `json:"risk_level,omitempty"`
	RecommendedSpeedKPH int               `json:"recommended_speed_kph,omitempty"`
}

// CandidateReport is the per-candidate explanation returned with a result
type CandidateReport struct {
	Index                      int               `json:"index"`
	Geometry                   *geojson.Geometry `json:"geometry"`
	DistanceMeters             float64           `json:"distance_m"`
	DurationSecs               float64           `json:"duration_s"`
	Blocked                    bool              `json:"blocked"`
	HazardTypes                []HazardType      `json:"hazardTypes"`
	HazardPenaltySeconds       float64           `json:"hazardPenaltySeconds"`
	FloodCoverageMatchedPoints *int              `json:"floodCoverageMatchedPoints,omitempty"`
	FloodCoverageSamplePoints  *int              `json:"floodCoverageSamplePoints,omitempty"`
	FloodCoverageAvailable     *bool             `json:"floodCoverageAvailable,omitempty"`
	FloodAvgDepth              *float64          `json:"floodAvgDepth,omitempty"`
	FloodMaxDepth              *float64          `json:"floodMaxDepth,omitempty"`
	FloodPenaltySeconds        *float64          `json:"floodPenaltySeconds,omitempty"`
	FloodBlocked               *bool             `json:"floodBlocked,omitempty"`
	FloodImpassableRatio       *float64          `json:"floodImpassableRatio,omitempty"`
	FloodHasImpassableSegments *bool             `json:"floodHasImpassableSegments,omitempty"`
	RiskLevel                  RiskLevel         `json:"risk_level,omitempty"`
	RecommendedSpeedKPH        int               `json:"recommended_speed_kph,omitempty"`
	RoutingCost                float64           `json:"routing_cost"`
	FinalScore                 float64           `json:"finalScore"`
}

// OptimizedRoute is the full result of an optimization call
type OptimizedRoute struct {
	ChosenIndex int               `json:"chosenIndex"`
	Chosen      ChosenRoute       `json:"chosen"`
	Candidates  []CandidateReport `json:"candidates"`
	UsedWeather UsedWeather       `json:"usedWeather"`
}
