// Package hazard checks candidate routes against administrator-declared
// hazard zones.
package hazard

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"lifeline-router/internal/database"
	"lifeline-router/internal/geo"
	"lifeline-router/internal/models"
)

const (
	// MaxClosurePolygons bounds the closures turned into exclusion points
	MaxClosurePolygons = 8
	// PointsPerPolygon is how many bbox points represent one closure
	PointsPerPolygon = 8
)

// Result summarizes the hazards one route crosses
type Result struct {
	Types          []models.HazardType // distinct, in models.HazardTypes order
	PenaltySeconds float64
	Blocked        bool
}

// Has reports whether the route crosses a zone of type t
func (r Result) Has(t models.HazardType) bool {
	for _, got := range r.Types {
		if got == t {
			return true
		}
	}
	return false
}

// Evaluator answers hazard questions for candidate routes
type Evaluator struct {
	zones  database.HazardZoneRepository
	logger *zap.Logger
}

// NewEvaluator creates an Evaluator backed by the hazard zone store
func NewEvaluator(zones database.HazardZoneRepository, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{zones: zones, logger: logger}
}

// Evaluate returns the active hazards the route intersects. Store failures
// are returned as errors, never as an empty result.
func (e *Evaluator) Evaluate(ctx context.Context, route orb.LineString) (Result, error) {
	zones, err := e.zones.FindActiveIntersecting(ctx, database.HazardZoneQuery{
		Routes: []orb.LineString{route},
	})
	if err != nil {
		e.logger.Error("hazard zone query failed", zap.Error(err))
		return Result{}, fmt.Errorf("failed to query hazard zones: %w", err)
	}

	return Summarize(zones), nil
}

// Summarize reduces intersecting zones to their distinct types, summed
// penalty and blocking flag.
func Summarize(zones []models.HazardZone) Result {
	present := make(map[models.HazardType]bool, len(zones))
	for _, z := range zones {
		present[z.HazardType] = true
	}

	var res Result
	for _, t := range models.HazardTypes {
		if !present[t] {
			continue
		}
		res.Types = append(res.Types, t)
		res.PenaltySeconds += t.PenaltySeconds()
		if t.BlocksRoute() {
			res.Blocked = true
		}
	}
	return res
}

// Closures returns up to MaxClosurePolygons active road closures crossed by
// any of routes.
func (e *Evaluator) Closures(ctx context.Context, routes []orb.LineString) ([]models.HazardZone, error) {
	if len(routes) == 0 {
		return nil, nil
	}

	zones, err := e.zones.FindActiveIntersecting(ctx, database.HazardZoneQuery{
		Routes: routes,
		Types:  []models.HazardType{models.HazardRoadClosed},
		Limit:  MaxClosurePolygons,
	})
	if err != nil {
		e.logger.Error("road closure query failed", zap.Error(err))
		return nil, fmt.Errorf("failed to query road closures: %w", err)
	}
	return zones, nil
}

// ExclusionPoints turns zones into representative bbox points, deduplicated
// and capped at max.
func ExclusionPoints(zones []models.HazardZone, max int) []orb.Point {
	var points []orb.Point
	for _, z := range zones {
		if z.Geometry == nil {
			continue
		}
		points = append(points, geo.BoundPoints(z.Geometry.Bound(), PointsPerPolygon)...)
	}
	if len(points) == 0 {
		return nil
	}
	return geo.DedupePoints(points, max)
}
