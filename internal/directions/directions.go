// Package directions talks to the external directions provider and coaxes
// genuinely different candidate geometries out of it.
package directions

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/paulmach/orb"

	"lifeline-router/internal/models"
)

// MaxRouteCandidates caps the number of candidates returned per pass
const MaxRouteCandidates = 3

// ErrNoRoutes is returned when the provider answers but offers no route
var ErrNoRoutes = errors.New("no routes returned by directions provider")

// ErrProviderFailed is returned when the directions provider call fails
type ErrProviderFailed struct {
	StatusCode int // upstream HTTP status, 0 for transport or decode failures
	Reason     string
}

func (e *ErrProviderFailed) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("directions provider failed: HTTP %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("directions provider failed: %s", e.Reason)
}

// IsNoRoutes reports whether err means the provider found nothing to offer,
// either as ErrNoRoutes or as a bare HTTP 404.
func IsNoRoutes(err error) bool {
	if errors.Is(err, ErrNoRoutes) {
		return true
	}
	var pf *ErrProviderFailed
	return errors.As(err, &pf) && pf.StatusCode == http.StatusNotFound
}

// Intersection carries the road class tags the provider reports at a junction
type Intersection struct {
	Classes []string `json:"classes,omitempty"`
}

// Step is one maneuver of a route leg
type Step struct {
	Duration      float64        `json:"duration"`
	Intersections []Intersection `json:"intersections,omitempty"`
}

// Leg is the part of a route between two waypoints
type Leg struct {
	Steps []Step `json:"steps,omitempty"`
}

// Route is one provider route. Geometry is nil when the provider returned
// a missing or malformed shape.
type Route struct {
	DistanceMeters float64
	DurationSecs   float64
	Geometry       orb.LineString
	Legs           []Leg
}

// Steps flattens the steps of every leg
func (r *Route) Steps() []Step {
	var steps []Step
	for _, leg := range r.Legs {
		steps = append(steps, leg.Steps...)
	}
	return steps
}

// Request describes one directions call
type Request struct {
	Profile          models.RouteProfile
	Waypoints        []orb.Point // start, optional vias, end
	Exclude          []orb.Point
	Alternatives     bool
	ContinueStraight *bool
}

// Provider fetches routes from a directions service
type Provider interface {
	Directions(ctx context.Context, req Request) ([]Route, error)
}
