package directions

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"lifeline-router/internal/geo"
	"lifeline-router/internal/metrics"
	"lifeline-router/internal/models"
)

const (
	// MaxExcludePoints caps the exclusion list sent to the provider
	MaxExcludePoints = 50

	minDistinctRoutes  = 2
	minExclusionCoords = 6
)

var (
	exclusionFractions = []float64{0.2, 0.4, 0.6, 0.8}
	detourOffsetsM     = []float64{350, 650}
)

// AcquireRequest describes the route between two points the caller wants
// candidates for. Exclude steers every request away from those points.
type AcquireRequest struct {
	Profile models.RouteProfile
	Start   orb.Point
	End     orb.Point
	Exclude []orb.Point
}

// Strategy derives follow-up provider requests from the routes gathered so
// far. It is pure; the Acquirer performs the calls and merges the results.
type Strategy struct {
	Name     string
	Requests func(pool []Route, req AcquireRequest) []Request
}

// DefaultStrategies is the diversification ladder run after the plain request
// returned fewer than two distinct routes, in order.
var DefaultStrategies = []Strategy{
	{Name: "continue_straight", Requests: continueStraightRequests},
	{Name: "exclude_points", Requests: exclusionRequests},
	{Name: "detour", Requests: detourRequests},
}

// Acquirer fetches up to MaxRouteCandidates distinct routes, escalating
// through its strategies while the provider keeps returning the same one.
type Acquirer struct {
	provider   Provider
	strategies []Strategy
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewAcquirer creates an Acquirer running DefaultStrategies
func NewAcquirer(provider Provider, logger *zap.Logger, collector *metrics.Collector) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		provider:   provider,
		strategies: DefaultStrategies,
		logger:     logger,
		metrics:    collector,
	}
}

// WithStrategies returns a copy of the Acquirer running the given ladder
func (a *Acquirer) WithStrategies(strategies []Strategy) *Acquirer {
	cp := *a
	cp.strategies = strategies
	return &cp
}

// Acquire returns distinct candidate routes in first-seen order. The plain
// request is the only one whose failure is returned; zero routes from it
// yields ErrNoRoutes. Failures of later strategies are logged and skipped.
func (a *Acquirer) Acquire(ctx context.Context, req AcquireRequest) ([]Route, error) {
	plain := Request{
		Profile:      req.Profile,
		Waypoints:    []orb.Point{req.Start, req.End},
		Exclude:      req.Exclude,
		Alternatives: true,
	}

	first, err := a.provider.Directions(ctx, plain)
	if err != nil {
		a.metrics.ObserveDirections("plain", "error")
		return nil, err
	}
	if len(first) == 0 {
		a.metrics.ObserveDirections("plain", "empty")
		return nil, ErrNoRoutes
	}
	a.metrics.ObserveDirections("plain", "ok")

	p := newRoutePool()
	p.merge(first)
	if p.len() >= minDistinctRoutes {
		return p.routes(MaxRouteCandidates), nil
	}

	for _, s := range a.strategies {
		for _, follow := range s.Requests(p.routes(0), req) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			routes, err := a.provider.Directions(ctx, follow)
			if err != nil {
				a.metrics.ObserveDirections(s.Name, "error")
				a.logger.Debug("diversification request failed", zap.String("strategy", s.Name), zap.Error(err))
				continue
			}
			a.metrics.ObserveDirections(s.Name, "ok")
			p.merge(routes)

			if p.len() >= MaxRouteCandidates {
				break
			}
		}

		if p.len() >= minDistinctRoutes {
			a.logger.Debug("diversification succeeded", zap.String("strategy", s.Name), zap.Int("routes", p.len()))
			return p.routes(MaxRouteCandidates), nil
		}
	}

	a.logger.Info("provider offered a single distinct route", zap.Int("strategies", len(a.strategies)))
	return p.routes(MaxRouteCandidates), nil
}

func continueStraightRequests(_ []Route, req AcquireRequest) []Request {
	off := false
	return []Request{{
		Profile:          req.Profile,
		Waypoints:        []orb.Point{req.Start, req.End},
		Exclude:          req.Exclude,
		Alternatives:     true,
		ContinueStraight: &off,
	}}
}

// exclusionRequests excludes one point of the first route at a time, on top
// of the caller's exclusions.
func exclusionRequests(pool []Route, req AcquireRequest) []Request {
	if len(pool) == 0 || len(pool[0].Geometry) < minExclusionCoords {
		return nil
	}

	var out []Request
	for _, pt := range geo.SampleAtFractions(pool[0].Geometry, exclusionFractions) {
		combined := make([]orb.Point, 0, len(req.Exclude)+1)
		combined = append(combined, req.Exclude...)
		combined = append(combined, pt)

		out = append(out, Request{
			Profile:      req.Profile,
			Waypoints:    []orb.Point{req.Start, req.End},
			Exclude:      geo.DedupePoints(combined, MaxExcludePoints),
			Alternatives: true,
		})
	}
	return out
}

// detourRequests forces the route through a waypoint offset sideways from
// the midpoint of the first route.
func detourRequests(pool []Route, req AcquireRequest) []Request {
	if len(pool) == 0 {
		return nil
	}

	var out []Request
	for _, wp := range geo.PerpendicularOffsets(pool[0].Geometry, detourOffsetsM) {
		out = append(out, Request{
			Profile:   req.Profile,
			Waypoints: []orb.Point{req.Start, wp, req.End},
			Exclude:   req.Exclude,
		})
	}
	return out
}

// RouteKey identifies a route by rounded distance and duration plus its
// first, middle and last coordinates.
func RouteKey(r Route) string {
	d := math.Round(r.DistanceMeters)
	t := math.Round(r.DurationSecs)
	coords := r.Geometry
	if len(coords) < 2 {
		return fmt.Sprintf("%.0f-%.0f", d, t)
	}
	mid := coords[len(coords)/2]
	return fmt.Sprintf("%.0f-%.0f-%s|%s|%s", d, t,
		geo.PointKey(coords[0]), geo.PointKey(mid), geo.PointKey(coords[len(coords)-1]))
}

// routePool keeps routes in first-seen order; a repeated key replaces the
// stored route without moving it.
type routePool struct {
	order []string
	byKey map[string]Route
}

func newRoutePool() *routePool {
	return &routePool{byKey: make(map[string]Route)}
}

func (p *routePool) merge(routes []Route) {
	for _, r := range routes {
		key := RouteKey(r)
		if _, ok := p.byKey[key]; !ok {
			p.order = append(p.order, key)
		}
		p.byKey[key] = r
	}
}

func (p *routePool) len() int {
	return len(p.order)
}

// routes returns at most limit routes, all of them when limit <= 0
func (p *routePool) routes(limit int) []Route {
	n := len(p.order)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]Route, n)
	for i := 0; i < n; i++ {
		out[i] = p.byKey[p.order[i]]
	}
	return out
}
