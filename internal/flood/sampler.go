// Package flood estimates the flood exposure of a route from historical
// flood-depth road segments and the current rain.
package flood

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"lifeline-router/internal/database"
	"lifeline-router/internal/geo"
	"lifeline-router/internal/models"
)

const (
	SamplePoints      = 16
	NearDistanceM     = 20
	NearestLimit      = 3
	MinCoveragePoints = 1

	RainScaleMM       = 25
	PassableDepthMaxM = 0.5
	HardBlockDepthM   = 1.8
	MaxModelDepthM    = 3

	PenaltyCapSeconds           = 30 * 60
	ImpassablePenaltyCapSeconds = 12 * 60

	cautionPenaltySeconds   = 5 * 60
	highRiskPenaltySeconds  = 12 * 60
	hardBlockPenaltySeconds = 20 * 60
)

// Tier classifies a sampled flood depth
type Tier int

const (
	TierNone Tier = iota
	TierCaution
	TierHighRisk
	TierHardBlock
)

// Classify maps a depth in meters to its tier
func Classify(depth float64) Tier {
	switch {
	case depth >= HardBlockDepthM:
		return TierHardBlock
	case depth > PassableDepthMaxM:
		return TierHighRisk
	case depth > 0:
		return TierCaution
	default:
		return TierNone
	}
}

// Coverage tells whether enough samples matched flood data to trust them
type Coverage struct {
	SamplePoints  int
	MatchedPoints int
	Available     bool
}

// Stats is the flood summary of one route
type Stats struct {
	DepthForModel         float64
	AvgDepth              float64
	MaxDepth              float64
	PenaltySeconds        float64
	Blocked               bool
	ImpassableRatio       float64
	HasImpassableSegments bool
	Coverage              Coverage
}

// PointSample is the flood lookup result for one sampled coordinate
type PointSample struct {
	Matched    bool
	Depth      *float64 // max depth among nearby segments, nil when none carry one
	Impassable bool     // nearest segment is flagged not passable
}

type cacheEntry struct {
	once   sync.Once
	sample PointSample
	err    error
}

// PointCache memoizes point lookups for the duration of one optimization
// call. It is safe for concurrent use by the candidates of that call.
type PointCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewPointCache creates an empty cache
func NewPointCache() *PointCache {
	return &PointCache{entries: make(map[string]*cacheEntry)}
}

func (c *PointCache) entry(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	return e
}

// Len returns the number of distinct points looked up
func (c *PointCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sampler computes route flood stats against the flood road store
type Sampler struct {
	roads  database.FloodRoadRepository
	logger *zap.Logger
}

// NewSampler creates a Sampler
func NewSampler(roads database.FloodRoadRepository, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{roads: roads, logger: logger}
}

// Sample looks up flood data along route and reduces it under weather. A nil
// cache disables memoization.
func (s *Sampler) Sample(ctx context.Context, route orb.LineString, weather models.WeatherInput, cache *PointCache) (Stats, error) {
	points := geo.SampleByIndex(route, SamplePoints)

	samples := make([]PointSample, 0, len(points))
	for _, p := range points {
		sample, err := s.lookup(ctx, p, cache)
		if err != nil {
			return Stats{}, err
		}
		samples = append(samples, sample)
	}

	return Reduce(samples, weather), nil
}

func (s *Sampler) lookup(ctx context.Context, p orb.Point, cache *PointCache) (PointSample, error) {
	if cache == nil {
		return s.query(ctx, p)
	}

	e := cache.entry(geo.PointKey(p))
	e.once.Do(func() {
		e.sample, e.err = s.query(ctx, p)
	})
	return e.sample, e.err
}

func (s *Sampler) query(ctx context.Context, p orb.Point) (PointSample, error) {
	roads, err := s.roads.FindNearest(ctx, p, NearDistanceM, NearestLimit)
	if err != nil {
		s.logger.Error("flood road lookup failed", zap.String("point", geo.PointKey(p)), zap.Error(err))
		return PointSample{}, fmt.Errorf("failed to query flood roads: %w", err)
	}
	if len(roads) == 0 {
		return PointSample{}, nil
	}

	sample := PointSample{
		Matched:    true,
		Impassable: roads[0].Impassable(),
	}
	for _, r := range roads {
		if r.Depth5yr == nil {
			continue
		}
		d := *r.Depth5yr
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			continue
		}
		if sample.Depth == nil || d > *sample.Depth {
			depth := d
			sample.Depth = &depth
		}
	}
	return sample, nil
}

// RainScale is the 0..1 factor applied to flood penalties for the weather
func RainScale(weather models.WeatherInput) float64 {
	if !weather.Raining() {
		return 0
	}
	return geo.Clamp(weather.RainfallMM/RainScaleMM, 0, 1)
}

// Reduce turns point samples into route stats
func Reduce(samples []PointSample, weather models.WeatherInput) Stats {
	var (
		matched, withDepth, impassable int
		counts                         [TierHardBlock + 1]int
		sum, maxDepth                  float64
	)

	for _, s := range samples {
		if !s.Matched {
			continue
		}
		matched++
		if s.Impassable {
			impassable++
		}
		if s.Depth == nil {
			continue
		}
		d := *s.Depth
		withDepth++
		sum += d
		maxDepth = math.Max(maxDepth, d)
		counts[Classify(d)]++
	}

	stats := Stats{
		MaxDepth: maxDepth,
		Coverage: Coverage{
			SamplePoints:  len(samples),
			MatchedPoints: matched,
			Available:     matched >= MinCoveragePoints,
		},
	}
	if withDepth > 0 {
		stats.AvgDepth = sum / float64(withDepth)
	}

	denom := float64(max(matched, 1))
	stats.ImpassableRatio = float64(impassable) / denom
	stats.HasImpassableSegments = impassable > 0

	if !stats.Coverage.Available {
		return stats
	}

	rainScale := RainScale(weather)
	depthPenalty := rainScale * (float64(counts[TierCaution])/denom*cautionPenaltySeconds +
		float64(counts[TierHighRisk])/denom*highRiskPenaltySeconds +
		float64(counts[TierHardBlock])/denom*hardBlockPenaltySeconds)
	depthPenalty = geo.Clamp(depthPenalty, 0, PenaltyCapSeconds)

	impassablePenalty := geo.Clamp(stats.ImpassableRatio*rainScale*ImpassablePenaltyCapSeconds, 0, ImpassablePenaltyCapSeconds)

	stats.PenaltySeconds = geo.Clamp(depthPenalty+impassablePenalty, 0, PenaltyCapSeconds)
	stats.Blocked = weather.Raining() && counts[TierHardBlock] > 0
	stats.DepthForModel = geo.Clamp(stats.AvgDepth, 0, MaxModelDepthM)
	return stats
}
