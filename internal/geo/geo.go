// Package geo holds the coordinate and geometry helpers shared by the
// routing engine: rounding and point keys, boundary validation of GeoJSON
// shapes, bounding-box sample points, detour offsets and line/polygon
// predicates.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/peterstace/simplefeatures/geom"
)

const metersPerDegree = 111_320

var (
	// ErrInvalidGeometry is returned when a shape fails boundary validation
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Round6 rounds to 6 decimal places
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// PointKey returns the dedup/cache key of a point
func PointKey(p orb.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p[0], p[1])
}

// NormalizePoint clamps a point into WGS84 range and rounds it to 6 decimals
func NormalizePoint(p orb.Point) orb.Point {
	return orb.Point{
		Round6(Clamp(p[0], -180, 180)),
		Round6(Clamp(p[1], -90, 90)),
	}
}

func finitePoint(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// LineString validates a geometry as a route path with at least two points
func LineString(g orb.Geometry) (orb.LineString, error) {
	ls, ok := g.(orb.LineString)
	if !ok {
		if g == nil {
			return nil, fmt.Errorf("%w: missing line string", ErrInvalidGeometry)
		}
		return nil, fmt.Errorf("%w: expected LineString, got %s", ErrInvalidGeometry, g.GeoJSONType())
	}
	if len(ls) < 2 {
		return nil, fmt.Errorf("%w: line string has %d points", ErrInvalidGeometry, len(ls))
	}
	for _, p := range ls {
		if !finitePoint(p) {
			return nil, fmt.Errorf("%w: coordinate out of range", ErrInvalidGeometry)
		}
	}
	return ls, nil
}

// Polygonal validates a geometry as a Polygon or MultiPolygon
func Polygonal(g orb.Geometry) (orb.Geometry, error) {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	case nil:
		return nil, fmt.Errorf("%w: missing polygon", ErrInvalidGeometry)
	default:
		return nil, fmt.Errorf("%w: expected Polygon or MultiPolygon, got %s", ErrInvalidGeometry, g.GeoJSONType())
	}

	if len(polys) == 0 {
		return nil, fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
	}
	for _, poly := range polys {
		if len(poly) == 0 || len(poly[0]) < 3 {
			return nil, fmt.Errorf("%w: polygon ring has fewer than 3 points", ErrInvalidGeometry)
		}
		for _, ring := range poly {
			for _, p := range ring {
				if !finitePoint(p) {
					return nil, fmt.Errorf("%w: coordinate out of range", ErrInvalidGeometry)
				}
			}
		}
	}
	return g, nil
}

// BoundPoints returns up to count representative points of a bounding box:
// center, the four corners, then the four edge midpoints.
func BoundPoints(b orb.Bound, count int) []orb.Point {
	center := b.Center()
	points := []orb.Point{
		center,
		{b.Min[0], b.Min[1]},
		{b.Min[0], b.Max[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{center[0], b.Min[1]},
		{center[0], b.Max[1]},
		{b.Min[0], center[1]},
		{b.Max[0], center[1]},
	}

	if count < 1 {
		count = 1
	}
	if count > len(points) {
		count = len(points)
	}
	return points[:count]
}

// DedupePoints normalizes points and drops duplicates, keeping at most max
func DedupePoints(points []orb.Point, max int) []orb.Point {
	out := make([]orb.Point, 0, len(points))
	seen := make(map[string]struct{}, len(points))

	for _, raw := range points {
		p := NormalizePoint(raw)
		key := PointKey(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)

		if len(out) >= max {
			break
		}
	}
	return out
}

// SampleByIndex picks up to n points spread evenly by vertex index and
// drops duplicates by point key. Lines with n or fewer points are returned whole.
func SampleByIndex(line orb.LineString, n int) []orb.Point {
	if len(line) == 0 || n <= 0 {
		return nil
	}

	var sampled []orb.Point
	if len(line) <= n || n == 1 {
		sampled = append(sampled, line...)
	} else {
		maxIndex := len(line) - 1
		for i := 0; i < n; i++ {
			idx := int(math.Round(float64(i*maxIndex) / float64(n-1)))
			sampled = append(sampled, line[idx])
		}
	}

	out := make([]orb.Point, 0, len(sampled))
	seen := make(map[string]struct{}, len(sampled))
	for _, p := range sampled {
		key := PointKey(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SampleAtFractions picks the vertex at floor(len*f) for each fraction,
// dropping duplicates.
func SampleAtFractions(line orb.LineString, fractions []float64) []orb.Point {
	out := make([]orb.Point, 0, len(fractions))
	seen := make(map[string]struct{}, len(fractions))

	for _, f := range fractions {
		idx := int(math.Floor(float64(len(line)) * f))
		if idx < 0 || idx >= len(line) {
			continue
		}
		key := PointKey(line[idx])
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line[idx])
	}
	return out
}

// MetersToDegLat converts a north-south distance to degrees of latitude
func MetersToDegLat(meters float64) float64 {
	return meters / metersPerDegree
}

// MetersToDegLng converts an east-west distance at latDeg to degrees of longitude
func MetersToDegLng(meters, latDeg float64) float64 {
	denom := metersPerDegree * math.Cos(latDeg*math.Pi/180)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	return meters / denom
}

// PerpendicularOffsets synthesizes waypoints on both sides of the line's
// midpoint, offset perpendicular to the local direction by each distance.
// Lines with fewer than 4 points yield nothing.
func PerpendicularOffsets(line orb.LineString, offsetsMeters []float64) []orb.Point {
	if len(line) < 4 {
		return nil
	}

	midIdx := len(line) / 2
	prev := line[max(0, midIdx-1)]
	mid := line[midIdx]
	next := line[min(len(line)-1, midIdx+1)]

	dx := next[0] - prev[0]
	dy := next[1] - prev[1]
	mag := math.Hypot(dx, dy)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return nil
	}

	ux := -dy / mag
	uy := dx / mag

	var out []orb.Point
	seen := make(map[string]struct{})
	for _, meters := range offsetsMeters {
		dLat := MetersToDegLat(meters)
		dLng := MetersToDegLng(meters, mid[1])

		for _, cand := range []orb.Point{
			{mid[0] + ux*dLng, mid[1] + uy*dLat},
			{mid[0] - ux*dLng, mid[1] - uy*dLat},
		} {
			p := NormalizePoint(cand)
			key := PointKey(p)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// LineIntersectsPolygonal reports whether a line touches or crosses a
// Polygon or MultiPolygon. Other geometry types never intersect.
func LineIntersectsPolygonal(line orb.LineString, g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return lineIntersectsPolygon(line, v)
	case orb.MultiPolygon:
		for _, poly := range v {
			if lineIntersectsPolygon(line, poly) {
				return true
			}
		}
	}
	return false
}

func lineIntersectsPolygon(line orb.LineString, poly orb.Polygon) bool {
	if len(poly) == 0 || len(poly[0]) == 0 || len(line) == 0 {
		return false
	}
	if !line.Bound().Intersects(poly.Bound()) {
		return false
	}

	for _, p := range line {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}

	lg, err := toSimple(lineGeometry(line))
	if err != nil {
		return false
	}
	pg, err := toSimple(closeRings(poly))
	if err != nil {
		return false
	}
	return geom.Intersects(lg, pg)
}

// lineGeometry degrades single-vertex lines to a point so they survive WKB
func lineGeometry(line orb.LineString) orb.Geometry {
	if len(line) == 1 {
		return line[0]
	}
	return line
}

func closeRings(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(poly))
	for _, ring := range poly {
		if len(ring) == 0 {
			continue
		}
		if !ring.Closed() {
			closed := make(orb.Ring, len(ring), len(ring)+1)
			copy(closed, ring)
			ring = append(closed, ring[0])
		}
		out = append(out, ring)
	}
	return out
}

// toSimple converts through WKB. Zone rings come from external data and
// are not required to be OGC-valid, so validation is skipped.
func toSimple(g orb.Geometry) (geom.Geometry, error) {
	raw, err := wkb.Marshal(g)
	if err != nil {
		return geom.Geometry{}, err
	}
	return geom.UnmarshalWKB(raw, geom.NoValidate{})
}

// DistanceToLineMeters returns the shortest distance from p to the line,
// using a local equirectangular projection centred on p.
func DistanceToLineMeters(p orb.Point, line orb.LineString) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}

	kx := metersPerDegree * math.Cos(p[1]*math.Pi/180)
	ky := float64(metersPerDegree)
	project := func(q orb.Point) (float64, float64) {
		return (q[0] - p[0]) * kx, (q[1] - p[1]) * ky
	}

	if len(line) == 1 {
		x, y := project(line[0])
		return math.Hypot(x, y)
	}

	best := math.Inf(1)
	for i := 0; i+1 < len(line); i++ {
		ax, ay := project(line[i])
		bx, by := project(line[i+1])
		best = math.Min(best, distanceOriginToSegment(ax, ay, bx, by))
	}
	return best
}

func distanceOriginToSegment(ax, ay, bx, by float64) float64 {
	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}
	t := Clamp(-(ax*dx+ay*dy)/lenSq, 0, 1)
	return math.Hypot(ax+t*dx, ay+t*dy)
}
