// Package importer loads hazard zones and flood road segments from GeoJSON
// FeatureCollections into the data store.
package importer

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"lifeline-router/internal/database"
	"lifeline-router/internal/geo"
	"lifeline-router/internal/models"
)

// DefaultBatchSize is the number of flood roads written per transaction
const DefaultBatchSize = 500

// Importer writes decoded features into a store
type Importer struct {
	store     database.DataStore
	logger    *zap.Logger
	batchSize int
}

// New creates an Importer. A batchSize <= 0 uses DefaultBatchSize.
func New(store database.DataStore, batchSize int, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{store: store, logger: logger, batchSize: batchSize}
}

// ImportHazardZones decodes r and creates one zone per feature
func (im *Importer) ImportHazardZones(ctx context.Context, r io.Reader) (int, error) {
	zones, err := ParseHazardZones(r)
	if err != nil {
		return 0, err
	}

	for i := range zones {
		if _, err := im.store.HazardZones().Create(ctx, &zones[i]); err != nil {
			return i, fmt.Errorf("failed to create hazard zone %q: %w", zones[i].Name, err)
		}
	}
	im.logger.Info("imported hazard zones", zap.Int("count", len(zones)))
	return len(zones), nil
}

// ImportFloodRoads decodes r and writes the segments in batches
func (im *Importer) ImportFloodRoads(ctx context.Context, r io.Reader) (int, error) {
	roads, err := ParseFloodRoads(r)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(roads); start += im.batchSize {
		end := min(start+im.batchSize, len(roads))
		if err := im.store.FloodRoads().CreateBatch(ctx, roads[start:end]); err != nil {
			return written, fmt.Errorf("failed to write flood roads %d-%d: %w", start, end-1, err)
		}
		written = end
		im.logger.Debug("flood road batch written", zap.Int("written", written), zap.Int("total", len(roads)))
	}
	im.logger.Info("imported flood roads", zap.Int("count", written))
	return written, nil
}

func decodeCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GeoJSON: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FeatureCollection: %w", err)
	}
	return fc, nil
}

// ParseHazardZones decodes a FeatureCollection of Polygon or MultiPolygon
// features. The hazard type is read from hazardType (or hazard_type); zones
// are active unless isActive is false.
func ParseHazardZones(r io.Reader) ([]models.HazardZone, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return nil, err
	}

	zones := make([]models.HazardZone, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := f.Properties

		name := stringProp(props, "name")
		if name == "" {
			name = fmt.Sprintf("zone-%d", i+1)
		}

		hazardType, err := models.ParseHazardType(stringProp(props, "hazardType", "hazard_type"))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		g, err := geo.Polygonal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		active := true
		if v, ok := boolProp(props, "isActive", "is_active"); ok {
			active = v
		}

		zones = append(zones, models.HazardZone{
			Name:       name,
			HazardType: hazardType,
			Geometry:   g,
			IsActive:   active,
		})
	}
	return zones, nil
}

// ParseFloodRoads decodes a FeatureCollection of LineString or
// MultiLineString features. MultiLineStrings become one road per part.
func ParseFloodRoads(r io.Reader) ([]models.FloodRoad, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return nil, err
	}

	roads := make([]models.FloodRoad, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := f.Properties

		name := stringProp(props, "name", "full_id", "highway")
		road := models.FloodRoad{Name: name}
		if v, ok := numberProp(props, "csv_flood_depth_5yr", "depth_5yr", "flood_depth_5yr"); ok {
			road.Depth5yr = &v
		}
		if v, ok := numberProp(props, "csv_passable", "passable"); ok {
			passable := v != 0
			road.Passable = &passable
		} else if b, ok := boolProp(props, "csv_passable", "passable"); ok {
			road.Passable = &b
		}

		var parts []orb.LineString
		switch g := f.Geometry.(type) {
		case orb.MultiLineString:
			parts = g
		default:
			ls, err := geo.LineString(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			parts = []orb.LineString{ls}
		}

		for _, part := range parts {
			ls, err := geo.LineString(part)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			next := road
			next.Geometry = ls
			roads = append(roads, next)
		}
	}
	return roads, nil
}

func stringProp(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// numberProp accepts JSON numbers and numeric strings, as CSV-derived
// exports carry both.
func numberProp(props geojson.Properties, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := props[k].(type) {
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, true
			}
		}
	}
	return 0, false
}

func boolProp(props geojson.Properties, keys ...string) (bool, bool) {
	for _, k := range keys {
		if v, ok := props[k].(bool); ok {
			return v, true
		}
	}
	return false, false
}
