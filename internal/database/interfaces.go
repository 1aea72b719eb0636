package database

import (
	"context"

	"github.com/paulmach/orb"

	"lifeline-router/internal/models"
)

// DataStore is the interface for hazard and flood data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	HazardZones() HazardZoneRepository
	FloodRoads() FloodRoadRepository
}

// HazardZoneQuery selects active hazard zones crossed by any of Routes
type HazardZoneQuery struct {
	Routes []orb.LineString
	Types  []models.HazardType // empty means all types
	Limit  int                 // 0 means unlimited
}

// HazardZoneRepository handles hazard zone persistence
type HazardZoneRepository interface {
	// FindActiveIntersecting returns active, non-deleted zones whose geometry
	// intersects at least one of the query routes.
	FindActiveIntersecting(ctx context.Context, q HazardZoneQuery) ([]models.HazardZone, error)
	GetByID(ctx context.Context, id int64) (*models.HazardZone, error)
	Create(ctx context.Context, z *models.HazardZone) (*models.HazardZone, error)
	Count(ctx context.Context) (int, error)
}

// FloodRoadRepository handles flood road segment persistence
type FloodRoadRepository interface {
	// FindNearest returns up to limit segments within maxDistanceMeters of
	// point, nearest first.
	FindNearest(ctx context.Context, point orb.Point, maxDistanceMeters float64, limit int) ([]models.FloodRoad, error)
	CreateBatch(ctx context.Context, roads []models.FloodRoad) error
	Count(ctx context.Context) (int, error)
}
