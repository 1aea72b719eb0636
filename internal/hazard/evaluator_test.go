package hazard

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline-router/internal/models"
	"lifeline-router/internal/testutil"
)

var crossing = orb.LineString{{0, 1.5}, {10, 1.5}}

func TestEvaluate(t *testing.T) {
	zones := testutil.NewMockHazardZones(
		models.HazardZone{Name: "slide", HazardType: models.HazardLandslide, Geometry: testutil.Square(1, 1, 2, 2), IsActive: true},
		models.HazardZone{Name: "slide-2", HazardType: models.HazardLandslide, Geometry: testutil.Square(3, 1, 4, 2), IsActive: true},
		models.HazardZone{Name: "unsafe", HazardType: models.HazardUnsafe, Geometry: testutil.Square(5, 1, 6, 2), IsActive: true},
		models.HazardZone{Name: "flooded", HazardType: models.HazardFlooded, Geometry: testutil.Square(7, 1, 8, 2), IsActive: true},
		models.HazardZone{Name: "fire-off", HazardType: models.HazardFireRisk, Geometry: testutil.Square(1, 1, 9, 2), IsActive: false},
	)
	e := NewEvaluator(zones, nil)

	res, err := e.Evaluate(context.Background(), crossing)
	require.NoError(t, err)

	assert.Equal(t, []models.HazardType{models.HazardFlooded, models.HazardLandslide, models.HazardUnsafe}, res.Types)
	// distinct types only: one landslide penalty
	assert.Equal(t, 900.0+360.0, res.PenaltySeconds)
	assert.False(t, res.Blocked)
	assert.True(t, res.Has(models.HazardUnsafe))
	assert.False(t, res.Has(models.HazardFireRisk))
}

func TestEvaluate_RoadClosedBlocks(t *testing.T) {
	zones := testutil.NewMockHazardZones(
		models.HazardZone{HazardType: models.HazardRoadClosed, Geometry: testutil.Square(1, 1, 2, 2), IsActive: true},
		models.HazardZone{HazardType: models.HazardFireRisk, Geometry: orb.MultiPolygon{testutil.Square(3, 1, 4, 2)}, IsActive: true},
	)

	res, err := NewEvaluator(zones, nil).Evaluate(context.Background(), crossing)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, 720.0, res.PenaltySeconds)
}

func TestEvaluate_NoHazards(t *testing.T) {
	res, err := NewEvaluator(testutil.NewMockHazardZones(), nil).Evaluate(context.Background(), crossing)
	require.NoError(t, err)
	assert.Empty(t, res.Types)
	assert.Zero(t, res.PenaltySeconds)
	assert.False(t, res.Blocked)
}

func TestEvaluate_StoreFailurePropagates(t *testing.T) {
	zones := testutil.NewMockHazardZones()
	zones.Err = errors.New("connection reset")

	_, err := NewEvaluator(zones, nil).Evaluate(context.Background(), crossing)
	require.Error(t, err)
	assert.ErrorIs(t, err, zones.Err)
}

func TestClosures(t *testing.T) {
	var defs []models.HazardZone
	for i := 0; i < 10; i++ {
		x := float64(i)
		defs = append(defs, models.HazardZone{
			HazardType: models.HazardRoadClosed,
			Geometry:   testutil.Square(x, 1, x+0.5, 2),
			IsActive:   true,
		})
	}
	defs = append(defs, models.HazardZone{HazardType: models.HazardLandslide, Geometry: testutil.Square(0, 1, 1, 2), IsActive: true})
	zones := testutil.NewMockHazardZones(defs...)

	got, err := NewEvaluator(zones, nil).Closures(context.Background(), []orb.LineString{crossing})
	require.NoError(t, err)
	assert.Len(t, got, MaxClosurePolygons)
	for _, z := range got {
		assert.Equal(t, models.HazardRoadClosed, z.HazardType)
	}

	got, err = NewEvaluator(zones, nil).Closures(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExclusionPoints(t *testing.T) {
	zones := []models.HazardZone{
		{Geometry: testutil.Square(0, 0, 2, 2)},
		{Geometry: testutil.Square(0, 0, 2, 2)},
		{Geometry: nil},
	}

	points := ExclusionPoints(zones, 50)
	require.Len(t, points, PointsPerPolygon)
	assert.Equal(t, orb.Point{1, 1}, points[0])

	assert.Len(t, ExclusionPoints(zones, 3), 3)
	assert.Nil(t, ExclusionPoints(nil, 50))
}

func TestExclusionPointsCap(t *testing.T) {
	var zones []models.HazardZone
	for i := 0; i < 8; i++ {
		x := float64(i * 10)
		zones = append(zones, models.HazardZone{Geometry: testutil.Square(x, 0, x+1, 1)})
	}

	assert.Len(t, ExclusionPoints(zones, 50), 50)
}
