package directions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   []Request
	respond func(call int, req Request) ([]Route, error)
}

func (p *scriptedProvider) Directions(_ context.Context, req Request) ([]Route, error) {
	p.mu.Lock()
	call := len(p.calls)
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	return p.respond(call, req)
}

func straightLine(n int, lat float64) orb.LineString {
	line := make(orb.LineString, n)
	for i := range line {
		line[i] = orb.Point{121.0 + float64(i)*0.001, lat}
	}
	return line
}

func routeOf(dist float64, line orb.LineString) Route {
	return Route{DistanceMeters: dist, DurationSecs: dist / 10, Geometry: line}
}

var (
	testStart = orb.Point{121.0, 14.6}
	testEnd   = orb.Point{121.01, 14.6}
)

func acquireReq() AcquireRequest {
	return AcquireRequest{Profile: "driving", Start: testStart, End: testEnd}
}

func TestAcquire_PlainAlternativesSuffice(t *testing.T) {
	p := &scriptedProvider{respond: func(int, Request) ([]Route, error) {
		return []Route{
			routeOf(1000, straightLine(8, 14.6)),
			routeOf(1200, straightLine(8, 14.61)),
			routeOf(1300, straightLine(8, 14.62)),
			routeOf(1400, straightLine(8, 14.63)),
		}, nil
	}}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	assert.Len(t, routes, MaxRouteCandidates)
	assert.Len(t, p.calls, 1)
	assert.True(t, p.calls[0].Alternatives)
	assert.Nil(t, p.calls[0].ContinueStraight)
	assert.Equal(t, 1000.0, routes[0].DistanceMeters)
}

func TestAcquire_PlainFailureIsFatal(t *testing.T) {
	upstream := &ErrProviderFailed{StatusCode: 503, Reason: "down"}
	p := &scriptedProvider{respond: func(int, Request) ([]Route, error) {
		return nil, upstream
	}}

	_, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	assert.ErrorIs(t, err, upstream)
	assert.Len(t, p.calls, 1)
}

func TestAcquire_PlainEmptyIsNoRoutes(t *testing.T) {
	p := &scriptedProvider{respond: func(int, Request) ([]Route, error) {
		return []Route{}, nil
	}}

	_, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	assert.ErrorIs(t, err, ErrNoRoutes)
}

func TestAcquire_ContinueStraightRetry(t *testing.T) {
	base := routeOf(1000, straightLine(8, 14.6))
	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		if req.ContinueStraight != nil {
			return []Route{base, routeOf(1100, straightLine(8, 14.605))}, nil
		}
		return []Route{base, base}, nil
	}}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	require.Len(t, routes, 2)
	require.Len(t, p.calls, 2)
	assert.False(t, *p.calls[1].ContinueStraight)
	assert.Equal(t, 1000.0, routes[0].DistanceMeters)
	assert.Equal(t, 1100.0, routes[1].DistanceMeters)
}

func TestAcquire_ExclusionPointsAccumulate(t *testing.T) {
	first := routeOf(1000, straightLine(10, 14.6))
	callerExclude := orb.Point{120.5, 14.5}

	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		switch call {
		case 0, 1:
			return []Route{first}, nil
		case 2:
			return nil, errors.New("transient")
		case 3:
			return []Route{routeOf(1500, straightLine(10, 14.7))}, nil
		default:
			return []Route{first}, nil
		}
	}}

	req := acquireReq()
	req.Exclude = []orb.Point{callerExclude}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, 1500.0, routes[1].DistanceMeters)

	// plain, continue_straight, then all four exclusion points
	require.Len(t, p.calls, 6)
	for i, fraction := range exclusionFractions {
		call := p.calls[2+i]
		require.Len(t, call.Exclude, 2)
		assert.Equal(t, callerExclude, call.Exclude[0])
		wantIdx := int(float64(len(first.Geometry)) * fraction)
		assert.InDelta(t, first.Geometry[wantIdx][0], call.Exclude[1][0], 1e-9)
		assert.InDelta(t, first.Geometry[wantIdx][1], call.Exclude[1][1], 1e-9)
		assert.Len(t, call.Waypoints, 2)
	}
}

func TestAcquire_ExclusionStopsAtCap(t *testing.T) {
	first := routeOf(1000, straightLine(10, 14.6))
	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		if call == 2 {
			return []Route{
				routeOf(1100, straightLine(10, 14.61)),
				routeOf(1200, straightLine(10, 14.62)),
			}, nil
		}
		return []Route{first}, nil
	}}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	assert.Len(t, routes, 3)
	assert.Len(t, p.calls, 3)
}

func TestAcquire_DetourWaypoints(t *testing.T) {
	// 5 points: too short for exclusion sampling, long enough for detours
	first := routeOf(1000, straightLine(5, 14.6))
	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		if len(req.Waypoints) == 3 {
			return []Route{routeOf(1000+float64(call), orb.LineString{testStart, req.Waypoints[1], testEnd})}, nil
		}
		return []Route{first}, nil
	}}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	assert.Len(t, routes, 3)

	// plain, continue_straight, two detours until the cap is hit
	require.Len(t, p.calls, 4)
	for _, call := range p.calls[2:] {
		require.Len(t, call.Waypoints, 3)
		assert.False(t, call.Alternatives)
		assert.Equal(t, testStart, call.Waypoints[0])
		assert.Equal(t, testEnd, call.Waypoints[2])
		assert.NotEqual(t, first.Geometry[2], call.Waypoints[1])
	}
}

func TestAcquire_SingleRouteWhenLadderExhausted(t *testing.T) {
	first := routeOf(1000, straightLine(3, 14.6))
	p := &scriptedProvider{respond: func(int, Request) ([]Route, error) {
		return []Route{first}, nil
	}}

	routes, err := NewAcquirer(p, nil, nil).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	assert.Len(t, routes, 1)
	// 3 coordinates: no exclusion points, no detours
	assert.Len(t, p.calls, 2)
}

func TestAcquire_CustomStrategies(t *testing.T) {
	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		return []Route{routeOf(1000, straightLine(3, 14.6))}, nil
	}}

	var seenPool int
	custom := []Strategy{{
		Name: "inspect_pool",
		Requests: func(pool []Route, req AcquireRequest) []Request {
			seenPool = len(pool)
			return nil
		},
	}}

	_, err := NewAcquirer(p, nil, nil).WithStrategies(custom).Acquire(context.Background(), acquireReq())
	require.NoError(t, err)
	assert.Equal(t, 1, seenPool)
	assert.Len(t, p.calls, 1)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{respond: func(call int, req Request) ([]Route, error) {
		cancel()
		return []Route{routeOf(1000, straightLine(8, 14.6))}, nil
	}}

	_, err := NewAcquirer(p, nil, nil).Acquire(ctx, acquireReq())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteKey(t *testing.T) {
	line := orb.LineString{{1, 2}, {3, 4}, {5, 6}}
	assert.Equal(t, "1000-100-1.000000,2.000000|3.000000,4.000000|5.000000,6.000000",
		RouteKey(Route{DistanceMeters: 999.6, DurationSecs: 100.4, Geometry: line}))
	assert.Equal(t, "10-2", RouteKey(Route{DistanceMeters: 10.2, DurationSecs: 1.5}))
}

func TestRoutePoolKeepsFirstPosition(t *testing.T) {
	p := newRoutePool()
	a := Route{DistanceMeters: 1, DurationSecs: 1}
	b := Route{DistanceMeters: 2, DurationSecs: 2}
	aAgain := Route{DistanceMeters: 1, DurationSecs: 1, Legs: []Leg{{}}}

	p.merge([]Route{a, b, aAgain})

	routes := p.routes(0)
	require.Len(t, routes, 2)
	assert.Len(t, routes[0].Legs, 1)
	assert.Equal(t, 2.0, routes[1].DistanceMeters)
	assert.Len(t, p.routes(1), 1)
}
