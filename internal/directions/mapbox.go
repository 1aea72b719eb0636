package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"

	"lifeline-router/internal/geo"
)

const (
	DefaultMapboxBaseURL = "https://api.mapbox.com/directions/v5/mapbox"

	GeometriesGeoJSON   = "geojson"
	GeometriesPolyline6 = "polyline6"
)

var accessTokenPattern = regexp.MustCompile(`access_token=[^&]+`)

// MapboxConfig configures the Mapbox Directions client
type MapboxConfig struct {
	BaseURL     string
	AccessToken string
	Geometries  string // geojson or polyline6
	Timeout     time.Duration
}

type mapboxProvider struct {
	baseURL     string
	accessToken string
	geometries  string
	httpClient  *http.Client
	logger      *zap.Logger
}

type mapboxResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Routes  []mapboxRoute `json:"routes"`
}

type mapboxRoute struct {
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Geometry json.RawMessage `json:"geometry"`
	Legs     []Leg           `json:"legs"`
}

// NewMapboxProvider creates a Mapbox Directions v5 client
func NewMapboxProvider(cfg MapboxConfig, logger *zap.Logger) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMapboxBaseURL
	}
	if cfg.Geometries == "" {
		cfg.Geometries = GeometriesGeoJSON
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &mapboxProvider{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		geometries:  cfg.Geometries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

func (p *mapboxProvider) Directions(ctx context.Context, req Request) ([]Route, error) {
	if p.accessToken == "" {
		return nil, &ErrProviderFailed{Reason: "access token is not configured"}
	}
	if len(req.Waypoints) < 2 {
		return nil, &ErrProviderFailed{Reason: "at least two waypoints are required"}
	}

	queryURL := p.buildURL(req)
	safeURL := accessTokenPattern.ReplaceAllString(queryURL, "access_token=REDACTED")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		p.logger.Error("failed to create directions request", zap.Error(err))
		return nil, &ErrProviderFailed{Reason: err.Error()}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("directions request failed", zap.String("url", safeURL), zap.Error(redactURLError(err)))
		return nil, &ErrProviderFailed{Reason: "request failed"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("failed to read directions response", zap.String("url", safeURL), zap.Error(err))
		return nil, &ErrProviderFailed{StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	var decoded mapboxResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("directions provider error",
			zap.String("url", safeURL),
			zap.Int("status", resp.StatusCode),
			zap.String("code", decoded.Code),
			zap.String("message", decoded.Message),
		)
		if resp.StatusCode == http.StatusNotFound || isNoRouteCode(decoded.Code) {
			return nil, ErrNoRoutes
		}
		return nil, &ErrProviderFailed{
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("%s %s", decoded.Code, decoded.Message),
		}
	}

	if decodeErr != nil {
		p.logger.Error("failed to decode directions response", zap.String("url", safeURL), zap.Error(decodeErr))
		return nil, &ErrProviderFailed{StatusCode: resp.StatusCode, Reason: decodeErr.Error()}
	}

	if decoded.Code != "" && decoded.Code != "Ok" {
		p.logger.Warn("directions provider returned non-ok code", zap.String("url", safeURL), zap.String("code", decoded.Code))
		if isNoRouteCode(decoded.Code) {
			return []Route{}, nil
		}
		return nil, &ErrProviderFailed{StatusCode: resp.StatusCode, Reason: decoded.Code}
	}

	routes := make([]Route, 0, len(decoded.Routes))
	for i, raw := range decoded.Routes {
		line, err := p.decodeGeometry(raw.Geometry)
		if err != nil {
			p.logger.Warn("discarding malformed route geometry", zap.Int("route", i), zap.Error(err))
		}
		routes = append(routes, Route{
			DistanceMeters: nonNegative(raw.Distance),
			DurationSecs:   nonNegative(raw.Duration),
			Geometry:       line,
			Legs:           raw.Legs,
		})
	}

	p.logger.Debug("directions response", zap.String("url", safeURL), zap.Int("routes", len(routes)))
	return routes, nil
}

func (p *mapboxProvider) buildURL(req Request) string {
	coords := make([]string, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		coords[i] = formatLngLat(wp)
	}

	params := url.Values{}
	params.Set("alternatives", strconv.FormatBool(req.Alternatives))
	params.Set("steps", "true")
	params.Set("geometries", p.geometries)
	params.Set("overview", "full")
	params.Set("access_token", p.accessToken)
	if req.ContinueStraight != nil {
		params.Set("continue_straight", strconv.FormatBool(*req.ContinueStraight))
	}
	if len(req.Exclude) > 0 {
		params.Set("exclude", ExcludeParam(req.Exclude))
	}

	return fmt.Sprintf("%s/%s/%s?%s", p.baseURL, req.Profile, strings.Join(coords, ";"), params.Encode())
}

// ExcludeParam renders exclusion points in the provider's point(lng lat) syntax
func ExcludeParam(points []orb.Point) string {
	parts := make([]string, len(points))
	for i, pt := range points {
		parts[i] = fmt.Sprintf("point(%s %s)",
			strconv.FormatFloat(geo.Round6(pt[0]), 'f', -1, 64),
			strconv.FormatFloat(geo.Round6(pt[1]), 'f', -1, 64),
		)
	}
	return strings.Join(parts, ",")
}

func formatLngLat(p orb.Point) string {
	return strconv.FormatFloat(p[0], 'f', -1, 64) + "," + strconv.FormatFloat(p[1], 'f', -1, 64)
}

// decodeGeometry validates the route shape at the boundary. An invalid
// shape yields a nil line and an error; the route itself is kept.
func (p *mapboxProvider) decodeGeometry(raw json.RawMessage) (orb.LineString, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: missing geometry", geo.ErrInvalidGeometry)
	}

	if p.geometries == GeometriesPolyline6 {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", geo.ErrInvalidGeometry, err)
		}
		codec := polyline.Codec{Dim: 2, Scale: 1e6}
		coords, _, err := codec.DecodeCoords([]byte(encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", geo.ErrInvalidGeometry, err)
		}
		line := make(orb.LineString, len(coords))
		for i, c := range coords {
			line[i] = orb.Point{c[1], c[0]} // polyline is lat,lng
		}
		return geo.LineString(line)
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geo.ErrInvalidGeometry, err)
	}
	return geo.LineString(g.Geometry())
}

func isNoRouteCode(code string) bool {
	return code == "NoRoute" || code == "NoSegment"
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// redactURLError strips the request URL, which carries the access token,
// from transport errors.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
