package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"lifeline-router/internal/models"
	"lifeline-router/internal/riskmodel"
	"lifeline-router/internal/routing"
)

// CoordinatesDTO is a lat/lng pair in a request body
type CoordinatesDTO struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (c *CoordinatesDTO) coordinates() models.Coordinates {
	return models.Coordinates{Lat: *c.Lat, Lng: *c.Lng}
}

// WeatherDTO is an optional caller-supplied weather snapshot
type WeatherDTO struct {
	RainfallMM *float64 `json:"rainfall_mm" validate:"omitempty,gte=0"`
	IsRaining  *int     `json:"is_raining" validate:"omitempty,oneof=0 1"`
}

// OptimizeRouteRequest is the body of POST /api/v1/routing/optimize
type OptimizeRouteRequest struct {
	Start   *CoordinatesDTO `json:"start" validate:"required"`
	End     *CoordinatesDTO `json:"end" validate:"required"`
	Profile string          `json:"profile" validate:"omitempty,oneof=driving walking"`
	Mode    string          `json:"mode" validate:"omitempty,oneof=optimize evaluate"`
	Weather *WeatherDTO     `json:"weather"`
}

func (req *OptimizeRouteRequest) toRouting() *routing.OptimizeRequest {
	out := &routing.OptimizeRequest{
		Start:   req.Start.coordinates(),
		End:     req.End.coordinates(),
		Profile: models.RouteProfile(req.Profile),
		Mode:    models.RouteMode(req.Mode),
	}
	if req.Weather != nil {
		w := &routing.WeatherOverride{IsRaining: req.Weather.IsRaining}
		if req.Weather.RainfallMM != nil {
			w.RainfallMM = *req.Weather.RainfallMM
		}
		out.Weather = w
	}
	return out
}

// HandleOptimizeRoute handles POST /api/v1/routing/optimize
func (h *Handler) HandleOptimizeRoute(w http.ResponseWriter, r *http.Request) {
	var body OptimizeRouteRequest
	if !h.decodeBody(w, r, &body) {
		return
	}

	result, err := h.Optimizer.Optimize(r.Context(), body.toRouting())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger().Info("route selected",
		zap.String("mode", body.Mode),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("chosen_index", result.ChosenIndex),
		zap.Bool("blocked", result.Chosen.Blocked),
		zap.String("weather_source", string(result.UsedWeather.Source)))

	h.writeJSON(w, http.StatusOK, DataResponse{Data: result})
}

// RiskRowDTO is one feature row for direct prediction
type RiskRowDTO struct {
	FloodDepth5yr *float64 `json:"flood_depth_5yr" validate:"required,gte=0"`
	RainfallMM    *float64 `json:"rainfall_mm" validate:"required,gte=0"`
	IsRaining     *int     `json:"is_raining" validate:"required,oneof=0 1"`
	Bridge        *int     `json:"bridge" validate:"required,oneof=0 1"`
	RoadPriority  *int     `json:"road_priority" validate:"required,oneof=0 1 2 3"`
}

func (r RiskRowDTO) features() riskmodel.Features {
	return riskmodel.Features{
		FloodDepth5yr: *r.FloodDepth5yr,
		RainfallMM:    *r.RainfallMM,
		IsRaining:     float64(*r.IsRaining),
		Bridge:        float64(*r.Bridge),
		RoadPriority:  float64(*r.RoadPriority),
	}
}

// PredictRiskRequest is the body of POST /api/v1/routing-risk/predict
type PredictRiskRequest struct {
	Segments []RiskRowDTO `json:"segments" validate:"required,min=1,max=1000,dive"`
}

// PredictRiskResponse carries one cost and one prediction per input row
type PredictRiskResponse struct {
	RoutingCost []float64              `json:"routing_cost"`
	Predictions []riskmodel.Prediction `json:"predictions"`
}

// HandlePredictRisk handles POST /api/v1/routing-risk/predict
func (h *Handler) HandlePredictRisk(w http.ResponseWriter, r *http.Request) {
	var body PredictRiskRequest
	if !h.decodeBody(w, r, &body) {
		return
	}

	rows := make([]riskmodel.Features, len(body.Segments))
	for i, s := range body.Segments {
		rows[i] = s.features()
	}

	predictions, err := h.Model.Predict(r.Context(), rows)
	if err != nil {
		h.logger().Error("routing risk prediction failed", zap.Int("rows", len(rows)), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, string(routing.KindModelUnavailable), "Routing risk prediction failed.", nil)
		return
	}

	costs := make([]float64, len(predictions))
	for i, p := range predictions {
		costs[i] = p.RoutingCost
	}
	h.writeJSON(w, http.StatusOK, DataResponse{Data: PredictRiskResponse{
		RoutingCost: costs,
		Predictions: predictions,
	}})
}
