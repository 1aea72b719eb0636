package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"lifeline-router/internal/weather"
)

// HandleWeatherSummary handles GET /api/v1/weather/summary?lat=&lng=
func (h *Handler) HandleWeatherSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil || !weather.ValidCoordinates(lat, lng) {
		h.handleValidationError(w, "lat and lng must be valid coordinates", nil)
		return
	}

	summary, err := h.Weather.Summary(r.Context(), lat, lng)
	if err != nil {
		if errors.Is(err, weather.ErrInvalidCoordinates) {
			h.handleValidationError(w, "lat and lng must be valid coordinates", nil)
			return
		}
		h.handleInternalError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{Data: summary})
}
