package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"lifeline-router/internal/database"
	"lifeline-router/internal/routing"
	"lifeline-router/internal/weather"
)

const maxBodyBytes = 1 << 20

// WeatherSummarizer reports the cached current-conditions summary
type WeatherSummarizer interface {
	Summary(ctx context.Context, lat, lng float64) (weather.Summary, error)
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	DB        database.DataStore
	Optimizer routing.Optimizer
	Model     routing.CostModel
	Weather   WeatherSummarizer
	Logger    *zap.Logger
	Version   string
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// DataResponse wraps successful payloads
type DataResponse struct {
	Data interface{} `json:"data"`
}

// FieldError describes one rejected request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger().Warn("failed to encode response", zap.Error(err))
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string, details interface{}) {
	h.writeError(w, http.StatusBadRequest, string(routing.KindInputValidation), message, details)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger().Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, string(routing.KindInternal), "An error occurred. Please try again.", nil)
}

// handleServiceError maps a routing failure onto its status code. Server-side
// failures are logged and answered with a generic message.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := routing.AsServiceError(err)
	status := se.StatusCode()
	message := se.Message
	if status >= http.StatusInternalServerError {
		h.logger().Error("routing request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(se.Kind)),
			zap.Int("status", status),
			zap.Error(se))
		message = "Routing optimization failed."
	}
	h.writeError(w, status, string(se.Kind), message, nil)
}

// decodeBody strictly decodes a JSON body into dst and validates it. It
// writes the 400 response itself and reports whether decoding succeeded.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		h.handleValidationError(w, decodeMessage(err), nil)
		return false
	}
	if dec.More() {
		h.handleValidationError(w, "Request body must contain a single JSON object", nil)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.handleValidationError(w, "Invalid request payload", fieldErrors(verrs))
			return false
		}
		h.handleValidationError(w, err.Error(), nil)
		return false
	}
	return true
}

func decodeMessage(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is required"
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("Malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("Invalid type for field %q", typeErr.Field)
	case errors.As(err, &sizeErr):
		return "Request body too large"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "Invalid request body"
	}
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		// drop the root struct name from the namespace
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out = append(out, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}
