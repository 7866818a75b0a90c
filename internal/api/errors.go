package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError categorizes err and sends the error envelope. Server-side failures
// are logged with their cause; clients only see the categorized message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).
			WithError(err).
			WithField("category", string(catErr.Category)).
			Error("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(catErr.StatusCode)

	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: *catErr.ToServiceError()})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses a JSON request body of at most limit bytes, rejecting unknown
// fields. A longer body is a 413.
func parseJSONBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.NewPayloadTooLargeError(limit)
		}
		return apperrors.NewInvalidInputError("Invalid JSON body", err)
	}
	return nil
}

// readBody reads at most limit bytes; a longer body is a 413
func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.NewPayloadTooLargeError(limit)
		}
		return nil, apperrors.NewInvalidInputError("could not read request body", err)
	}
	if int64(len(body)) > limit {
		return nil, apperrors.NewPayloadTooLargeError(limit)
	}
	return body, nil
}
