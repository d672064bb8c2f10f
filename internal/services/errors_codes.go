package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/recordstore"
)

// Error codes carried in every error body, so integrators can tell the
// rejection reasons apart without parsing messages.
const (
	CodeMalformedPayload = "malformed_payload"
	CodeInvalidEncoding  = "invalid_encoding"
	CodeMissingCaller    = "missing_caller"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

var (
	ErrRateLimited = errors.New("write rate limit exceeded")
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToHTTPError converts a business error to an HTTP status and error body.
// Internal failures are logged here and their detail is not returned.
func ToHTTPError(namespace, reqID string, err error) (int, ErrorResponse) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, msgcodec.ErrMalformedPayload):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeMalformedPayload}
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: CodeMalformedPayload}
	case errors.Is(err, msgcodec.ErrInvalidEncoding):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidEncoding}
	case errors.Is(err, contract.ErrMissingCaller):
		return http.StatusUnauthorized, ErrorResponse{Error: contract.ErrMissingCaller.Error(), Code: CodeMissingCaller}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{Error: ErrRateLimited.Error(), Code: CodeRateLimited}
	case errors.Is(err, recordstore.ErrStoreClosed):
		return http.StatusServiceUnavailable, ErrorResponse{Error: recordstore.ErrStoreClosed.Error(), Code: CodeUnavailable}
	default:
		slog.Error("[statusdb.services] service error",
			slog.String("event_type", "request.internal_error"),
			slog.String("namespace", namespace),
			slog.String("request_id", reqID),
			slog.Any("error", err),
		)
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: CodeInternal}
	}
}

// WriteError writes err as a JSON error body.
func WriteError(w http.ResponseWriter, namespace, reqID string, err error) {
	statusCode, body := ToHTTPError(namespace, reqID, err)
	WriteJSON(w, statusCode, body)
}

// WriteJSON writes data with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("[statusdb.services] error encoding response", slog.Any("error", err))
		}
	}
}
