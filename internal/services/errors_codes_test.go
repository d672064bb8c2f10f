package services_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/internal/services"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTPError_Mappings(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"malformed", fmt.Errorf("%w: truncated", msgcodec.ErrMalformedPayload), http.StatusBadRequest, services.CodeMalformedPayload},
		{"invalid_encoding", fmt.Errorf("%w: at byte offset 2", msgcodec.ErrInvalidEncoding), http.StatusBadRequest, services.CodeInvalidEncoding},
		{"missing_caller", contract.ErrMissingCaller, http.StatusUnauthorized, services.CodeMissingCaller},
		{"rate_limited", services.ErrRateLimited, http.StatusTooManyRequests, services.CodeRateLimited},
		{"closed", fmt.Errorf("set: %w", recordstore.ErrStoreClosed), http.StatusServiceUnavailable, services.CodeUnavailable},
		{"too_large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, services.CodeMalformedPayload},
		{"internal", errors.New("disk gone"), http.StatusInternalServerError, services.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := services.ToHTTPError("r", "req-1", tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestToHTTPError_InternalHidesDetail(t *testing.T) {
	_, body := services.ToHTTPError("r", "req-1", errors.New("/var/lib/secret path"))
	assert.Equal(t, "internal server error", body.Error)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	services.WriteError(rec, "r", "req-1", contract.ErrMissingCaller)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body services.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, services.CodeMissingCaller, body.Code)
}
