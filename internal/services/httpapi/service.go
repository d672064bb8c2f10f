package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/internal/middleware"
	"github.com/ankur-anand/statusdb/internal/msgcodec"
	"github.com/ankur-anand/statusdb/internal/services"
	"github.com/ankur-anand/statusdb/recordstore"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

const (
	// maxRequestBodySize is the maximum size of request body (1MB).
	maxRequestBodySize = 1 << 20

	encodingBase64 = "base64"
)

// StatsProvider reports the record store counters for the health endpoint.
type StatsProvider interface {
	Stats() recordstore.Stats
	Namespace() string
}

// Service implements HTTP API handlers for the status entry points.
// The caller of a write is resolved from the X-Account-Id header.
type Service struct {
	status    *contract.StatusMessage
	stats     StatsProvider
	limiter   *rate.Limiter
	namespace string
}

// NewService creates a new HTTP API service. writes may be nil to disable
// write throttling.
func NewService(status *contract.StatusMessage, stats StatsProvider, writes *rate.Limiter) *Service {
	return &Service{
		status:    status,
		stats:     stats,
		limiter:   writes,
		namespace: stats.Namespace(),
	}
}

// RegisterRoutes registers all HTTP API routes with the given router.
// Account ids are opaque and may contain '/', so routes match on the escaped
// path and the read route unescapes its variable itself.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.UseEncodedPath()
	router.Use(middleware.RequestID, middleware.Telemetry)

	api := router.PathPrefix("/api/v1/status").Subrouter()

	writes := api.Methods(http.MethodPut).Subrouter()
	writes.Use(middleware.RateLimit(s.namespace, s.limiter), middleware.CallerIdentity(s.namespace))
	writes.HandleFunc("", s.handleSetStatus)
	writes.HandleFunc("/borsh", s.handleSetStatusStructured)
	writes.HandleFunc("/text", s.handleSetStatusText)

	api.HandleFunc("/{accountId:.+}", s.handleGetStatus).Methods(http.MethodGet)

	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	services.WriteJSON(w, statusCode, data)
}

func (s *Service) respondError(w http.ResponseWriter, r *http.Request, err error) {
	services.WriteError(w, s.namespace, middleware.GetRequestID(r.Context()), err)
}

type SetStatusRequest struct {
	Message string `json:"message"`
}

type SetStatusResponse struct {
	Success bool `json:"success"`
}

func (s *Service) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, requestBodyError(err))
		return
	}

	if err := s.status.SetStatus(r.Context(), req.Message); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SetStatusResponse{Success: true})
}

// handleSetStatusStructured accepts a SetMessageInput payload as the raw body,
// or base64 encoded when ?encoding=base64 is given.
func (s *Service) handleSetStatusStructured(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch enc := r.URL.Query().Get("encoding"); enc {
	case "", "binary":
	case encodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(payload)))
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: invalid base64 payload: %v", msgcodec.ErrMalformedPayload, err))
			return
		}
		payload = decoded
	default:
		s.respondError(w, r, fmt.Errorf("%w: unsupported encoding %q", msgcodec.ErrMalformedPayload, enc))
		return
	}

	if err := s.status.SetStatusStructured(r.Context(), payload); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SetStatusResponse{Success: true})
}

func (s *Service) handleSetStatusText(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.status.SetStatusText(r.Context(), payload); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, SetStatusResponse{Success: true})
}

type GetStatusResponse struct {
	Found   bool   `json:"found"`
	Message string `json:"message"`
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := url.PathUnescape(mux.Vars(r)["accountId"])
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid account id in path: %v", msgcodec.ErrMalformedPayload, err))
		return
	}

	message, found, err := s.status.GetStatus(accountID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, GetStatusResponse{Found: found, Message: message})
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Namespace string            `json:"namespace"`
	Stats     recordstore.Stats `json:"stats"`
}

// HandleHealth handles the /health endpoint for server health checks.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Namespace: s.namespace,
		Stats:     s.stats.Stats(),
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, requestBodyError(err)
	}
	return payload, nil
}

func requestBodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("request body too large: %w", err)
	}
	return fmt.Errorf("%w: invalid request body: %v", msgcodec.ErrMalformedPayload, err)
}
