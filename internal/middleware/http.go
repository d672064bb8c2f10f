package middleware

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-metrics"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderAccountID = "X-Account-Id"

	reqIDKey = "request_id"
)

var (
	totalActiveHTTPReq = expvar.NewInt("total_active_http_requests")
)

// RequestID ensures every request carries a request id. An incoming
// X-Request-Id is kept, otherwise a new uuid is generated. The id is echoed in
// the response header and stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = generateNewRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateNewRequestID creates a new UUID-based request ID.
func generateNewRequestID() string {
	return uuid.New().String()
}

// CallerIdentity resolves the caller account from the X-Account-Id header and
// attaches it with contract.WithCaller. Requests without one are rejected.
func CallerIdentity(namespace string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := r.Header.Get(HeaderAccountID)
			if caller == "" {
				services.WriteError(w, namespace, GetRequestID(r.Context()), contract.ErrMissingCaller)
				return
			}
			next.ServeHTTP(w, r.WithContext(contract.WithCaller(r.Context(), caller)))
		})
	}
}

// RateLimit rejects requests once limiter has no token left. A nil limiter
// lets every request through.
func RateLimit(namespace string, limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.IncrCounterWithLabels([]string{"http", "request", "throttled", "total"}, 1,
					[]metrics.Label{{Name: "namespace", Value: namespace}})
				services.WriteError(w, namespace, GetRequestID(r.Context()), services.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Telemetry logs every request with its outcome and records basic metrics.
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		totalActiveHTTPReq.Add(1)
		defer totalActiveHTTPReq.Add(-1)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		label := []metrics.Label{
			{Name: "method", Value: r.Method},
			{Name: "route", Value: route},
		}
		metrics.SetGaugeWithLabels([]string{"http", "active", "requests"}, float32(totalActiveHTTPReq.Value()), label)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(startTime)
		labelDur := append(label, metrics.Label{Name: "status", Value: strconv.Itoa(rec.status)})
		metrics.MeasureSinceWithLabels([]string{"http", "request", "duration", "seconds"}, startTime, labelDur)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "[statusdb.middleware] request completed",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.String("client_ip", getClientIP(r)),
			slog.Int("status", rec.status),
			slog.String("duration", humanizeDuration(duration)),
			slog.String(reqIDKey, GetRequestID(r.Context())),
		)
	})
}
