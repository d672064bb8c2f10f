package cliapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/ankur-anand/statusdb/internal/services/httpapi"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPService serves the status API, health and metrics endpoints.
type HTTPService struct {
	server     *http.Server
	httpAPISvc *httpapi.Service
	addr       string
	boundAddr  string
	ready      chan struct{}
}

func (h *HTTPService) Name() string {
	return "http"
}

func (h *HTTPService) Setup(ctx context.Context, deps *Dependencies) error {
	h.ready = make(chan struct{})

	if deps.Store == nil || deps.Status == nil {
		return errors.New("http service requires an open record store")
	}

	limiter, err := config.BuildLimiter(deps.Config.Limiter)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	h.httpAPISvc = httpapi.NewService(deps.Status, deps.Store, limiter)
	h.httpAPISvc.RegisterRoutes(router)

	slog.Info("[statusdb.cliapp]",
		slog.String("event_type", "HTTP.API.registered"),
		slog.String("namespace", deps.Store.Namespace()),
		slog.Bool("write_limiter", limiter != nil),
	)

	ip := deps.Config.ListenIP
	if ip == "" {
		ip = "0.0.0.0"
	}
	h.addr = fmt.Sprintf("%s:%d", ip, deps.Config.HTTPPort)

	h.server = &http.Server{
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	return nil
}

func (h *HTTPService) Run(ctx context.Context) error {
	var lis net.ListenConfig
	l, err := lis.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http listen error: %w", err)
	}

	h.boundAddr = l.Addr().String()
	close(h.ready)

	slog.Info("[statusdb.cliapp]",
		slog.String("event_type", "HTTP.server.started"),
		slog.String("addr", h.boundAddr),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.Serve(l)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (h *HTTPService) Close(ctx context.Context) error {
	if h.server != nil {
		slog.Info("[statusdb.cliapp]",
			slog.String("event_type", "stopping.HTTP.server"))

		if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http shutdown error: %w", err)
		}
	}
	return nil
}

func (h *HTTPService) Addr() string {
	return h.addr
}

func (h *HTTPService) BoundAddr() string {
	return h.boundAddr
}

func (h *HTTPService) Ready() <-chan struct{} {
	return h.ready
}
